package camera

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func newTestFrame(seq uint64) Frame {
	return Frame{Image: gocv.NewMat(), Seq: seq, Timestamp: time.Now()}
}

func TestMailboxLatestFrameWins(t *testing.T) {
	box := newMailbox()
	defer box.drain()

	// Publish three frames with no consumer; only the newest survives.
	box.publish(newTestFrame(1))
	box.publish(newTestFrame(2))
	box.publish(newTestFrame(3))

	f, ok := box.take()
	if !ok {
		t.Fatal("take() found no frame after publishes")
	}
	defer f.Close()

	if f.Seq != 3 {
		t.Errorf("take() returned seq %d, want 3 (latest)", f.Seq)
	}
	if drops := box.dropCount(); drops != 2 {
		t.Errorf("dropCount() = %d, want 2", drops)
	}
}

func TestMailboxTakeEmpty(t *testing.T) {
	box := newMailbox()
	if _, ok := box.take(); ok {
		t.Error("take() on empty mailbox reported a frame")
	}
}

func TestMailboxNotifyWakesWaiter(t *testing.T) {
	box := newMailbox()
	defer box.drain()

	got := make(chan uint64, 1)
	go func() {
		<-box.notify
		f, ok := box.take()
		if !ok {
			got <- 0
			return
		}
		defer f.Close()
		got <- f.Seq
	}()

	time.Sleep(10 * time.Millisecond)
	box.publish(newTestFrame(7))

	select {
	case seq := <-got:
		if seq != 7 {
			t.Errorf("waiter received seq %d, want 7", seq)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was never woken by publish")
	}
}

func TestMailboxDrainClosesUnconsumed(t *testing.T) {
	box := newMailbox()
	box.publish(newTestFrame(1))
	box.drain()
	if _, ok := box.take(); ok {
		t.Error("take() after drain reported a frame")
	}
}
