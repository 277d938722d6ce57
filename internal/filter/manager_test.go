package filter

import (
	"testing"

	"gocv.io/x/gocv"

	"github.com/dudu/facefilter/internal/detector"
)

func newTestAsset(name string) *Asset {
	return &Asset{
		name:  name,
		image: gocv.NewMat(),
		anchors: map[detector.AnchorName]detector.Point{
			detector.AnchorLeftEye:  {X: 10, Y: 10},
			detector.AnchorRightEye: {X: 30, Y: 10},
		},
	}
}

func names(items []*Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Asset.Name()
	}
	return out
}

func TestManagerZOrder(t *testing.T) {
	m := NewManager()
	defer m.Close()

	m.Add(newTestAsset("glasses"), true, 2)
	m.Add(newTestAsset("mustache"), true, 1)
	m.Add(newTestAsset("hat"), true, 3)

	got := names(m.Active())
	want := []string{"mustache", "glasses", "hat"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active order = %v, want %v", got, want)
		}
	}
}

func TestManagerAddReplacesSameName(t *testing.T) {
	m := NewManager()
	defer m.Close()

	m.Add(newTestAsset("dot"), true, 1)
	m.Add(newTestAsset("dot"), false, 5)

	if m.Len() != 1 {
		t.Fatalf("Len() = %d after replacing, want 1", m.Len())
	}
	if len(m.Active()) != 0 {
		t.Error("replaced filter should carry the new disabled state")
	}
}

func TestManagerToggle(t *testing.T) {
	m := NewManager()
	defer m.Close()
	m.Add(newTestAsset("dot"), true, 0)

	state, ok := m.Toggle("dot")
	if !ok || state {
		t.Errorf("Toggle() = (%v, %v), want (false, true)", state, ok)
	}
	if len(m.Active()) != 0 {
		t.Error("toggled-off filter still active")
	}

	if _, ok := m.Toggle("missing"); ok {
		t.Error("Toggle() reported success for unknown filter")
	}
}

func TestManagerCycle(t *testing.T) {
	m := NewManager()
	defer m.Close()
	m.Add(newTestAsset("a"), true, 0)
	m.Add(newTestAsset("b"), false, 1)
	m.Add(newTestAsset("c"), false, 2)

	if got := m.Cycle(); got != "b" {
		t.Errorf("Cycle() = %q, want b", got)
	}
	if got := m.Cycle(); got != "c" {
		t.Errorf("Cycle() = %q, want c", got)
	}
	if got := m.Cycle(); got != "a" {
		t.Errorf("Cycle() = %q, want a (wrap around)", got)
	}
	if active := m.Active(); len(active) != 1 {
		t.Errorf("Cycle() left %d filters active, want exactly 1", len(active))
	}
}

func TestManagerCycleEmpty(t *testing.T) {
	m := NewManager()
	if got := m.Cycle(); got != "" {
		t.Errorf("Cycle() on empty manager = %q, want empty", got)
	}
}
