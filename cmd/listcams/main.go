// Command listcams probes camera device indices and reports which ones
// open. With -show it additionally previews the chosen device, which
// helps to tell physical cameras apart from virtual ones (Camo,
// DroidCam and friends usually land on an index above 0).
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"

	"gocv.io/x/gocv"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	maxIndex := flag.Int("max", 10, "Highest device index to probe (exclusive)")
	show := flag.Int("show", -1, "Preview this device index (ESC to quit)")
	flag.Parse()

	if *show >= 0 {
		if err := preview(*show); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	found := 0
	for i := 0; i < *maxIndex; i++ {
		cap, err := gocv.OpenVideoCapture(i)
		if err != nil {
			continue
		}
		if cap.IsOpened() {
			width := int(cap.Get(gocv.VideoCaptureFrameWidth))
			height := int(cap.Get(gocv.VideoCaptureFrameHeight))
			fmt.Printf("camera %d: %dx%d\n", i, width, height)
			found++
		}
		cap.Close()
	}
	if found == 0 {
		fmt.Println("no cameras detected")
		os.Exit(1)
	}
}

func preview(index int) error {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return fmt.Errorf("failed to open camera %d: %w", index, err)
	}
	defer cap.Close()

	window := gocv.NewWindow(fmt.Sprintf("camera %d", index))
	defer window.Close()

	frame := gocv.NewMat()
	defer frame.Close()

	fmt.Println("Previewing... press ESC to quit")
	for {
		if !cap.Read(&frame) || frame.Empty() {
			return fmt.Errorf("camera %d stopped delivering frames", index)
		}
		window.IMShow(frame)
		if window.WaitKey(1) == 27 {
			return nil
		}
	}
}
