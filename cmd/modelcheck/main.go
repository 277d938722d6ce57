// Command modelcheck verifies that ONNX Runtime can load a detector
// model and prints its input/output tensors. Useful when wiring up a
// new SCRFD export before pointing facefilter at it.
package main

import (
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/facefilter/internal/inference"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: modelcheck <model.onnx>")
		fmt.Println("\nSet FACEFILTER_ORT_LIB if the ONNX Runtime shared library")
		fmt.Println("is not on the default search path.")
		os.Exit(1)
	}

	modelPath := os.Args[1]
	if _, err := os.Stat(modelPath); err != nil {
		fmt.Printf("Error: cannot read %s: %v\n", modelPath, err)
		os.Exit(1)
	}

	if err := inference.Initialize(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer inference.Shutdown()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		fmt.Printf("Error: failed to read model info: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Model: %s\n", modelPath)
	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
}
