package main

import (
	"fmt"
	"os"

	"github.com/onnxgo/ortserve/ort"
)

func main() {
	err := NewRootCmd().Execute()

	if ort.IsInitialized() {
		if destroyErr := ort.DestroyEnvironment(); destroyErr != nil && err == nil {
			err = destroyErr
		}
	}

	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
