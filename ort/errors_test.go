package ort

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestStatusToErrorZeroStatus(t *testing.T) {
	if err := statusToError(0); err != nil {
		t.Fatalf("expected nil error for zero status, got %v", err)
	}
}

func TestStatusToErrorWithoutBoundAPI(t *testing.T) {
	resetEnvironmentState()
	defer resetEnvironmentState()

	err := statusToError(1)
	if err == nil {
		t.Fatal("expected error for non-zero status")
	}

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if runtimeErr.Code != ErrorCodeFail {
		t.Fatalf("expected ErrorCodeFail without a bound API, got %d", runtimeErr.Code)
	}
	if !strings.Contains(err.Error(), "onnxruntime error") {
		t.Fatalf("unexpected error text: %q", err.Error())
	}
}

func TestStatusToErrorReadsAndReleasesStatus(t *testing.T) {
	resetEnvironmentState()
	defer resetEnvironmentState()

	message, messagePtr := GoToCstring("invalid model path")
	defer func() { _ = message }() // Keep alive

	var released []uintptr
	getErrorCodeFunc = func(status uintptr) int32 {
		return int32(ErrorCodeInvalidArgument)
	}
	getErrorMessageFunc = func(status uintptr) uintptr {
		return messagePtr
	}
	releaseStatusFunc = func(status uintptr) {
		released = append(released, status)
	}

	err := statusToError(42)
	if err == nil {
		t.Fatal("expected error for non-zero status")
	}

	var runtimeErr *RuntimeError
	if !errors.As(err, &runtimeErr) {
		t.Fatalf("expected *RuntimeError, got %T", err)
	}
	if runtimeErr.Code != ErrorCodeInvalidArgument {
		t.Fatalf("unexpected code: got %d, want %d", runtimeErr.Code, ErrorCodeInvalidArgument)
	}
	if runtimeErr.Message != "invalid model path" {
		t.Fatalf("unexpected message: %q", runtimeErr.Message)
	}
	if !reflect.DeepEqual(released, []uintptr{42}) {
		t.Fatalf("expected status 42 to be released exactly once, got %v", released)
	}
}
