package ort

import "fmt"

// RuntimeError is an error surfaced by the native ONNX Runtime engine. It
// carries the C API error code and message verbatim.
type RuntimeError struct {
	Code    ErrorCode
	Message string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("onnxruntime error %d: %s", e.Code, e.Message)
}

// statusToError converts a non-zero OrtStatus into a *RuntimeError and
// releases the status. Returns nil for a zero (success) status.
func statusToError(status uintptr) error {
	if status == 0 {
		return nil
	}

	code := ErrorCodeFail
	if getErrorCodeFunc != nil {
		code = ErrorCode(getErrorCodeFunc(status))
	}
	msg := getErrorMessage(status)
	releaseStatus(status)

	return &RuntimeError{Code: code, Message: msg}
}

// getErrorMessage reads the message out of an OrtStatus without releasing it.
func getErrorMessage(status uintptr) string {
	if status == 0 || getErrorMessageFunc == nil {
		return ""
	}
	return CstringToGo(getErrorMessageFunc(status))
}

// releaseStatus releases an OrtStatus. Safe on a zero handle.
func releaseStatus(status uintptr) {
	if status != 0 && releaseStatusFunc != nil {
		releaseStatusFunc(status)
	}
}
