package ort

import (
	"fmt"
	"runtime"
	"unsafe"
)

// OutputTensor wraps an OrtValue allocated by the engine during Run. The
// caller owns it and must call Destroy when done; data accessors copy the
// native buffer into Go memory, so the copies outlive the tensor.
type OutputTensor struct {
	handle uintptr
}

func newOutputTensor(handle uintptr) *OutputTensor {
	t := &OutputTensor{handle: handle}
	runtime.SetFinalizer(t, func(ot *OutputTensor) {
		_ = ot.Destroy()
	})
	return t
}

func (t *OutputTensor) ortValueHandle() uintptr {
	if t == nil {
		return 0
	}
	return t.handle
}

// Type returns the value type (always ValueTypeTensor for output tensors).
func (t *OutputTensor) Type() ValueType {
	return ValueTypeTensor
}

// Info returns the tensor's shape and element type.
func (t *OutputTensor) Info() (Shape, TensorElementDataType, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if t == nil || t.handle == 0 {
		return nil, TensorElementDataTypeUndefined, fmt.Errorf("output tensor has been destroyed")
	}
	if getTensorTypeAndShapeFunc == nil {
		return nil, TensorElementDataTypeUndefined, fmt.Errorf("ONNX Runtime not initialized")
	}

	var tensorInfo uintptr
	if status := getTensorTypeAndShapeFunc(t.handle, &tensorInfo); status != 0 {
		return nil, TensorElementDataTypeUndefined, statusToError(status)
	}
	defer releaseTensorTypeAndShapeInfoFunc(tensorInfo)

	var elementType int32
	if status := getTensorElementTypeFunc(tensorInfo, &elementType); status != 0 {
		return nil, TensorElementDataTypeUndefined, statusToError(status)
	}

	var dimCount uintptr
	if status := getDimensionsCountFunc(tensorInfo, &dimCount); status != 0 {
		return nil, TensorElementDataTypeUndefined, statusToError(status)
	}

	shape := make(Shape, dimCount)
	if dimCount > 0 {
		if status := getDimensionsFunc(tensorInfo, unsafe.SliceData(shape), dimCount); status != 0 {
			return nil, TensorElementDataTypeUndefined, statusToError(status)
		}
	}

	return shape, TensorElementDataType(elementType), nil
}

// Float32s copies the tensor contents as float32 values.
func (t *OutputTensor) Float32s() ([]float32, error) {
	return outputTensorData[float32](t, TensorElementDataTypeFloat)
}

// Float64s copies the tensor contents as float64 values.
func (t *OutputTensor) Float64s() ([]float64, error) {
	return outputTensorData[float64](t, TensorElementDataTypeDouble)
}

// Int32s copies the tensor contents as int32 values.
func (t *OutputTensor) Int32s() ([]int32, error) {
	return outputTensorData[int32](t, TensorElementDataTypeInt32)
}

// Int64s copies the tensor contents as int64 values.
func (t *OutputTensor) Int64s() ([]int64, error) {
	return outputTensorData[int64](t, TensorElementDataTypeInt64)
}

// Destroy releases the native OrtValue. Idempotent.
func (t *OutputTensor) Destroy() error {
	if t == nil {
		return nil
	}

	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	handle := t.handle
	t.handle = 0
	runtime.SetFinalizer(t, nil)

	if handle != 0 && releaseValueFunc != nil {
		releaseValueFunc(handle)
	}
	return nil
}

func outputTensorData[T any](t *OutputTensor, want TensorElementDataType) ([]T, error) {
	shape, elementType, err := t.Info()
	if err != nil {
		return nil, err
	}
	if elementType != want {
		return nil, fmt.Errorf("tensor element type mismatch: have %d, want %d", elementType, want)
	}

	count, err := shapeElementCount(shape)
	if err != nil {
		return nil, err
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if t.handle == 0 {
		return nil, fmt.Errorf("output tensor has been destroyed")
	}
	if getTensorMutableDataFunc == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var dataPtr uintptr
	if status := getTensorMutableDataFunc(t.handle, &dataPtr); status != 0 {
		return nil, statusToError(status)
	}

	data := make([]T, count)
	if count > 0 && dataPtr != 0 {
		// #nosec G103 -- Copies out of the OrtValue buffer while the handle is live.
		src := unsafe.Slice((*T)(unsafe.Pointer(dataPtr)), count)
		copy(data, src)
	}
	return data, nil
}
