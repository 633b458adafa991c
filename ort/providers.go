package ort

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// providerAppendSymbols maps execution provider names onto the registration
// entry point each provider's build exports. The symbols exist only in
// library builds that carry the provider, so a missing symbol means the
// provider cannot be registered against the loaded library.
var providerAppendSymbols = map[string]string{
	"CUDAExecutionProvider":     "OrtSessionOptionsAppendExecutionProvider_CUDA",
	"TensorrtExecutionProvider": "OrtSessionOptionsAppendExecutionProvider_Tensorrt",
	"MIGraphXExecutionProvider": "OrtSessionOptionsAppendExecutionProvider_MIGraphX",
	"DnnlExecutionProvider":     "OrtSessionOptionsAppendExecutionProvider_Dnnl",
	"DmlExecutionProvider":      "OrtSessionOptionsAppendExecutionProvider_DML",
	"CoreMLExecutionProvider":   "OrtSessionOptionsAppendExecutionProvider_CoreML",
}

// appendProviderFunc registers a single execution provider on a native
// session options object. Package variable so tests can observe and stub
// registration.
var appendProviderFunc = appendProviderNative

// registerProviders appends every provider in order onto opts. CPU is
// compiled into every build and registered implicitly by the engine, so it
// needs no entry here. Caller must hold ortCallMu.RLock.
func registerProviders(opts uintptr, providers []string) error {
	for _, name := range providers {
		if name == cpuProvider {
			continue
		}
		if err := appendProviderFunc(opts, name); err != nil {
			return fmt.Errorf("failed to register execution provider %q: %w", name, err)
		}
	}
	return nil
}

func appendProviderNative(opts uintptr, provider string) error {
	symbol, ok := providerAppendSymbols[provider]
	if !ok {
		return fmt.Errorf("no registration entry for execution provider %q", provider)
	}
	if ortLib == 0 {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	addr, symErr := getSymbol(ortLib, symbol)
	if symErr != nil {
		return fmt.Errorf("provider is not compiled into the loaded library: %w", symErr)
	}
	if addr == 0 {
		return fmt.Errorf("provider is not compiled into the loaded library (missing %s)", symbol)
	}

	// Every append export takes the options object plus one integer: a
	// device id or a flags word. Zero selects the provider's default.
	var appendFn func(opts uintptr, arg int32) uintptr
	purego.RegisterFunc(&appendFn, addr)
	if status := appendFn(opts, 0); status != 0 {
		return statusToError(status)
	}
	return nil
}
