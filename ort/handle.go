package ort

import (
	"fmt"
	"runtime"
	"unsafe"
)

// cpuProvider is always compiled into ONNX Runtime and always registered
// last, whatever the caller asks for.
const cpuProvider = "CPUExecutionProvider"

// SessionHandle is an exclusively-owned native inference session. It is
// created empty by Runtime.NewHandle, bound to a model by exactly one
// LoadFrom* call, and released with Destroy. Metadata accessors return
// snapshots cached at load time.
//
// Run is safe for concurrent use against a loaded handle; Load*/Destroy
// must be serialized by the caller against everything else.
type SessionHandle struct {
	config *SessionConfig

	handle      uintptr // Pointer to OrtSession
	inputsMeta  []NodeInfo
	outputsMeta []NodeInfo
	modelMeta   ModelMetadata
	providers   []string
}

// Runtime is the process-wide ONNX Runtime engine. The environment must be
// initialized (InitializeEnvironment) before handles are created.
type Runtime struct{}

// NewRuntime returns the engine front door.
func NewRuntime() *Runtime {
	return &Runtime{}
}

// NewHandle creates an unbound session handle. cfg may be nil for engine
// defaults, or a *SessionConfig; any other value is rejected. The
// configuration is applied verbatim on every load.
func (r *Runtime) NewHandle(cfg any) (*SessionHandle, error) {
	if !IsInitialized() {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	switch c := cfg.(type) {
	case nil:
		return &SessionHandle{}, nil
	case *SessionConfig:
		return &SessionHandle{config: c}, nil
	default:
		return nil, fmt.Errorf("unsupported session configuration type %T", cfg)
	}
}

// AvailableProviders reports the providers compiled into the loaded library.
func (r *Runtime) AvailableProviders() ([]string, error) {
	return AvailableProviders()
}

// LoadFromFile binds the handle to the ONNX model at path, registering the
// given execution providers in order (empty means engine defaults).
func (h *SessionHandle) LoadFromFile(path string, providers []string) error {
	if path == "" {
		return fmt.Errorf("model path cannot be empty")
	}

	return h.load(providers, func(opts uintptr) (uintptr, error) {
		pathPtr, pathBacking, err := goStringToORTChar(path)
		if err != nil {
			return 0, err
		}

		var session uintptr
		status := createSessionFunc(ortEnv, pathPtr, opts, &session)
		runtime.KeepAlive(pathBacking)
		if status != 0 {
			return 0, statusToError(status)
		}
		return session, nil
	})
}

// LoadFromBytes binds the handle to a serialized ONNX model held in memory.
func (h *SessionHandle) LoadFromBytes(data []byte, providers []string) error {
	if len(data) == 0 {
		return fmt.Errorf("model bytes cannot be empty")
	}

	return h.load(providers, func(opts uintptr) (uintptr, error) {
		var session uintptr
		// #nosec G103 -- ORT copies the model bytes during CreateSessionFromArray.
		status := createSessionFromArrayFunc(ortEnv, uintptr(unsafe.Pointer(unsafe.SliceData(data))), uintptr(len(data)), opts, &session)
		runtime.KeepAlive(data)
		if status != 0 {
			return 0, statusToError(status)
		}
		return session, nil
	})
}

// LoadPrebuilt adopts an already-created native OrtSession pointer without
// re-parsing the model. The session was configured by whoever created it, so
// no session options apply and no execution providers can be registered; a
// non-empty provider request is rejected rather than claimed without effect.
//
// Deprecated: escape hatch kept for parity with the historical loader; it
// will be removed. Do not build on it.
func (h *SessionHandle) LoadPrebuilt(raw uintptr, providers []string) error {
	if raw == 0 {
		return fmt.Errorf("prebuilt session handle cannot be zero")
	}
	if len(providers) != 0 {
		return fmt.Errorf("prebuilt session handles cannot register execution providers")
	}

	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if h == nil {
		return fmt.Errorf("session handle is nil")
	}
	if h.handle != 0 {
		return fmt.Errorf("session handle is already bound to a model")
	}
	if sessionGetInputCountFunc == nil || ortEnv == 0 {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	inputs, outputs, meta, err := readSessionMetadata(raw)
	if err != nil {
		return err
	}

	h.handle = raw
	h.inputsMeta = inputs
	h.outputsMeta = outputs
	h.modelMeta = meta
	h.providers = nil

	runtime.SetFinalizer(h, func(sh *SessionHandle) {
		_ = sh.Destroy()
	})
	return nil
}

// load runs the shared bind path: build native options, register the
// resolved providers on them, create the session via create, then cache the
// three metadata views and the provider list that was registered. On any
// failure the handle is left unbound with no native resources retained.
func (h *SessionHandle) load(providers []string, create func(opts uintptr) (uintptr, error)) error {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if h == nil {
		return fmt.Errorf("session handle is nil")
	}
	if h.handle != 0 {
		return fmt.Errorf("session handle is already bound to a model")
	}
	if createSessionFunc == nil || ortEnv == 0 {
		return fmt.Errorf("ONNX Runtime not initialized")
	}

	resolved, err := resolveProviders(providers)
	if err != nil {
		return err
	}

	opts, err := h.config.buildNativeOptions()
	if err != nil {
		return err
	}
	defer releaseSessionOptionsFunc(opts)

	if err := registerProviders(opts, resolved); err != nil {
		return err
	}

	session, err := create(opts)
	if err != nil {
		return err
	}

	inputs, outputs, meta, err := readSessionMetadata(session)
	if err != nil {
		releaseSessionFunc(session)
		return err
	}

	h.handle = session
	h.inputsMeta = inputs
	h.outputsMeta = outputs
	h.modelMeta = meta
	h.providers = resolved

	runtime.SetFinalizer(h, func(sh *SessionHandle) {
		_ = sh.Destroy()
	})
	return nil
}

// Inputs returns the cached input metadata in declared order.
func (h *SessionHandle) Inputs() []NodeInfo {
	if h == nil {
		return nil
	}
	return h.inputsMeta
}

// Outputs returns the cached output metadata in declared order.
func (h *SessionHandle) Outputs() []NodeInfo {
	if h == nil {
		return nil
	}
	return h.outputsMeta
}

// ModelMetadata returns the cached model metadata record.
func (h *SessionHandle) ModelMetadata() ModelMetadata {
	if h == nil {
		return ModelMetadata{}
	}
	return h.modelMeta
}

// Providers returns the provider list in effect for this session.
func (h *SessionHandle) Providers() []string {
	if h == nil {
		return nil
	}
	return h.providers
}

// Run executes the model. feed maps input names to values created with
// NewTensor/NewEmptyTensor (or previous outputs); outputNames selects the
// outputs to compute. Outputs are engine-allocated and returned in request
// order as *OutputTensor values; the caller owns them and must Destroy each.
func (h *SessionHandle) Run(outputNames []string, feed map[string]Value, runOpts *RunOptions) ([]Value, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if h == nil || h.handle == 0 {
		return nil, fmt.Errorf("session handle is not bound to a model")
	}
	if runSessionFunc == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}
	if len(outputNames) == 0 {
		return nil, fmt.Errorf("at least one output name is required")
	}
	if len(feed) == 0 {
		return nil, fmt.Errorf("input feed cannot be empty")
	}

	inputNamePtrs := make([]uintptr, 0, len(feed))
	inputHandles := make([]uintptr, 0, len(feed))
	var nameBackings [][]byte
	for name, value := range feed {
		handled, ok := value.(interface{ ortValueHandle() uintptr })
		if !ok {
			return nil, fmt.Errorf("unsupported value implementation %T for input %q", value, name)
		}
		valueHandle := handled.ortValueHandle()
		if valueHandle == 0 {
			return nil, fmt.Errorf("input value %q has been destroyed", name)
		}

		nameBytes, namePtr := GoToCstring(name)
		nameBackings = append(nameBackings, nameBytes)
		inputNamePtrs = append(inputNamePtrs, namePtr)
		inputHandles = append(inputHandles, valueHandle)
	}

	outputNamePtrs := make([]uintptr, 0, len(outputNames))
	for _, name := range outputNames {
		if name == "" {
			return nil, fmt.Errorf("output name cannot be empty")
		}
		nameBytes, namePtr := GoToCstring(name)
		nameBackings = append(nameBackings, nameBytes)
		outputNamePtrs = append(outputNamePtrs, namePtr)
	}

	nativeRunOpts, err := runOpts.build()
	if err != nil {
		return nil, err
	}
	defer func() {
		if nativeRunOpts != 0 {
			releaseRunOptionsFunc(nativeRunOpts)
		}
	}()

	outputHandles := make([]uintptr, len(outputNames))

	// #nosec G103 -- Raw pointers into pinned Go slices for the duration of the call.
	status := runSessionFunc(
		h.handle,
		nativeRunOpts,
		uintptr(unsafe.Pointer(unsafe.SliceData(inputNamePtrs))),
		uintptr(unsafe.Pointer(unsafe.SliceData(inputHandles))),
		uintptr(len(inputHandles)),
		uintptr(unsafe.Pointer(unsafe.SliceData(outputNamePtrs))),
		uintptr(len(outputNamePtrs)),
		uintptr(unsafe.Pointer(unsafe.SliceData(outputHandles))),
	)
	runtime.KeepAlive(nameBackings)
	runtime.KeepAlive(feed)
	if status != 0 {
		return nil, statusToError(status)
	}

	outputs := make([]Value, len(outputHandles))
	for i, handle := range outputHandles {
		outputs[i] = newOutputTensor(handle)
	}
	return outputs, nil
}

// EndProfiling stops native profiling and returns the path of the profile
// artifact. ORT reports an error if profiling was never enabled.
func (h *SessionHandle) EndProfiling() (string, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()

	if h == nil || h.handle == 0 {
		return "", fmt.Errorf("session handle is not bound to a model")
	}
	if sessionEndProfilingFunc == nil {
		return "", fmt.Errorf("ONNX Runtime not initialized")
	}

	allocator, err := defaultAllocator()
	if err != nil {
		return "", err
	}

	var pathPtr uintptr
	if status := sessionEndProfilingFunc(h.handle, allocator, &pathPtr); status != 0 {
		return "", statusToError(status)
	}
	return takeAllocatedString(pathPtr, allocator), nil
}

// Destroy releases the native session and clears the cached metadata.
// Idempotent; safe on a nil receiver.
func (h *SessionHandle) Destroy() error {
	if h == nil {
		return nil
	}

	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	handle := h.handle
	h.handle = 0
	h.inputsMeta = nil
	h.outputsMeta = nil
	h.modelMeta = ModelMetadata{}
	h.providers = nil
	runtime.SetFinalizer(h, nil)

	if handle != 0 && releaseSessionFunc != nil {
		releaseSessionFunc(handle)
	}
	return nil
}

// build materializes a native OrtRunOptions, or returns 0 when the zero
// value needs no native object.
func (o *RunOptions) build() (uintptr, error) {
	if o == nil || (o.Tag == "" && !o.Terminate) {
		return 0, nil
	}
	if createRunOptionsFunc == nil {
		return 0, fmt.Errorf("ONNX Runtime not initialized")
	}

	var opts uintptr
	if status := createRunOptionsFunc(&opts); status != 0 {
		return 0, statusToError(status)
	}

	if o.Tag != "" {
		tagBytes, tagPtr := GoToCstring(o.Tag)
		status := runOptionsSetRunTagFunc(opts, tagPtr)
		runtime.KeepAlive(tagBytes)
		if status != 0 {
			releaseRunOptionsFunc(opts)
			return 0, statusToError(status)
		}
	}
	if o.Terminate {
		if status := runOptionsSetTerminateFunc(opts); status != 0 {
			releaseRunOptionsFunc(opts)
			return 0, statusToError(status)
		}
	}
	return opts, nil
}

// resolveProviders maps the requested provider preference onto the list to
// register. An empty request resolves to the engine's own default ordering,
// queried fresh from the library. CPU is always registered last.
func resolveProviders(requested []string) ([]string, error) {
	if len(requested) == 0 {
		return availableProvidersLocked()
	}

	resolved := make([]string, 0, len(requested)+1)
	resolved = append(resolved, requested...)
	hasCPU := false
	for _, name := range resolved {
		if name == cpuProvider {
			hasCPU = true
			break
		}
	}
	if !hasCPU {
		resolved = append(resolved, cpuProvider)
	}
	return resolved, nil
}

// availableProvidersLocked is AvailableProviders for callers already inside
// ortCallMu.RLock.
func availableProvidersLocked() ([]string, error) {
	if getAvailableProvidersFunc == nil || releaseAvailableProvidersFunc == nil {
		return nil, fmt.Errorf("ONNX Runtime not initialized")
	}

	var arrayPtr uintptr
	var length int32
	if status := getAvailableProvidersFunc(&arrayPtr, &length); status != 0 {
		return nil, statusToError(status)
	}
	defer releaseAvailableProvidersFunc(arrayPtr, length)

	if arrayPtr == 0 || length <= 0 {
		return nil, nil
	}

	// #nosec G103 -- Reads the char* array returned by GetAvailableProviders.
	entries := unsafe.Slice((*uintptr)(unsafe.Pointer(arrayPtr)), int(length))
	providers := make([]string, 0, len(entries))
	for _, entry := range entries {
		providers = append(providers, CstringToGo(entry))
	}
	return providers, nil
}

// readSessionMetadata pulls the three metadata views out of a freshly
// created native session. On error all intermediate native allocations are
// released and nothing is retained.
func readSessionMetadata(session uintptr) ([]NodeInfo, []NodeInfo, ModelMetadata, error) {
	allocator, err := defaultAllocator()
	if err != nil {
		return nil, nil, ModelMetadata{}, err
	}

	inputs, err := readNodeInfos(session, allocator, sessionGetInputCountFunc, sessionGetInputNameFunc, sessionGetInputTypeInfoFunc)
	if err != nil {
		return nil, nil, ModelMetadata{}, fmt.Errorf("failed to read input metadata: %w", err)
	}

	outputs, err := readNodeInfos(session, allocator, sessionGetOutputCountFunc, sessionGetOutputNameFunc, sessionGetOutputTypeInfoFunc)
	if err != nil {
		return nil, nil, ModelMetadata{}, fmt.Errorf("failed to read output metadata: %w", err)
	}

	meta, err := readModelMetadata(session, allocator)
	if err != nil {
		return nil, nil, ModelMetadata{}, fmt.Errorf("failed to read model metadata: %w", err)
	}

	return inputs, outputs, meta, nil
}

func readNodeInfos(
	session uintptr,
	allocator uintptr,
	countFn func(uintptr, *uintptr) uintptr,
	nameFn func(uintptr, uintptr, uintptr, *uintptr) uintptr,
	typeInfoFn func(uintptr, uintptr, *uintptr) uintptr,
) ([]NodeInfo, error) {
	var count uintptr
	if status := countFn(session, &count); status != 0 {
		return nil, statusToError(status)
	}

	infos := make([]NodeInfo, 0, count)
	for i := uintptr(0); i < count; i++ {
		var namePtr uintptr
		if status := nameFn(session, i, allocator, &namePtr); status != 0 {
			return nil, statusToError(status)
		}
		name := takeAllocatedString(namePtr, allocator)

		var typeInfo uintptr
		if status := typeInfoFn(session, i, &typeInfo); status != 0 {
			return nil, statusToError(status)
		}

		shape, elementType, err := readTensorTypeInfo(typeInfo)
		releaseTypeInfoFunc(typeInfo)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", name, err)
		}

		infos = append(infos, NodeInfo{Name: name, Shape: shape, ElementType: elementType})
	}
	return infos, nil
}

// readTensorTypeInfo extracts shape and element type from an OrtTypeInfo.
// Symbolic dimensions come back as -1. Does not take ownership of typeInfo.
func readTensorTypeInfo(typeInfo uintptr) (Shape, TensorElementDataType, error) {
	var tensorInfo uintptr
	if status := castTypeInfoToTensorInfoFunc(typeInfo, &tensorInfo); status != 0 {
		return nil, TensorElementDataTypeUndefined, statusToError(status)
	}
	// tensorInfo is a view into typeInfo; it is not released separately.

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

func readModelMetadata(session uintptr, allocator uintptr) (ModelMetadata, error) {
	var metaHandle uintptr
	if status := sessionGetModelMetadataFunc(session, &metaHandle); status != 0 {
		return ModelMetadata{}, statusToError(status)
	}
	defer releaseModelMetadataFunc(metaHandle)

	meta := ModelMetadata{}
	for _, field := range []struct {
		fn  func(uintptr, uintptr, *uintptr) uintptr
		dst *string
	}{
		{modelMetadataGetProducerNameFunc, &meta.ProducerName},
		{modelMetadataGetGraphNameFunc, &meta.GraphName},
		{modelMetadataGetDomainFunc, &meta.Domain},
		{modelMetadataGetDescriptionFunc, &meta.Description},
	} {
		var strPtr uintptr
		if status := field.fn(metaHandle, allocator, &strPtr); status != 0 {
			return ModelMetadata{}, statusToError(status)
		}
		*field.dst = takeAllocatedString(strPtr, allocator)
	}

	if status := modelMetadataGetVersionFunc(metaHandle, &meta.Version); status != 0 {
		return ModelMetadata{}, statusToError(status)
	}

	var keysPtr uintptr
	var keyCount int64
	if status := modelMetadataGetCustomMapKeysFunc(metaHandle, allocator, &keysPtr, &keyCount); status != 0 {
		return ModelMetadata{}, statusToError(status)
	}
	if keysPtr != 0 && keyCount > 0 {
		// #nosec G103 -- Reads the allocator-owned char* key array.
		keyPtrs := unsafe.Slice((*uintptr)(unsafe.Pointer(keysPtr)), int(keyCount))
		meta.Custom = make(map[string]string, keyCount)
		for _, keyPtr := range keyPtrs {
			key := CstringToGo(keyPtr)

			keyBytes, keyCPtr := GoToCstring(key)
			var valuePtr uintptr
			status := modelMetadataLookupCustomMapFunc(metaHandle, allocator, keyCPtr, &valuePtr)
			runtime.KeepAlive(keyBytes)
			if status != 0 {
				releaseAllocatedStrings(keyPtrs, keysPtr, allocator)
				return ModelMetadata{}, statusToError(status)
			}
			meta.Custom[key] = takeAllocatedString(valuePtr, allocator)
		}
		releaseAllocatedStrings(keyPtrs, keysPtr, allocator)
	}

	return meta, nil
}

// defaultAllocator returns ORT's shared default allocator. The allocator is
// owned by the runtime and must not be released.
func defaultAllocator() (uintptr, error) {
	if getAllocatorWithDefaultOptionsFunc == nil {
		return 0, fmt.Errorf("ONNX Runtime not initialized")
	}

	var allocator uintptr
	if status := getAllocatorWithDefaultOptionsFunc(&allocator); status != 0 {
		return 0, statusToError(status)
	}
	if allocator == 0 {
		return 0, fmt.Errorf("default allocator is not available")
	}
	return allocator, nil
}

// takeAllocatedString copies an allocator-owned C string into Go memory and
// frees the native buffer.
func takeAllocatedString(ptr uintptr, allocator uintptr) string {
	if ptr == 0 {
		return ""
	}
	s := CstringToGo(ptr)
	if allocatorFreeFunc != nil {
		_ = allocatorFreeFunc(allocator, ptr)
	}
	return s
}

func releaseAllocatedStrings(ptrs []uintptr, arrayPtr uintptr, allocator uintptr) {
	if allocatorFreeFunc == nil {
		return
	}
	for _, ptr := range ptrs {
		if ptr != 0 {
			_ = allocatorFreeFunc(allocator, ptr)
		}
	}
	if arrayPtr != 0 {
		_ = allocatorFreeFunc(allocator, arrayPtr)
	}
}
