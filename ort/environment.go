package ort

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	// mu guards the global runtime state below.
	mu sync.Mutex
	// ortCallMu serializes environment teardown against in-flight native
	// calls. Native calls hold the read side; DestroyEnvironment and
	// resource Destroy methods take the write side.
	ortCallMu sync.RWMutex

	refCount int
	ortLib   uintptr
	ortAPI   *OrtApi
	ortEnv   uintptr
	libPath  string
	logLevel = LoggingLevelWarning
)

// Typed views over the OrtApi function pointer table, registered once per
// environment initialization. All return an OrtStatus pointer (0 on
// success) unless noted.
var (
	getVersionStringFunc func() uintptr
	getErrorCodeFunc     func(status uintptr) int32
	getErrorMessageFunc  func(status uintptr) uintptr
	releaseStatusFunc    func(status uintptr)

	createEnvFunc  func(level int32, logID uintptr, env *uintptr) uintptr
	releaseEnvFunc func(env uintptr)

	createSessionOptionsFunc             func(opts *uintptr) uintptr
	releaseSessionOptionsFunc            func(opts uintptr)
	setIntraOpNumThreadsFunc             func(opts uintptr, n int32) uintptr
	setInterOpNumThreadsFunc             func(opts uintptr, n int32) uintptr
	setSessionGraphOptimizationLevelFunc func(opts uintptr, level int32) uintptr
	setSessionLogSeverityLevelFunc       func(opts uintptr, level int32) uintptr
	enableProfilingFunc                  func(opts uintptr, prefix uintptr) uintptr

	createSessionFunc          func(env uintptr, modelPath uintptr, opts uintptr, session *uintptr) uintptr
	createSessionFromArrayFunc func(env uintptr, data uintptr, length uintptr, opts uintptr, session *uintptr) uintptr
	runSessionFunc             func(session uintptr, runOpts uintptr, inputNames uintptr, inputs uintptr, inputCount uintptr, outputNames uintptr, outputCount uintptr, outputs uintptr) uintptr
	releaseSessionFunc         func(session uintptr)

	sessionGetInputCountFunc     func(session uintptr, count *uintptr) uintptr
	sessionGetOutputCountFunc    func(session uintptr, count *uintptr) uintptr
	sessionGetInputNameFunc      func(session uintptr, index uintptr, allocator uintptr, name *uintptr) uintptr
	sessionGetOutputNameFunc     func(session uintptr, index uintptr, allocator uintptr, name *uintptr) uintptr
	sessionGetInputTypeInfoFunc  func(session uintptr, index uintptr, typeInfo *uintptr) uintptr
	sessionGetOutputTypeInfoFunc func(session uintptr, index uintptr, typeInfo *uintptr) uintptr

	castTypeInfoToTensorInfoFunc      func(typeInfo uintptr, tensorInfo *uintptr) uintptr
	getTensorElementTypeFunc          func(tensorInfo uintptr, elementType *int32) uintptr
	getDimensionsCountFunc            func(tensorInfo uintptr, count *uintptr) uintptr
	getDimensionsFunc                 func(tensorInfo uintptr, dims *int64, count uintptr) uintptr
	getTensorTypeAndShapeFunc         func(value uintptr, tensorInfo *uintptr) uintptr
	releaseTypeInfoFunc               func(typeInfo uintptr)
	releaseTensorTypeAndShapeInfoFunc func(tensorInfo uintptr)
	getTensorMutableDataFunc          func(value uintptr, data *uintptr) uintptr

	getAllocatorWithDefaultOptionsFunc func(allocator *uintptr) uintptr
	allocatorFreeFunc                  func(allocator uintptr, p uintptr) uintptr

	createMemoryInfoFunc               func(name uintptr, allocatorType AllocatorType, deviceID int32, memType MemType, out *uintptr) uintptr
	releaseMemoryInfoFunc              func(info uintptr)
	createTensorWithDataAsOrtValueFunc func(memInfo uintptr, data uintptr, dataLen uintptr, shape *int64, shapeLen uintptr, elementType TensorElementDataType, out *uintptr) uintptr
	releaseValueFunc                   func(value uintptr)

	createRunOptionsFunc       func(out *uintptr) uintptr
	releaseRunOptionsFunc      func(opts uintptr)
	runOptionsSetRunTagFunc    func(opts uintptr, tag uintptr) uintptr
	runOptionsSetTerminateFunc func(opts uintptr) uintptr

	sessionEndProfilingFunc           func(session uintptr, allocator uintptr, path *uintptr) uintptr
	sessionGetModelMetadataFunc       func(session uintptr, meta *uintptr) uintptr
	modelMetadataGetProducerNameFunc  func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetGraphNameFunc     func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetDomainFunc        func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetDescriptionFunc   func(meta uintptr, allocator uintptr, out *uintptr) uintptr
	modelMetadataGetVersionFunc       func(meta uintptr, out *int64) uintptr
	modelMetadataGetCustomMapKeysFunc func(meta uintptr, allocator uintptr, keys *uintptr, count *int64) uintptr
	modelMetadataLookupCustomMapFunc  func(meta uintptr, allocator uintptr, key uintptr, out *uintptr) uintptr
	releaseModelMetadataFunc          func(meta uintptr)

	getAvailableProvidersFunc     func(out *uintptr, length *int32) uintptr
	releaseAvailableProvidersFunc func(ptr uintptr, length int32) uintptr
)

// SetSharedLibraryPath sets the path to the ONNX Runtime shared library.
// It must be called before InitializeEnvironment and cannot change the
// path once the environment is live.
func SetSharedLibraryPath(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		return fmt.Errorf("shared library path cannot be empty")
	}
	if refCount > 0 && path != libPath {
		return fmt.Errorf("cannot change library path after environment is initialized")
	}
	libPath = path
	return nil
}

// InitializeEnvironment loads the ONNX Runtime shared library, materializes
// the OrtApi table and creates the process-wide OrtEnv. Calls are
// reference-counted: each successful call must be paired with a
// DestroyEnvironment call.
func InitializeEnvironment() error {
	mu.Lock()
	defer mu.Unlock()

	if refCount > 0 {
		refCount++
		return nil
	}

	if libPath == "" {
		return fmt.Errorf("shared library path not set: call SetSharedLibraryPath or InitializeEnvironmentWithBootstrap first")
	}

	lib, err := loadLibrary(libPath)
	if err != nil {
		return fmt.Errorf("failed to load ONNX Runtime library %q: %w", libPath, err)
	}

	if err := bindAPILocked(lib); err != nil {
		_ = closeLibrary(lib)
		clearAPILocked()
		return err
	}

	logIDBytes, logIDPtr := GoToCstring("ortserve")
	var env uintptr
	status := createEnvFunc(int32(logLevel), logIDPtr, &env)
	runtime.KeepAlive(logIDBytes)
	if status != 0 {
		err := statusToError(status)
		_ = closeLibrary(lib)
		clearAPILocked()
		return fmt.Errorf("failed to create ONNX Runtime environment: %w", err)
	}

	ortLib = lib
	ortEnv = env
	refCount = 1
	return nil
}

// DestroyEnvironment releases one reference on the environment. The native
// OrtEnv and library handle are torn down when the last reference drops.
// Extra calls on an uninitialized environment are no-ops.
func DestroyEnvironment() error {
	ortCallMu.Lock()
	defer ortCallMu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	if refCount == 0 {
		return nil
	}

	refCount--
	if refCount > 0 {
		return nil
	}

	if ortEnv != 0 && releaseEnvFunc != nil {
		releaseEnvFunc(ortEnv)
	}
	ortEnv = 0

	err := closeLibrary(ortLib)
	ortLib = 0
	clearAPILocked()

	if err != nil {
		return fmt.Errorf("failed to close ONNX Runtime library: %w", err)
	}
	return nil
}

// IsInitialized returns true if the environment is initialized
func IsInitialized() bool {
	mu.Lock()
	defer mu.Unlock()
	return refCount > 0
}

// SetLogLevel sets the severity used when creating the OrtEnv. Must be
// called before InitializeEnvironment.
func SetLogLevel(level LoggingLevel) error {
	mu.Lock()
	defer mu.Unlock()
	if refCount > 0 {
		return fmt.Errorf("cannot change log level after environment is initialized")
	}
	logLevel = level
	return nil
}

// GetVersionString returns the ONNX Runtime version string, or "0.0.0-dev"
// when the environment is not initialized.
func GetVersionString() string {
	mu.Lock()
	fn := getVersionStringFunc
	mu.Unlock()

	if fn == nil {
		return "0.0.0-dev"
	}
	return CstringToGo(fn())
}

// AvailableProviders returns the execution providers compiled into the
// loaded ONNX Runtime library, in the engine's priority order. Provider
// availability is process-wide state and is queried fresh on every call.
func AvailableProviders() ([]string, error) {
	ortCallMu.RLock()
	defer ortCallMu.RUnlock()
	return availableProvidersLocked()
}

// bindAPILocked resolves OrtGetApiBase, fetches the OrtApi table for
// ORT_API_VERSION and registers the entry points used by this package.
// Caller must hold mu.
func bindAPILocked(lib uintptr) error {
	getAPIBaseAddr, err := getSymbol(lib, "OrtGetApiBase")
	if err != nil || getAPIBaseAddr == 0 {
		return fmt.Errorf("failed to resolve OrtGetApiBase in %q: %w", libPath, err)
	}

	var getAPIBase func() uintptr
	purego.RegisterFunc(&getAPIBase, getAPIBaseAddr)
	basePtr := getAPIBase()
	if basePtr == 0 {
		return fmt.Errorf("OrtGetApiBase returned a null OrtApiBase")
	}
	// #nosec G103 -- OrtApiBase is a static struct owned by the library.
	base := (*OrtApiBase)(unsafe.Pointer(basePtr))

	var getAPI func(version uint32) uintptr
	purego.RegisterFunc(&getAPI, base.GetApi)
	apiPtr := getAPI(ORT_API_VERSION)
	if apiPtr == 0 {
		return fmt.Errorf("ONNX Runtime library %q does not support API version %d", libPath, ORT_API_VERSION)
	}
	// #nosec G103 -- OrtApi is a static function table owned by the library.
	ortAPI = (*OrtApi)(unsafe.Pointer(apiPtr))

	purego.RegisterFunc(&getVersionStringFunc, base.GetVersionString)

	for _, binding := range []struct {
		fptr any
		addr uintptr
		name string
	}{
		{&getErrorCodeFunc, ortAPI.GetErrorCode, "GetErrorCode"},
		{&getErrorMessageFunc, ortAPI.GetErrorMessage, "GetErrorMessage"},
		{&releaseStatusFunc, ortAPI.ReleaseStatus, "ReleaseStatus"},
		{&createEnvFunc, ortAPI.CreateEnv, "CreateEnv"},
		{&releaseEnvFunc, ortAPI.ReleaseEnv, "ReleaseEnv"},
		{&createSessionOptionsFunc, ortAPI.CreateSessionOptions, "CreateSessionOptions"},
		{&releaseSessionOptionsFunc, ortAPI.ReleaseSessionOptions, "ReleaseSessionOptions"},
		{&setIntraOpNumThreadsFunc, ortAPI.SetIntraOpNumThreads, "SetIntraOpNumThreads"},
		{&setInterOpNumThreadsFunc, ortAPI.SetInterOpNumThreads, "SetInterOpNumThreads"},
		{&setSessionGraphOptimizationLevelFunc, ortAPI.SetSessionGraphOptimizationLevel, "SetSessionGraphOptimizationLevel"},
		{&setSessionLogSeverityLevelFunc, ortAPI.SetSessionLogSeverityLevel, "SetSessionLogSeverityLevel"},
		{&enableProfilingFunc, ortAPI.EnableProfiling, "EnableProfiling"},
		{&createSessionFunc, ortAPI.CreateSession, "CreateSession"},
		{&createSessionFromArrayFunc, ortAPI.CreateSessionFromArray, "CreateSessionFromArray"},
		{&runSessionFunc, ortAPI.Run, "Run"},
		{&releaseSessionFunc, ortAPI.ReleaseSession, "ReleaseSession"},
		{&sessionGetInputCountFunc, ortAPI.SessionGetInputCount, "SessionGetInputCount"},
		{&sessionGetOutputCountFunc, ortAPI.SessionGetOutputCount, "SessionGetOutputCount"},
		{&sessionGetInputNameFunc, ortAPI.SessionGetInputName, "SessionGetInputName"},
		{&sessionGetOutputNameFunc, ortAPI.SessionGetOutputName, "SessionGetOutputName"},
		{&sessionGetInputTypeInfoFunc, ortAPI.SessionGetInputTypeInfo, "SessionGetInputTypeInfo"},
		{&sessionGetOutputTypeInfoFunc, ortAPI.SessionGetOutputTypeInfo, "SessionGetOutputTypeInfo"},
		{&castTypeInfoToTensorInfoFunc, ortAPI.CastTypeInfoToTensorInfo, "CastTypeInfoToTensorInfo"},
		{&getTensorElementTypeFunc, ortAPI.GetTensorElementType, "GetTensorElementType"},
		{&getDimensionsCountFunc, ortAPI.GetDimensionsCount, "GetDimensionsCount"},
		{&getDimensionsFunc, ortAPI.GetDimensions, "GetDimensions"},
		{&getTensorTypeAndShapeFunc, ortAPI.GetTensorTypeAndShape, "GetTensorTypeAndShape"},
		{&releaseTypeInfoFunc, ortAPI.ReleaseTypeInfo, "ReleaseTypeInfo"},
		{&releaseTensorTypeAndShapeInfoFunc, ortAPI.ReleaseTensorTypeAndShapeInfo, "ReleaseTensorTypeAndShapeInfo"},
		{&getTensorMutableDataFunc, ortAPI.GetTensorMutableData, "GetTensorMutableData"},
		{&getAllocatorWithDefaultOptionsFunc, ortAPI.GetAllocatorWithDefaultOptions, "GetAllocatorWithDefaultOptions"},
		{&allocatorFreeFunc, ortAPI.AllocatorFree, "AllocatorFree"},
		{&createMemoryInfoFunc, ortAPI.CreateMemoryInfo, "CreateMemoryInfo"},
		{&releaseMemoryInfoFunc, ortAPI.ReleaseMemoryInfo, "ReleaseMemoryInfo"},
		{&createTensorWithDataAsOrtValueFunc, ortAPI.CreateTensorWithDataAsOrtValue, "CreateTensorWithDataAsOrtValue"},
		{&releaseValueFunc, ortAPI.ReleaseValue, "ReleaseValue"},
		{&createRunOptionsFunc, ortAPI.CreateRunOptions, "CreateRunOptions"},
		{&releaseRunOptionsFunc, ortAPI.ReleaseRunOptions, "ReleaseRunOptions"},
		{&runOptionsSetRunTagFunc, ortAPI.RunOptionsSetRunTag, "RunOptionsSetRunTag"},
		{&runOptionsSetTerminateFunc, ortAPI.RunOptionsSetTerminate, "RunOptionsSetTerminate"},
		{&sessionEndProfilingFunc, ortAPI.SessionEndProfiling, "SessionEndProfiling"},
		{&sessionGetModelMetadataFunc, ortAPI.SessionGetModelMetadata, "SessionGetModelMetadata"},
		{&modelMetadataGetProducerNameFunc, ortAPI.ModelMetadataGetProducerName, "ModelMetadataGetProducerName"},
		{&modelMetadataGetGraphNameFunc, ortAPI.ModelMetadataGetGraphName, "ModelMetadataGetGraphName"},
		{&modelMetadataGetDomainFunc, ortAPI.ModelMetadataGetDomain, "ModelMetadataGetDomain"},
		{&modelMetadataGetDescriptionFunc, ortAPI.ModelMetadataGetDescription, "ModelMetadataGetDescription"},
		{&modelMetadataGetVersionFunc, ortAPI.ModelMetadataGetVersion, "ModelMetadataGetVersion"},
		{&modelMetadataGetCustomMapKeysFunc, ortAPI.ModelMetadataGetCustomMetadataMapKeys, "ModelMetadataGetCustomMetadataMapKeys"},
		{&modelMetadataLookupCustomMapFunc, ortAPI.ModelMetadataLookupCustomMetadataMap, "ModelMetadataLookupCustomMetadataMap"},
		{&releaseModelMetadataFunc, ortAPI.ReleaseModelMetadata, "ReleaseModelMetadata"},
		{&getAvailableProvidersFunc, ortAPI.GetAvailableProviders, "GetAvailableProviders"},
		{&releaseAvailableProvidersFunc, ortAPI.ReleaseAvailableProviders, "ReleaseAvailableProviders"},
	} {
		if binding.addr == 0 {
			return fmt.Errorf("OrtApi entry %s is null; ONNX Runtime library is too old", binding.name)
		}
		purego.RegisterFunc(binding.fptr, binding.addr)
	}

	return nil
}

// clearAPILocked drops every registered entry point. Caller must hold mu.
func clearAPILocked() {
	ortAPI = nil

	getVersionStringFunc = nil
	getErrorCodeFunc = nil
	getErrorMessageFunc = nil
	releaseStatusFunc = nil
	createEnvFunc = nil
	releaseEnvFunc = nil
	createSessionOptionsFunc = nil
	releaseSessionOptionsFunc = nil
	setIntraOpNumThreadsFunc = nil
	setInterOpNumThreadsFunc = nil
	setSessionGraphOptimizationLevelFunc = nil
	setSessionLogSeverityLevelFunc = nil
	enableProfilingFunc = nil
	createSessionFunc = nil
	createSessionFromArrayFunc = nil
	runSessionFunc = nil
	releaseSessionFunc = nil
	sessionGetInputCountFunc = nil
	sessionGetOutputCountFunc = nil
	sessionGetInputNameFunc = nil
	sessionGetOutputNameFunc = nil
	sessionGetInputTypeInfoFunc = nil
	sessionGetOutputTypeInfoFunc = nil
	castTypeInfoToTensorInfoFunc = nil
	getTensorElementTypeFunc = nil
	getDimensionsCountFunc = nil
	getDimensionsFunc = nil
	getTensorTypeAndShapeFunc = nil
	releaseTypeInfoFunc = nil
	releaseTensorTypeAndShapeInfoFunc = nil
	getTensorMutableDataFunc = nil
	getAllocatorWithDefaultOptionsFunc = nil
	allocatorFreeFunc = nil
	createMemoryInfoFunc = nil
	releaseMemoryInfoFunc = nil
	createTensorWithDataAsOrtValueFunc = nil
	releaseValueFunc = nil
	createRunOptionsFunc = nil
	releaseRunOptionsFunc = nil
	runOptionsSetRunTagFunc = nil
	runOptionsSetTerminateFunc = nil
	sessionEndProfilingFunc = nil
	sessionGetModelMetadataFunc = nil
	modelMetadataGetProducerNameFunc = nil
	modelMetadataGetGraphNameFunc = nil
	modelMetadataGetDomainFunc = nil
	modelMetadataGetDescriptionFunc = nil
	modelMetadataGetVersionFunc = nil
	modelMetadataGetCustomMapKeysFunc = nil
	modelMetadataLookupCustomMapFunc = nil
	releaseModelMetadataFunc = nil
	getAvailableProvidersFunc = nil
	releaseAvailableProvidersFunc = nil
}
