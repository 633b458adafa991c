package session

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

// stubHandle records every call the facade makes against it.
type stubHandle struct {
	inputs    []NodeInfo
	outputs   []NodeInfo
	meta      ModelMetadata
	providers []string

	loadErr error
	runErr  error

	loadedFrom   string
	loadedPath   string
	loadedBytes  []byte
	loadedRaw    uintptr
	loadedWith   []string
	runRequests  [][]string
	runFeeds     []map[string]any
	runOptions   []any
	profileCalls int
	destroyed    bool
}

func (h *stubHandle) LoadFromFile(path string, providers []string) error {
	h.loadedFrom = "file"
	h.loadedPath = path
	h.loadedWith = providers
	return h.loadErr
}

func (h *stubHandle) LoadFromBytes(data []byte, providers []string) error {
	h.loadedFrom = "bytes"
	h.loadedBytes = data
	h.loadedWith = providers
	return h.loadErr
}

func (h *stubHandle) LoadPrebuilt(raw uintptr, providers []string) error {
	h.loadedFrom = "prebuilt"
	h.loadedRaw = raw
	h.loadedWith = providers
	return h.loadErr
}

func (h *stubHandle) Inputs() []NodeInfo           { return h.inputs }
func (h *stubHandle) Outputs() []NodeInfo          { return h.outputs }
func (h *stubHandle) ModelMetadata() ModelMetadata { return h.meta }
func (h *stubHandle) Providers() []string          { return h.providers }

func (h *stubHandle) Run(outputNames []string, feed map[string]any, runOptions any) ([]any, error) {
	h.runRequests = append(h.runRequests, outputNames)
	h.runFeeds = append(h.runFeeds, feed)
	h.runOptions = append(h.runOptions, runOptions)
	if h.runErr != nil {
		return nil, h.runErr
	}
	results := make([]any, len(outputNames))
	for i, name := range outputNames {
		results[i] = "value:" + name
	}
	return results, nil
}

func (h *stubHandle) EndProfiling() (string, error) {
	h.profileCalls++
	return "profile.json", nil
}

func (h *stubHandle) Destroy() error {
	h.destroyed = true
	return nil
}

// stubEngine hands out a fresh stubHandle per NewHandle call and keeps
// them all for inspection.
type stubEngine struct {
	available    []string
	availableErr error
	newHandleErr error
	nextLoadErr  error
	resolved     []string

	handles       []*stubHandle
	newHandleCfgs []any
}

func defaultStubEngine() *stubEngine {
	return &stubEngine{
		available: []string{"CUDAExecutionProvider", "CPUExecutionProvider"},
	}
}

func (e *stubEngine) NewHandle(config any) (Handle, error) {
	e.newHandleCfgs = append(e.newHandleCfgs, config)
	if e.newHandleErr != nil {
		return nil, e.newHandleErr
	}

	h := &stubHandle{
		inputs: []NodeInfo{
			{Name: "input_ids", Shape: []int64{1, 128}, ElementType: "int64"},
			{Name: "attention_mask", Shape: []int64{1, 128}, ElementType: "int64"},
		},
		outputs: []NodeInfo{
			{Name: "logits", Shape: []int64{1, 2}, ElementType: "float32"},
			{Name: "hidden", Shape: []int64{1, 128, 384}, ElementType: "float32"},
		},
		meta:    ModelMetadata{ProducerName: "pytorch", GraphName: "torch_jit", Version: 7},
		loadErr: e.nextLoadErr,
	}
	if e.resolved != nil {
		h.providers = e.resolved
	} else {
		h.providers = e.available
	}
	e.handles = append(e.handles, h)
	return h, nil
}

func (e *stubEngine) AvailableProviders() ([]string, error) {
	if e.availableErr != nil {
		return nil, e.availableErr
	}
	return e.available, nil
}

func (e *stubEngine) lastHandle(t *testing.T) *stubHandle {
	t.Helper()
	if len(e.handles) == 0 {
		t.Fatal("engine created no handles")
	}
	return e.handles[len(e.handles)-1]
}

func TestNewLoadsEverySourceVariant(t *testing.T) {
	tests := []struct {
		name     string
		source   ModelSource
		wantFrom string
	}{
		{name: "file path", source: FileSource{Path: "model.onnx"}, wantFrom: "file"},
		{name: "serialized bytes", source: BytesSource{Data: []byte{0x08, 0x01}}, wantFrom: "bytes"},
		{name: "prebuilt handle", source: PrebuiltSource{Raw: 42}, wantFrom: "prebuilt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := defaultStubEngine()
			sess, err := New(engine, tt.source, nil)
			if err != nil {
				t.Fatalf("unexpected construction error: %v", err)
			}

			handle := engine.lastHandle(t)
			if handle.loadedFrom != tt.wantFrom {
				t.Errorf("loaded from %q, want %q", handle.loadedFrom, tt.wantFrom)
			}
			if len(handle.loadedWith) != 0 {
				t.Errorf("initial load requested providers %v, want none", handle.loadedWith)
			}

			if got := sess.Inputs(); len(got) != 2 {
				t.Errorf("inputs = %v, want 2 entries", got)
			}
			if got := sess.Outputs(); len(got) != 2 {
				t.Errorf("outputs = %v, want 2 entries", got)
			}
			if meta := sess.ModelMetadata(); meta == nil || meta.GraphName != "torch_jit" {
				t.Errorf("model metadata = %+v, want graph torch_jit", meta)
			}
			if got := sess.Providers(); !reflect.DeepEqual(got, engine.available) {
				t.Errorf("providers = %v, want %v", got, engine.available)
			}
		})
	}
}

func TestNewRejectsUnsupportedSource(t *testing.T) {
	engine := defaultStubEngine()

	_, err := New(engine, nil, nil)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("error = %v, want ErrTypeMismatch", err)
	}
	if len(engine.handles) != 0 {
		t.Error("engine was called despite the unsupported source")
	}
}

func TestNewRejectsNilEngine(t *testing.T) {
	if _, err := New(nil, FileSource{Path: "model.onnx"}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
}

func TestNewPropagatesNativeLoadFailure(t *testing.T) {
	engine := defaultStubEngine()
	nativeErr := fmt.Errorf("Load model from model.onnx failed")
	engine.nextLoadErr = nativeErr

	_, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if !errors.Is(err, nativeErr) {
		t.Fatalf("error = %v, want the native error unchanged", err)
	}
	if err.Error() != nativeErr.Error() {
		t.Errorf("native error was rewrapped: %q", err.Error())
	}
	if handle := engine.lastHandle(t); !handle.destroyed {
		t.Error("failed load did not destroy the fresh handle")
	}
}

func TestNewPassesConfigThroughUnmodified(t *testing.T) {
	engine := defaultStubEngine()
	type opaqueConfig struct{ threads int }
	cfg := &opaqueConfig{threads: 4}

	if _, err := New(engine, FileSource{Path: "model.onnx"}, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(engine.newHandleCfgs) != 1 || engine.newHandleCfgs[0] != any(cfg) {
		t.Errorf("engine saw config %v, want the original pointer", engine.newHandleCfgs)
	}
}

func TestSetProvidersRejectsNonSubset(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := engine.lastHandle(t)

	err = sess.SetProviders([]string{"TensorrtExecutionProvider"})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
	for _, fragment := range []string{"TensorrtExecutionProvider", "CPUExecutionProvider"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not name %q", err.Error(), fragment)
		}
	}

	// The prior session must be fully intact and usable.
	if first.destroyed {
		t.Error("rejected rebind tore down the existing handle")
	}
	if sess.Inputs() == nil || sess.Providers() == nil {
		t.Error("rejected rebind cleared cached metadata")
	}
	if _, err := sess.Run(nil, feedOf("input_ids", "attention_mask"), nil); err != nil {
		t.Errorf("run after rejected rebind failed: %v", err)
	}
}

func TestSetProvidersRebuildsWholeSession(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, BytesSource{Data: []byte{0x08}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := engine.lastHandle(t)

	// The engine resolves the request into its own ordering.
	engine.resolved = []string{"CUDAExecutionProvider", "CPUExecutionProvider"}
	if err := sess.SetProviders([]string{"CUDAExecutionProvider"}); err != nil {
		t.Fatalf("unexpected rebind error: %v", err)
	}

	if !first.destroyed {
		t.Error("old handle was not released on rebind")
	}
	if len(engine.handles) != 2 {
		t.Fatalf("engine created %d handles, want 2", len(engine.handles))
	}

	second := engine.lastHandle(t)
	if second.loadedFrom != "bytes" {
		t.Errorf("rebind loaded from %q, want the original bytes source", second.loadedFrom)
	}
	if !reflect.DeepEqual(second.loadedWith, []string{"CUDAExecutionProvider"}) {
		t.Errorf("rebind requested providers %v", second.loadedWith)
	}
	if got := sess.Providers(); !reflect.DeepEqual(got, engine.resolved) {
		t.Errorf("providers = %v, want engine-resolved %v", got, engine.resolved)
	}
}

func TestSetProvidersLoadFailureIsTerminal(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine.nextLoadErr = fmt.Errorf("provider initialization failed")
	if err := sess.SetProviders([]string{"CPUExecutionProvider"}); err == nil {
		t.Fatal("expected rebind to fail")
	}

	if sess.Inputs() != nil || sess.Outputs() != nil || sess.ModelMetadata() != nil || sess.Providers() != nil {
		t.Error("failed rebind left stale metadata installed")
	}
	if _, err := sess.Run(nil, feedOf("input_ids", "attention_mask"), nil); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("run after failed rebind = %v, want ErrNotLoaded", err)
	}
}

func TestRunSubstitutesAllOutputsInDeclaredOrder(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := sess.Run(nil, feedOf("input_ids", "attention_mask"), nil)
	if err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	handle := engine.lastHandle(t)
	want := []string{"logits", "hidden"}
	if !reflect.DeepEqual(handle.runRequests[0], want) {
		t.Errorf("engine saw output names %v, want %v", handle.runRequests[0], want)
	}
	if len(results) != 2 || results[0] != "value:logits" || results[1] != "value:hidden" {
		t.Errorf("results = %v, want engine outputs in declared order", results)
	}
}

func TestRunKeepsExplicitOutputSelection(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := sess.Run([]string{"hidden"}, feedOf("input_ids", "attention_mask"), nil); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}
	handle := engine.lastHandle(t)
	if !reflect.DeepEqual(handle.runRequests[0], []string{"hidden"}) {
		t.Errorf("engine saw output names %v", handle.runRequests[0])
	}
}

func TestRunRejectsUnderfilledFeedBeforeEngineCall(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = sess.Run(nil, feedOf("input_ids"), nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("error = %v, want ErrInvalidArgument", err)
	}
	for _, fragment := range []string{"2", "1"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Errorf("error %q does not state count %s", err.Error(), fragment)
		}
	}
	if handle := engine.lastHandle(t); len(handle.runRequests) != 0 {
		t.Error("malformed run call reached the engine")
	}
}

func TestRunAllowsOptionalInputsBeyondDeclaredCount(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Extra entries may override internal initializers; the check is a
	// lower bound only.
	if _, err := sess.Run(nil, feedOf("input_ids", "attention_mask", "embedding_override"), nil); err != nil {
		t.Errorf("run with optional extra input failed: %v", err)
	}
}

func TestRunPassesFeedAndOptionsThroughUnmodified(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	type opaqueRunOptions struct{ tag string }
	opts := &opaqueRunOptions{tag: "req-1"}
	feed := feedOf("input_ids", "attention_mask")

	if _, err := sess.Run(nil, feed, opts); err != nil {
		t.Fatalf("unexpected run error: %v", err)
	}

	handle := engine.lastHandle(t)
	if handle.runOptions[0] != any(opts) {
		t.Error("run options were not forwarded as-is")
	}
	if !reflect.DeepEqual(handle.runFeeds[0], feed) {
		t.Error("input feed was modified on the way to the engine")
	}
}

func TestBytesAndFileSourcesYieldIdenticalMetadata(t *testing.T) {
	engine := defaultStubEngine()
	fromFile, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromBytes, err := New(engine, BytesSource{Data: []byte{0x08, 0x01}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(fromFile.Inputs(), fromBytes.Inputs()) {
		t.Error("input metadata differs between file and bytes sources")
	}
	if !reflect.DeepEqual(fromFile.Outputs(), fromBytes.Outputs()) {
		t.Error("output metadata differs between file and bytes sources")
	}
	if !reflect.DeepEqual(fromFile.ModelMetadata(), fromBytes.ModelMetadata()) {
		t.Error("model metadata differs between file and bytes sources")
	}
}

func TestCloseClearsEverythingAndRunFails(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	handle := engine.lastHandle(t)

	if err := sess.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}
	if !handle.destroyed {
		t.Error("close did not destroy the engine handle")
	}
	if sess.Inputs() != nil || sess.Outputs() != nil || sess.ModelMetadata() != nil || sess.Providers() != nil {
		t.Error("close left metadata views installed")
	}

	if _, err := sess.Run(nil, feedOf("input_ids", "attention_mask"), nil); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("run after close = %v, want ErrNotLoaded", err)
	}
	if _, err := sess.EndProfiling(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("end profiling after close = %v, want ErrNotLoaded", err)
	}

	// Close is idempotent.
	if err := sess.Close(); err != nil {
		t.Errorf("second close errored: %v", err)
	}
}

func TestSetProvidersAfterCloseFails(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	// The rejection must happen before the availability query; a query here
	// would surface this error instead of ErrNotLoaded.
	engine.availableErr = fmt.Errorf("availability queried on closed session")

	if err := sess.SetProviders([]string{"CPUExecutionProvider"}); !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("set providers after close = %v, want ErrNotLoaded", err)
	}
	if len(engine.handles) != 1 {
		t.Errorf("closed session created a new engine handle: %d handles", len(engine.handles))
	}
	if sess.Providers() != nil {
		t.Error("closed session reports providers")
	}
}

func TestEndProfilingDelegates(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	path, err := sess.EndProfiling()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "profile.json" {
		t.Errorf("profile path = %q", path)
	}
	if engine.lastHandle(t).profileCalls != 1 {
		t.Error("profiling call did not reach the engine")
	}
}

func TestSetProvidersAvailabilityQueryFailure(t *testing.T) {
	engine := defaultStubEngine()
	sess, err := New(engine, FileSource{Path: "model.onnx"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine.availableErr = fmt.Errorf("runtime torn down")
	if err := sess.SetProviders([]string{"CPUExecutionProvider"}); err == nil {
		t.Fatal("expected availability query failure to propagate")
	}
	// The session is untouched by the failed query.
	if sess.Inputs() == nil {
		t.Error("availability failure cleared session state")
	}
}

func feedOf(names ...string) map[string]any {
	feed := make(map[string]any, len(names))
	for _, name := range names {
		feed[name] = "tensor:" + name
	}
	return feed
}
