// Package session provides the inference session facade: a stateful handle
// that binds a model source to a native engine session, caches the metadata
// views the engine produces at load time, and forwards run and profiling
// calls with local argument validation.
//
// The facade holds exactly one live engine handle at a time. Rebinding
// execution providers (SetProviders) tears the session down and rebuilds it
// wholesale from the original model source; it never mutates a live handle.
// The facade adds no locking of its own: callers must serialize
// lifecycle-mutating calls (SetProviders, Close) against concurrent Run and
// accessor calls.
package session

import (
	"github.com/pkg/errors"
)

// Session is the facade over one native engine session.
type Session struct {
	engine Engine
	source ModelSource
	config any

	handle    Handle
	inputs    []NodeInfo
	outputs   []NodeInfo
	modelMeta *ModelMetadata
	providers []string
	closed    bool
}

// New constructs a session from a model source, loading it with the
// engine's default provider ordering. config is opaque session
// configuration handed to the engine unmodified; nil requests engine
// defaults. On return the session is fully loaded, handle and all three
// metadata views populated, or an error is returned and no session exists.
func New(engine Engine, source ModelSource, config any) (*Session, error) {
	if engine == nil {
		return nil, errors.Wrap(ErrInvalidArgument, "engine cannot be nil")
	}

	s := &Session{
		engine: engine,
		source: source,
		config: config,
	}
	if err := s.load(nil); err != nil {
		return nil, err
	}
	return s, nil
}

// load builds a fresh engine handle from the session's model source and
// installs it together with the metadata snapshot as one atomic group.
// Source validation happens before any engine call. A native load failure
// propagates unchanged and leaves the facade unloaded (terminal for this
// handle generation; no retry, no fallback providers).
func (s *Session) load(providers []string) error {
	switch s.source.(type) {
	case FileSource, BytesSource, PrebuiltSource:
	default:
		return errors.Wrapf(ErrTypeMismatch, "unable to load from type %T", s.source)
	}

	handle, err := s.engine.NewHandle(s.config)
	if err != nil {
		return err
	}

	switch src := s.source.(type) {
	case FileSource:
		err = handle.LoadFromFile(src.Path, providers)
	case BytesSource:
		err = handle.LoadFromBytes(src.Data, providers)
	case PrebuiltSource:
		err = handle.LoadPrebuilt(src.Raw, providers)
	}
	if err != nil {
		_ = handle.Destroy()
		return err
	}

	meta := handle.ModelMetadata()

	s.handle = handle
	s.inputs = handle.Inputs()
	s.outputs = handle.Outputs()
	s.modelMeta = &meta
	s.providers = handle.Providers()
	return nil
}

// reset releases the engine handle and drops all cached metadata views
// together. The views alias engine session memory, so they are cleared
// before (never after) the handle they came from is destroyed and replaced.
func (s *Session) reset() {
	s.inputs = nil
	s.outputs = nil
	s.modelMeta = nil
	s.providers = nil

	if s.handle != nil {
		_ = s.handle.Destroy()
		s.handle = nil
	}
}

// Inputs returns the cached input metadata in declared order, or nil after
// Close or a failed rebind.
func (s *Session) Inputs() []NodeInfo {
	return s.inputs
}

// Outputs returns the cached output metadata in declared order, or nil
// after Close or a failed rebind.
func (s *Session) Outputs() []NodeInfo {
	return s.outputs
}

// ModelMetadata returns the cached model metadata record, or nil after
// Close or a failed rebind.
func (s *Session) ModelMetadata() *ModelMetadata {
	return s.modelMeta
}

// Providers returns the resolved provider list in effect, or nil after
// Close or a failed rebind.
func (s *Session) Providers() []string {
	return s.providers
}

// SetProviders rebinds the session to a new execution provider preference.
// The requested list must be a subset of the engine's currently available
// providers, queried fresh on every call; a rejected request leaves the
// existing session fully intact. On success the whole session, handle and
// all cached metadata alike, is rebuilt from the original model source, and
// any handle or metadata obtained earlier is stale. A load failure after
// teardown leaves the facade in its terminal failed state. Rebinding a
// closed session is an error.
func (s *Session) SetProviders(providers []string) error {
	if s.closed {
		return errors.Wrap(ErrNotLoaded, "set providers")
	}

	available, err := s.engine.AvailableProviders()
	if err != nil {
		return err
	}

	if !subset(providers, available) {
		return errors.Wrapf(ErrInvalidArgument,
			"%v does not contain a subset of available providers %v", providers, available)
	}

	s.reset()
	return s.load(providers)
}

// Run computes outputs. An empty outputNames requests every declared
// output, in declared order. feed must contain at least as many entries as
// the model declares inputs; this is a lower bound rather than equality
// because optional inputs may override internal initializers. The count
// check runs locally
// before any engine call; everything else (names, types, shapes) is the
// engine's to validate, and its errors propagate unchanged. runOptions is
// opaque and forwarded as-is.
func (s *Session) Run(outputNames []string, feed map[string]any, runOptions any) ([]any, error) {
	if s.handle == nil {
		return nil, errors.Wrap(ErrNotLoaded, "run")
	}

	if len(feed) < len(s.inputs) {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"model requires %d inputs, input feed contains %d", len(s.inputs), len(feed))
	}

	if len(outputNames) == 0 {
		outputNames = make([]string, len(s.outputs))
		for i, out := range s.outputs {
			outputNames[i] = out.Name
		}
	}

	return s.handle.Run(outputNames, feed, runOptions)
}

// EndProfiling stops native profiling and returns the profile artifact
// path. Whether profiling was ever enabled is the engine's to check; its
// error propagates unchanged.
func (s *Session) EndProfiling() (string, error) {
	if s.handle == nil {
		return "", errors.Wrap(ErrNotLoaded, "end profiling")
	}
	return s.handle.EndProfiling()
}

// Close releases the engine handle and all cached metadata. Idempotent.
// A closed session cannot be reloaded; construct a new one instead.
func (s *Session) Close() error {
	s.closed = true
	s.reset()
	return nil
}

// subset reports whether every element of list is present in set.
func subset(list, set []string) bool {
	members := make(map[string]struct{}, len(set))
	for _, name := range set {
		members[name] = struct{}{}
	}
	for _, name := range list {
		if _, ok := members[name]; !ok {
			return false
		}
	}
	return true
}
