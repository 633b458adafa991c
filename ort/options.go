package ort

import (
	"fmt"
	"runtime"
)

// SessionConfig collects the knobs applied to a native OrtSessionOptions
// object each time a session handle loads a model. The zero value is the
// engine default configuration.
type SessionConfig struct {
	intraOpThreads  int
	interOpThreads  int
	optimization    GraphOptimizationLevel
	hasOptimization bool
	logSeverity     LoggingLevel
	hasLogSeverity  bool
	profiling       bool
	profilePrefix   string
}

// SessionOption customizes a SessionConfig.
type SessionOption func(*SessionConfig) error

// NewSessionConfig builds a SessionConfig from options.
func NewSessionConfig(opts ...SessionOption) (*SessionConfig, error) {
	cfg := &SessionConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// WithIntraOpThreads sets the thread count used inside individual operators.
func WithIntraOpThreads(n int) SessionOption {
	return func(cfg *SessionConfig) error {
		if n < 0 {
			return fmt.Errorf("intra-op thread count cannot be negative: %d", n)
		}
		cfg.intraOpThreads = n
		return nil
	}
}

// WithInterOpThreads sets the thread count used across independent operators.
func WithInterOpThreads(n int) SessionOption {
	return func(cfg *SessionConfig) error {
		if n < 0 {
			return fmt.Errorf("inter-op thread count cannot be negative: %d", n)
		}
		cfg.interOpThreads = n
		return nil
	}
}

// WithGraphOptimizationLevel sets the graph optimization level.
func WithGraphOptimizationLevel(level GraphOptimizationLevel) SessionOption {
	return func(cfg *SessionConfig) error {
		if level < GraphOptimizationLevelDisableAll || level > GraphOptimizationLevelEnableAll {
			return fmt.Errorf("invalid graph optimization level: %d", level)
		}
		cfg.optimization = level
		cfg.hasOptimization = true
		return nil
	}
}

// WithLogSeverity sets the session log severity level.
func WithLogSeverity(level LoggingLevel) SessionOption {
	return func(cfg *SessionConfig) error {
		if level < LoggingLevelVerbose || level > LoggingLevelFatal {
			return fmt.Errorf("invalid logging level: %d", level)
		}
		cfg.logSeverity = level
		cfg.hasLogSeverity = true
		return nil
	}
}

// WithProfiling enables native profiling. The profile artifact is written
// next to the process working directory with the given filename prefix;
// its path is returned by EndProfiling.
func WithProfiling(prefix string) SessionOption {
	return func(cfg *SessionConfig) error {
		if prefix == "" {
			return fmt.Errorf("profiling prefix cannot be empty")
		}
		cfg.profiling = true
		cfg.profilePrefix = prefix
		return nil
	}
}

// ProfilingEnabled reports whether the config requests native profiling.
func (cfg *SessionConfig) ProfilingEnabled() bool {
	return cfg != nil && cfg.profiling
}

// buildNativeOptions materializes an OrtSessionOptions from the config.
// The caller owns the returned handle and must release it with
// releaseSessionOptionsFunc. Caller must hold ortCallMu.RLock.
func (cfg *SessionConfig) buildNativeOptions() (uintptr, error) {
	if createSessionOptionsFunc == nil {
		return 0, fmt.Errorf("ONNX Runtime not initialized")
	}

	var opts uintptr
	if status := createSessionOptionsFunc(&opts); status != 0 {
		return 0, statusToError(status)
	}

	fail := func(err error) (uintptr, error) {
		releaseSessionOptionsFunc(opts)
		return 0, err
	}

	if cfg == nil {
		return opts, nil
	}

	if cfg.intraOpThreads > 0 {
		// #nosec G115 -- validated non-negative in WithIntraOpThreads
		if status := setIntraOpNumThreadsFunc(opts, int32(cfg.intraOpThreads)); status != 0 {
			return fail(statusToError(status))
		}
	}
	if cfg.interOpThreads > 0 {
		// #nosec G115 -- validated non-negative in WithInterOpThreads
		if status := setInterOpNumThreadsFunc(opts, int32(cfg.interOpThreads)); status != 0 {
			return fail(statusToError(status))
		}
	}
	if cfg.hasOptimization {
		if status := setSessionGraphOptimizationLevelFunc(opts, int32(cfg.optimization)); status != 0 {
			return fail(statusToError(status))
		}
	}
	if cfg.hasLogSeverity {
		if status := setSessionLogSeverityLevelFunc(opts, int32(cfg.logSeverity)); status != 0 {
			return fail(statusToError(status))
		}
	}
	if cfg.profiling {
		prefixPtr, prefixBacking, err := goStringToORTChar(cfg.profilePrefix)
		if err != nil {
			return fail(err)
		}
		status := enableProfilingFunc(opts, prefixPtr)
		runtime.KeepAlive(prefixBacking)
		if status != 0 {
			return fail(statusToError(status))
		}
	}

	return opts, nil
}
