package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/onnxgo/ortserve/internal/config"
	"github.com/onnxgo/ortserve/ort"
	"github.com/onnxgo/ortserve/session"
)

var (
	cfgFile   string
	activeCfg config.Config
	logger    zerolog.Logger
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ortserve",
		Short: "ONNX Runtime inference server",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var cfg config.Config
			if cfgFile != "" {
				loaded, err := config.Load(cfgFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			config.ApplyFlags(cmd.Flags(), &cfg)
			activeCfg = config.ApplyDefaults(cfg)
			logger = newLogger(activeCfg.LogLevel)
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(pf)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

// initRuntime loads the native library and the environment, either from
// an explicit library path or through the bootstrap download cache.
func initRuntime(cfg config.Config) error {
	if cfg.LibraryPath != "" {
		if err := ort.SetSharedLibraryPath(cfg.LibraryPath); err != nil {
			return err
		}
		return ort.InitializeEnvironment()
	}

	var opts []ort.BootstrapOption
	if cfg.RuntimeVersion != "" {
		opts = append(opts, ort.WithBootstrapVersion(cfg.RuntimeVersion))
	}
	if cfg.CacheDir != "" {
		opts = append(opts, ort.WithBootstrapCacheDir(cfg.CacheDir))
	}
	return ort.InitializeEnvironmentWithBootstrap(opts...)
}

// openSession builds the session config from flags and loads the model.
func openSession(cfg config.Config) (*session.Session, session.Engine, error) {
	var opts []ort.SessionOption
	if cfg.IntraOpThreads > 0 {
		opts = append(opts, ort.WithIntraOpThreads(cfg.IntraOpThreads))
	}
	if cfg.InterOpThreads > 0 {
		opts = append(opts, ort.WithInterOpThreads(cfg.InterOpThreads))
	}
	if cfg.Profiling {
		opts = append(opts, ort.WithProfiling(cfg.ProfilePrefix))
	}
	sessionCfg, err := ort.NewSessionConfig(opts...)
	if err != nil {
		return nil, nil, err
	}

	engine := session.NewORTEngine()
	sess, err := session.New(engine, session.FileSource{Path: cfg.ModelPath}, sessionCfg)
	if err != nil {
		return nil, nil, err
	}

	if len(cfg.Providers) > 0 {
		if err := sess.SetProviders(cfg.Providers); err != nil {
			_ = sess.Close()
			return nil, nil, err
		}
	}
	return sess, engine, nil
}
