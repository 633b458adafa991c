package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the server.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr           string   `json:"addr" yaml:"addr" toml:"addr"`
	ModelPath      string   `json:"model_path" yaml:"model_path" toml:"model_path"`
	LibraryPath    string   `json:"library_path" yaml:"library_path" toml:"library_path"`
	RuntimeVersion string   `json:"runtime_version" yaml:"runtime_version" toml:"runtime_version"`
	CacheDir       string   `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`
	Providers      []string `json:"providers" yaml:"providers" toml:"providers"`
	Profiling      bool     `json:"profiling" yaml:"profiling" toml:"profiling"`
	ProfilePrefix  string   `json:"profile_prefix" yaml:"profile_prefix" toml:"profile_prefix"`
	IntraOpThreads int      `json:"intra_op_threads" yaml:"intra_op_threads" toml:"intra_op_threads"`
	InterOpThreads int      `json:"inter_op_threads" yaml:"inter_op_threads" toml:"inter_op_threads"`
	LogLevel       string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSOrigins    []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// RegisterFlags declares the command line flags that mirror config fields.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("model", "", "Path to the ONNX model file")
	fs.String("library", "", "Path to the onnxruntime shared library (skips bootstrap)")
	fs.String("runtime-version", "", "onnxruntime version to bootstrap")
	fs.String("cache-dir", "", "Bootstrap cache directory")
	fs.String("log-level", "", "Log level (trace|debug|info|warn|error)")
	fs.StringSlice("providers", nil, "Execution provider preference, highest priority first")
	fs.Bool("profiling", false, "Enable native profiling")
	fs.Int("intra-op-threads", 0, "Intra-op thread count (0=runtime default)")
	fs.Int("inter-op-threads", 0, "Inter-op thread count (0=runtime default)")
}

// ApplyFlags overlays explicitly set flags onto cfg. Flags win over the
// config file.
func ApplyFlags(fs *pflag.FlagSet, cfg *Config) {
	if v, _ := fs.GetString("model"); v != "" {
		cfg.ModelPath = v
	}
	if v, _ := fs.GetString("library"); v != "" {
		cfg.LibraryPath = v
	}
	if v, _ := fs.GetString("runtime-version"); v != "" {
		cfg.RuntimeVersion = v
	}
	if v, _ := fs.GetString("cache-dir"); v != "" {
		cfg.CacheDir = v
	}
	if v, _ := fs.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := fs.GetStringSlice("providers"); len(v) > 0 {
		cfg.Providers = v
	}
	if v, _ := fs.GetBool("profiling"); v {
		cfg.Profiling = true
	}
	if v, _ := fs.GetInt("intra-op-threads"); v > 0 {
		cfg.IntraOpThreads = v
	}
	if v, _ := fs.GetInt("inter-op-threads"); v > 0 {
		cfg.InterOpThreads = v
	}
}

// ApplyDefaults fills unspecified fields with server defaults.
func ApplyDefaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Profiling && cfg.ProfilePrefix == "" {
		cfg.ProfilePrefix = "ortserve"
	}
	return cfg
}
