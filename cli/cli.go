// Package cli binds the global command-line flags onto the configuration.
package cli

import (
	"fmt"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/steve-dickinson/ai-modernisation-factory/internal/config"
)

// Flags holds the global flag values. Only flags the user set override the config.
type Flags struct {
	ConfigPath  string
	Target      string
	Allow       []string
	AgentMode   string
	MaxAttempts int
	Relaxed     bool
	Relocate    bool
	Verbose     bool
	NoAnimation bool
}

// Register defines the flags on fs.
func (f *Flags) Register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "Config file (default: "+config.DefaultFile+" if present).")
	fs.StringVarP(&f.Target, "target", "t", "", "Target repository directory.")
	fs.StringSliceVar(&f.Allow, "allow", nil, "Allowed path prefixes for patched files (repeatable).")
	fs.StringVar(&f.AgentMode, "agent-mode", "", "Agent invocation mode: prompt or interactive.")
	fs.IntVar(&f.MaxAttempts, "max-attempts", 0, "Maximum standards gate runs before giving up.")
	fs.BoolVar(&f.Relaxed, "relaxed", false, "Use a 3-way apply when the patch has placeholder index hashes.")
	fs.BoolVar(&f.Relocate, "relocate", false, "Move hunks to where their context is found in the current files.")
	fs.BoolVarP(&f.Verbose, "verbose", "v", false, "Enable debug logging.")
	fs.BoolVar(&f.NoAnimation, "no-animation", false, "Disable the loading spinner.")
}

// Load reads the configuration and applies the flags the user set on fs.
func (f *Flags) Load(fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if fs.Changed("target") {
		cfg.TargetDir = f.Target
	}
	if fs.Changed("allow") {
		cfg.Patch.AllowedPaths = f.Allow
	}
	if fs.Changed("agent-mode") {
		cfg.Agent.Mode = f.AgentMode
	}
	if fs.Changed("max-attempts") {
		cfg.Gate.MaxAttempts = f.MaxAttempts
	}
	if fs.Changed("relaxed") {
		cfg.Patch.RelaxedOnPlaceholder = f.Relaxed
	}
	if fs.Changed("relocate") {
		cfg.Patch.RelocateHunks = f.Relocate
	}
	if fs.Changed("no-animation") {
		cfg.UI.NoAnimation = f.NoAnimation
	}
	if f.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger. It writes to stderr so stdout stays clean for results.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.OutputPaths = []string{"stderr"}
	zc.DisableStacktrace = level > zapcore.DebugLevel
	return zc.Build()
}
