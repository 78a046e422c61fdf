// Package config builds the single configuration value shared by every
// pipeline component: defaults, then a YAML file, then .env and environment
// overrides. Command-line flags are applied last by the cli package.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no --config path is given. Its absence is not an error.
const DefaultFile = ".modernise.yaml"

// Config holds every tunable of the pipeline. It is passed by value.
type Config struct {
	TargetDir string          `yaml:"target_dir"`
	Agent     AgentConfig     `yaml:"agent"`
	JSON      JSONConfig      `yaml:"json"`
	Patch     PatchConfig     `yaml:"patch"`
	Gate      GateConfig      `yaml:"gate"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Logging   LoggingConfig   `yaml:"logging"`
	UI        UIConfig        `yaml:"ui"`
}

// AgentConfig configures the external generator.
type AgentConfig struct {
	// Backend is "copilot" (external CLI) or "gemini" (API).
	Backend string `yaml:"backend"`
	Command string `yaml:"command"`
	// Mode is "prompt" (prompt as argument) or "interactive" (prompt on stdin).
	Mode              string `yaml:"mode"`
	Timeout           string `yaml:"timeout"`
	MinResponseLength int    `yaml:"min_response_length"`
	// StdoutPreviewLength bounds agent stdout carried in failure diagnostics.
	StdoutPreviewLength int `yaml:"stdout_preview_length"`
	// DebugPreviewLength bounds the input preview carried by extraction failures.
	DebugPreviewLength int    `yaml:"debug_preview_length"`
	Model              string `yaml:"model"`
	APIKey             string `yaml:"-"`
}

// JSONConfig holds the delimiters of tagged JSON extraction.
type JSONConfig struct {
	OpenTag  string `yaml:"open_tag"`
	CloseTag string `yaml:"close_tag"`
}

// PatchConfig configures artifact names and the apply policy.
type PatchConfig struct {
	Filename             string   `yaml:"filename"`
	FixFilename          string   `yaml:"fix_filename"`
	RawFilename          string   `yaml:"raw_filename"`
	FixRawFilename       string   `yaml:"fix_raw_filename"`
	AllowedPaths         []string `yaml:"allowed_paths"`
	RelaxedOnPlaceholder bool     `yaml:"relaxed_on_placeholder"`
	RelocateHunks        bool     `yaml:"relocate_hunks"`
}

// GateConfig configures the validation gate and its repair loop.
type GateConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`
	RequiredFiles       []string `yaml:"required_files"`
	Steps               []string `yaml:"steps"`
	InstallDependencies bool     `yaml:"install_dependencies"`
	CommandTimeout      string   `yaml:"command_timeout"`
}

// ArtifactsConfig configures where patch artifacts are mirrored.
type ArtifactsConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config is an S3 or MinIO bucket.
type S3Config struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
}

// UIConfig configures terminal output.
type UIConfig struct {
	NoAnimation bool `yaml:"no_animation"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TargetDir: ".",
		Agent: AgentConfig{
			Backend:             "copilot",
			Command:             "copilot",
			Mode:                "prompt",
			Timeout:             "5m",
			MinResponseLength:   50,
			StdoutPreviewLength: 800,
			DebugPreviewLength:  1200,
			Model:               "gemini-2.5-flash",
		},
		JSON: JSONConfig{
			OpenTag:  "<json>",
			CloseTag: "</json>",
		},
		Patch: PatchConfig{
			Filename:       ".modernise.patch",
			FixFilename:    ".modernise.fix.patch",
			RawFilename:    ".modernise.raw.patch",
			FixRawFilename: ".modernise.fix.raw.patch",
			AllowedPaths:   []string{"src/", "test/", "docs/modernisation/"},
		},
		Gate: GateConfig{
			MaxAttempts:         2,
			RequiredFiles:       []string{"README.md", "Dockerfile", "package.json"},
			Steps:               []string{"lint", "test"},
			InstallDependencies: true,
			CommandTimeout:      "10m",
		},
		Artifacts: ArtifactsConfig{
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "modernise-artifacts",
				UseSSL: true,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. An explicit path must exist; with an empty
// path DefaultFile is used if present. A .env file in the working directory
// is loaded before environment overrides are applied.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}

	_ = godotenv.Load()
	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := env("MODERNISE_TARGET_DIR"); v != "" {
		c.TargetDir = v
	}
	if v := env("MODERNISE_AGENT_BACKEND"); v != "" {
		c.Agent.Backend = v
	}
	if v := env("MODERNISE_AGENT_COMMAND"); v != "" {
		c.Agent.Command = v
	}
	if v := env("MODERNISE_AGENT_MODE"); v != "" {
		c.Agent.Mode = v
	}
	if v := env("MODERNISE_AGENT_TIMEOUT"); v != "" {
		c.Agent.Timeout = v
	}
	if v := env("MODERNISE_AGENT_MODEL"); v != "" {
		c.Agent.Model = v
	}
	c.Agent.APIKey = firstNonEmpty(env("GEMINI_API_KEY"), env("GOOGLE_API_KEY"), c.Agent.APIKey)

	if v := env("MODERNISE_ALLOWED_PATHS"); v != "" {
		c.Patch.AllowedPaths = splitList(v)
	}
	if v := env("MODERNISE_GATE_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid MODERNISE_GATE_MAX_ATTEMPTS %q: %w", v, err)
		}
		c.Gate.MaxAttempts = n
	}
	if v := env("MODERNISE_GATE_STEPS"); v != "" {
		c.Gate.Steps = splitList(v)
	}
	if v := env("MODERNISE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	s3 := &c.Artifacts.S3
	if v := env("ARTIFACT_S3_ENDPOINT"); v != "" {
		s3.Endpoint = v
		s3.Enabled = true
	}
	s3.Region = firstNonEmpty(env("ARTIFACT_S3_REGION"), s3.Region)
	s3.Bucket = firstNonEmpty(env("ARTIFACT_S3_BUCKET"), s3.Bucket)
	s3.AccessKey = firstNonEmpty(env("ARTIFACT_S3_ACCESS_KEY"), env("MINIO_ROOT_USER"), s3.AccessKey)
	s3.SecretKey = firstNonEmpty(env("ARTIFACT_S3_SECRET_KEY"), env("MINIO_ROOT_PASSWORD"), s3.SecretKey)
	if v := env("ARTIFACT_S3_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid ARTIFACT_S3_USE_SSL %q: %w", v, err)
		}
		s3.UseSSL = b
	}
	return nil
}

var (
	validBackends = []string{"copilot", "gemini"}
	validModes    = []string{"prompt", "interactive"}
)

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if c.TargetDir == "" {
		return fmt.Errorf("target directory is required")
	}
	if !contains(validBackends, c.Agent.Backend) {
		return fmt.Errorf("invalid agent backend: %s (valid: %v)", c.Agent.Backend, validBackends)
	}
	if !contains(validModes, c.Agent.Mode) {
		return fmt.Errorf("invalid agent mode: %s (valid: %v)", c.Agent.Mode, validModes)
	}
	if c.Agent.Backend == "copilot" && c.Agent.Command == "" {
		return fmt.Errorf("agent command is required for the copilot backend")
	}
	if c.Agent.Backend == "gemini" && c.Agent.APIKey == "" {
		return fmt.Errorf("gemini backend requires GEMINI_API_KEY or GOOGLE_API_KEY")
	}
	if _, err := parseDuration("agent.timeout", c.Agent.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("gate.command_timeout", c.Gate.CommandTimeout); err != nil {
		return err
	}
	if c.Gate.MaxAttempts < 1 {
		return fmt.Errorf("gate.max_attempts must be at least 1, got %d", c.Gate.MaxAttempts)
	}
	if c.JSON.OpenTag == "" || c.JSON.CloseTag == "" {
		return fmt.Errorf("json tags must not be empty")
	}
	if c.Patch.Filename == "" || c.Patch.FixFilename == "" {
		return fmt.Errorf("patch filenames must not be empty")
	}
	if c.Artifacts.S3.Enabled && (c.Artifacts.S3.Endpoint == "" || c.Artifacts.S3.Bucket == "") {
		return fmt.Errorf("artifacts.s3 requires an endpoint and a bucket when enabled")
	}
	return nil
}

// AgentTimeout returns the agent call deadline.
func (c Config) AgentTimeout() time.Duration {
	d, _ := parseDuration("agent.timeout", c.Agent.Timeout)
	return d
}

// GateCommandTimeout returns the deadline of each gate command.
func (c Config) GateCommandTimeout() time.Duration {
	d, _ := parseDuration("gate.command_timeout", c.Gate.CommandTimeout)
	return d
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return d, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
