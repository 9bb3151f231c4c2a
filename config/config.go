package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quillagent/quill/errors"
)

// FilesystemAccess declares what the sandbox lets file tools touch.
// Restricted entries are doublestar glob patterns; AllowedRoots are the only
// directories a validated path may resolve under (default: the working
// directory). AllowedExtensions gates read operations.
type FilesystemAccess struct {
	AllowedRoots      []string `yaml:"allowed_roots"`
	Restricted        []string `yaml:"restricted"`
	ReadOnly          []string `yaml:"read_only"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxReadBytes      int64    `yaml:"max_read_bytes"`
}

type MCPServer struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type Toolset struct {
	Name  string   `yaml:"name"`
	Tools []string `yaml:"tools"`
}

// Agent holds the orchestrator loop limits.
type Agent struct {
	MaxIterations     int `yaml:"max_iterations"`
	ContextWindow     int `yaml:"context_window"`
	ReservedHeadroom  int `yaml:"reserved_headroom"`
	ComplexityBonus   int `yaml:"complexity_bonus"`
	CompressThreshold int `yaml:"compress_threshold"` // message count before compression
	CompressKeep      int `yaml:"compress_keep"`      // messages retained after compression
}

// Scheduler holds background task limits.
type Scheduler struct {
	MaxConcurrent  int           `yaml:"max_concurrent"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	Retention      time.Duration `yaml:"retention"`
}

type Config struct {
	LLMClient            string           `yaml:"llm"`
	Model                string           `yaml:"model"`
	SystemPrompt         string           `yaml:"system_prompt"`
	Toolsets             []Toolset        `yaml:"toolsets"`
	AdditionalMCPServers []MCPServer      `yaml:"additional_mcp_servers"`
	AllowedCommands      []string         `yaml:"allowed_commands"`
	FilesystemAccess     FilesystemAccess `yaml:"filesystem_access"`
	Agent                Agent            `yaml:"agent"`
	Scheduler            Scheduler        `yaml:"scheduler"`
	EscalationWindow     time.Duration    `yaml:"escalation_window"`
	DebugLog             string           `yaml:"debug_log"`
}

// LoadConfig loads configuration from the user's home directory and the
// current working directory, with the latter taking precedence.
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".quill", "config.yaml")
		if _, err := os.Stat(userPath); err == nil {
			if err := loadFromFile(userPath, cfg); err != nil {
				return nil, errors.Wrapf(err, "error loading user config")
			}
		}
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrapf(err, "could not get working directory")
	}
	projectPath := filepath.Join(wd, ".quill", "config.yaml")
	if _, err := os.Stat(projectPath); err == nil {
		if err := loadFromFile(projectPath, cfg); err != nil {
			return nil, errors.Wrapf(err, "error loading project config")
		}
	}

	cfg.applyFloors()
	return cfg, nil
}

// Defaults returns a config with every limit set to its built-in value.
func Defaults() *Config {
	wd, _ := os.Getwd()
	return &Config{
		LLMClient: "anthropic",
		Model:     "claude-sonnet-4-20250514",
		FilesystemAccess: FilesystemAccess{
			AllowedRoots: []string{wd},
			Restricted: []string{
				"/etc/**", "/sys/**", "/proc/**", "/dev/**", "/boot/**",
				"**/.quill/**",
			},
			AllowedExtensions: []string{
				".go", ".md", ".txt", ".json", ".yaml", ".yml", ".toml",
				".sh", ".py", ".js", ".ts", ".html", ".css", ".sql", ".mod",
				".sum", ".csv", ".xml", ".rs", ".c", ".h", ".cpp",
			},
			MaxReadBytes: 1 << 20,
		},
		Agent: Agent{
			MaxIterations:     15,
			ContextWindow:     128000,
			ReservedHeadroom:  8192,
			ComplexityBonus:   2048,
			CompressThreshold: 40,
			CompressKeep:      20,
		},
		Scheduler: Scheduler{
			MaxConcurrent:  3,
			DefaultTimeout: 10 * time.Minute,
			Retention:      time.Hour,
		},
		EscalationWindow: 2 * time.Second,
	}
}

// applyFloors guards against zero values left by partial YAML overrides.
func (c *Config) applyFloors() {
	d := Defaults()
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = d.Agent.MaxIterations
	}
	if c.Agent.ContextWindow <= 0 {
		c.Agent.ContextWindow = d.Agent.ContextWindow
	}
	if c.Agent.ReservedHeadroom <= 0 {
		c.Agent.ReservedHeadroom = d.Agent.ReservedHeadroom
	}
	if c.Agent.ComplexityBonus <= 0 {
		c.Agent.ComplexityBonus = d.Agent.ComplexityBonus
	}
	if c.Agent.CompressThreshold <= 0 {
		c.Agent.CompressThreshold = d.Agent.CompressThreshold
	}
	if c.Agent.CompressKeep <= 0 {
		c.Agent.CompressKeep = d.Agent.CompressKeep
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		c.Scheduler.MaxConcurrent = d.Scheduler.MaxConcurrent
	}
	if c.Scheduler.DefaultTimeout <= 0 {
		c.Scheduler.DefaultTimeout = d.Scheduler.DefaultTimeout
	}
	if c.Scheduler.Retention <= 0 {
		c.Scheduler.Retention = d.Scheduler.Retention
	}
	if c.EscalationWindow <= 0 {
		c.EscalationWindow = d.EscalationWindow
	}
	if c.FilesystemAccess.MaxReadBytes <= 0 {
		c.FilesystemAccess.MaxReadBytes = d.FilesystemAccess.MaxReadBytes
	}
	if len(c.FilesystemAccess.AllowedRoots) == 0 {
		c.FilesystemAccess.AllowedRoots = d.FilesystemAccess.AllowedRoots
	}
	if len(c.FilesystemAccess.AllowedExtensions) == 0 {
		c.FilesystemAccess.AllowedExtensions = d.FilesystemAccess.AllowedExtensions
	}
	if len(c.FilesystemAccess.Restricted) == 0 {
		c.FilesystemAccess.Restricted = d.FilesystemAccess.Restricted
	}
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Unmarshal overwrites fields present in the YAML, giving a simple merge
	// where project-level config replaces user-level.
	return yaml.Unmarshal(data, cfg)
}

// GetToolset finds a toolset by name. An empty name or a missing toolset falls
// back to "default"; if no "default" toolset is configured either, a toolset
// containing every registered tool is implied and (nil, nil) is returned.
func (c *Config) GetToolset(name string) (*Toolset, error) {
	if name == "" {
		name = "default"
	}
	for i := range c.Toolsets {
		if c.Toolsets[i].Name == name {
			return &c.Toolsets[i], nil
		}
	}
	if name == "default" {
		return nil, nil
	}
	return c.GetToolset("default")
}
