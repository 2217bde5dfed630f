// Package config defines the Taskmaster application configuration.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/GoCodeAlone/taskmaster/task"
)

// EnvPrefix prefixes every environment override, e.g. TASKMASTER_SERVER_ADDR.
const EnvPrefix = "TASKMASTER"

// Config is the top-level Taskmaster configuration.
type Config struct {
	Server      ServerConfig        `mapstructure:"server" yaml:"server"`
	Auth        AuthConfig          `mapstructure:"auth" yaml:"auth"`
	Store       StoreConfig         `mapstructure:"store" yaml:"store"`
	Log         LogConfig           `mapstructure:"log" yaml:"log"`
	Transitions map[string][]string `mapstructure:"transitions" yaml:"transitions,omitempty"` // old status -> allowed new statuses
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"` // listen address, e.g., ":9090"
}

// AuthConfig controls API authentication. Auth is off while AdminPass is empty.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AdminUser string `mapstructure:"admin_user" yaml:"admin_user"`
	AdminPass string `mapstructure:"admin_pass" yaml:"admin_pass"` // bcrypt hash
}

// Enabled reports whether requests must carry a token.
func (a AuthConfig) Enabled() bool { return a.AdminPass != "" }

// StoreConfig names the data files. Relative file names resolve against Dir.
type StoreConfig struct {
	Dir         string `mapstructure:"dir" yaml:"dir"`
	TasksFile   string `mapstructure:"tasks_file" yaml:"tasks_file"`
	AgentsFile  string `mapstructure:"agents_file" yaml:"agents_file"`
	SprintsFile string `mapstructure:"sprints_file" yaml:"sprints_file"`
	ActivityDB  string `mapstructure:"activity_db" yaml:"activity_db"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":9090",
		},
		Auth: AuthConfig{
			AdminUser: "admin",
		},
		Store: StoreConfig{
			Dir:         "tasks",
			TasksFile:   "tasks.json",
			AgentsFile:  "agents.json",
			SprintsFile: "sprints.json",
			ActivityDB:  "activity.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("auth.jwt_secret", d.Auth.JWTSecret)
	v.SetDefault("auth.admin_user", d.Auth.AdminUser)
	v.SetDefault("auth.admin_pass", d.Auth.AdminPass)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.tasks_file", d.Store.TasksFile)
	v.SetDefault("store.agents_file", d.Store.AgentsFile)
	v.SetDefault("store.sprints_file", d.Store.SprintsFile)
	v.SetDefault("store.activity_db", d.Store.ActivityDB)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
}

// Load builds the configuration from defaults, the YAML file at path (when
// path is non-empty), and TASKMASTER_* environment variables, in increasing
// precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the transitions table and the auth settings.
func (c *Config) Validate() error {
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.Auth.Enabled() && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when auth.admin_pass is set")
	}
	return nil
}

// Policy converts Transitions into a task.TransitionPolicy. An empty table
// yields a nil policy, which allows every move.
func (c *Config) Policy() (task.TransitionPolicy, error) {
	if len(c.Transitions) == 0 {
		return nil, nil
	}
	p := make(task.TransitionPolicy, len(c.Transitions))
	for from, tos := range c.Transitions {
		old, err := task.ParseStatus(from)
		if err != nil {
			return nil, fmt.Errorf("transitions: %w", err)
		}
		for _, to := range tos {
			next, err := task.ParseStatus(to)
			if err != nil {
				return nil, fmt.Errorf("transitions[%s]: %w", from, err)
			}
			p[old] = append(p[old], next)
		}
		if _, ok := p[old]; !ok {
			p[old] = []task.Status{}
		}
	}
	return p, nil
}

// TasksPath returns the resolved tasks file path.
func (c *Config) TasksPath() string { return c.resolve(c.Store.TasksFile) }

// AgentsPath returns the resolved agents file path.
func (c *Config) AgentsPath() string { return c.resolve(c.Store.AgentsFile) }

// SprintsPath returns the resolved sprints file path.
func (c *Config) SprintsPath() string { return c.resolve(c.Store.SprintsFile) }

// ActivityPath returns the resolved activity database path.
func (c *Config) ActivityPath() string { return c.resolve(c.Store.ActivityDB) }

func (c *Config) resolve(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Store.Dir, name)
}

const masked = "********"

// YAML renders the effective configuration with secrets masked.
func (c *Config) YAML() ([]byte, error) {
	out := *c
	if out.Auth.JWTSecret != "" {
		out.Auth.JWTSecret = masked
	}
	if out.Auth.AdminPass != "" {
		out.Auth.AdminPass = masked
	}
	return yaml.Marshal(&out)
}
