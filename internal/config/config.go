package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"socketmode/internal/logging"
)

const (
	dirName  = ".socketmode"
	fileName = "config.yaml"

	envPrefix = "SOCKETMODE"

	DefaultOpenURL = "https://slack.com/api/apps.connections.open"
)

type Config struct {
	Version    string           `mapstructure:"version" yaml:"version"`
	AppToken   string           `mapstructure:"app_token" yaml:"app_token"`
	Socket     SocketConfig     `mapstructure:"socket" yaml:"socket"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" yaml:"supervisor"`
	Relay      RelayConfig      `mapstructure:"relay" yaml:"relay"`
	Responses  ResponsesConfig  `mapstructure:"responses" yaml:"responses"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
	Tracer     TracerConfig     `mapstructure:"tracer" yaml:"tracer"`
}

type SocketConfig struct {
	OpenURL          string        `mapstructure:"open_url" yaml:"open_url"`
	DebugReconnects  bool          `mapstructure:"debug_reconnects" yaml:"debug_reconnects"`
	FramePacing      time.Duration `mapstructure:"frame_pacing" yaml:"frame_pacing"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ReadLimitBytes   int64         `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
}

type SupervisorConfig struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseDelay   time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	StableAfter time.Duration `mapstructure:"stable_after" yaml:"stable_after"`
	MaxFailures uint32        `mapstructure:"max_failures" yaml:"max_failures"`
}

// RelayConfig controls where acknowledged events are forwarded. Empty
// Listen and RedisURL disable the respective outputs.
type RelayConfig struct {
	Listen             string `mapstructure:"listen" yaml:"listen"`
	InternalToken      string `mapstructure:"internal_token" yaml:"internal_token"`
	RedisURL           string `mapstructure:"redis_url" yaml:"redis_url"`
	RedisStream        string `mapstructure:"redis_stream" yaml:"redis_stream"`
	RedisStreamMaxLen  int64  `mapstructure:"redis_stream_maxlen" yaml:"redis_stream_maxlen"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix" yaml:"redis_channel_prefix"`
}

// ResponsesConfig maps slash commands to canned ack responses.
type ResponsesConfig struct {
	SlashCommands map[string]string `mapstructure:"slash_commands" yaml:"slash_commands,omitempty"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

type TracerConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Exporter string `mapstructure:"exporter" yaml:"exporter"`
}

type LoadOptions struct {
	// ConfigFile is an explicit path; when empty the path is resolved with
	// ResolveConfigPath and a missing file is not an error.
	ConfigFile string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("version", "1.0")
	v.SetDefault("app_token", "")
	v.SetDefault("socket.open_url", DefaultOpenURL)
	v.SetDefault("socket.debug_reconnects", false)
	v.SetDefault("socket.frame_pacing", 250*time.Millisecond)
	v.SetDefault("socket.handshake_timeout", 10*time.Second)
	v.SetDefault("socket.write_timeout", 5*time.Second)
	v.SetDefault("socket.read_limit_bytes", int64(1<<20))
	v.SetDefault("supervisor.enabled", true)
	v.SetDefault("supervisor.base_delay", time.Second)
	v.SetDefault("supervisor.max_delay", 30*time.Second)
	v.SetDefault("supervisor.stable_after", time.Minute)
	v.SetDefault("supervisor.max_failures", 5)
	v.SetDefault("relay.listen", "")
	v.SetDefault("relay.internal_token", "")
	v.SetDefault("relay.redis_url", "")
	v.SetDefault("relay.redis_stream", "socketmode:events")
	v.SetDefault("relay.redis_stream_maxlen", 10000)
	v.SetDefault("relay.redis_channel_prefix", "socketmode:evt:")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracer.enabled", false)
	v.SetDefault("tracer.exporter", "noop")
}

func Load(opts LoadOptions) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("app_token", envPrefix+"_APP_TOKEN", "SLACK_APP_TOKEN"); err != nil {
		return nil, err
	}

	path := opts.ConfigFile
	explicit := path != ""
	if !explicit {
		path = ResolveConfigPath("")
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if explicit {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Socket.OpenURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		errs = append(errs, fmt.Errorf("socket.open_url: must be an http(s) URL, got %q", c.Socket.OpenURL))
	}
	if c.Socket.FramePacing < 0 {
		errs = append(errs, errors.New("socket.frame_pacing: must not be negative"))
	}
	if c.Socket.HandshakeTimeout <= 0 {
		errs = append(errs, errors.New("socket.handshake_timeout: must be positive"))
	}
	if c.Socket.WriteTimeout <= 0 {
		errs = append(errs, errors.New("socket.write_timeout: must be positive"))
	}
	if c.Socket.ReadLimitBytes <= 0 {
		errs = append(errs, errors.New("socket.read_limit_bytes: must be positive"))
	}
	if c.Supervisor.Enabled {
		if c.Supervisor.BaseDelay < 0 || c.Supervisor.MaxDelay < c.Supervisor.BaseDelay {
			errs = append(errs, errors.New("supervisor: need 0 <= base_delay <= max_delay"))
		}
		if c.Supervisor.MaxFailures == 0 {
			errs = append(errs, errors.New("supervisor.max_failures: must be positive"))
		}
	}
	if c.Relay.RedisURL != "" && c.Relay.RedisStream == "" {
		errs = append(errs, errors.New("relay.redis_stream: required when redis_url is set"))
	}
	for cmd := range c.Responses.SlashCommands {
		if !strings.HasPrefix(cmd, "/") {
			errs = append(errs, fmt.Errorf("responses.slash_commands: %q must start with /", cmd))
		}
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: unsupported %q", c.Log.Format))
	}
	switch c.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		errs = append(errs, fmt.Errorf("tracer.exporter: unsupported %q", c.Tracer.Exporter))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	c.AppToken = redact(c.AppToken)
	c.Relay.InternalToken = redact(c.Relay.InternalToken)
	if c.Relay.RedisURL != "" {
		if u, err := url.Parse(c.Relay.RedisURL); err == nil && u.User != nil {
			u.User = url.User("redacted")
			c.Relay.RedisURL = u.String()
		}
	}
	return c
}

func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:5] + "****"
}

// ResolveConfigPath returns explicit when set, otherwise the nearest
// .socketmode/config.yaml walking up from the working directory (stopping at
// the repository root), falling back to the per-user default.
func ResolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if wd, err := os.Getwd(); err == nil {
		dir := wd
		for {
			candidate := filepath.Join(dir, dirName, fileName)
			if fileExists(candidate) {
				return candidate
			}
			if fileExists(filepath.Join(dir, ".git")) {
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	return DefaultConfigPath()
}

func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(dirName, fileName)
	}
	return filepath.Join(home, dirName, fileName)
}

// ApplyFile validates src and copies it to dst.
func ApplyFile(src, dst string) error {
	cfg, err := Load(LoadOptions{ConfigFile: src})
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", src, err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o600)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
