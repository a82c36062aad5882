// Package config loads the CLI and service configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/optimode/mxprobe"
	"github.com/optimode/mxprobe/internal/logger"
)

// Config holds all application configuration.
type Config struct {
	Probe   ProbeConfig   `mapstructure:"probe"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	API     APIConfig     `mapstructure:"api"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ProbeConfig holds the SMTP probe settings.
type ProbeConfig struct {
	HeloDomain     string        `mapstructure:"helo_domain"`
	MailFrom       string        `mapstructure:"mail_from"`
	Port           string        `mapstructure:"port"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// TryNextHost moves on to the next mail host after a connect or
	// transport failure instead of stopping at the first one.
	TryNextHost bool `mapstructure:"try_next_host"`
}

// DNSConfig holds resolver settings.
type DNSConfig struct {
	Nameserver string        `mapstructure:"nameserver"`
	Timeout    time.Duration `mapstructure:"timeout"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// ProxyConfig holds optional SOCKS5 egress settings.
type ProxyConfig struct {
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// APIConfig holds HTTP service configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RateLimit is the number of verifications per second the service
	// accepts, shared by all clients. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
	// DomainRateLimit caps verifications per second per recipient domain.
	DomainRateLimit float64 `mapstructure:"domain_rate_limit"`
	Burst           int     `mapstructure:"burst"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "mxprobe.yaml" in that directory; a missing file
// leaves the defaults in place.
// Environment variables with prefix MXPROBE_ override file values.
// For example, MXPROBE_PROBE_MAIL_FROM overrides probe.mail_from.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("mxprobe")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}

	v.SetEnvPrefix("MXPROBE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := mxprobe.DefaultOptions()

	v.SetDefault("probe.helo_domain", def.HeloDomain)
	v.SetDefault("probe.mail_from", def.MailFrom)
	v.SetDefault("probe.port", def.Port)
	v.SetDefault("probe.connect_timeout", def.ConnectTimeout)
	v.SetDefault("probe.read_timeout", def.ReadTimeout)
	v.SetDefault("probe.try_next_host", false)

	v.SetDefault("dns.nameserver", "")
	v.SetDefault("dns.timeout", def.DNS.Timeout)
	v.SetDefault("dns.cache_ttl", def.DNS.CacheTTL)

	v.SetDefault("proxy.address", "")
	v.SetDefault("proxy.username", "")
	v.SetDefault("proxy.password", "")

	v.SetDefault("api.host", "127.0.0.1")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 2*def.ConnectTimeout+4*def.ReadTimeout)
	v.SetDefault("api.rate_limit", 5.0)
	v.SetDefault("api.domain_rate_limit", 1.0)
	v.SetDefault("api.burst", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.file_path", "mxprobe.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
}

// VerifierOptions maps the configuration onto mxprobe.Options.
func (c *Config) VerifierOptions() mxprobe.Options {
	policy := mxprobe.StopAtFirstReachableHost
	if c.Probe.TryNextHost {
		policy = mxprobe.TryNextHostOnTransportError
	}
	return mxprobe.Options{
		HeloDomain:     c.Probe.HeloDomain,
		MailFrom:       c.Probe.MailFrom,
		ConnectTimeout: c.Probe.ConnectTimeout,
		ReadTimeout:    c.Probe.ReadTimeout,
		Port:           c.Probe.Port,
		HostPolicy:     policy,
		DNS: mxprobe.DNSOptions{
			Nameserver: c.DNS.Nameserver,
			Timeout:    c.DNS.Timeout,
			CacheTTL:   c.DNS.CacheTTL,
		},
		Proxy: mxprobe.ProxyOptions{
			Address:  c.Proxy.Address,
			Username: c.Proxy.Username,
			Password: c.Proxy.Password,
		},
	}
}

// LoggerConfig maps the logging section onto logger.LoggingConfig.
func (c *Config) LoggerConfig() logger.LoggingConfig {
	return logger.LoggingConfig{
		Level:     c.Logging.Level,
		Output:    c.Logging.Output,
		FilePath:  c.Logging.FilePath,
		MaxSizeMB: c.Logging.MaxSizeMB,
		MaxFiles:  c.Logging.MaxFiles,
	}
}

// Addr returns the HTTP listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
