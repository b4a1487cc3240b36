package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config carries the environment-sourced settings of §6. Secrets are
// never logged; Load prints shape, not values.
type Config struct {
	Mode       string        `mapstructure:"mode"`
	LogLevel   string        `mapstructure:"log_level"`

	ServerSecret string `mapstructure:"server_secret"`
	AdminSecret  string `mapstructure:"admin_secret"`

	MediaListenIP   string `mapstructure:"media_listen_ip"`
	MediaAnnouncedIP string `mapstructure:"media_announced_ip"`
	MediaPortMin    int    `mapstructure:"media_port_min"`
	MediaPortMax    int    `mapstructure:"media_port_max"`

	SignalingPort int `mapstructure:"signaling_port"`

	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	PongWait     time.Duration `mapstructure:"pong_wait"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ICEGatherTimeout   time.Duration `mapstructure:"ice_gather_timeout"`
	SpeakingThresholdDB float64      `mapstructure:"speaking_threshold_db"`
	SpeakingInterval   time.Duration `mapstructure:"speaking_interval"`
	SpeakingHoldOff    time.Duration `mapstructure:"speaking_holdoff"`

	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// AdminEnabled reports whether the admin authentication path should be
// open at all (§4.6: absence of ADMIN_SECRET disables it, fails closed).
func (c *Config) AdminEnabled() bool {
	return c.AdminSecret != ""
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("media_listen_ip", "0.0.0.0")
	v.SetDefault("media_announced_ip", "")
	v.SetDefault("media_port_min", 40000)
	v.SetDefault("media_port_max", 49999)
	v.SetDefault("signaling_port", 5000)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "20s")
	v.SetDefault("pong_wait", "45s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("ice_gather_timeout", "20s")
	v.SetDefault("speaking_threshold_db", -70.0)
	v.SetDefault("speaking_interval", "800ms")
	v.SetDefault("speaking_holdoff", "800ms")
	v.SetDefault("rate_limit_requests", 20)
	v.SetDefault("rate_limit_window", "1s")

	// Environment always wins: SERVER_SECRET -> server_secret, etc. This is
	// how the mandatory secrets reach the process without a YAML file.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"server_secret", "admin_secret", "media_listen_ip", "media_announced_ip",
		"media_port_min", "media_port_max", "signaling_port", "log_level",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults and environment\n", fileName)
	} else {
		fmt.Printf("loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.ServerSecret == "" {
		return nil, fmt.Errorf("SERVER_SECRET is required")
	}

	fmt.Printf("mode=%s signaling_port=%d admin_enabled=%v\n", cfg.Mode, cfg.SignalingPort, cfg.AdminEnabled())
	return &cfg, nil
}
