package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// Secret is the token that unlocks save and reset.
	Secret string `mapstructure:"secret"`
	// SessionSecret signs the seat cookie. Empty means a random key per process.
	SessionSecret   string `mapstructure:"session_secret"`
	FrontendAddress string `mapstructure:"frontend_address"`
	// SecureCookies marks the seat cookie Secure. Only set it behind TLS.
	SecureCookies bool `mapstructure:"secure_cookies"`

	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	CanvasPath  string `mapstructure:"canvas_path"`
	SnapshotDir string `mapstructure:"snapshot_dir"`

	PrivilegedLimit    int           `mapstructure:"privileged_limit"`
	PrivilegedInterval time.Duration `mapstructure:"privileged_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 3000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 1<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("session_secret", "")
	v.SetDefault("frontend_address", "")
	v.SetDefault("secure_cookies", false)
	v.SetDefault("width", 10)
	v.SetDefault("height", 10)
	v.SetDefault("canvas_path", "canvas.png")
	v.SetDefault("snapshot_dir", "snapshots")
	v.SetDefault("privileged_limit", 5)
	v.SetDefault("privileged_interval", "1m")
}

// Load reads config/config.<CONFIG_ENV>.yaml (CONFIG_ENV defaults to dev)
// over built-in defaults. Environment variables win over the file; a .env
// file in the working directory is loaded first when present.
func Load() (*Config, error) {
	if err := gotenv.Load(); err == nil {
		log.Info().Str("module", "config").Msg("loaded .env")
	}

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	setDefaults(v)

	v.AutomaticEnv()
	_ = v.BindEnv("secret", "API_SECRET")
	_ = v.BindEnv("frontend_address", "FRONTEND_ADDRESS")
	_ = v.BindEnv("session_secret", "SESSION_SECRET")
	_ = v.BindEnv("secure_cookies", "SECURE_COOKIES")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", cfg.Width, cfg.Height)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Int("width", cfg.Width).Int("height", cfg.Height).Msg("config ready")
	return &cfg, nil
}
