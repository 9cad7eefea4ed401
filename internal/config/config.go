package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	// Media engine settings: announced candidate addresses, the transport
	// port range and the video start bitrate hint (kbps).
	ListenIps    []string `mapstructure:"listen_ips"`
	RtcMinPort   uint16   `mapstructure:"rtc_min_port"`
	RtcMaxPort   uint16   `mapstructure:"rtc_max_port"`
	StartBitrate uint32   `mapstructure:"start_bitrate"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("listen_ips", []string{"127.0.0.1"})
	v.SetDefault("rtc_min_port", 40000)
	v.SetDefault("rtc_max_port", 49999)
	v.SetDefault("start_bitrate", 1000)

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | RTC ports: %d-%d\n", cfg.Mode, cfg.Port, cfg.RtcMinPort, cfg.RtcMaxPort)
	return &cfg, nil
}
