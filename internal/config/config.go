// Package config loads runtime configuration with spf13/viper, the same
// library dastard's data_source.go and rpc_server.go import for their own
// configuration needs.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the top-level runtime settings for a thalamus process.
type Config struct {
	ListenAddr     string `mapstructure:"listen_addr"`
	ControlAddr    string `mapstructure:"control_addr"`
	ReactorQueue   int    `mapstructure:"reactor_queue"`
	WorkerCount    int    `mapstructure:"worker_count"`
	GenTLPath      string `mapstructure:"gentl_path"`
	CaptureDir     string `mapstructure:"capture_dir"`
	MaxChunkBytes  int    `mapstructure:"max_chunk_bytes"`
	SpectrogramMax int    `mapstructure:"spectrogram_max_window"`
}

// Default returns the configuration used when no file or env override is
// present.
func Default() Config {
	return Config{
		ListenAddr:     ":50051",
		ControlAddr:    ":50052",
		ReactorQueue:   4096,
		WorkerCount:    4,
		GenTLPath:      "/usr/lib/thalamus/gentl",
		CaptureDir:     "./capture",
		MaxChunkBytes:  524288,
		SpectrogramMax: 1 << 16,
	}
}

// Load reads configuration from the given file path (if non-empty), then
// applies THALAMUS_-prefixed environment overrides, the way dastard layers
// viper sources.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("THALAMUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("control_addr", cfg.ControlAddr)
	v.SetDefault("reactor_queue", cfg.ReactorQueue)
	v.SetDefault("worker_count", cfg.WorkerCount)
	v.SetDefault("gentl_path", cfg.GenTLPath)
	v.SetDefault("capture_dir", cfg.CaptureDir)
	v.SetDefault("max_chunk_bytes", cfg.MaxChunkBytes)
	v.SetDefault("spectrogram_max_window", cfg.SpectrogramMax)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}
