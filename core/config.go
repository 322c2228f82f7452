// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"strconv"

	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time     TimeConfiguration
	Pipeline PipelineConfiguration
	Surface  SurfaceConfiguration
	LogLevel string
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the platform event poll period in milliseconds
	EventPollDelay int
}

// PipelineConfiguration is used to configure the frame pipeline
type PipelineConfiguration struct {
	// FramesInFlight bounds how many frames the CPU may run ahead of
	// the GPU. One is legal but serializes CPU and GPU completely.
	FramesInFlight int
}

// Validate checks the pipeline settings.
func (c PipelineConfiguration) Validate() error {
	if c.FramesInFlight < 1 || c.FramesInFlight > 8 {
		return fmt.Errorf("core: FramesInFlight %d outside of [1, 8]: %w", c.FramesInFlight, ErrInvalidArgument)
	}
	return nil
}

// SurfaceConfiguration is used to configure the main surface
type SurfaceConfiguration struct {
	ScreenWidth  uint32
	ScreenHeight uint32
}

// DefaultConfiguration is the configuration engines start from when
// the environment sets nothing.
func DefaultConfiguration() Configuration {
	return Configuration{
		Time: TimeConfiguration{
			FramesPerSecond: 60,
			EventPollDelay:  2,
		},
		Pipeline: PipelineConfiguration{
			FramesInFlight: 2,
		},
		Surface: SurfaceConfiguration{
			ScreenWidth:  800,
			ScreenHeight: 600,
		},
		LogLevel: "info",
	}
}

// ConfigurationFromEnv loads the configuration from the environment,
// reading a .env file first when present. Unset variables keep their
// defaults.
func ConfigurationFromEnv() (Configuration, error) {
	// A missing .env file is not an error, the environment still counts.
	// envy snapshots the environment at init, so reload after the file
	// lands in it.
	_ = godotenv.Load()
	envy.Reload()

	cfg := DefaultConfiguration()

	var err error
	if cfg.Pipeline.FramesInFlight, err = envInt("CADENCE_FRAMES_IN_FLIGHT", cfg.Pipeline.FramesInFlight); err != nil {
		return cfg, err
	}
	if cfg.Time.FramesPerSecond, err = envInt("CADENCE_FPS", cfg.Time.FramesPerSecond); err != nil {
		return cfg, err
	}
	width, err := envInt("CADENCE_WIDTH", int(cfg.Surface.ScreenWidth))
	if err != nil {
		return cfg, err
	}
	height, err := envInt("CADENCE_HEIGHT", int(cfg.Surface.ScreenHeight))
	if err != nil {
		return cfg, err
	}
	cfg.Surface.ScreenWidth = uint32(width)
	cfg.Surface.ScreenHeight = uint32(height)
	cfg.LogLevel = envy.Get("CADENCE_LOG_LEVEL", cfg.LogLevel)

	if err := cfg.Pipeline.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func envInt(key string, fallback int) (int, error) {
	raw := envy.Get(key, "")
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("core: %s=%q is not a number: %w", key, raw, ErrInvalidArgument)
	}
	return value, nil
}
