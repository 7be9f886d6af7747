package engine

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/anima-scan/engine/core"
)

type PreviewConfig struct {
	Enabled bool `toml:"enabled"`
	// Edge length in pixels of the square thumbnail.
	Size int `toml:"size"`
}

type ApplicationConfig struct {
	// The application name used in logs.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Directory holding one file per recording.
	RecordingsDir string `toml:"recordings_dir"`
	// Background workers for directory scans and deletes.
	Workers      int `toml:"workers"`
	JobQueueSize int `toml:"job_queue_size"`
	// Scene aggregation cycles per second while recording.
	FrameRate int `toml:"frame_rate"`
	// Reload the catalog when the recordings directory changes on disk.
	WatchRecordings bool          `toml:"watch_recordings"`
	Preview         PreviewConfig `toml:"preview"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Name:            "Anima Scan",
		LogLevel:        "info",
		RecordingsDir:   "recordings",
		Workers:         2,
		JobQueueSize:    16,
		FrameRate:       30,
		WatchRecordings: true,
		Preview: PreviewConfig{
			Enabled: true,
			Size:    256,
		},
	}
}

// LoadApplicationConfig reads a TOML file on top of the defaults. Keys missing
// from the file keep their default value, unknown keys are rejected.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()

	f, err := os.Open(path)
	if err != nil {
		return nil, core.NewIOError("open", path, err)
	}
	defer f.Close()

	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("config %s: %s", path, strict.String())
		}
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	var errs []error
	if c.RecordingsDir == "" {
		errs = append(errs, errors.New("recordings_dir must be set"))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.JobQueueSize < 0 {
		errs = append(errs, fmt.Errorf("job_queue_size must not be negative, got %d", c.JobQueueSize))
	}
	if c.FrameRate < 1 || c.FrameRate > 240 {
		errs = append(errs, fmt.Errorf("frame_rate must be within 1..240, got %d", c.FrameRate))
	}
	if c.Preview.Enabled && c.Preview.Size < 8 {
		errs = append(errs, fmt.Errorf("preview.size must be at least 8, got %d", c.Preview.Size))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// PreviewSize is 0 when thumbnails are disabled.
func (c *ApplicationConfig) PreviewSize() int {
	if !c.Preview.Enabled {
		return 0
	}
	return c.Preview.Size
}
