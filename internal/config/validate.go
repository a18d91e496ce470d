package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	required := map[string]string{
		"paths.upload_dir":  c.Paths.UploadDir,
		"paths.output_dir":  c.Paths.OutputDir,
		"paths.font_dir":    c.Paths.FontDir,
		"paths.staging_dir": c.Paths.StagingDir,
		"paths.log_dir":     c.Paths.LogDir,
	}
	for key, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must be set", key)
		}
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.FrameRate <= 0 {
		return errors.New("render.frame_rate must be positive")
	}
	if c.Render.CanvasHeight <= 0 {
		return errors.New("render.canvas_height must be positive")
	}
	if strings.TrimSpace(c.Render.FFmpegBinary) == "" {
		return errors.New("render.ffmpeg_binary must be set")
	}
	if strings.TrimSpace(c.Render.FFprobeBinary) == "" {
		return errors.New("render.ffprobe_binary must be set")
	}
	if c.Render.WatchdogSeconds < 0 {
		return errors.New("render.watchdog_seconds must not be negative")
	}
	if c.Render.MusicVolume < 0 || c.Render.MusicVolume > 1 {
		return errors.New("render.music_volume must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.Workers <= 0 {
		return errors.New("scheduler.workers must be positive")
	}
	if c.Scheduler.QueueCapacity < 0 {
		return errors.New("scheduler.queue_capacity must not be negative")
	}
	if c.Scheduler.QueuePollInterval <= 0 {
		return errors.New("scheduler.queue_poll_interval must be positive")
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		return errors.New("scheduler.error_retry_interval must be positive")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.MaxAgeSeconds < 0 {
		return errors.New("retention.max_age_seconds must not be negative")
	}
	if c.Retention.MaxTotalBytes < 0 {
		return errors.New("retention.max_total_bytes must not be negative")
	}
	if c.Retention.SweepIntervalSeconds <= 0 {
		return errors.New("retention.sweep_interval_seconds must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
