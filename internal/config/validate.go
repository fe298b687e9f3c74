package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBatch(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateNavidrome(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendDir, StorageBackendSQLite:
	default:
		return fmt.Errorf("storage.backend must be %q or %q, got %q", StorageBackendDir, StorageBackendSQLite, c.Storage.Backend)
	}
	if c.Storage.CleanupDays < 0 {
		return errors.New("storage.cleanup_days must be positive")
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.MaxURLs < 1 {
		return errors.New("batch.max_urls must be at least 1")
	}
	return nil
}

func (c *Config) validateFetch() error {
	switch c.Fetch.AudioFormat {
	case "mp3", "m4a", "opus", "flac":
	default:
		return fmt.Errorf("fetch.audio_format %q is not supported", c.Fetch.AudioFormat)
	}
	if _, err := strconv.Atoi(c.Fetch.AudioQuality); err != nil {
		return fmt.Errorf("fetch.audio_quality must be a bitrate in kbps: %w", err)
	}
	return nil
}

func (c *Config) validateNavidrome() error {
	if c.Navidrome.URL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Navidrome.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("navidrome.url %q must be an absolute http(s) URL", c.Navidrome.URL)
	}
	if !strings.HasPrefix(parsed.Scheme, "http") {
		return fmt.Errorf("navidrome.url %q must use http or https", c.Navidrome.URL)
	}
	return nil
}

func (c *Config) validateRecovery() error {
	switch c.Recovery.Mode {
	case RecoveryResume, RecoveryFail, RecoveryIgnore:
		return nil
	default:
		return fmt.Errorf("recovery.mode must be one of %q, %q, %q; got %q", RecoveryResume, RecoveryFail, RecoveryIgnore, c.Recovery.Mode)
	}
}
