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
	if err := c.validateTMDB(); err != nil {
		return err
	}
	if err := c.validateIdentification(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateJellyfin(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if strings.TrimSpace(c.Source.Root) == "" {
		return errors.New("source.root must be set")
	}
	if c.Source.Root == c.Paths.LibraryDir {
		return errors.New("source.root and paths.library_dir must differ")
	}
	if c.Library.FilmsDir == c.Library.ShowsDir {
		return errors.New("library.films_dir and library.shows_dir must differ")
	}
	return nil
}

func (c *Config) validateTMDB() error {
	if c.TMDB.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/curator/config.toml"
		}
		return fmt.Errorf("tmdb.api_key is required. Set TMDB_API_KEY env var or edit %s (create with 'curator config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateIdentification() error {
	if c.Identification.ConfidenceThreshold <= 0 || c.Identification.ConfidenceThreshold > 1 {
		return errors.New("identification.confidence_threshold must be in (0, 1]")
	}
	if c.Identification.AmbiguityMargin >= 1 {
		return errors.New("identification.ambiguity_margin must be below 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.ScanInterval <= 0 {
		return errors.New("workflow.scan_interval must be positive (seconds)")
	}
	if c.Workflow.MaxRepairAttempts <= 0 {
		return errors.New("workflow.max_repair_attempts must be positive")
	}
	if c.Workflow.Workers > 64 {
		return errors.New("workflow.workers must not exceed 64")
	}
	return nil
}

func (c *Config) validateJellyfin() error {
	if !c.Jellyfin.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Jellyfin.URL) == "" {
		return errors.New("jellyfin.url must be set when jellyfin.enabled is true")
	}
	if strings.TrimSpace(c.Jellyfin.APIKey) == "" {
		return errors.New("jellyfin.api_key must be set when jellyfin.enabled is true")
	}
	return nil
}
