package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeSource(); err != nil {
		return err
	}
	c.normalizeLibrary()
	c.normalizeTMDB()
	c.normalizeIdentification()
	if err := c.normalizeWorkflow(); err != nil {
		return err
	}
	c.normalizeJellyfin()
	c.normalizeLogging()
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.LibraryDir, err = expandPath(c.Paths.LibraryDir); err != nil {
		return fmt.Errorf("paths.library_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() error {
	if value, ok := os.LookupEnv("CURATOR_SOURCE_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Source.Root = value
	}
	if value, ok := os.LookupEnv("CURATOR_LINK_ROOT"); ok && strings.TrimSpace(value) != "" {
		c.Source.LinkRoot = value
	}
	var err error
	if c.Source.Root, err = expandPath(strings.TrimSpace(c.Source.Root)); err != nil {
		return fmt.Errorf("source.root: %w", err)
	}
	c.Source.LinkRoot = strings.TrimSpace(c.Source.LinkRoot)
	if c.Source.LinkRoot != "" {
		// link_root names a path inside the media server's view of the mount,
		// so it is cleaned but never resolved against the local working dir.
		c.Source.LinkRoot = strings.TrimRight(c.Source.LinkRoot, "/")
		if c.Source.LinkRoot == "" {
			c.Source.LinkRoot = "/"
		}
	}
	c.Source.FilmsSubdir = strings.Trim(strings.TrimSpace(c.Source.FilmsSubdir), "/")
	c.Source.ShowsSubdir = strings.Trim(strings.TrimSpace(c.Source.ShowsSubdir), "/")
	if c.Source.MinFileSizeMB < 0 {
		c.Source.MinFileSizeMB = 0
	}
	return nil
}

func (c *Config) normalizeLibrary() {
	c.Library.FilmsDir = strings.Trim(strings.TrimSpace(c.Library.FilmsDir), "/")
	if c.Library.FilmsDir == "" {
		c.Library.FilmsDir = defaultFilmsDir
	}
	c.Library.ShowsDir = strings.Trim(strings.TrimSpace(c.Library.ShowsDir), "/")
	if c.Library.ShowsDir == "" {
		c.Library.ShowsDir = defaultShowsDir
	}
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimSpace(c.TMDB.BaseURL)
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
	if c.TMDB.RequestIntervalMS < 0 {
		c.TMDB.RequestIntervalMS = 0
	}
}

func (c *Config) normalizeIdentification() {
	if c.Identification.ConfidenceThreshold == 0 {
		c.Identification.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if c.Identification.AmbiguityMargin < 0 {
		c.Identification.AmbiguityMargin = 0
	}
}

func (c *Config) normalizeWorkflow() error {
	if value, ok := lookupBoolEnv("CURATOR_REBUILD_MODE", "REBUILD_MODE"); ok {
		c.Workflow.RebuildMode = value
	}
	if value, ok := os.LookupEnv("SCAN_INTERVAL_SECS"); ok && strings.TrimSpace(value) != "" {
		seconds, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("SCAN_INTERVAL_SECS: %w", err)
		}
		c.Workflow.ScanInterval = seconds
	}
	if value, ok := os.LookupEnv("MAX_REPAIR_ATTEMPTS"); ok && strings.TrimSpace(value) != "" {
		attempts, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("MAX_REPAIR_ATTEMPTS: %w", err)
		}
		c.Workflow.MaxRepairAttempts = attempts
	}
	if c.Workflow.Workers <= 0 {
		c.Workflow.Workers = defaultWorkers
	}
	if c.Workflow.VerifyEvery < 0 {
		c.Workflow.VerifyEvery = 0
	}
	return nil
}

func (c *Config) normalizeJellyfin() {
	if c.Jellyfin.APIKey == "" {
		if value, ok := os.LookupEnv("JELLYFIN_API_KEY"); ok {
			c.Jellyfin.APIKey = value
		}
	}
	if value, ok := os.LookupEnv("JELLYFIN_URL"); ok && strings.TrimSpace(value) != "" && c.Jellyfin.URL == defaultJellyfinURL {
		c.Jellyfin.URL = value
	}
	c.Jellyfin.URL = strings.TrimRight(strings.TrimSpace(c.Jellyfin.URL), "/")
	c.Jellyfin.APIKey = strings.TrimSpace(c.Jellyfin.APIKey)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "auto":
		c.Logging.Format = "auto"
	case "console", "json":
	default:
		c.Logging.Format = "auto"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}

func lookupBoolEnv(keys ...string) (bool, bool) {
	for _, key := range keys {
		value, ok := os.LookupEnv(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return true, true
		default:
			return false, true
		}
	}
	return false, false
}
