package config

const (
	defaultLibraryDir            = "~/media"
	defaultStateDir              = "~/.local/share/curator"
	defaultLogDir                = "~/.local/share/curator/logs"
	defaultSourceRoot            = "/mnt/source"
	defaultFilmsSubdir           = "films"
	defaultShowsSubdir           = "shows"
	defaultFilmsDir              = "films"
	defaultShowsDir              = "shows"
	defaultTMDBLanguage          = "en-US"
	defaultTMDBBaseURL           = "https://api.themoviedb.org/3"
	defaultTMDBRequestIntervalMS = 250
	defaultConfidenceThreshold   = 0.80
	defaultAmbiguityMargin       = 0.05
	defaultScanInterval          = 300
	defaultWorkers               = 4
	defaultMaxRepairAttempts     = 3
	defaultVerifyEvery           = 12
	defaultAPIBind               = "127.0.0.1:7488"
	defaultJellyfinURL           = "http://localhost:8096"
	defaultLogFormat             = "auto"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultLogMaxSizeMB          = 50
	defaultLogMaxBackups         = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			Root:        defaultSourceRoot,
			FilmsSubdir: defaultFilmsSubdir,
			ShowsSubdir: defaultShowsSubdir,
			Watch:       true,
		},
		Library: Library{
			FilmsDir: defaultFilmsDir,
			ShowsDir: defaultShowsDir,
		},
		TMDB: TMDB{
			BaseURL:           defaultTMDBBaseURL,
			Language:          defaultTMDBLanguage,
			RequestIntervalMS: defaultTMDBRequestIntervalMS,
		},
		Identification: Identification{
			ConfidenceThreshold: defaultConfidenceThreshold,
			AmbiguityMargin:     defaultAmbiguityMargin,
		},
		Workflow: Workflow{
			ScanInterval:      defaultScanInterval,
			Workers:           defaultWorkers,
			MaxRepairAttempts: defaultMaxRepairAttempts,
			VerifyEvery:       defaultVerifyEvery,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Jellyfin: Jellyfin{
			URL: defaultJellyfinURL,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
