package config

const (
	defaultWorkDir             = "~/.local/share/dvrestore/work"
	defaultLogDir              = "~/.local/share/dvrestore/logs"
	defaultJournalPath         = "~/.local/share/dvrestore/journal.db"
	defaultFormatSystem        = "auto"
	defaultMergeStrategy       = "score"
	defaultMergeAlign          = "position"
	defaultMergeBatchSize      = 64
	defaultAudioSampleRate     = 48000
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	maxMergeWorkers            = 256
	maxMergeBatchSize          = 4096
	supportedSampleRateSummary = "32000, 44100, or 48000"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:     defaultWorkDir,
			LogDir:      defaultLogDir,
			JournalPath: defaultJournalPath,
		},
		Format: Format{
			System: defaultFormatSystem,
		},
		Merge: Merge{
			Strategy:  defaultMergeStrategy,
			Align:     defaultMergeAlign,
			BatchSize: defaultMergeBatchSize,
		},
		Repair: Repair{
			RedundantAudio:   true,
			RedundantSubcode: true,
			Temporal:         true,
		},
		Audio: Audio{
			DefaultSampleRate: defaultAudioSampleRate,
			StatsCSV:          true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
