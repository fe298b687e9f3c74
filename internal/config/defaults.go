package config

const (
	defaultConfigPath            = "~/.config/mixtape/config.toml"
	defaultDataDir               = "~/.local/share/mixtape"
	defaultDownloadDir           = "~/Music/mixtape"
	defaultLogDir                = "~/.local/share/mixtape/logs"
	defaultAPIBind               = "127.0.0.1:7488"
	defaultBatchDirName          = "batch_storage"
	defaultSQLiteName            = "batches.db"
	defaultCleanupDays           = 7
	defaultMaxURLs               = 50
	defaultYTDLPBinary           = "yt-dlp"
	defaultFFmpegBinary          = "ffmpeg"
	defaultAudioFormat           = "mp3"
	defaultAudioQuality          = "192"
	defaultTagGenre              = "Bilibili"
	defaultTagPublisher          = "Bilibili"
	defaultTagComment            = "Downloaded from Bilibili"
	defaultNavidromeTimeout      = 10
	defaultNotificationTimeout   = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30
	defaultRecoveryMode          = RecoveryResume
	defaultNavidromeScanEndpoint = "/api/scan"
)

// Storage backends.
const (
	StorageBackendDir    = "dir"
	StorageBackendSQLite = "sqlite"
)

// Recovery modes for batches found in the downloading state at startup.
const (
	RecoveryResume = "resume"
	RecoveryFail   = "fail"
	RecoveryIgnore = "ignore"
)

// NavidromeScanEndpoint is the path appended to the Navidrome base URL to trigger a scan.
const NavidromeScanEndpoint = defaultNavidromeScanEndpoint

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:     defaultDataDir,
			DownloadDir: defaultDownloadDir,
			LogDir:      defaultLogDir,
			APIBind:     defaultAPIBind,
		},
		Storage: Storage{
			Backend:     StorageBackendDir,
			CleanupDays: defaultCleanupDays,
		},
		Batch: Batch{
			MaxURLs: defaultMaxURLs,
		},
		Fetch: Fetch{
			YTDLPBinary:  defaultYTDLPBinary,
			FFmpegBinary: defaultFFmpegBinary,
			AudioFormat:  defaultAudioFormat,
			AudioQuality: defaultAudioQuality,
		},
		Tags: Tags{
			Genre:     defaultTagGenre,
			Publisher: defaultTagPublisher,
			Comment:   defaultTagComment,
		},
		Navidrome: Navidrome{
			RequestTimeout: defaultNavidromeTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotificationTimeout,
		},
		Recovery: Recovery{
			Mode: defaultRecoveryMode,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
