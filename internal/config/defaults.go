package config

const (
	defaultConfigPath            = "~/.config/subservient/config.toml"
	defaultAPIURL                = "https://api.opensubtitles.com/api/v1"
	defaultUserAgent             = "Subservient v1.0"
	defaultRequestTimeoutSeconds = 45
	defaultPauseSeconds          = 3
	defaultDownloadRetry503      = 6
	defaultMaxRateRetries        = 5
	defaultMaxSearchResults      = 50
	defaultFFSubsyncBinary       = "ffsubsync"
	defaultFFprobeBinary         = "ffprobe"
	defaultSyncTimeoutSeconds    = 600
	defaultAcceptOffset          = 0.05
	defaultRejectOffset          = 2.5
	defaultExtrasFolderName      = "extras"
	defaultStateDir              = "~/.local/share/subservient"
	defaultLogDir                = "~/.local/share/subservient/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultLogRetentionDays      = 30

	// MaxSearchResultsCeiling is the highest pool cap the review queue may raise to.
	MaxSearchResultsCeiling = 50
)

var defaultUnwantedTerms = []string{
	"480p", "576p", "720p", "1080p", "1080i", "2160p", "4k", "uhd",
	"x264", "x265", "h264", "h265", "hevc", "avc", "xvid", "divx", "10bit", "hdr", "hdr10", "dv",
	"bluray", "brrip", "bdrip", "webrip", "web-dl", "webdl", "web", "dvdrip", "hdtv", "remux",
	"aac", "ac3", "dts", "ddp5", "atmos", "truehd",
	"proper", "repack", "extended", "unrated", "remastered", "yify", "yts", "rarbg",
}

var defaultVideoExtensions = []string{".mkv", ".mp4"}

// Default returns a Config populated with repository defaults. Credentials,
// languages, batch size, and library roots have no defaults and must be
// configured.
func Default() Config {
	return Config{
		OpenSubtitles: OpenSubtitles{
			APIURL:                defaultAPIURL,
			UserAgent:             defaultUserAgent,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			PauseSeconds:          defaultPauseSeconds,
			DownloadRetry503:      defaultDownloadRetry503,
			MaxRateRetries:        defaultMaxRateRetries,
		},
		Acquisition: Acquisition{
			MaxSearchResults: defaultMaxSearchResults,
			UnwantedTerms:    append([]string(nil), defaultUnwantedTerms...),
		},
		Sync: Sync{
			FFSubsyncBinary:       defaultFFSubsyncBinary,
			FFprobeBinary:         defaultFFprobeBinary,
			TimeoutSeconds:        defaultSyncTimeoutSeconds,
			AcceptOffsetThreshold: defaultAcceptOffset,
			RejectOffsetThreshold: defaultRejectOffset,
			RequireAudio:          true,
		},
		Library: Library{
			ExtrasFolderName: defaultExtrasFolderName,
			VideoExtensions:  append([]string(nil), defaultVideoExtensions...),
		},
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
