package config

import (
	"os"
	"strconv"
)

type ConfigStruct struct {
	Discord    DiscordConfig
	Options    Options
	Youtube    YoutubeConfig
	Cache      CacheConfig
	Spotify    SpotifyConfig
	AppleMusic AppleMusicConfig
	Sentry     SentryConfig
}

type DiscordConfig struct {
	BotToken  string
	AppID     string
	PublicKey string
	// GuildID scopes slash command registration; empty registers globally.
	GuildID string
}

type YoutubeConfig struct {
	APIKey            string
	PageSize          int
	SearchMaxResults  int
	RequestsPerSecond int
}

type CacheConfig struct {
	Enabled bool
	DBPath  string
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	Enabled      bool
}

type AppleMusicConfig struct {
	Enabled bool
}

type SentryConfig struct {
	DSN     string
	Release string
}

type Options struct {
	EnforceVoiceChannel bool
	Port                string
	IdleTimeoutSeconds  int
	AudioBitrate        int // Audio bitrate in bps (e.g., 96000 for 96 kbps)
	LogLevel            string
}

func (y *YoutubeConfig) HasAPIKey() bool {
	return y.APIKey != ""
}

func (c *CacheConfig) IsEnabled() bool {
	return c.Enabled && c.DBPath != ""
}

func (s *SpotifyConfig) IsEnabled() bool {
	return s.Enabled && s.ClientID != "" && s.ClientSecret != ""
}

func (options *Options) EnforceVoiceChannelEnabled() bool {
	return options.EnforceVoiceChannel
}

var Config *ConfigStruct

func NewConfig() *ConfigStruct {
	config := &ConfigStruct{
		Discord: DiscordConfig{
			BotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
			AppID:     os.Getenv("DISCORD_APP_ID"),
			PublicKey: os.Getenv("DISCORD_PUBLIC_KEY"),
			GuildID:   os.Getenv("DISCORD_GUILD_ID"),
		},
		Options: Options{
			EnforceVoiceChannel: os.Getenv("ENFORCE_VOICE_CHANNEL") != "false",
			Port:                os.Getenv("PORT"),
			IdleTimeoutSeconds:  getIdleTimeout(),
			AudioBitrate:        getAudioBitrate(),
			LogLevel:            getLogLevel(),
		},
		Youtube: YoutubeConfig{
			APIKey:            os.Getenv("YOUTUBE_API_KEY"),
			PageSize:          getYouTubePageSize(),
			SearchMaxResults:  getSearchMaxResults(),
			RequestsPerSecond: getRequestsPerSecond(),
		},
		Cache: CacheConfig{
			Enabled: os.Getenv("CACHE_ENABLED") != "false",
			DBPath:  getDBPath(),
		},
		Spotify: SpotifyConfig{
			ClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
			ClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
			Enabled:      os.Getenv("SPOTIFY_ENABLED") == "true",
		},
		AppleMusic: AppleMusicConfig{
			Enabled: os.Getenv("APPLE_MUSIC_ENABLED") == "true",
		},
		Sentry: SentryConfig{
			DSN:     os.Getenv("SENTRY_DSN"),
			Release: os.Getenv("RELEASE"),
		},
	}

	Config = config
	return config
}

// Missing returns the names of required variables that are unset.
func (c *ConfigStruct) Missing() []string {
	var missing []string
	if c.Discord.BotToken == "" {
		missing = append(missing, "DISCORD_BOT_TOKEN")
	}
	if c.Discord.AppID == "" {
		missing = append(missing, "DISCORD_APP_ID")
	}
	if c.Discord.PublicKey == "" {
		missing = append(missing, "DISCORD_PUBLIC_KEY")
	}
	return missing
}

func getIdleTimeout() int {
	timeoutStr := os.Getenv("IDLE_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		return 15
	}
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		return 15
	}
	return timeout
}

func getYouTubePageSize() int {
	sizeStr := os.Getenv("YOUTUBE_PAGE_SIZE")
	if sizeStr == "" {
		return 5
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil || size <= 0 {
		return 5
	}
	if size > 50 {
		return 50 // YouTube API max per page
	}
	return size
}

func getSearchMaxResults() int {
	limitStr := os.Getenv("YOUTUBE_SEARCH_RESULTS")
	if limitStr == "" {
		return 5
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return 5
	}
	if limit > 50 {
		return 50
	}
	return limit
}

func getRequestsPerSecond() int {
	rpsStr := os.Getenv("YOUTUBE_REQUESTS_PER_SECOND")
	if rpsStr == "" {
		return 5
	}
	rps, err := strconv.Atoi(rpsStr)
	if err != nil || rps <= 0 {
		return 5
	}
	return rps
}

func getDBPath() string {
	if path := os.Getenv("DB_PATH"); path != "" {
		return path
	}
	return "./data/songs.db"
}

func getLogLevel() string {
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		return level
	}
	return "info"
}

func getAudioBitrate() int {
	bitrateStr := os.Getenv("AUDIO_BITRATE")
	if bitrateStr == "" {
		return 128000 // Default to 128 kbps - max for regular voice channels
	}
	bitrate, err := strconv.Atoi(bitrateStr)
	if err != nil || bitrate <= 0 {
		return 128000
	}
	// Discord supports 8 kbps to 512 kbps for Opus
	if bitrate < 8000 {
		return 8000
	}
	if bitrate > 512000 {
		return 512000
	}
	return bitrate
}
