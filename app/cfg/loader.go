package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage paths
	DatabasePath string `long:"database-path" env:"DATABASE_PATH" default:"./data/you2down.db" description:"SQLite database path"`
	DownloadDir  string `long:"download-dir" env:"DOWNLOAD_DIR" default:"./downloads" description:"Directory for downloaded artifacts"`
	SourcesDir   string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`

	// HTTP control surface
	Port         string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for control endpoints (optional)"`

	// Scheduling
	CheckInterval       int `long:"check-interval" env:"CHECK_INTERVAL" default:"1800" description:"Default source sweep interval in seconds"`
	DrainInterval       int `long:"drain-interval" env:"DRAIN_INTERVAL" default:"15" description:"Worker pool drain tick in seconds"`
	MaintenanceInterval int `long:"maintenance-interval" env:"MAINTENANCE_INTERVAL" default:"600" description:"Maintenance sweep interval in seconds"`
	StaleAfter          int `long:"stale-after" env:"STALE_AFTER" default:"3600" description:"Seconds before an in-progress row is considered stuck"`

	// Worker pools
	DownloadConcurrency  int `long:"download-concurrency" env:"DOWNLOAD_CONCURRENCY" default:"3" description:"Concurrent media downloads"`
	CompanionConcurrency int `long:"companion-concurrency" env:"COMPANION_CONCURRENCY" default:"2" description:"Concurrent companion-file downloads"`
	UploadConcurrency    int `long:"upload-concurrency" env:"UPLOAD_CONCURRENCY" default:"2" description:"Concurrent uploads"`

	// Retry policy
	RetryMaxAttempts int `long:"retry-max-attempts" env:"RETRY_MAX_ATTEMPTS" default:"3" description:"Maximum attempts before a row is failed"`
	RetryBaseDelay   int `long:"retry-base-delay" env:"RETRY_BASE_DELAY" default:"60" description:"Base retry delay in seconds"`
	RetryMaxDelay    int `long:"retry-max-delay" env:"RETRY_MAX_DELAY" default:"3600" description:"Retry delay cap in seconds"`

	// Artifact handling
	VideoQuality         string `long:"video-quality" env:"VIDEO_QUALITY" default:"best" description:"Video quality hint: best, 4k, 1080p, 720p, 480p"`
	MaxCompanionFileSize int64  `long:"max-companion-file-size" env:"MAX_COMPANION_FILE_SIZE" default:"2147483648" description:"Companion file size cap in bytes"`
	IOTimeout            int    `long:"io-timeout" env:"IO_TIMEOUT" default:"1800" description:"Per-operation I/O timeout in seconds"`

	// AList storage
	AListURL        string `long:"alist-url" env:"ALIST_URL" description:"AList server URL"`
	AListUsername   string `long:"alist-username" env:"ALIST_USERNAME" description:"AList username"`
	AListPassword   string `long:"alist-password" env:"ALIST_PASSWORD" description:"AList password"`
	AListRemotePath string `long:"alist-remote-path" env:"ALIST_REMOTE_PATH" default:"/videos" description:"Remote upload path"`

	// Telegram notifications
	TelegramToken  string `long:"telegram-token" env:"TELEGRAM_TOKEN" description:"Telegram bot token (optional)"`
	TelegramChatID string `long:"telegram-chat-id" env:"TELEGRAM_CHAT_ID" description:"Telegram chat ID for notifications"`

	// Instagram credential fallback
	InstagramCookieFile  string `long:"instagram-cookie-file" env:"INSTAGRAM_COOKIE_FILE" description:"Imported cookie file for the Instagram poller"`
	InstagramSessionFile string `long:"instagram-session-file" env:"INSTAGRAM_SESSION_FILE" description:"Persisted session token file for the Instagram poller"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"you2down/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DatabasePath:         raw.DatabasePath,
		DownloadDir:          raw.DownloadDir,
		SourcesDir:           raw.SourcesDir,
		Port:                 raw.Port,
		APIAccessKey:         raw.APIAccessKey,
		CheckInterval:        raw.CheckInterval,
		DrainInterval:        raw.DrainInterval,
		MaintenanceInterval:  raw.MaintenanceInterval,
		StaleAfter:           raw.StaleAfter,
		DownloadConcurrency:  raw.DownloadConcurrency,
		CompanionConcurrency: raw.CompanionConcurrency,
		UploadConcurrency:    raw.UploadConcurrency,
		RetryMaxAttempts:     raw.RetryMaxAttempts,
		RetryBaseDelay:       raw.RetryBaseDelay,
		RetryMaxDelay:        raw.RetryMaxDelay,
		VideoQuality:         raw.VideoQuality,
		MaxCompanionFileSize: raw.MaxCompanionFileSize,
		IOTimeout:            raw.IOTimeout,
		AListURL:             raw.AListURL,
		AListUsername:        raw.AListUsername,
		AListPassword:        raw.AListPassword,
		AListRemotePath:      raw.AListRemotePath,
		TelegramToken:        raw.TelegramToken,
		TelegramChatID:       raw.TelegramChatID,
		InstagramCookieFile:  raw.InstagramCookieFile,
		InstagramSessionFile: raw.InstagramSessionFile,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
