package cfg

type Cfg struct {
	// Storage paths
	DatabasePath string
	DownloadDir  string
	SourcesDir   string

	// HTTP control surface
	Port         string
	APIAccessKey string

	// Scheduling
	CheckInterval       int // seconds, default per-source sweep interval
	DrainInterval       int // seconds
	MaintenanceInterval int // seconds
	StaleAfter          int // seconds before an in-progress row is considered stuck

	// Worker pools
	DownloadConcurrency  int
	CompanionConcurrency int
	UploadConcurrency    int

	// Retry policy
	RetryMaxAttempts int
	RetryBaseDelay   int // seconds
	RetryMaxDelay    int // seconds

	// Artifact handling
	VideoQuality         string
	MaxCompanionFileSize int64 // bytes
	IOTimeout            int   // seconds

	// AList storage
	AListURL        string
	AListUsername   string
	AListPassword   string
	AListRemotePath string

	// Telegram notifications
	TelegramToken  string
	TelegramChatID string

	// Instagram credential fallback
	InstagramCookieFile  string
	InstagramSessionFile string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
