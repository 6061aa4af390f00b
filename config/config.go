package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Zoom     ZoomConfig
	OpenAI   OpenAIConfig
	Google   GoogleConfig
	Notion   NotionConfig
	Slack    SlackConfig
	Pipeline PipelineConfig
	Defaults DefaultsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
	MetricsPort  string // worker health and metrics listener
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds operator token settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// AWSConfig holds credentials for the artifact archive bucket. Empty bucket disables the archive.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	PresignExpireMinutes int
}

// ZoomConfig holds Server-to-Server OAuth app credentials used to look up fresh download URLs.
type ZoomConfig struct {
	AccountID     string
	ClientID      string
	ClientSecret  string
	BaseURL       string
	AuthURL       string
	ReplayWindow  time.Duration // 0 disables the timestamp check
	PreferredType string        // recording_type preferred when choosing the video file
}

// OpenAIConfig holds model names and the endpoint; keys come from DefaultsConfig or the tenant.
type OpenAIConfig struct {
	BaseURL            string
	TranscriptionModel string
	SummaryModel       string
	RequestTimeout     time.Duration
}

// GoogleConfig holds OAuth client settings for YouTube and the service account for Sheets.
type GoogleConfig struct {
	ClientID          string
	ClientSecret      string
	CredentialsFile   string // service account JSON used for Sheets
	SheetName         string
	YouTubeCategoryID string
	YouTubePrivacy    string
	UploadTimeout     time.Duration
}

// NotionConfig holds Notion page layout settings.
type NotionConfig struct {
	TranscriptExcerpt int
}

// SlackConfig holds the incoming webhook used for completion / failure notices.
type SlackConfig struct {
	WebhookURL string
}

// PipelineConfig holds worker and media processing settings.
type PipelineConfig struct {
	WorkDir          string // temp directory for downloads and chunks; empty = os.TempDir()
	SizeCeilingBytes int64
	ChunkOverlap     time.Duration
	FFmpegPath       string
	FFprobePath      string
	FFmpegTimeout    time.Duration
	DownloadTimeout  time.Duration
	MaxDownloadBytes int64
	Retention        time.Duration
	SweepInterval    time.Duration
	Language         string
	SummaryStyle     string
	NotesTolerance   time.Duration
	DequeueWait      time.Duration
	SyncTimeout      time.Duration // per destination write
}

// DefaultsConfig holds the process-wide credentials used when a tenant has not configured its own.
type DefaultsConfig struct {
	TenantID            string
	WebhookSecret       string
	TranscriptionKey    string
	SummarizationKey    string
	YouTubeRefreshToken string
	SheetID             string
	NotionKey           string
	NotionDatabaseID    string
	NotesSecret         string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
			MetricsPort:  getEnv("WORKER_METRICS_PORT", "9091"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Zoom: ZoomConfig{
			AccountID:     getEnv("ZOOM_ACCOUNT_ID", ""),
			ClientID:      getEnv("ZOOM_CLIENT_ID", ""),
			ClientSecret:  getEnv("ZOOM_CLIENT_SECRET", ""),
			BaseURL:       getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"),
			AuthURL:       getEnv("ZOOM_AUTH_URL", "https://zoom.us/oauth/token"),
			ReplayWindow:  getEnvDuration("ZOOM_WEBHOOK_REPLAY_WINDOW", 5*time.Minute),
			PreferredType: getEnv("ZOOM_PREFERRED_RECORDING_TYPE", "shared_screen_with_speaker_view"),
		},
		OpenAI: OpenAIConfig{
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
			TranscriptionModel: getEnv("OPENAI_WHISPER_MODEL", "whisper-1"),
			SummaryModel:       getEnv("OPENAI_GPT_MODEL", "gpt-4o-mini"),
			RequestTimeout:     getEnvDuration("OPENAI_TIMEOUT", 10*time.Minute),
		},
		Google: GoogleConfig{
			ClientID:          getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", ""),
			CredentialsFile:   getEnv("GOOGLE_CREDENTIALS_FILE", ""),
			SheetName:         getEnv("GOOGLE_SHEET_NAME", "Meetings"),
			YouTubeCategoryID: getEnv("YOUTUBE_CATEGORY_ID", "22"),
			YouTubePrivacy:    getEnv("YOUTUBE_PRIVACY_STATUS", "unlisted"),
			UploadTimeout:     getEnvDuration("YOUTUBE_UPLOAD_TIMEOUT", 30*time.Minute),
		},
		Notion: NotionConfig{
			TranscriptExcerpt: getEnvInt("NOTION_TRANSCRIPT_EXCERPT", 2000),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
		Pipeline: PipelineConfig{
			WorkDir:          getEnv("PIPELINE_WORK_DIR", ""),
			SizeCeilingBytes: int64(getEnvInt("TRANSCRIPTION_SIZE_CEILING_MB", 25)) * 1024 * 1024,
			ChunkOverlap:     getEnvDuration("CHUNK_OVERLAP", 0),
			FFmpegPath:       getEnv("FFMPEG_PATH", "ffmpeg"),
			FFprobePath:      getEnv("FFPROBE_PATH", "ffprobe"),
			FFmpegTimeout:    getEnvDuration("FFMPEG_TIMEOUT", 30*time.Minute),
			DownloadTimeout:  getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Minute),
			MaxDownloadBytes: int64(getEnvInt("MAX_DOWNLOAD_MB", 4096)) * 1024 * 1024,
			Retention:        getEnvDuration("TEMP_RETENTION", 6*time.Hour),
			SweepInterval:    getEnvDuration("TEMP_SWEEP_INTERVAL", time.Hour),
			Language:         getEnv("TRANSCRIPTION_LANGUAGE", "ja"),
			SummaryStyle:     getEnv("SUMMARY_STYLE", "default"),
			NotesTolerance:   getEnvDuration("NOTES_MATCH_TOLERANCE", 30*time.Minute),
			DequeueWait:      getEnvDuration("DEQUEUE_WAIT", 2*time.Second),
			SyncTimeout:      getEnvDuration("DESTINATION_TIMEOUT", 2*time.Minute),
		},
		Defaults: DefaultsConfig{
			TenantID:            getEnv("DEFAULT_TENANT_ID", ""),
			WebhookSecret:       getEnv("ZOOM_WEBHOOK_SECRET_TOKEN", ""),
			TranscriptionKey:    getEnv("OPENAI_API_KEY", ""),
			SummarizationKey:    getEnv("OPENAI_SUMMARY_API_KEY", getEnv("OPENAI_API_KEY", "")),
			YouTubeRefreshToken: getEnv("YOUTUBE_REFRESH_TOKEN", ""),
			SheetID:             getEnv("GOOGLE_SHEET_ID", ""),
			NotionKey:           getEnv("NOTION_API_KEY", ""),
			NotionDatabaseID:    getEnv("NOTION_DATABASE_ID", ""),
			NotesSecret:         getEnv("NOTES_WEBHOOK_SECRET", ""),
		},
	}
	if cfg.Pipeline.SizeCeilingBytes <= 0 {
		return nil, fmt.Errorf("TRANSCRIPTION_SIZE_CEILING_MB must be positive")
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s", "6h") or a bare number of seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
