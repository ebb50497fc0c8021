package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Browser  BrowserConfig
	Portals  PortalsConfig
	Proof    ProofConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	ChannelLogFilePath string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	AuditTopic         string
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	// Empty means records are kept in memory.
	Connection string
}

type AuthConfig struct {
	// Optional. When set, channels may bind an owner through a signed token.
	JWTSecret string
}

type BrowserConfig struct {
	Bin            string
	Headless       bool
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	FrameInterval  time.Duration
	FrameQuality   int
	FrameMaxWidth  int
}

type GradePortalConfig struct {
	LoginURL          string
	ResultsURL        string
	UsernameSelector  string
	PasswordSelector  string
	SubmitSelector    string
	Pattern           string
	Threshold         float64
	Comparator        string
	NavigationTimeout time.Duration
	ElementTimeout    time.Duration
	PreLoginDelay     time.Duration
	SettleDelay       time.Duration
}

type ProfilePortalConfig struct {
	ProfileURL         string
	Threshold          float64
	Comparator         string
	NavigationTimeout  time.Duration
	HydrationDelay     time.Duration
	InterstitialDelay  time.Duration
	InterstitialChecks int
}

type PortalsConfig struct {
	Grade   GradePortalConfig
	Profile ProfilePortalConfig
}

type ProofConfig struct {
	ArtifactsDir    string
	DevSetup        bool
	BindClaim       bool
	RelayerURL      string
	RelayerAPIKey   string
	PollInterval    time.Duration
	FinalityTimeout time.Duration
}

type TracingConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "app.log"),
			ChannelLogFilePath: getEnv("CHANNEL_LOG_FILE_PATH", "channel.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3001"),
			NatsURL:            getEnv("NATS_URL", ""),
			RedisURL:           getEnv("REDIS_URL", ""),
			AuditTopic:         getEnv("SESSION_AUDIT_TOPIC", "session.transitions"),
			ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
		},
		Browser: BrowserConfig{
			Bin:            getEnv("CHROME_BIN", ""),
			Headless:       getEnvAsBool("BROWSER_HEADLESS", true),
			NoSandbox:      getEnvAsBool("BROWSER_NO_SANDBOX", true),
			ViewportWidth:  getEnvAsInt("BROWSER_VIEWPORT_WIDTH", 1280),
			ViewportHeight: getEnvAsInt("BROWSER_VIEWPORT_HEIGHT", 720),
			UserAgent:      getEnv("BROWSER_USER_AGENT", ""),
			FrameInterval:  getEnvAsDuration("SCREENCAST_FRAME_INTERVAL", 200*time.Millisecond),
			FrameQuality:   getEnvAsInt("SCREENCAST_QUALITY", 80),
			FrameMaxWidth:  getEnvAsInt("SCREENCAST_MAX_WIDTH", 640),
		},
		Portals: PortalsConfig{
			Grade: GradePortalConfig{
				LoginURL:          getEnv("NITW_LOGIN_URL", "https://wsdc.nitw.ac.in"),
				ResultsURL:        getEnv("NITW_RESULTS_URL", "https://wsdc.nitw.ac.in/results/"),
				UsernameSelector:  getEnv("NITW_USERNAME_SELECTOR", `#login input[name="username"]`),
				PasswordSelector:  getEnv("NITW_PASSWORD_SELECTOR", `#login input[name="passw"]`),
				SubmitSelector:    getEnv("NITW_SUBMIT_SELECTOR", `#login input[type="submit"]`),
				Pattern:           getEnv("NITW_CGPA_PATTERN", `Cumulative Grade Point Average \(CGPA\):\s*([\d.]+)`),
				Threshold:         getEnvAsFloat("NITW_CGPA_THRESHOLD", 6.0),
				Comparator:        getEnv("NITW_CGPA_COMPARATOR", "greater-than"),
				NavigationTimeout: getEnvAsDuration("NITW_NAVIGATION_TIMEOUT", 15*time.Second),
				ElementTimeout:    getEnvAsDuration("NITW_ELEMENT_TIMEOUT", 10*time.Second),
				PreLoginDelay:     getEnvAsDuration("NITW_PRE_LOGIN_DELAY", 1500*time.Millisecond),
				SettleDelay:       getEnvAsDuration("NITW_SETTLE_DELAY", 3*time.Second),
			},
			Profile: ProfilePortalConfig{
				ProfileURL:         getEnv("LEETCODE_PROFILE_URL", "https://leetcode.com/u/%s/"),
				Threshold:          getEnvAsFloat("LEETCODE_SOLVED_THRESHOLD", 5),
				Comparator:         getEnv("LEETCODE_SOLVED_COMPARATOR", "greater-or-equal"),
				NavigationTimeout:  getEnvAsDuration("LEETCODE_NAVIGATION_TIMEOUT", 45*time.Second),
				HydrationDelay:     getEnvAsDuration("LEETCODE_HYDRATION_DELAY", 5*time.Second),
				InterstitialDelay:  getEnvAsDuration("LEETCODE_INTERSTITIAL_DELAY", 5*time.Second),
				InterstitialChecks: getEnvAsInt("LEETCODE_INTERSTITIAL_CHECKS", 3),
			},
		},
		Proof: ProofConfig{
			ArtifactsDir:    getEnv("PROOF_ARTIFACTS_DIR", "artifacts"),
			DevSetup:        getEnvAsBool("PROOF_DEV_SETUP", false),
			BindClaim:       getEnvAsBool("PROOF_BIND_CLAIM", false),
			RelayerURL:      getEnv("ZKV_RELAYER_URL", "https://relayer-api.horizenlabs.io/api/v1"),
			RelayerAPIKey:   getEnv("ZKV_API_KEY", ""),
			PollInterval:    getEnvAsDuration("ZKV_POLL_INTERVAL", 2*time.Second),
			FinalityTimeout: getEnvAsDuration("ZKV_FINALITY_TIMEOUT", 3*time.Minute),
		},
		Tracing: TracingConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "zkcred-be"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		},
	}
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("15s") or bare milliseconds.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if ms, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
