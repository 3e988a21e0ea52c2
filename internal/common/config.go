package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration shared by the
// orchestrator and the browser worker binaries.
type Config struct {
	Environment  string             `toml:"environment"` // "development" or "production"
	Server       ServerConfig       `toml:"server"`
	Storage      StorageConfig      `toml:"storage"`
	Logging      LoggingConfig      `toml:"logging"`
	Orchestrator OrchestratorConfig `toml:"orchestrator"`
	Worker       WorkerConfig       `toml:"worker"`
	Report       ReportConfig       `toml:"report"`
	Rules        RulesConfig        `toml:"rules"`
	WebSocket    WebSocketConfig    `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Format string   `toml:"format"` // "json" or "text"
	Output []string `toml:"output"` // "stdout", "file"
	Dir    string   `toml:"dir"`    // File output directory, defaults to logs/ beside the binary
}

// OrchestratorConfig controls test creation, dispatch and the stale sweep.
type OrchestratorConfig struct {
	WorkerURL        string  `toml:"worker_url"`         // Base URL of the browser worker
	WorkerToken      string  `toml:"worker_token"`       // Bearer secret sent to the worker
	CallTimeout      string  `toml:"call_timeout"`       // Budget for one worker call, e.g. "75s"
	StaleThreshold   string  `toml:"stale_threshold"`    // Age after which a running test is failed
	SweepSchedule    string  `toml:"sweep_schedule"`     // Cron expression for the stale sweep
	DispatchRate     float64 `toml:"dispatch_rate"`      // Worker calls per second, 0 for unlimited
	DispatchBurst    int     `toml:"dispatch_burst"`     // Burst allowance for dispatch_rate
	AdminToken       string  `toml:"admin_token"`        // X-Admin-Token for admin routes, empty disables them
	WelcomeCredits   int     `toml:"welcome_credits"`    // Balance granted to new accounts
	RecoverOnStartup bool    `toml:"recover_on_startup"` // Re-dispatch queued tests at startup
}

// WorkerConfig controls the browser worker process.
type WorkerConfig struct {
	Port              int    `toml:"port"`
	Host              string `toml:"host"`
	SharedSecret      string `toml:"shared_secret"`
	ExecutionTimeout  string `toml:"execution_timeout"`
	NavigationTimeout string `toml:"navigation_timeout"`
	ConsentSettle     string `toml:"consent_settle"`
	MaxSessions       int    `toml:"max_sessions"`
	Headless          bool   `toml:"headless"`
	NoSandbox         bool   `toml:"no_sandbox"`
	UserAgent         string `toml:"user_agent"`
	ExecPath          string `toml:"exec_path"`
	ViewportWidth     int    `toml:"viewport_width"`
	ViewportHeight    int    `toml:"viewport_height"`
}

// ReportConfig bounds stored reports.
type ReportConfig struct {
	MaxCookies      int      `toml:"max_cookies"`
	MaxCookieValue  int      `toml:"max_cookie_value"`
	MaxHops         int      `toml:"max_hops"`
	HeaderAllowList []string `toml:"header_allow_list"`
}

// RulesConfig points at an optional YAML file overriding the detection tables.
type RulesConfig struct {
	File string `toml:"file"`
}

// WebSocketConfig contains configuration for the status stream
type WebSocketConfig struct {
	// Whitelist of event types to broadcast. Empty list allows all events.
	AllowedEvents []string `toml:"allowed_events"`
	WriteTimeout  string   `toml:"write_timeout"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
		Orchestrator: OrchestratorConfig{
			CallTimeout:      "75s", // Worker budget plus transport slack
			StaleThreshold:   "5m",
			SweepSchedule:    "@every 5m",
			DispatchRate:     0,
			DispatchBurst:    1,
			WelcomeCredits:   50,
			RecoverOnStartup: true,
		},
		Worker: WorkerConfig{
			Port:              8080,
			Host:              "0.0.0.0",
			ExecutionTimeout:  "60s",
			NavigationTimeout: "60s",
			ConsentSettle:     "3s",
			MaxSessions:       0,
			Headless:          true,
			ViewportWidth:     1280,
			ViewportHeight:    800,
		},
		Report: ReportConfig{
			MaxCookies:      100,
			MaxCookieValue:  200,
			MaxHops:         50,
			HeaderAllowList: []string{"server", "location", "set-cookie"},
		},
		WebSocket: WebSocketConfig{
			AllowedEvents: []string{},
			WriteTimeout:  "10s",
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal merges into the existing values
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("LINKPROBE_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("LINKPROBE_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("LINKPROBE_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Storage configuration
	if badgerPath := os.Getenv("LINKPROBE_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Logging configuration
	if level := os.Getenv("LINKPROBE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("LINKPROBE_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if dir := os.Getenv("LINKPROBE_LOG_DIR"); dir != "" {
		config.Logging.Dir = dir
	}
	if output := os.Getenv("LINKPROBE_LOG_OUTPUT"); output != "" {
		if outputs := splitList(output); len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Orchestrator configuration. BROWSER_WORKER_* are accepted for
	// deployments that already export them.
	if workerURL := firstEnv("LINKPROBE_WORKER_URL", "BROWSER_WORKER_URL"); workerURL != "" {
		config.Orchestrator.WorkerURL = workerURL
	}
	if token := firstEnv("LINKPROBE_WORKER_TOKEN", "BROWSER_WORKER_SECRET"); token != "" {
		config.Orchestrator.WorkerToken = token
	}
	if callTimeout := os.Getenv("LINKPROBE_CALL_TIMEOUT"); callTimeout != "" {
		config.Orchestrator.CallTimeout = callTimeout
	}
	if threshold := os.Getenv("LINKPROBE_STALE_THRESHOLD"); threshold != "" {
		config.Orchestrator.StaleThreshold = threshold
	}
	if schedule := os.Getenv("LINKPROBE_SWEEP_SCHEDULE"); schedule != "" {
		config.Orchestrator.SweepSchedule = schedule
	}
	if dispatchRate := os.Getenv("LINKPROBE_DISPATCH_RATE"); dispatchRate != "" {
		if r, err := strconv.ParseFloat(dispatchRate, 64); err == nil {
			config.Orchestrator.DispatchRate = r
		}
	}
	if adminToken := os.Getenv("LINKPROBE_ADMIN_TOKEN"); adminToken != "" {
		config.Orchestrator.AdminToken = adminToken
	}
	if welcome := os.Getenv("LINKPROBE_WELCOME_CREDITS"); welcome != "" {
		if w, err := strconv.Atoi(welcome); err == nil {
			config.Orchestrator.WelcomeCredits = w
		}
	}

	// Worker configuration
	if port := os.Getenv("LINKPROBE_WORKER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Worker.Port = p
		}
	}
	if host := os.Getenv("LINKPROBE_WORKER_HOST"); host != "" {
		config.Worker.Host = host
	}
	if secret := firstEnv("LINKPROBE_WORKER_SECRET", "BROWSER_WORKER_SECRET"); secret != "" {
		config.Worker.SharedSecret = secret
	}
	if timeout := os.Getenv("LINKPROBE_WORKER_EXECUTION_TIMEOUT"); timeout != "" {
		config.Worker.ExecutionTimeout = timeout
	}
	if timeout := os.Getenv("LINKPROBE_WORKER_NAVIGATION_TIMEOUT"); timeout != "" {
		config.Worker.NavigationTimeout = timeout
	}
	if maxSessions := os.Getenv("LINKPROBE_WORKER_MAX_SESSIONS"); maxSessions != "" {
		if m, err := strconv.Atoi(maxSessions); err == nil {
			config.Worker.MaxSessions = m
		}
	}
	if headless := os.Getenv("LINKPROBE_WORKER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Worker.Headless = h
		}
	}
	if noSandbox := os.Getenv("LINKPROBE_WORKER_NO_SANDBOX"); noSandbox != "" {
		if n, err := strconv.ParseBool(noSandbox); err == nil {
			config.Worker.NoSandbox = n
		}
	}
	if execPath := os.Getenv("LINKPROBE_WORKER_EXEC_PATH"); execPath != "" {
		config.Worker.ExecPath = execPath
	}

	// Rules configuration
	if rulesFile := os.Getenv("LINKPROBE_RULES_FILE"); rulesFile != "" {
		config.Rules.File = rulesFile
	}
}

// ApplyFlagOverrides applies command-line flag overrides to the orchestrator server
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ApplyWorkerFlagOverrides applies command-line flag overrides to the worker server
func ApplyWorkerFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Worker.Port = port
	}
	if host != "" {
		config.Worker.Host = host
	}
}

// Validate rejects settings that would leave a component unusable.
func (c *Config) Validate() error {
	if err := ValidateSchedule(c.Orchestrator.SweepSchedule); err != nil {
		return fmt.Errorf("orchestrator.sweep_schedule: %w", err)
	}
	if c.Orchestrator.WelcomeCredits < 0 {
		return fmt.Errorf("orchestrator.welcome_credits must not be negative")
	}
	if c.Orchestrator.DispatchRate < 0 {
		return fmt.Errorf("orchestrator.dispatch_rate must not be negative")
	}
	if c.Worker.MaxSessions < 0 {
		return fmt.Errorf("worker.max_sessions must not be negative")
	}
	return nil
}

// ValidateSchedule validates a cron expression. Descriptors such as
// "@every 5m" are accepted.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	return nil
}

// ParseDuration parses value, falling back when it is empty or invalid.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
