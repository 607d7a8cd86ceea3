package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"cortexa-go/internal/battery"
	"cortexa-go/internal/speech"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// current holds the application configuration. Reloads swap the whole value.
var current atomic.Pointer[Config]

// Get returns the configuration loaded by Init or the latest reload. Callers must not
// modify it.
func Get() *Config {
	return current.Load()
}

// Config struct is the top-level configuration structure.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Battery  BatteryConfig  `mapstructure:"battery"`
}

// ServerConfig holds server-related settings.
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	SessionSecret string        `mapstructure:"session_secret"`
	SecureCookies bool          `mapstructure:"secure_cookies"`
	RunTTL        time.Duration `mapstructure:"run_ttl"`
	ReapInterval  time.Duration `mapstructure:"reap_interval"`
	CreateLimit   uint          `mapstructure:"create_limit"` // runs per client per minute
}

// DatabaseConfig holds database connection settings. Driver is "postgres" or "sqlite";
// Path is only used by sqlite.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	Path     string `mapstructure:"path"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	Directory  string `mapstructure:"directory"`
	Level      string `mapstructure:"level"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// BackendConfig points at the risk scoring service.
type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BatteryConfig tunes the tests. Durations are given in whole units to keep the yaml readable.
type BatteryConfig struct {
	ContentFile           string `mapstructure:"content_file"`
	MemoryStudySeconds    int    `mapstructure:"memory_study_seconds"`
	ReactionRounds        int    `mapstructure:"reaction_rounds"`
	ReactionMinDelayMs    int    `mapstructure:"reaction_min_delay_ms"`
	ReactionMaxDelayMs    int    `mapstructure:"reaction_max_delay_ms"`
	ReactionPauseMs       int    `mapstructure:"reaction_pause_ms"`
	PuzzleRounds          int    `mapstructure:"puzzle_rounds"`
	PuzzleAdvanceDelayMs  int    `mapstructure:"puzzle_advance_delay_ms"`
	SpeechWindowSeconds   int    `mapstructure:"speech_window_seconds"`
	SpeechMaxRestarts     int    `mapstructure:"speech_max_restarts"`
	SpeechRestartDelayMs  int    `mapstructure:"speech_restart_delay_ms"`
	SpeechGraceMs         int    `mapstructure:"speech_grace_ms"`
	SpeechLanguage        string `mapstructure:"speech_language"`
	SpeechMaxAlternatives int    `mapstructure:"speech_max_alternatives"`
}

// Tests overlays the timing settings onto base, which usually comes from the content file.
func (b BatteryConfig) Tests(base battery.Config) battery.Config {
	if b.MemoryStudySeconds > 0 {
		base.Memory.StudyDuration = time.Duration(b.MemoryStudySeconds) * time.Second
	}
	if b.ReactionRounds > 0 {
		base.Reaction.Rounds = b.ReactionRounds
	}
	if b.ReactionMinDelayMs > 0 {
		base.Reaction.MinDelay = ms(b.ReactionMinDelayMs)
	}
	if b.ReactionMaxDelayMs > 0 {
		base.Reaction.MaxDelay = ms(b.ReactionMaxDelayMs)
	}
	if base.Reaction.MaxDelay < base.Reaction.MinDelay {
		base.Reaction.MaxDelay = base.Reaction.MinDelay
	}
	if b.ReactionPauseMs > 0 {
		base.Reaction.Pause = ms(b.ReactionPauseMs)
	}
	if b.PuzzleRounds > 0 {
		base.Puzzle.Rounds = b.PuzzleRounds
	}
	if b.PuzzleAdvanceDelayMs > 0 {
		base.Puzzle.AdvanceDelay = ms(b.PuzzleAdvanceDelayMs)
	}
	return base
}

// Capture converts the speech settings. Zero values are left for the capture defaults.
func (b BatteryConfig) Capture() speech.CaptureOptions {
	return speech.CaptureOptions{
		Window:          time.Duration(b.SpeechWindowSeconds) * time.Second,
		MaxRestarts:     b.SpeechMaxRestarts,
		RestartDelay:    ms(b.SpeechRestartDelayMs),
		Grace:           ms(b.SpeechGraceMs),
		Language:        b.SpeechLanguage,
		MaxAlternatives: b.SpeechMaxAlternatives,
	}
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.run_ttl", "30m")
	v.SetDefault("server.reap_interval", "1m")
	v.SetDefault("server.create_limit", 10)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "db")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "user")
	v.SetDefault("database.password", "password")
	v.SetDefault("database.dbname", "cortexa-db")
	v.SetDefault("database.path", "cortexa.db")

	// Logging defaults
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "debug")
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs

	v.SetDefault("backend.url", "http://localhost:5000")
	v.SetDefault("backend.timeout", "30s")

	// Battery defaults match the stock content file.
	v.SetDefault("battery.content_file", "config/battery.yaml")
	v.SetDefault("battery.memory_study_seconds", 30)
	v.SetDefault("battery.reaction_rounds", 5)
	v.SetDefault("battery.reaction_min_delay_ms", 2000)
	v.SetDefault("battery.reaction_max_delay_ms", 5000)
	v.SetDefault("battery.reaction_pause_ms", 2000)
	v.SetDefault("battery.puzzle_rounds", 3)
	v.SetDefault("battery.puzzle_advance_delay_ms", 1000)
	v.SetDefault("battery.speech_window_seconds", 60)
	v.SetDefault("battery.speech_max_restarts", 50)
	v.SetDefault("battery.speech_restart_delay_ms", 50)
	v.SetDefault("battery.speech_grace_ms", 500)
	v.SetDefault("battery.speech_language", "en-US")
	v.SetDefault("battery.speech_max_alternatives", 3)
}

// Load reads the configuration without touching the global and without a watch.
func Load(projectRoot string) (*Config, *viper.Viper, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("CORTEXA") // e.g., CORTEXA_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		return nil, nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	return &conf, v, nil
}

// Init loads the configuration and makes it available through Get. The logger is not available yet at this point
// in startup, so hot reload is enabled separately by Watch.
func Init(projectRoot string) (*viper.Viper, error) {
	conf, v, err := Load(projectRoot)
	if err != nil {
		return nil, err
	}
	current.Store(conf)
	return v, nil
}

// Watch reloads the configuration whenever the config file changes. Settings read at
// startup (port, database, log files) keep their original values; battery timings apply
// to new runs.
func Watch(v *viper.Viper, log *zap.Logger) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		reload(v, log)
	})
}

// reload keeps the previous configuration when the new one cannot be decoded.
func reload(v *viper.Viper, log *zap.Logger) bool {
	var conf Config
	if err := v.Unmarshal(&conf); err != nil {
		log.Error("Error reloading configuration", zap.Error(err))
		return false
	}
	current.Store(&conf)
	return true
}
