package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid" json:"appid"`
	Location string `yaml:"location" json:"location"`
	Workdir  string `yaml:"workdir" json:"workdir"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WebConfig admin api configuration
type WebConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	JwtSecret string `yaml:"jwt_secret" json:"jwt_secret"`
}

// DBConfig persistence configuration. Type is "bolt" (default) or "postgres".
type DBConfig struct {
	Type     string `yaml:"type" json:"type"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Name     string `yaml:"name" json:"name"`
	User     string `yaml:"user" json:"user"`
	Passwd   string `yaml:"passwd" json:"passwd"`
	MaxConn  int    `yaml:"max_conn" json:"max_conn"`
	IdleConn int    `yaml:"idle_conn" json:"idle_conn"`
	BoltFile string `yaml:"bolt_file" json:"bolt_file"`
	Debug    bool   `yaml:"debug" json:"debug"`
}

// WhatsAppConfig messaging engine configuration
type WhatsAppConfig struct {
	// StoreDir holds one sqlite device store per tenant.
	StoreDir         string        `yaml:"store_dir" json:"store_dir"`
	LogLevel         string        `yaml:"log_level" json:"log_level"`
	HistoryWait      time.Duration `yaml:"history_wait" json:"history_wait"`
	ChallengeTimeout time.Duration `yaml:"challenge_timeout" json:"challenge_timeout"`
	PendingTTL       time.Duration `yaml:"pending_ttl" json:"pending_ttl"`
	ReapInterval     time.Duration `yaml:"reap_interval" json:"reap_interval"`
}

// ExportConfig export pipeline defaults
type ExportConfig struct {
	MaxChats           int `yaml:"max_chats" json:"max_chats"`
	MaxMessagesPerChat int `yaml:"max_messages_per_chat" json:"max_messages_per_chat"`
	BatchSize          int `yaml:"batch_size" json:"batch_size"`
	Workers            int `yaml:"workers" json:"workers"`
}

// LLMConfig chat completion endpoint configuration
type LLMConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`
	ApiKey         string        `yaml:"api_key" json:"api_key"`
	Model          string        `yaml:"model" json:"model"`
	Temperature    float64       `yaml:"temperature" json:"temperature"`
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
	MaxConcurrency int64         `yaml:"max_concurrency" json:"max_concurrency"`
}

// LogConfig logging configuration
type LogConfig struct {
	Mode       string `yaml:"mode" json:"mode"`
	FileEnable bool   `yaml:"file_enable" json:"file_enable"`
	Filename   string `yaml:"filename" json:"filename"`
}

type AppConfig struct {
	System   SysConfig      `yaml:"system" json:"system"`
	Web      WebConfig      `yaml:"web" json:"web"`
	Database DBConfig       `yaml:"database" json:"database"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp" json:"whatsapp"`
	Export   ExportConfig   `yaml:"export" json:"export"`
	LLM      LLMConfig      `yaml:"llm" json:"llm"`
	Logger   LogConfig      `yaml:"logger" json:"logger"`
}

func (c *AppConfig) GetDataDir() string {
	return filepath.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetLogDir() string {
	return filepath.Join(c.System.Workdir, "logs")
}

// GetBoltFile returns the bolt database path, relative paths resolve under the data dir.
func (c *AppConfig) GetBoltFile() string {
	if filepath.IsAbs(c.Database.BoltFile) {
		return c.Database.BoltFile
	}
	return filepath.Join(c.GetDataDir(), c.Database.BoltFile)
}

// GetStoreDir returns the whatsmeow device store directory.
func (c *AppConfig) GetStoreDir() string {
	if filepath.IsAbs(c.WhatsApp.StoreDir) {
		return c.WhatsApp.StoreDir
	}
	return filepath.Join(c.GetDataDir(), c.WhatsApp.StoreDir)
}

func (c *AppConfig) initDirs() error {
	for _, dir := range []string{c.GetDataDir(), c.GetLogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create dir %s", dir)
		}
	}
	return nil
}

// DefaultAppConfig returns the built-in configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "WaCRM",
			Location: "America/Mexico_City",
			Workdir:  "/var/wacrm",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Database: DBConfig{
			Type:     "bolt",
			Host:     "127.0.0.1",
			Port:     5432,
			Name:     "wacrm",
			User:     "postgres",
			Passwd:   "postgres",
			MaxConn:  50,
			IdleConn: 5,
			BoltFile: "wacrm.db",
		},
		WhatsApp: WhatsAppConfig{
			StoreDir:         "whatsmeow",
			LogLevel:         "WARN",
			HistoryWait:      30 * time.Second,
			ChallengeTimeout: 60 * time.Second,
			PendingTTL:       5 * time.Minute,
			ReapInterval:     time.Minute,
		},
		Export: ExportConfig{
			MaxChats:           20,
			MaxMessagesPerChat: 1000,
			BatchSize:          100,
			Workers:            8,
		},
		LLM: LLMConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          "gpt-4o-mini",
			Temperature:    0.2,
			MaxTokens:      600,
			Timeout:        60 * time.Second,
			MaxConcurrency: 4,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/wacrm/logs/wacrm.log",
		},
	}
}

// LoadConfig reads the YAML file at cfile (when it exists) on top of the
// defaults and then applies WACRM_* environment overrides.
func LoadConfig(cfile string) (*AppConfig, error) {
	cfg := DefaultAppConfig()
	if cfile != "" {
		data, err := os.ReadFile(cfile)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", cfile)
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
	}
	applyEnv(cfg)
	if err := cfg.initDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setEnvString(name string, v *string) {
	if s, ok := os.LookupEnv(name); ok && strings.TrimSpace(s) != "" {
		*v = strings.TrimSpace(s)
	}
}

func setEnvInt(name string, v *int) {
	if s, ok := os.LookupEnv(name); ok {
		if n, err := cast.ToIntE(strings.TrimSpace(s)); err == nil {
			*v = n
		}
	}
}

func setEnvInt64(name string, v *int64) {
	if s, ok := os.LookupEnv(name); ok {
		if n, err := cast.ToInt64E(strings.TrimSpace(s)); err == nil {
			*v = n
		}
	}
}

func setEnvFloat(name string, v *float64) {
	if s, ok := os.LookupEnv(name); ok {
		if n, err := cast.ToFloat64E(strings.TrimSpace(s)); err == nil {
			*v = n
		}
	}
}

func setEnvBool(name string, v *bool) {
	if s, ok := os.LookupEnv(name); ok {
		if b, err := cast.ToBoolE(strings.TrimSpace(s)); err == nil {
			*v = b
		}
	}
}

func setEnvDuration(name string, v *time.Duration) {
	if s, ok := os.LookupEnv(name); ok {
		if d, err := cast.ToDurationE(strings.TrimSpace(s)); err == nil {
			*v = d
		}
	}
}

func applyEnv(cfg *AppConfig) {
	setEnvString("WACRM_SYSTEM_WORKER_DIR", &cfg.System.Workdir)
	setEnvString("WACRM_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBool("WACRM_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvString("WACRM_WEB_HOST", &cfg.Web.Host)
	setEnvInt("WACRM_WEB_PORT", &cfg.Web.Port)
	setEnvString("WACRM_WEB_JWT_SECRET", &cfg.Web.JwtSecret)

	setEnvString("WACRM_DB_TYPE", &cfg.Database.Type)
	setEnvString("WACRM_DB_HOST", &cfg.Database.Host)
	setEnvInt("WACRM_DB_PORT", &cfg.Database.Port)
	setEnvString("WACRM_DB_NAME", &cfg.Database.Name)
	setEnvString("WACRM_DB_USER", &cfg.Database.User)
	setEnvString("WACRM_DB_PWD", &cfg.Database.Passwd)
	setEnvString("WACRM_DB_BOLT_FILE", &cfg.Database.BoltFile)
	setEnvBool("WACRM_DB_DEBUG", &cfg.Database.Debug)

	setEnvString("WACRM_WA_STORE_DIR", &cfg.WhatsApp.StoreDir)
	setEnvString("WACRM_WA_LOG_LEVEL", &cfg.WhatsApp.LogLevel)
	setEnvDuration("WACRM_WA_HISTORY_WAIT", &cfg.WhatsApp.HistoryWait)
	setEnvDuration("WACRM_WA_CHALLENGE_TIMEOUT", &cfg.WhatsApp.ChallengeTimeout)
	setEnvDuration("WACRM_WA_PENDING_TTL", &cfg.WhatsApp.PendingTTL)
	setEnvDuration("WACRM_WA_REAP_INTERVAL", &cfg.WhatsApp.ReapInterval)

	setEnvInt("WACRM_EXPORT_MAX_CHATS", &cfg.Export.MaxChats)
	setEnvInt("WACRM_EXPORT_MAX_MESSAGES", &cfg.Export.MaxMessagesPerChat)
	setEnvInt("WACRM_EXPORT_WORKERS", &cfg.Export.Workers)

	setEnvString("WACRM_LLM_BASE_URL", &cfg.LLM.BaseURL)
	setEnvString("WACRM_LLM_API_KEY", &cfg.LLM.ApiKey)
	setEnvString("WACRM_LLM_MODEL", &cfg.LLM.Model)
	setEnvFloat("WACRM_LLM_TEMPERATURE", &cfg.LLM.Temperature)
	setEnvInt("WACRM_LLM_MAX_TOKENS", &cfg.LLM.MaxTokens)
	setEnvDuration("WACRM_LLM_TIMEOUT", &cfg.LLM.Timeout)
	setEnvInt64("WACRM_LLM_MAX_CONCURRENCY", &cfg.LLM.MaxConcurrency)

	setEnvString("WACRM_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBool("WACRM_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvString("WACRM_LOGGER_FILENAME", &cfg.Logger.Filename)
}
