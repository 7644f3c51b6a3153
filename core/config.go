package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Session storage backends
const (
	SessionBackendCookie   = "cookie"
	SessionBackendMemory   = "memory"
	SessionBackendRedis    = "redis"
	SessionBackendPostgres = "postgres"
)

type (
	APIConfig struct {
		URL     string // backend origin, without the /api/v1 prefix
		Timeout time.Duration
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	SessionConfig struct {
		Backend    string
		Secret     string
		CookieName string
		MaxAge     int // seconds
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	DatabaseConfig struct {
		URL   string
		Table string
	}

	CLIConfig struct {
		StateDir string
	}

	Config struct {
		Env          string
		Debug        bool
		TestMode     bool
		AppName      string
		Build        string
		RollbarToken string
		API          APIConfig
		Server       ServerConfig
		Session      SessionConfig
		Redis        RedisConfig
		Database     DatabaseConfig
		CLI          CLIConfig
	}
)

// BaseURL is the root every backend call is made against.
func (c APIConfig) BaseURL() string {
	return strings.TrimRight(c.URL, "/") + "/api/v1"
}

// NewConfig loads the configuration from the environment (and `config/.env.<env>` if present).
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Masomo")
	conf.SetDefault("build", "dev")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("api_url", "http://localhost:8000")
	conf.SetDefault("api_timeout", 30*time.Second)
	conf.SetDefault("server_address", ":8080")
	conf.SetDefault("server_host", "localhost")
	conf.SetDefault("server_debugHost", "localhost:4000")
	conf.SetDefault("server_shutdownTimeout", 5*time.Second)
	conf.SetDefault("session_backend", SessionBackendCookie)
	conf.SetDefault("session_secret", "c7a9-1f)e2b$+81=pq&uoxh2(k!x)#*d4(#ye4h^$cegm9zrt")
	conf.SetDefault("session_cookie", "masomo_session")
	conf.SetDefault("session_maxAge", 7*24*60*60)
	conf.SetDefault("redis_addr", "localhost:6379")
	conf.SetDefault("redis_password", "")
	conf.SetDefault("redis_db", 0)
	conf.SetDefault("database_url", "postgres://localhost:5432/masomo?sslmode=disable")
	conf.SetDefault("database_table", "portal_storage")
	conf.SetDefault("cli_stateDir", defaultStateDir())

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	case "PROD":
		conf.SetDefault("debug", false)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if root, ok := projectRoot(); ok {
		dotEnvPath := filepath.Join(root, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	conf.AutomaticEnv()

	return &Config{
		Env:          strings.ToLower(env),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		RollbarToken: conf.GetString("rollbarToken"),
		API: APIConfig{
			URL:     conf.GetString("api_url"),
			Timeout: conf.GetDuration("api_timeout"),
		},
		Server: ServerConfig{
			Address:         conf.GetString("server_address"),
			Host:            conf.GetString("server_host"),
			DebugHost:       conf.GetString("server_debugHost"),
			ShutdownTimeout: conf.GetDuration("server_shutdownTimeout"),
		},
		Session: SessionConfig{
			Backend:    CleanString(conf.GetString("session_backend"), true),
			Secret:     conf.GetString("session_secret"),
			CookieName: conf.GetString("session_cookie"),
			MaxAge:     conf.GetInt("session_maxAge"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redis_addr"),
			Password: conf.GetString("redis_password"),
			DB:       conf.GetInt("redis_db"),
		},
		Database: DatabaseConfig{
			URL:   conf.GetString("database_url"),
			Table: conf.GetString("database_table"),
		},
		CLI: CLIConfig{
			StateDir: conf.GetString("cli_stateDir"),
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".masomo"
	}
	return filepath.Join(home, ".masomo")
}

// projectRoot walks up from the working directory until it finds the module's go.mod.
// go-test changes the working directory to the package being tested, so the .env lookup can't be relative.
func projectRoot() (string, bool) {
	wd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir, true
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return "", false
		}
		currDir = newDir
	}
}
