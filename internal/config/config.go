// Package config loads notecore configuration from the environment, an
// optional .env file and a YAML file describing the sync adapters.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	apperrors "github.com/kimhsiao/notecore/internal/errors"
)

// Environment variables read by Load.
const (
	EnvDataDir        = "NOTECORE_DATA_DIR"
	EnvDBPath         = "NOTECORE_DB_PATH"
	EnvLogLevel       = "NOTECORE_LOG_LEVEL"
	EnvListenAddr     = "NOTECORE_LISTEN_ADDR"
	EnvSyncInterval   = "NOTECORE_SYNC_INTERVAL"
	EnvQueueInterval  = "NOTECORE_QUEUE_INTERVAL"
	EnvAllowedOrigins = "NOTECORE_ALLOWED_ORIGINS"
	EnvAdaptersFile   = "NOTECORE_ADAPTERS_FILE"
	EnvPeerToken      = "NOTECORE_PEER_TOKEN"
	EnvBackupDir      = "NOTECORE_BACKUP_DIR"
	EnvBackupInterval = "NOTECORE_BACKUP_INTERVAL"
	EnvBackupKeep     = "NOTECORE_BACKUP_KEEP"
	EnvBackupPassword = "NOTECORE_BACKUP_PASSWORD"
)

// Adapter types understood by the CLI.
const (
	AdapterMemory      = "memory"
	AdapterVault       = "vault"
	AdapterObjectStore = "objectstore"
	AdapterPostgres    = "postgres"
	AdapterHTTP        = "http"
)

// Config is the top-level configuration.
type Config struct {
	DataDir        string
	DBPath         string
	LogLevel       string
	ListenAddr     string
	SyncInterval   time.Duration
	QueueInterval  time.Duration
	AllowedOrigins []string
	AdaptersFile   string
	Adapters       []AdapterConfig
	// PeerToken, when set, guards the /api/sync replication endpoints.
	PeerToken string
	Backup    BackupConfig
}

// BackupConfig controls the periodic backups taken by the server.
type BackupConfig struct {
	// Dir defaults to backups inside DataDir.
	Dir string
	// Interval of zero disables periodic backups.
	Interval time.Duration
	Keep     int
	Password string
}

// AdapterConfig describes one sync adapter.
type AdapterConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`

	// vault
	Path  string `yaml:"path,omitempty"`
	Watch bool   `yaml:"watch,omitempty"`

	// postgres
	DSN string `yaml:"dsn,omitempty"`

	// http
	URL   string `yaml:"url,omitempty"`
	Token string `yaml:"token,omitempty"`

	// objectstore
	ObjectStore *ObjectStoreConfig `yaml:"objectstore,omitempty"`
}

// ObjectStoreConfig holds S3-compatible bucket settings.
type ObjectStoreConfig struct {
	Provider  string `yaml:"provider"` // aws, minio, r2 or s3
	Endpoint  string `yaml:"endpoint,omitempty"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region,omitempty"`
	AccountID string `yaml:"account_id,omitempty"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Prefix    string `yaml:"prefix,omitempty"`
	UseSSL    *bool  `yaml:"use_ssl,omitempty"`
}

type adaptersFile struct {
	Adapters []AdapterConfig `yaml:"adapters"`
}

// Default returns built-in defaults.
func Default() *Config {
	dataDir := ".notecore"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".notecore")
	}
	return &Config{
		DataDir:       dataDir,
		LogLevel:      "info",
		ListenAddr:    "127.0.0.1:8090",
		SyncInterval:  15 * time.Minute,
		QueueInterval: time.Minute,
		Backup:        BackupConfig{Keep: 7},
	}
}

// Load builds the configuration. envFile is loaded first when it exists;
// variables already set in the process environment take precedence over it.
// An empty envFile means ".env" in the working directory.
func Load(envFile string) (*Config, error) {
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "load env file "+envFile, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.AdaptersFile == "" {
		candidate := filepath.Join(cfg.DataDir, "adapters.yaml")
		if _, err := os.Stat(candidate); err == nil {
			cfg.AdaptersFile = candidate
		}
	}
	if cfg.AdaptersFile != "" {
		adapters, err := LoadAdapters(cfg.AdaptersFile)
		if err != nil {
			return nil, err
		}
		cfg.Adapters = adapters
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvListenAddr); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvAdaptersFile); v != "" {
		c.AdaptersFile = v
	}
	if v := os.Getenv(EnvPeerToken); v != "" {
		c.PeerToken = v
	}
	if v := os.Getenv(EnvBackupDir); v != "" {
		c.Backup.Dir = v
	}
	if v := os.Getenv(EnvBackupPassword); v != "" {
		c.Backup.Password = v
	}
	if v := os.Getenv(EnvBackupKeep); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: invalid count %q", EnvBackupKeep, v)
		}
		c.Backup.Keep = n
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		c.AllowedOrigins = splitList(v)
	}

	var err error
	if c.SyncInterval, err = envDuration(EnvSyncInterval, c.SyncInterval); err != nil {
		return err
	}
	if c.QueueInterval, err = envDuration(EnvQueueInterval, c.QueueInterval); err != nil {
		return err
	}
	if c.Backup.Interval, err = envDuration(EnvBackupInterval, c.Backup.Interval); err != nil {
		return err
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, apperrors.Newf(apperrors.ErrConfigInvalid, "%s: invalid duration %q", key, v)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// DatabasePath returns the SQLite file path: DBPath when set, otherwise
// notes.db inside DataDir.
func (c *Config) DatabasePath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.DataDir, "notes.db")
}

// BackupDir returns the directory periodic and default backups go to.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.DataDir, "backups")
}

// LoadAdapters reads adapter definitions from a YAML file. ${VAR} references
// are expanded from the environment before parsing.
func LoadAdapters(path string) ([]AdapterConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "read adapters file", err)
	}
	var f adaptersFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &f); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfigInvalid, "parse adapters file "+path, err)
	}
	return f.Adapters, nil
}

// Validate checks the configuration for missing or conflicting values.
func (c *Config) Validate() error {
	if c.DataDir == "" && c.DBPath == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "data dir or database path is required")
	}
	seen := make(map[string]bool, len(c.Adapters))
	for i, a := range c.Adapters {
		if err := a.Validate(); err != nil {
			return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf("adapter #%d", i+1), err)
		}
		if seen[a.Name] {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "duplicate adapter name %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// Validate checks that the fields required by the adapter type are set.
func (a AdapterConfig) Validate() error {
	if a.Name == "" {
		return apperrors.New(apperrors.ErrConfigInvalid, "name is required")
	}
	switch a.Type {
	case AdapterMemory:
	case AdapterVault:
		if a.Path == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: path is required", a.Name)
		}
	case AdapterPostgres:
		if a.DSN == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: dsn is required", a.Name)
		}
	case AdapterHTTP:
		if a.URL == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: url is required", a.Name)
		}
	case AdapterObjectStore:
		o := a.ObjectStore
		if o == nil || o.Bucket == "" || o.AccessKey == "" || o.SecretKey == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: objectstore bucket and credentials are required", a.Name)
		}
		switch o.Provider {
		case "aws", "minio", "s3":
		case "r2":
			if o.AccountID == "" {
				return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: r2 requires account_id", a.Name)
			}
		default:
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: unknown objectstore provider %q", a.Name, o.Provider)
		}
		if (o.Provider == "minio" || o.Provider == "s3") && o.Endpoint == "" {
			return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: %s requires endpoint", a.Name, o.Provider)
		}
	default:
		return apperrors.Newf(apperrors.ErrConfigInvalid, "%s: unknown adapter type %q", a.Name, a.Type)
	}
	return nil
}
