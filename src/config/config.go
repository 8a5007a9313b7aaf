package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/weavemesh/weave/src/common"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"

	// DefaultSqliteFile is the default name of the SQLite database file
	DefaultSqliteFile = "weave.db"

	// DefaultLogFile is the default name of the log file written when
	// file logging is enabled
	DefaultLogFile = "weave.log"
)

// Store backend names.
const (
	// InmemBackend keeps everything in memory; state is lost on restart.
	InmemBackend = "inmem"
	// BadgerBackend persists to a Badger key-value database.
	BadgerBackend = "badger"
	// SqliteBackend persists to a SQLite database.
	SqliteBackend = "sqlite"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultBackend          = BadgerBackend
	DefaultWorkers          = 4
	DefaultRetryBase        = 50 * time.Millisecond
	DefaultMaxRetryInterval = 10 * time.Second
)

// Config contains all the configuration properties of a Weave node.
type Config struct {
	// DataDir is the top-level directory containing Weave configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates log output to the given file.
	LogFile string `mapstructure:"log-file"`

	// Backend selects the store implementation: inmem, badger, or sqlite.
	Backend string `mapstructure:"backend"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// Workers is the size of the materialization worker pool. Work per
	// document is serialized; work across documents is parallel up to this
	// bound.
	Workers int `mapstructure:"workers"`

	// RetryBase is the initial backoff applied when a materialization run
	// fails on a storage error.
	RetryBase time.Duration `mapstructure:"retry-base"`

	// MaxRetryInterval caps the exponential retry backoff.
	MaxRetryInterval time.Duration `mapstructure:"max-retry-interval"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:          DefaultDataDir(),
		LogLevel:         DefaultLogLevel,
		Backend:          DefaultBackend,
		DatabaseDir:      DefaultDatabaseDir(),
		Workers:          DefaultWorkers,
		RetryBase:        DefaultRetryBase,
		MaxRetryInterval: DefaultMaxRetryInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Backend = InmemBackend
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level Weave directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// SqlitePath returns the full path of the SQLite database file.
func (c *Config) SqlitePath() string {
	return filepath.Join(c.DataDir, DefaultSqliteFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "weave".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				if level <= c.logger.Level {
					pathMap[level] = c.LogFile
				}
			}
			c.logger.Hooks.Add(lfshook.NewHook(
				pathMap,
				new(logrus.JSONFormatter),
			))
		}
	}
	return c.logger.WithField("prefix", "weave")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level Weave
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Weave")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Weave")
		} else {
			return filepath.Join(home, ".weave")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
