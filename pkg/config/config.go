// Copyright 2024 Stratum, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/util/logutil"
	atomicutil "go.uber.org/atomic"
)

// Config contains configuration options for the metadata server.
type Config struct {
	Log     Log     `toml:"log" json:"log"`
	DDL     DDL     `toml:"ddl" json:"ddl"`
	EditLog EditLog `toml:"edit-log" json:"edit-log"`
	Status  Status  `toml:"status" json:"status"`
}

// Log is the log section of config.
type Log struct {
	// Log level. One of debug, info, warn, error or fatal.
	Level string `toml:"level" json:"level"`
	// Log format, one of json or text.
	Format string `toml:"format" json:"format"`
	// Disable automatic timestamps in output.
	DisableTimestamp bool `toml:"disable-timestamp" json:"disable-timestamp"`
	// File log config.
	File logutil.FileLogConfig `toml:"file" json:"file"`
}

// ToLogConfig converts *Log to *logutil.LogConfig.
func (l *Log) ToLogConfig() *logutil.LogConfig {
	return logutil.NewLogConfig(l.Level, l.Format, l.File, l.DisableTimestamp)
}

// DDL is the ddl section of config: the pacing and retry budgets of the
// alter-job driver.
type DDL struct {
	// JobCheckInterval is how often the driver ticks live jobs.
	JobCheckInterval Duration `toml:"job-check-interval" json:"job-check-interval"`
	// JobTimeout bounds every alter job from creation to the terminal state.
	JobTimeout Duration `toml:"job-timeout" json:"job-timeout"`
	// MaxReplicaFailures is how many times one replica build may fail before
	// it cancels the whole job.
	MaxReplicaFailures int `toml:"max-replica-failures" json:"max-replica-failures"`
	// ClearTaskResendLimit is how many rounds of clear notifications are
	// resent before a finishing job gives up on the stragglers.
	ClearTaskResendLimit int `toml:"clear-task-resend-limit" json:"clear-task-resend-limit"`
}

// EditLog is the edit-log section of config.
type EditLog struct {
	// Dir is the directory holding the log store.
	Dir string `toml:"dir" json:"dir"`
	// NoSync disables the per-append fsync. Replayable test setups only.
	NoSync bool `toml:"no-sync" json:"no-sync"`
	// CacheSize bounds the store's block cache. Accepts human-readable
	// sizes like "128MB". Zero keeps the store's default.
	CacheSize ByteSize `toml:"cache-size" json:"cache-size"`
}

// Status is the status server section of config.
type Status struct {
	ReportStatus bool   `toml:"report-status" json:"report-status"`
	StatusHost   string `toml:"status-host" json:"status-host"`
	StatusPort   uint   `toml:"status-port" json:"status-port"`
}

// StatusAddr renders the listen address of the status server.
func (s *Status) StatusAddr() string {
	return fmt.Sprintf("%s:%d", s.StatusHost, s.StatusPort)
}

var defaultConf = Config{
	Log: Log{
		Level:  "info",
		Format: "text",
		File:   logutil.NewFileLogConfig(logutil.DefaultLogMaxSize),
	},
	DDL: DDL{
		JobCheckInterval:     Duration{time.Second},
		JobTimeout:           Duration{24 * time.Hour},
		MaxReplicaFailures:   3,
		ClearTaskResendLimit: 3,
	},
	EditLog: EditLog{
		Dir: "data/editlog",
	},
	Status: Status{
		ReportStatus: true,
		StatusHost:   "0.0.0.0",
		StatusPort:   10080,
	},
}

var globalConf atomicutil.Pointer[Config]

func init() {
	conf := defaultConf
	StoreGlobalConfig(&conf)
}

// NewConfig creates a new config instance with default value.
func NewConfig() *Config {
	conf := defaultConf
	return &conf
}

// GetGlobalConfig returns the global configuration for this server. It should
// store configuration from the command line and the configuration file. Other
// parts of the system read the global configuration through this function.
func GetGlobalConfig() *Config {
	return globalConf.Load()
}

// StoreGlobalConfig stores a new config to the globalConf.
func StoreGlobalConfig(config *Config) {
	globalConf.Store(config)
}

// ErrConfigValidationFailed is returned when the config file holds options
// this version does not know. Usually it means a typo in an option name.
type ErrConfigValidationFailed struct {
	ConfFile       string
	UndecodedItems []string
}

func (e *ErrConfigValidationFailed) Error() string {
	return fmt.Sprintf("config file %s contained unknown configuration options: %s",
		e.ConfFile, strings.Join(e.UndecodedItems, ", "))
}

// Load loads config options from a toml file. Unknown options are an error,
// not a warning.
func (c *Config) Load(confFile string) error {
	metaData, err := toml.DecodeFile(confFile, c)
	if err != nil {
		return errors.Trace(err)
	}
	if undecoded := metaData.Undecoded(); len(undecoded) > 0 {
		items := make([]string, 0, len(undecoded))
		for _, item := range undecoded {
			items = append(items, item.String())
		}
		return &ErrConfigValidationFailed{ConfFile: confFile, UndecodedItems: items}
	}
	return nil
}

// Valid checks whether the config stands.
func (c *Config) Valid() error {
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return errors.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return errors.Errorf("invalid log format %q", c.Log.Format)
	}
	if c.DDL.JobCheckInterval.Duration <= 0 {
		return errors.Errorf("ddl.job-check-interval must be positive, got %s", c.DDL.JobCheckInterval)
	}
	if c.DDL.JobTimeout.Duration <= 0 {
		return errors.Errorf("ddl.job-timeout must be positive, got %s", c.DDL.JobTimeout)
	}
	if c.DDL.MaxReplicaFailures <= 0 {
		return errors.Errorf("ddl.max-replica-failures must be positive, got %d", c.DDL.MaxReplicaFailures)
	}
	if c.DDL.ClearTaskResendLimit < 0 {
		return errors.Errorf("ddl.clear-task-resend-limit must not be negative, got %d", c.DDL.ClearTaskResendLimit)
	}
	if c.EditLog.Dir == "" {
		return errors.New("edit-log.dir must not be empty")
	}
	if c.EditLog.CacheSize < 0 {
		return errors.Errorf("edit-log.cache-size must not be negative, got %d", c.EditLog.CacheSize)
	}
	if c.Status.StatusPort > 65535 {
		return errors.Errorf("status.status-port %d is out of range", c.Status.StatusPort)
	}
	return nil
}
