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

// Command stratum-meta runs the metadata server: it replays the edit log
// into an in-memory catalog, drives alter jobs against the storage nodes and
// serves the status HTTP endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/ddl"
	"github.com/stratumdb/stratum/pkg/editlog"
	"github.com/stratumdb/stratum/pkg/meta/autoid"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/privilege"
	"github.com/stratumdb/stratum/pkg/server"
	"github.com/stratumdb/stratum/pkg/txn"
	"github.com/stratumdb/stratum/pkg/util/dbterror"
	"github.com/stratumdb/stratum/pkg/util/logutil"
	"github.com/stratumdb/stratum/pkg/util/versioninfo"
	"go.uber.org/zap"
)

// Flag Names
const (
	nmVersion     = "V"
	nmConfig      = "config"
	nmConfigCheck = "config-check"
	nmLogLevel    = "L"
	nmLogFile     = "log-file"
	nmEditLogDir  = "path"
	nmStatusHost  = "status-host"
	nmStatusPort  = "status"
)

var (
	version     = flagBoolean(nmVersion, false, "print version information and exit")
	configPath  = flag.String(nmConfig, "", "config file path")
	configCheck = flagBoolean(nmConfigCheck, false, "check config file validity and exit")

	logLevel   = flag.String(nmLogLevel, "info", "log level: debug, info, warn, error, fatal")
	logFile    = flag.String(nmLogFile, "", "log file path")
	editLogDir = flag.String(nmEditLogDir, "data/editlog", "the edit log directory")
	statusHost = flag.String(nmStatusHost, "0.0.0.0", "the status server host")
	statusPort = flag.Uint(nmStatusPort, 10080, "the status server port")
)

func main() {
	flag.Parse()
	if *version {
		fmt.Println("Release Version:", versioninfo.StratumVersion)
		fmt.Println("Git Commit Hash:", versioninfo.GitHash)
		fmt.Println("Git Branch:", versioninfo.GitBranch)
		fmt.Println("UTC Build Time:", versioninfo.BuildTS)
		os.Exit(0)
	}

	cfg := loadConfig()
	err := logutil.InitLogger(cfg.Log.ToLogConfig())
	dbterror.MustNil(err)
	printInfo()

	metrics.RegisterMetrics(prometheus.DefaultRegisterer)

	store, err := editlog.Open(cfg.EditLog.Dir, &editlog.Options{
		NoSync:    cfg.EditLog.NoSync,
		CacheSize: int64(cfg.EditLog.CacheSize),
	})
	dbterror.MustNil(err)
	closeStore := func() {
		if err := store.Close(); err != nil {
			logutil.BgLogger().Error("close edit log failed", zap.Error(err))
		}
	}

	cat := catalog.New()
	tasks := backend.NewTaskTable()
	checker := privilege.NewStaticChecker()
	checker.Grant("root", privilege.Wildcard, privilege.Wildcard, privilege.AlterPriv)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := ddl.NewDDL(ctx,
		ddl.WithCatalog(cat),
		ddl.WithEditLog(store),
		ddl.WithIDAllocator(autoid.NewAllocator(store)),
		ddl.WithTxnTracker(txn.NewTracker()),
		ddl.WithDispatcher(backend.NewDispatcher(backend.NewRegistry(), tasks)),
		ddl.WithTaskTable(tasks),
		ddl.WithPrivChecker(checker),
		ddl.WithJobCheckInterval(cfg.DDL.JobCheckInterval.Duration),
		ddl.WithJobTimeout(cfg.DDL.JobTimeout.Duration),
		ddl.WithMaxReplicaFailures(cfg.DDL.MaxReplicaFailures),
		ddl.WithClearTaskResendLimit(cfg.DDL.ClearTaskResendLimit),
	)

	err = store.Replay(d.Replayer(false))
	dbterror.MustNil(err, closeStore)
	logutil.BgLogger().Info("edit log replayed", zap.Int64("lastSeq", store.LastSeq()))

	err = d.Start()
	dbterror.MustNil(err, closeStore)

	var statusServer *server.Server
	if cfg.Status.ReportStatus {
		statusServer = server.NewServer(cfg, d)
		err = statusServer.Start()
		dbterror.MustNil(err, func() { stopDDL(d) }, closeStore)
	}

	sig := waitForSignal()
	logutil.BgLogger().Info("got signal to exit", zap.Stringer("signal", sig))

	if statusServer != nil {
		if err := statusServer.Close(); err != nil {
			logutil.BgLogger().Error("close status server failed", zap.Error(err))
		}
	}
	stopDDL(d)
	closeStore()
}

func loadConfig() *config.Config {
	cfg := config.NewConfig()
	if *configPath != "" {
		err := cfg.Load(*configPath)
		dbterror.MustNil(err)
	}
	overrideConfig(cfg)
	err := cfg.Valid()
	dbterror.MustNil(err)
	if *configCheck {
		fmt.Println("config check successful")
		os.Exit(0)
	}
	config.StoreGlobalConfig(cfg)
	return cfg
}

// overrideConfig considers the command arguments and overrides the config.
// Only flags actually present on the command line win over the file.
func overrideConfig(cfg *config.Config) {
	actualFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		actualFlags[f.Name] = true
	})

	if actualFlags[nmLogLevel] {
		cfg.Log.Level = *logLevel
	}
	if actualFlags[nmLogFile] {
		cfg.Log.File.Filename = *logFile
	}
	if actualFlags[nmEditLogDir] {
		cfg.EditLog.Dir = *editLogDir
	}
	if actualFlags[nmStatusHost] {
		cfg.Status.StatusHost = *statusHost
	}
	if actualFlags[nmStatusPort] {
		cfg.Status.StatusPort = *statusPort
	}
}

// printInfo prints the server version information.
func printInfo() {
	logutil.BgLogger().Info("Welcome to Stratum.",
		zap.String("Release Version", versioninfo.StratumVersion),
		zap.String("Git Commit Hash", versioninfo.GitHash),
		zap.String("Git Branch", versioninfo.GitBranch),
		zap.String("UTC Build Time", versioninfo.BuildTS))
}

func stopDDL(d ddl.DDL) {
	if err := d.Stop(); err != nil {
		logutil.BgLogger().Error("stop ddl failed", zap.Error(err))
	}
}

func waitForSignal() os.Signal {
	sc := make(chan os.Signal, 1)
	signal.Notify(sc,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)
	return <-sc
}

// flagBoolean creates a boolean flag. The flag package hides a false default
// in the usage text, so it is appended here.
func flagBoolean(name string, defaultVal bool, usage string) *bool {
	if !defaultVal {
		usage = fmt.Sprintf("%s (default false)", usage)
		return flag.Bool(name, defaultVal, usage)
	}
	return flag.Bool(name, defaultVal, usage)
}
