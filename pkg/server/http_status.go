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

// Package server runs the HTTP status endpoint of the metadata server:
// liveness, prometheus metrics and the rollup job listing.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pingcap/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/config"
	"github.com/stratumdb/stratum/pkg/ddl"
	"github.com/stratumdb/stratum/pkg/util"
	"github.com/stratumdb/stratum/pkg/util/logutil"
	"github.com/stratumdb/stratum/pkg/util/versioninfo"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// listUser is the identity job listing runs under when the request does not
// name one. The bootstrap grants it the wildcard alter privilege.
const listUser = "root"

// Server is the status HTTP server.
type Server struct {
	cfg        *config.Config
	ddl        ddl.DDL
	statusHTTP *http.Server
	listener   net.Listener
	startedAt  time.Time
	wg         util.WaitGroupWrapper
}

// NewServer builds the status server around the DDL facade. It does not
// listen until Start.
func NewServer(cfg *config.Config, d ddl.DDL) *Server {
	s := &Server{cfg: cfg, ddl: d, startedAt: time.Now()}
	router := mux.NewRouter()
	router.HandleFunc("/status", s.handleStatus)
	// HTTP path for prometheus.
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/ddl/jobs", s.handleListJobs)
	s.statusHTTP = &http.Server{Handler: router, ReadHeaderTimeout: shutdownTimeout}
	return s
}

// Start binds the configured status address and serves in the background
// until Close.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Status.StatusAddr())
	if err != nil {
		return errors.Trace(err)
	}
	s.listener = ln
	logutil.BgLogger().Info("status server listening", zap.String("addr", ln.Addr().String()))
	s.wg.Run(func() {
		if err := s.statusHTTP.Serve(ln); err != nil && !errors.ErrorEqual(err, http.ErrServerClosed) {
			logutil.BgLogger().Error("status server stopped", zap.Error(err))
		}
	})
	return nil
}

// Addr reports the bound listen address. It is only valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close drains in-flight requests and stops the server.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.statusHTTP.Shutdown(ctx)
	s.wg.Wait()
	return errors.Trace(err)
}

type status struct {
	ID        string `json:"id"`
	Version   string `json:"version"`
	GitHash   string `json:"git_hash"`
	StartedAt int64  `json:"started_at"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, status{
		ID:        s.ddl.GetID(),
		Version:   versioninfo.StratumVersion,
		GitHash:   versioninfo.GitHash,
		StartedAt: s.startedAt.Unix(),
	})
}

// jobRow is the JSON rendering of one rollup job listing row.
type jobRow struct {
	JobID           int64  `json:"job_id"`
	TableName       string `json:"table_name"`
	CreateTime      string `json:"create_time"`
	FinishTime      string `json:"finish_time,omitempty"`
	BaseIndexName   string `json:"base_index_name"`
	RollupIndexName string `json:"rollup_index_name"`
	State           string `json:"state"`
	Progress        string `json:"progress,omitempty"`
	Msg             string `json:"msg,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, req *http.Request) {
	db := req.URL.Query().Get("db")
	if db == "" {
		http.Error(w, "missing db parameter", http.StatusBadRequest)
		return
	}
	user := req.URL.Query().Get("user")
	if user == "" {
		user = listUser
	}
	rows, err := s.ddl.ListRollupJobs(req.Context(), user, db)
	if err != nil {
		code := http.StatusInternalServerError
		if catalog.ErrDatabaseNotExists.Equal(err) {
			code = http.StatusNotFound
		}
		http.Error(w, err.Error(), code)
		return
	}
	out := make([]jobRow, 0, len(rows))
	for _, r := range rows {
		jr := jobRow{
			JobID:           r.JobID,
			TableName:       r.TableName,
			CreateTime:      r.CreateTime.Format(time.DateTime),
			BaseIndexName:   r.BaseIndexName,
			RollupIndexName: r.RollupIndexName,
			State:           r.State,
			Progress:        r.Progress,
			Msg:             r.Msg,
		}
		if !r.FinishTime.IsZero() {
			jr.FinishTime = r.FinishTime.Format(time.DateTime)
		}
		out = append(out, jr)
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	js, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		logutil.BgLogger().Error("encode json error", zap.Error(err))
		return
	}
	_, _ = w.Write(js)
}
