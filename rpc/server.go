// Package rpc serves a finished run's archive over HTTP for offline
// inspection. It is an analysis convenience on top of the record stream;
// the simulated network itself never leaves process memory.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/tamaroning/blockchain-sim/logger"
	"github.com/tamaroning/blockchain-sim/stats"
)

const defaultPageSize = 256

type Config struct {
	Host string
	Port int
}

// Server exposes the archived block records and the run summary.
type Server struct {
	config  *Config
	archive *stats.Archive
	server  *http.Server
}

func NewServer(config *Config, archive *stats.Archive) *Server {
	return &Server{
		config:  config,
		archive: archive,
	}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive the API without binding a port.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/summary", s.handleSummary).Methods("GET")
	router.HandleFunc("/blocks", s.handleBlocks).Methods("GET")
	router.HandleFunc("/blocks/{hash}", s.handleBlock).Methods("GET")
	return router
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	logger.Infof("Results explorer listening on %s", addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.archive.Summary()
	if errors.Is(err, stats.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no summary stored; the run may not have finished")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, summary)
}

// handleBlocks pages through records in emission order:
// /blocks?start=<seq>&limit=<n>.
func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	start := uint64(0)
	limit := uint64(defaultPageSize)
	if v := r.URL.Query().Get("start"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start")
			return
		}
		start = parsed
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil || parsed == 0 || parsed > 10000 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	records, err := s.archive.Range(start, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"start":   start,
		"count":   len(records),
		"total":   s.archive.Len(),
		"records": records,
	})
}

func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["hash"]
	if len(common.FromHex(raw)) != common.HashLength {
		writeError(w, http.StatusBadRequest, "invalid block hash")
		return
	}
	record, err := s.archive.RecordByHash(common.HexToHash(raw))
	if errors.Is(err, stats.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown block")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, record)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("rpc: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
