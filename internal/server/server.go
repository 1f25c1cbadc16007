// Package server is the scheduler's status API: health, the last run, and a way
// to ask for a run now instead of waiting out the pause.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	statusv1 "github.com/jdholdren/satelit/api/status/v1"
	"github.com/jdholdren/satelit/internal/blocking"
	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/runloop"
	"github.com/jdholdren/satelit/internal/satelit"
	"github.com/jdholdren/satelit/internal/serverutil"
)

type (
	// Runner is whatever drives the plan: the run loop, or the Temporal worker.
	Runner interface {
		Wake() bool
		Status() runloop.Status
	}

	Pinger interface {
		Ping(ctx context.Context) error
	}

	Config struct {
		Port   int
		Driver string
	}

	// Server is the HTTP portion serving the status API.
	Server struct {
		*http.Server

		driver  string
		runner  Runner
		db      Pinger
		indexes satelit.IndexFileRepo
		failed  satelit.FailedImportRepo
		pool    *blocking.Pool
	}
)

func New(cfg Config, runner Runner, db Pinger, indexes satelit.IndexFileRepo, failed satelit.FailedImportRepo, pool *blocking.Pool) *Server {
	r := serverutil.ErrRouter{Router: mux.NewRouter()}
	srvr := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
			Handler:      handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(r),
		},
		driver:  cfg.Driver,
		runner:  runner,
		db:      db,
		indexes: indexes,
		failed:  failed,
		pool:    pool,
	}

	r.Use(serverutil.AccessLogMiddleware) // Log everything
	r.HandleFuncE("/healthz", srvr.getHealth).Methods(http.MethodGet)
	r.HandleFuncE("/v1/status", srvr.getStatus).Methods(http.MethodGet)
	r.HandleFuncE("/v1/runs", srvr.postRun).Methods(http.MethodPost)
	r.HandleFuncE("/v1/sources/{source}/index-files/latest", srvr.getLatestIndexFile).Methods(http.MethodGet)
	r.HandleFuncE("/v1/sources/{source}/failed-imports/active", srvr.getActiveFailedImport).Methods(http.MethodGet)

	return srvr
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := blocking.Exec(ctx, s.pool, "server.getHealth", s.db.Ping); err != nil {
		return err
	}

	return serverutil.WriteJSON(w, http.StatusOK, statusv1.Health{Status: "ok"})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) error {
	st := s.runner.Status()

	resp := statusv1.Status{
		Driver:     s.driver,
		Running:    st.Running,
		Runs:       st.Runs,
		StartedAt:  timePtr(st.StartedAt),
		FinishedAt: timePtr(st.FinishedAt),
		More:       st.More,
		NextRunAt:  timePtr(st.NextRunAt),
	}
	if st.Err != nil {
		resp.Error = &statusv1.RunError{
			Kind:    saterrs.KindOf(st.Err).String(),
			Message: st.Err.Error(),
		}
	}

	return serverutil.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) postRun(w http.ResponseWriter, r *http.Request) error {
	req, err := serverutil.DecodeValid[statusv1.CreateRunRequest](r.Body)
	if err != nil {
		return err
	}

	queued := s.runner.Wake()
	slog.Info("run requested", "reason", req.Reason, "queued", queued)

	return serverutil.WriteJSON(w, http.StatusAccepted, statusv1.CreateRunResponse{Queued: queued})
}

func (s *Server) getLatestIndexFile(w http.ResponseWriter, r *http.Request) error {
	const op saterrs.Op = "server.getLatestIndexFile"

	src, err := sourceVar(r)
	if err != nil {
		return saterrs.E(op, err)
	}

	f, err := blocking.Do(r.Context(), s.pool, op, func(ctx context.Context) (*satelit.IndexFile, error) {
		return s.indexes.Latest(ctx, src)
	})
	if err != nil {
		return err
	}
	if f == nil {
		return saterrs.E(op, saterrs.NotFound, fmt.Sprintf("no index files for %s", src))
	}

	return serverutil.WriteJSON(w, http.StatusOK, statusv1.IndexFile{
		ID:        f.ID,
		Source:    f.Source.String(),
		Hash:      f.Hash,
		Pending:   f.Pending,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	})
}

func (s *Server) getActiveFailedImport(w http.ResponseWriter, r *http.Request) error {
	const op saterrs.Op = "server.getActiveFailedImport"

	src, err := sourceVar(r)
	if err != nil {
		return saterrs.E(op, err)
	}

	f, err := blocking.Do(r.Context(), s.pool, op, func(ctx context.Context) (*satelit.FailedImport, error) {
		return s.failed.WithSource(ctx, src)
	})
	if err != nil {
		return err
	}
	if f == nil {
		return saterrs.E(op, saterrs.NotFound, fmt.Sprintf("no active failed import for %s", src))
	}

	return serverutil.WriteJSON(w, http.StatusOK, statusv1.FailedImport{
		ID:        f.ID,
		IndexID:   f.IndexID,
		TitleIDs:  f.TitleIDs,
		CreatedAt: f.CreatedAt,
		UpdatedAt: f.UpdatedAt,
	})
}

func sourceVar(r *http.Request) (satelit.Source, error) {
	src, err := satelit.ParseSource(mux.Vars(r)["source"])
	if err != nil {
		return 0, saterrs.E(saterrs.Invalid, err)
	}
	return src, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
