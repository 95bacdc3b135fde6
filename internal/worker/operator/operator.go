// Package operator exposes a small loopback-only introspection server for
// the judge worker: process liveness, the submission currently in flight,
// and uptime. It never sits on the submission hot path.
package operator

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"fuzoj/internal/common/http/middleware"
	"fuzoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Status tracks the worker's current-submission state for the /healthz
// handler. The main loop updates it at the start and end of every
// iteration; it is read concurrently by the HTTP handler goroutine.
type Status struct {
	startedAt time.Time
	current   atomic.Value // string
}

// NewStatus creates a Status with its start time pinned to now.
func NewStatus(now time.Time) *Status {
	s := &Status{startedAt: now}
	s.current.Store("")
	return s
}

// SetCurrent records the submission id currently being processed, or ""
// when the worker is idle between polls.
func (s *Status) SetCurrent(submissionID string) {
	s.current.Store(submissionID)
}

func (s *Status) snapshot(now time.Time) healthzPayload {
	return healthzPayload{
		Status:            "ok",
		CurrentSubmission: s.current.Load().(string),
		UptimeSeconds:     now.Sub(s.startedAt).Seconds(),
	}
}

type healthzPayload struct {
	Status            string  `json:"status"`
	CurrentSubmission string  `json:"current_submission"`
	UptimeSeconds     float64 `json:"uptime_s"`
}

// NewServer builds the loopback introspection HTTP server, not yet
// started. Call ListenAndServe on the result (typically from a goroutine)
// and Shutdown it on worker shutdown.
func NewServer(addr string, status *Status) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.TraceContextMiddleware())
	router.GET("/healthz", func(c *gin.Context) {
		response.Success(c, status.snapshot(time.Now()))
	})

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}

// Run starts server and blocks until ctx is done, then shuts the server
// down gracefully. Errors other than the expected shutdown are returned.
func Run(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
