package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// The time given to servers to finish serving ongoing requests after the
// context is done.
const shutdownTimeout = 5 * time.Second

// ListenAndServe starts the given servers and blocks until they are all
// stopped. Servers are shut down when ctx is done.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		for _, s := range servers {
			if err := s.Shutdown(shutdownCtx); err != nil {
				logs.Warn(errors.Newf("shutting down the server failed").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}
	}()

	var wg sync.WaitGroup

	for _, s := range servers {
		wg.Add(1)

		go func(s *http.Server) {
			defer wg.Done()

			logs.WithTag("addr", s.Addr).Info("starting server")

			switch err := s.ListenAndServe(); err {
			case nil, http.ErrServerClosed, context.Canceled:
				logs.WithTag("addr", s.Addr).Info("stopping server")

			default:
				logs.Warn(errors.Newf("server stopped").
					WithTag("addr", s.Addr).
					Wrap(err))
			}
		}(s)
	}

	wg.Wait()
}

// MetricsPathFormatter returns empty string on HTTP 301, 400, 404 or 405 statusCode
func MetricsPathFormatter(statusCode int, path string) string {
	if statusCode == http.StatusMovedPermanently ||
		statusCode == http.StatusBadRequest ||
		statusCode == http.StatusNotFound ||
		statusCode == http.StatusMethodNotAllowed {
		return ""
	}

	return path
}

// Routes are the inspection endpoints of a canvas.
type Routes struct {
	Index    Index
	Hover    Hoverer
	Select   Selector
	Version  string
	APIToken string
}

// Register adds the inspection endpoints to mux. The query, debug and editor
// endpoints require the API token.
func (r Routes) Register(mux *http.ServeMux) {
	guard := func(h http.HandlerFunc) http.Handler {
		return HandleWithCORS(RequireToken(r.APIToken, h))
	}

	mux.Handle("/health", HandleWithCORS(http.HandlerFunc(HandleHealthCheck)))
	mux.Handle("/version", HandleWithCORS(HandleVersion(r.Version)))

	mux.Handle("/elements/in", guard(HandleFindIn(r.Index)))
	mux.Handle("/elements/on", guard(HandleFindOn(r.Index)))
	mux.Handle("/elements/frontest", guard(HandleFrontest(r.Index)))
	mux.Handle("/elements/rect", guard(HandleRect(r.Index)))
	mux.Handle("/canvas/boundary", guard(HandleBoundary(r.Index)))
	mux.Handle("/debug/spatial", guard(HandleSpatialDebug(r.Index)))
	mux.Handle("/debug/spatial.pdf", guard(HandleSpatialPDF(r.Index)))

	if r.Hover != nil {
		mux.Handle("/editor/hover", guard(HandleHover(r.Hover)))
	}
	if r.Select != nil {
		mux.Handle("/editor/select", guard(HandleSelect(r.Select)))
	}
}
