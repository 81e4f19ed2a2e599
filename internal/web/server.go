package web

import (
	"context"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/strip"
	"github.com/cjeanneret/BoothGo/internal/render"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
// Controller events are forwarded to the broadcaster.
func NewServer(ctx context.Context, addr string, broadcaster *StatusBroadcaster, ctrl *capture.Controller, src camera.Source, renderer *render.Renderer, composer *strip.Composer) *Server {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		log.Fatalf("web: failed to sub static fs: %v", err)
	}

	ctrl.Subscribe(broadcaster.PublishEvent)
	handlers := NewHandlers(ctx, broadcaster, ctrl, src, renderer, composer, subFS)

	return &Server{
		addr:     addr,
		handlers: handlers,
	}
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	return newMux(s.handlers)
}

func newMux(h *Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /filters", h.HandleFilters)
	mux.HandleFunc("GET /session", h.HandleSession)
	mux.HandleFunc("POST /filter", h.HandleFilter)
	mux.HandleFunc("POST /start", h.HandleStart)
	mux.HandleFunc("POST /reshoot", h.HandleReshoot)
	mux.HandleFunc("GET /stills/{index}", h.HandleStill)
	mux.HandleFunc("GET /preview", h.HandlePreview)
	mux.HandleFunc("GET /download", h.HandleDownload)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.HandleFunc("GET /ws", h.HandleWS)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex) // exact match for root only

	return mux
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.addr,
		Handler: s.Mux(),
		// Streams end when ctx does, so Shutdown does not wait on them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Printf("web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
