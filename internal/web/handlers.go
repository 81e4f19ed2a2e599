package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strconv"
	"time"

	"github.com/cjeanneret/BoothGo/internal/debug"
	"github.com/cjeanneret/BoothGo/internal/filter"
	"github.com/cjeanneret/BoothGo/internal/hw/camera"
	"github.com/cjeanneret/BoothGo/internal/logic/capture"
	"github.com/cjeanneret/BoothGo/internal/logic/strip"
	"github.com/cjeanneret/BoothGo/internal/render"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 10

// FilterInfo describes one preset for the UI.
type FilterInfo struct {
	ID     filter.ID           `json:"id"`
	Effect string              `json:"effect"`
	Class  filter.OverlayClass `json:"class"`
	Grain  bool                `json:"grain"`
}

// FiltersResponse is the body of GET /filters.
type FiltersResponse struct {
	Selected filter.ID    `json:"selected"`
	Filters  []FilterInfo `json:"filters"`
}

// FilterRequest is the body of POST /filter.
type FilterRequest struct {
	Filter string `json:"filter"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	ctrl        *capture.Controller
	src         camera.Source
	renderer    *render.Renderer
	composer    *strip.Composer
	staticFS    fs.FS

	// Sequences started over HTTP outlive the request that started them.
	baseCtx context.Context
}

// NewHandlers creates handlers with the given dependencies.
func NewHandlers(ctx context.Context, broadcaster *StatusBroadcaster, ctrl *capture.Controller, src camera.Source, renderer *render.Renderer, composer *strip.Composer, staticFS fs.FS) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		ctrl:        ctrl,
		src:         src,
		renderer:    renderer,
		composer:    composer,
		staticFS:    staticFS,
		baseCtx:     ctx,
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeJPEG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleFilters lists the presets and the current selection.
func (h *Handlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	ids := filter.All()
	resp := FiltersResponse{Selected: h.ctrl.Filter(), Filters: make([]FilterInfo, 0, len(ids))}
	for _, id := range ids {
		resp.Filters = append(resp.Filters, FilterInfo{
			ID:     id,
			Effect: filter.Lookup(id).String(),
			Class:  filter.Class(id),
			Grain:  filter.IsGrain(id),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleSession returns the current session snapshot.
func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Session())
}

// HandleFilter handles POST /filter to change the selection. It is accepted
// at any time, including mid-sequence.
func (h *Handlers) HandleFilter(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := h.ctrl.SetFilter(filter.ID(req.Filter)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]filter.ID{"filter": h.ctrl.Filter()})
}

// HandleStart handles POST /start. Only an idle booth can start.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if _, err := h.ctrl.Start(h.baseCtx); err != nil {
		if errors.Is(err, capture.ErrBusy) {
			http.Error(w, "capture already in progress", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":     "started",
		"session_id": h.ctrl.Session().ID,
	})
}

// HandleReshoot handles POST /reshoot, discarding a completed session.
func (h *Handlers) HandleReshoot(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Reshoot(); err != nil {
		if errors.Is(err, capture.ErrNotComplete) {
			http.Error(w, "session not complete", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Session())
}

// HandleStill serves GET /stills/{index}.
func (h *Handlers) HandleStill(w http.ResponseWriter, r *http.Request) {
	i, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "invalid still index", http.StatusBadRequest)
		return
	}
	still, ok := h.ctrl.Still(i)
	if !ok {
		http.Error(w, "still not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=3600")
	writeJPEG(w, still.JPEG)
}

// HandlePreview renders the live frame with the current filter.
func (h *Handlers) HandlePreview(w http.ResponseWriter, r *http.Request) {
	img, err := h.renderer.Frame(r.Context(), h.src, h.ctrl.Filter())
	if err != nil {
		if errors.Is(err, render.ErrSourceNotReady) {
			http.Error(w, "camera not ready", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data, err := h.renderer.Encode(img)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJPEG(w, data)
}

// HandleDownload serves the finished strip as an attachment. Without a
// completed session there is nothing to download.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	exp, err := h.composer.Export(h.ctrl.Session())
	if err != nil {
		if errors.Is(err, strip.ErrNothingToExport) {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		debug.Error(fmt.Errorf("export strip: %w", err))
		http.Error(w, "could not render strip", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	writeJPEG(w, exp.JPEG)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
