package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facetrace-ai/facetrace/pkg/cache"
	"github.com/facetrace-ai/facetrace/pkg/config"
	"github.com/facetrace-ai/facetrace/pkg/fingerprint"
	"github.com/facetrace-ai/facetrace/pkg/models"
	"github.com/facetrace-ai/facetrace/pkg/resolver"
)

// Version is reported by the health endpoint and the CLI. Overridden at
// build time via -ldflags.
var Version = "dev"

// maxUploadBytes caps the request body for overlay submissions. Base64
// inflates images by a third, so this allows roughly 24 MB of raw image.
const maxUploadBytes = 32 << 20

// Server is the Facetrace HTTP API: overlay rendering through the cache
// plus cache administration.
type Server struct {
	cfg      *config.Config
	resolver *resolver.Resolver
	store    cache.Store
	sweeper  *cache.Sweeper
	logger   *log.Logger
	mux      *http.ServeMux
}

// New creates a Server wired with all dependencies.
func New(cfg *config.Config, res *resolver.Resolver, store cache.Store, sweeper *cache.Sweeper) *Server {
	s := &Server{
		cfg:      cfg,
		resolver: res,
		store:    store,
		sweeper:  sweeper,
		logger:   log.With("component", "server"),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("/v1/overlays", s.handleOverlays)
	s.mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	s.mux.HandleFunc("/v1/cache/recent", s.handleCacheRecent)
	s.mux.HandleFunc("/v1/cache/sweep", s.handleCacheSweep)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if cfg.Metrics.Enabled {
		s.mux.Handle("/metrics", promhttp.Handler())
	}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts the API server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Facetrace API listening", "addr", s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// overlayRequest is the JSON body of POST /v1/overlays. The image is
// base64-encoded; a data URI prefix is tolerated and stripped.
type overlayRequest struct {
	Image       string            `json:"image"`
	Landmarks   []models.Landmark `json:"landmarks"`
	Regions     []models.Region   `json:"regions,omitempty"`
	ShowLabels  bool              `json:"show_labels,omitempty"`
	Smooth      bool              `json:"smooth,omitempty"`
	Opacity     float64           `json:"opacity,omitempty"`
	StrokeWidth float64           `json:"stroke_width,omitempty"`
}

func (o *overlayRequest) toRenderRequest() (*models.RenderRequest, error) {
	raw := o.Image
	if idx := strings.IndexByte(raw, ','); idx >= 0 && strings.HasPrefix(raw, "data:") {
		raw = raw[idx+1:]
	}
	img, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return &models.RenderRequest{
		Image:       img,
		Landmarks:   o.Landmarks,
		Regions:     o.Regions,
		ShowLabels:  o.ShowLabels,
		Smooth:      o.Smooth,
		Opacity:     o.Opacity,
		StrokeWidth: o.StrokeWidth,
	}, nil
}

// overlayResponse is returned for successful resolutions. The artifact is
// base64-encoded by the JSON marshaller.
type overlayResponse struct {
	RequestID    string            `json:"request_id"`
	Outcome      models.Outcome    `json:"outcome"`
	Cached       bool              `json:"cached"`
	Distance     int               `json:"distance"`
	ContentType  string            `json:"content_type"`
	Artifact     []byte            `json:"artifact"`
	Meta         map[string]string `json:"meta,omitempty"`
	ProcessingMs int64             `json:"processing_ms"`
}

// failureResponse is returned when the renderer failed, freshly or as a
// replayed cached failure.
type failureResponse struct {
	RequestID string         `json:"request_id"`
	Outcome   models.Outcome `json:"outcome"`
	Cached    bool           `json:"cached"`
	Error     string         `json:"error"`
}

func (s *Server) handleOverlays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	var wire overlayRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req, err := wire.toRenderRequest()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Normalize(s.cfg.Render.DefaultOpacity, s.cfg.Render.DefaultStrokeWidth)
	if err := req.Validate(); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	requestID := uuid.New().String()
	res, rerr := s.resolver.Resolve(r.Context(), req)
	if res == nil {
		switch {
		case errors.Is(rerr, context.Canceled) || errors.Is(rerr, context.DeadlineExceeded):
			writeJSONError(w, http.StatusGatewayTimeout, "render abandoned: "+rerr.Error())
		case errors.Is(rerr, fingerprint.ErrEmptyImage):
			writeJSONError(w, http.StatusBadRequest, rerr.Error())
		default:
			// Anything else here is a server-side fault, such as a
			// renderer panic surfaced through the coordinator.
			s.logger.Error("Overlay resolution failed", "request_id", requestID, "error", rerr)
			writeJSONError(w, http.StatusInternalServerError, "overlay resolution failed")
		}
		return
	}

	w.Header().Set("X-Facetrace-Outcome", string(res.Outcome))
	if res.Cached {
		w.Header().Set("X-Facetrace-Cache", "hit")
	} else {
		w.Header().Set("X-Facetrace-Cache", "miss")
	}

	if rerr != nil {
		s.logger.Debug("Overlay failed",
			"request_id", requestID, "outcome", res.Outcome, "cached", res.Cached)
		writeJSON(w, http.StatusUnprocessableEntity, failureResponse{
			RequestID: requestID,
			Outcome:   res.Outcome,
			Cached:    res.Cached,
			Error:     rerr.Error(),
		})
		return
	}

	s.logger.Debug("Overlay resolved",
		"request_id", requestID, "outcome", res.Outcome, "cached", res.Cached,
		"distance", res.Distance, "ms", res.ProcessingMs)
	writeJSON(w, http.StatusOK, overlayResponse{
		RequestID:    requestID,
		Outcome:      res.Outcome,
		Cached:       res.Cached,
		Distance:     res.Distance,
		ContentType:  res.Payload.ContentType,
		Artifact:     res.Payload.Artifact,
		Meta:         res.Payload.Meta,
		ProcessingMs: res.ProcessingMs,
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type recentResponse struct {
	Entries []models.EntrySummary `json:"entries"`
}

func (s *Server) handleCacheRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 50 {
		limit = 50
	}

	entries, err := s.store.Recent(r.Context(), limit)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []models.EntrySummary{}
	}
	writeJSON(w, http.StatusOK, recentResponse{Entries: entries})
}

func (s *Server) handleCacheSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.sweeper.SweepNow(r.Context())
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("Failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"facetrace_error","code":%d}}`, message, code)
}
