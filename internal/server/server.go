// Package server exposes the altitude calculations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/internal/config"
	"github.com/menta2k/video-altitude/internal/history"
	"github.com/menta2k/video-altitude/pkg/camera"
	"github.com/menta2k/video-altitude/pkg/geometry"
	"github.com/menta2k/video-altitude/pkg/validation"
)

// maxBodyBytes bounds request bodies; payloads are a few numbers.
const maxBodyBytes = 1 << 20

// Server wraps the HTTP server and the configuration it answers with
type Server struct {
	addr    string
	store   *history.Store
	watcher *ConfigWatcher
	log     *slog.Logger
	server  *http.Server

	mu       sync.RWMutex
	cfg      *config.Config
	registry *camera.Registry
}

// Options configures NewServer
type Options struct {
	Addr   string
	Config *config.Config
	// ConfigPath is reloaded on change when Watch is set.
	ConfigPath string
	Watch      bool
	// Store records estimates when non-nil.
	Store  *history.Store
	Logger *slog.Logger
}

// NewServer creates a server for the given configuration
func NewServer(opts Options) (*Server, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = opts.Config.Server.Addr
	}

	s := &Server{
		addr:  opts.Addr,
		store: opts.Store,
		log:   opts.Logger,
	}
	if err := s.SetConfig(opts.Config); err != nil {
		return nil, err
	}

	if opts.Watch && opts.ConfigPath != "" {
		w, err := NewConfigWatcher(opts.ConfigPath, s.SetConfig, opts.Logger)
		if err != nil {
			opts.Logger.Warn("Failed to setup config watcher", "error", err)
		} else {
			s.watcher = w
		}
	}
	return s, nil
}

// SetConfig validates cfg and swaps it in together with its camera registry.
// The previous configuration stays active when cfg is invalid.
func (s *Server) SetConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.registry = reg
	s.mu.Unlock()

	s.log.Info("Configuration loaded", "cameras", reg.Len(), "method", cfg.Method)
	return nil
}

func (s *Server) snapshot() (*config.Config, *camera.Registry) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg, s.registry
}

// Handler returns the router with all routes registered
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.log))
	s.setupRoutes(r)
	return r
}

// Start serves until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			s.log.Error("Failed to start config watcher", "error", err)
			return err
		}
	}

	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		s.log.Info("Shutting down server...")

		if s.watcher != nil {
			s.watcher.Stop()
		}

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(ctxShutdown)
	}()

	s.log.Info("Server starting", "addr", s.addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) setupRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/cameras", s.handleCameras).Methods("GET")
	api.HandleFunc("/cameras/{name}", s.handleCamera).Methods("GET")
	api.HandleFunc("/estimate", s.handleEstimate).Methods("POST")
	api.HandleFunc("/compare", s.handleCompare).Methods("POST")
	api.HandleFunc("/validate", s.handleValidate).Methods("POST")
	api.HandleFunc("/sensitivity", s.handleSensitivity).Methods("POST")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/history/{id}", s.handleHistoryRecord).Methods("GET")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	cfg, reg := s.snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"default": cfg.Camera.Default,
		"cameras": reg.Profiles(),
	})
}

func (s *Server) handleCamera(w http.ResponseWriter, r *http.Request) {
	_, reg := s.snapshot()
	p, err := reg.Lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// measurementRequest is shared by the estimate, compare and sensitivity
// endpoints. Profile, when set, is used instead of a registered camera.
type measurementRequest struct {
	Camera       string                  `json:"camera,omitempty"`
	Profile      *geometry.CameraProfile `json:"profile,omitempty"`
	Method       *geometry.Method        `json:"method,omitempty"`
	RealSizeCM   float64                 `json:"real_size_cm"`
	PixelSizePx  float64                 `json:"pixel_size_px"`
	ImageWidthPx int                     `json:"image_width_px,omitempty"`
}

func (s *Server) resolve(req measurementRequest) (geometry.CameraProfile, geometry.Measurement, geometry.Method, error) {
	cfg, reg := s.snapshot()

	var (
		p   geometry.CameraProfile
		err error
	)
	if req.Profile != nil {
		pr := req.Profile
		p, err = camera.Custom(pr.Name, pr.FocalLengthMM, pr.SensorWidthMM, pr.FieldOfViewDeg, pr.ImageWidthPx, pr.ImageHeightPx)
	} else {
		name := req.Camera
		if name == "" {
			name = cfg.Camera.Default
		}
		p, err = reg.Lookup(name)
	}
	if err != nil {
		return geometry.CameraProfile{}, geometry.Measurement{}, 0, err
	}

	method := cfg.Method
	if req.Method != nil {
		method = *req.Method
	}

	m := geometry.Measurement{
		RealSizeCM:   req.RealSizeCM,
		PixelSizePx:  req.PixelSizePx,
		ImageWidthPx: req.ImageWidthPx,
	}
	if m.ImageWidthPx == 0 {
		m.ImageWidthPx = p.ImageWidthPx
	}
	return p, m, method, nil
}

type estimateRequest struct {
	measurementRequest
	Source string `json:"source,omitempty"`
	// DebugGridCM adds a prediction request to the response when positive.
	DebugGridCM float64 `json:"debug_grid_cm,omitempty"`
}

type estimateResponse struct {
	Camera     string                           `json:"camera"`
	Result     geometry.AltitudeResult          `json:"result"`
	AltitudeM  float64                          `json:"altitude_m"`
	GSDMmPerPx float64                          `json:"gsd_mm_per_px"`
	Grid       *geometry.Grid                   `json:"grid,omitempty"`
	Prediction *videoaltitude.PredictionRequest `json:"prediction,omitempty"`
	RecordID   string                           `json:"record_id,omitempty"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	var req estimateRequest
	if !decode(w, r, &req) {
		return
	}
	p, m, method, err := s.resolve(req.measurementRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := geometry.Estimate(m, p, method)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := estimateResponse{
		Camera:     p.Name,
		Result:     res,
		AltitudeM:  res.Meters(),
		GSDMmPerPx: geometry.GSDResult{GSDCmPerPx: res.GSDCmPerPx}.MMPerPx(),
	}
	if req.DebugGridCM > 0 {
		grid, err := geometry.DebugGrid(res.GSDCmPerPx, req.DebugGridCM)
		if err != nil {
			writeError(w, err)
			return
		}
		pred, err := videoaltitude.NewPredictionRequest(res, p, req.DebugGridCM)
		if err != nil {
			writeError(w, err)
			return
		}
		resp.Grid = &grid
		resp.Prediction = &pred
	}

	if s.store != nil {
		rec, err := s.store.Add(r.Context(), history.Record{
			Source:       req.Source,
			Camera:       p.Name,
			Method:       res.Method,
			RealSizeCM:   m.RealSizeCM,
			PixelSizePx:  m.PixelSizePx,
			ImageWidthPx: m.ImageWidthPx,
			GSDCmPerPx:   res.GSDCmPerPx,
			AltitudeCM:   res.AltitudeCM,
		})
		if err != nil {
			s.log.Error("Failed to record estimate", "error", err)
		} else {
			resp.RecordID = rec.ID
		}
	}

	s.log.Debug("Estimate", "camera", p.Name, "method", res.Method, "altitude_cm", res.AltitudeCM)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req measurementRequest
	if !decode(w, r, &req) {
		return
	}
	p, m, _, err := s.resolve(req)
	if err != nil {
		writeError(w, err)
		return
	}
	cmp, err := geometry.CompareMethods(m, p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cmp)
}

type validateRequest struct {
	Camera       string                       `json:"camera,omitempty"`
	ImageWidthPx int                          `json:"image_width_px,omitempty"`
	OutlierSigma float64                      `json:"outlier_sigma,omitempty"`
	Objects      []validation.ReferenceObject `json:"objects,omitempty"`
	// Samples carry their own profiles and are appended after Objects.
	Samples []validation.Sample `json:"samples,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !decode(w, r, &req) {
		return
	}
	cfg, reg := s.snapshot()

	samples := make([]validation.Sample, 0, len(req.Objects)+len(req.Samples))
	if len(req.Objects) > 0 {
		name := req.Camera
		if name == "" {
			name = cfg.Camera.Default
		}
		p, err := reg.Lookup(name)
		if err != nil {
			writeError(w, err)
			return
		}
		width := req.ImageWidthPx
		if width == 0 {
			width = p.ImageWidthPx
		}
		for _, o := range req.Objects {
			samples = append(samples, o.Sample(p, width))
		}
	}
	samples = append(samples, req.Samples...)

	sigma := req.OutlierSigma
	if sigma == 0 {
		sigma = cfg.Validation.OutlierSigma
	}
	report, err := validation.ValidateMultiple(samples, validation.Options{OutlierSigma: sigma})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":    report,
		"precision": report.Precision(),
		"outliers":  len(report.Outliers()),
	})
}

type sensitivityRequest struct {
	measurementRequest
	PixelErrorPx float64   `json:"pixel_error_px,omitempty"`
	Grid         []float64 `json:"grid,omitempty"`
}

func (s *Server) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	var req sensitivityRequest
	if !decode(w, r, &req) {
		return
	}
	p, m, method, err := s.resolve(req.measurementRequest)
	if err != nil {
		writeError(w, err)
		return
	}
	cfg, _ := s.snapshot()
	pixelErr := req.PixelErrorPx
	if pixelErr == 0 {
		pixelErr = cfg.Sensitivity.PixelErrorPx
	}
	grid := req.Grid
	if grid == nil {
		grid = cfg.Sensitivity.Grid
	}

	report, err := validation.AnalyzeSensitivity(m, p, pixelErr, validation.SensitivityOptions{Method: method, Grid: grid})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report":            report,
		"max_delta_percent": report.MaxDeltaPercent(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer", Kind: "bad_request", Field: "limit"})
			return
		}
		limit = n
	}
	recs, err := s.store.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) handleHistoryRecord(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}
	rec, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
