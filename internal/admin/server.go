// Package admin serves the HTTP side channel of a streaming run: health,
// Prometheus metrics, the annotated preview, recording control, a remote
// quit and WebRTC signaling.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"path/filepath"
	"time"

	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/logger"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/metrics"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/recorder"
	"github.com/dj-oyu/rdk-x5_smart-pet-camera/pose-streamer/internal/render"
)

// maxOfferSize bounds the SDP offer body
const maxOfferSize = 64 << 10

// Quitter receives remote cancel requests
type Quitter interface {
	RequestQuit()
}

// Signaler answers WebRTC offers
type Signaler interface {
	HandleOffer(offerJSON []byte) ([]byte, error)
}

// Config wires the server to the running pipeline. Only Metrics is
// required; routes whose collaborator is nil answer 404.
type Config struct {
	Addr      string
	Pprof     bool
	RunID     string
	Transport string
	Metrics   *metrics.Metrics
	State     func() string
	Overlay   *render.Overlay
	Quitter   Quitter
	Signaler  Signaler
	Recorder  *recorder.Recorder
}

// Server is the admin HTTP server
type Server struct {
	cfg        Config
	log        *logger.Module
	started    time.Time
	listener   net.Listener
	httpServer *http.Server
	done       chan struct{}
}

// NewServer returns a configured admin server
func NewServer(cfg Config) *Server {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.State == nil {
		cfg.State = func() string { return "unknown" }
	}
	s := &Server{
		cfg:     cfg,
		log:     logger.For("Admin"),
		started: time.Now(),
		done:    make(chan struct{}),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the HTTP handler for the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", s.cfg.Metrics.Handler())
	mux.HandleFunc("/snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/quit", s.handleQuit)
	mux.HandleFunc("/offer", s.handleOffer)
	mux.HandleFunc("/recording/start", s.handleRecordingStart)
	mux.HandleFunc("/recording/stop", s.handleRecordingStop)
	mux.HandleFunc("/recording/status", s.handleRecordingStatus)

	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.log.Info("Listening on http://%s", ln.Addr())

	go func() {
		defer close(s.done)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.cfg.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server. Long-lived preview streams end when the
// overlay closes; anything left is cut off when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	err := s.httpServer.Shutdown(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		err = s.httpServer.Close()
	}
	<-s.done
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "ok",
		"run_id":    s.cfg.RunID,
		"state":     s.cfg.State(),
		"transport": s.cfg.Transport,
		"peers":     s.cfg.Metrics.ActivePeers.Load(),
		"uptime_s":  time.Since(s.started).Seconds(),
		"counters":  s.cfg.Metrics.Snapshot(),
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Overlay == nil {
		http.NotFound(w, r)
		return
	}
	data, ok := s.cfg.Overlay.Snapshot()
	if !ok {
		blank, err := render.BlankJPEG()
		if err != nil {
			http.Error(w, "Failed to render frame", http.StatusInternalServerError)
			return
		}
		data = blank
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Overlay == nil {
		http.NotFound(w, r)
		return
	}
	id, frameCh := s.cfg.Overlay.Subscribe()
	defer s.cfg.Overlay.Unsubscribe(id)
	streamMJPEG(r.Context(), w, frameCh, s.log)
}

func (s *Server) handleQuit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Quitter == nil {
		http.NotFound(w, r)
		return
	}
	s.log.Info("Quit requested by %s", r.RemoteAddr)
	s.cfg.Quitter.RequestQuit()
	writeJSONWithStatus(w, map[string]any{"status": "stopping"}, http.StatusAccepted)
}

func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Signaler == nil {
		writeJSONWithStatus(w, map[string]any{"error": "webrtc transport is not enabled"}, http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize+1))
	if err != nil || len(body) > maxOfferSize {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}

	answer, err := s.cfg.Signaler.HandleOffer(body)
	if err != nil {
		s.log.Warn("Offer from %s rejected: %v", r.RemoteAddr, err)
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}

	// An optional ?file= names the recording; a path outside the recording
	// directory is refused.
	name := r.URL.Query().Get("file")
	if name != "" && (filepath.IsAbs(name) || !filepath.IsLocal(name)) {
		writeJSONWithStatus(w, map[string]any{"error": "file must be a relative name"}, http.StatusBadRequest)
		return
	}

	filename, err := s.cfg.Recorder.Start(name)
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}

	filename, err := s.cfg.Recorder.Stop()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      s.cfg.Recorder.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Recorder == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.cfg.Recorder.Status())
}

func writeJSON(w http.ResponseWriter, payload any) {
	writeJSONWithStatus(w, payload, http.StatusOK)
}

func writeJSONWithStatus(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		_, _ = fmt.Fprintf(w, `{"error":%q}`, err.Error())
	}
}
