package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ent0n29/phoneline/internal/brain"
	"github.com/ent0n29/phoneline/internal/calls"
	"github.com/ent0n29/phoneline/internal/config"
	"github.com/ent0n29/phoneline/internal/observability"
	"github.com/ent0n29/phoneline/internal/speech"
	"github.com/ent0n29/phoneline/internal/transcript"
)

// Speech is the audio pipeline as seen by the call-control layer.
type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) (string, error)
	Audio(id string) ([]byte, bool)
	GreetingID() (string, bool)
	Ready() bool
}

// Deps are the collaborators a Server needs. Transcripts and Metrics may be nil.
type Deps struct {
	Speech      Speech
	Brain       brain.Responder
	Calls       *calls.Registry
	Transcripts transcript.Store
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

type Server struct {
	cfg         config.Config
	phrases     config.Phrases
	speech      Speech
	brain       brain.Responder
	calls       *calls.Registry
	transcripts transcript.Store
	metrics     *observability.Metrics
	logger      *zap.Logger
	audioType   string
}

func New(cfg config.Config, phrases config.Phrases, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(phrases.Greeting) == "" {
		phrases = config.DefaultPhrases()
	}
	return &Server{
		cfg:         cfg,
		phrases:     phrases,
		speech:      deps.Speech,
		brain:       deps.Brain,
		calls:       deps.Calls,
		transcripts: deps.Transcripts,
		metrics:     deps.Metrics,
		logger:      logger,
		audioType:   speech.ContentType(cfg.ElevenLabsOutputFormat),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("AI Voice Agent is running!"))
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/voice", s.handleVoice)
	r.Post("/process-speech", s.handleProcessSpeech)
	r.Post("/call-status", s.handleCallStatus)
	r.Get("/audio/{id}", s.handleAudio)
	r.Head("/audio/{id}", s.handleAudio)
	r.Post("/v1/speech", s.handleSpeech)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"active_calls": s.activeCalls(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.speech == nil || !s.speech.Ready() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "warming_up",
		})
		return
	}
	_, greeting := s.speech.GreetingID()
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"greeting_cached": greeting,
	})
}

func (s *Server) activeCalls() int {
	if s.calls == nil {
		return 0
	}
	return s.calls.ActiveCount()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
