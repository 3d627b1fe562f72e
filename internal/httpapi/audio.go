package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/phoneline/internal/pipeline"
)

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	var (
		blob []byte
		ok   bool
	)
	if s.speech != nil && id != "" {
		blob, ok = s.speech.Audio(id)
	}
	if !ok {
		http.Error(w, "Audio not found or expired", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", s.audioType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(blob)
}

type speechRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

type speechResponse struct {
	AudioID  string `json:"audio_id"`
	AudioURL string `json:"audio_url"`
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			respondError(w, http.StatusBadRequest, "invalid_request", "request body is required")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if s.speech == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "speech pipeline not configured")
		return
	}

	id, err := s.speech.Synthesize(r.Context(), req.Text, req.VoiceID)
	switch {
	case errors.Is(err, pipeline.ErrEmptyText):
		respondError(w, http.StatusBadRequest, "empty_text", "text is required")
		return
	case err != nil:
		respondError(w, http.StatusBadGateway, "synthesis_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, speechResponse{
		AudioID:  id,
		AudioURL: s.audioURL(r, id),
	})
}

// audioURL builds the absolute URL the provider fetches a clip from.
func (s *Server) audioURL(r *http.Request, id string) string {
	return s.baseURL(r) + "/audio/" + id
}

func (s *Server) baseURL(r *http.Request) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if s.cfg.TrustForwardedProto {
		if proto := strings.TrimSpace(strings.Split(r.Header.Get("X-Forwarded-Proto"), ",")[0]); proto != "" {
			scheme = strings.ToLower(proto)
		}
	}
	return scheme + "://" + r.Host
}
