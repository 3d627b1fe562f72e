package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ent0n29/phoneline/internal/brain"
	"github.com/ent0n29/phoneline/internal/calls"
	"github.com/ent0n29/phoneline/internal/config"
	"github.com/ent0n29/phoneline/internal/observability"
	"github.com/ent0n29/phoneline/internal/pipeline"
	"github.com/ent0n29/phoneline/internal/transcript"
	"github.com/ent0n29/phoneline/internal/twiml"
)

const (
	routeVoice         = "voice"
	routeProcessSpeech = "process_speech"
	routeCallStatus    = "call_status"

	processSpeechPath = "/process-speech"
)

// Terminal call statuses reported by the provider's status callback.
var terminalCallStatuses = map[string]struct{}{
	"completed": {},
	"busy":      {},
	"failed":    {},
	"no-answer": {},
	"canceled":  {},
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.metrics.ObserveWebhook(routeVoice, "bad_form")
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	sid := strings.TrimSpace(r.PostForm.Get("CallSid"))
	if sid != "" && s.calls != nil {
		if _, created := s.calls.Begin(sid, r.PostForm.Get("From"), r.PostForm.Get("To")); created {
			s.metrics.ObserveCallEvent("started")
			s.metrics.SetActiveCalls(s.calls.ActiveCount())
			s.logger.Info("call started", zap.String("call_sid", sid))
		}
	}

	resp := twiml.NewResponse()
	outcome := "said"
	if id, ok := s.greetingID(); ok {
		resp.Play(s.audioURL(r, id))
		outcome = "played"
	} else {
		resp.Say(s.phrases.Greeting)
	}
	resp.Gather(s.gather())
	// Reached only when the caller stays silent through the gather window.
	resp.Hangup()

	s.metrics.ObserveWebhook(routeVoice, outcome)
	s.writeTwiML(w, resp)
}

func (s *Server) handleProcessSpeech(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := r.ParseForm(); err != nil {
		s.metrics.ObserveWebhook(routeProcessSpeech, "bad_form")
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	ctx := r.Context()
	sid := strings.TrimSpace(r.PostForm.Get("CallSid"))
	said := strings.TrimSpace(r.PostForm.Get("SpeechResult"))
	s.trackTurn(sid, r)

	resp := twiml.NewResponse()
	if said == "" {
		s.speak(ctx, r, resp, config.FallbackRepeat, true)
		resp.Gather(s.gather())
		s.metrics.ObserveWebhook(routeProcessSpeech, "empty")
		s.writeTwiML(w, resp)
		return
	}

	history := s.history(ctx, sid)
	reply := config.FallbackBrainError
	if s.brain != nil {
		reply = s.brain.Respond(ctx, brain.Request{CallSID: sid, Text: said, History: history})
	}
	s.saveTurn(ctx, sid, transcript.RoleCaller, said)
	s.saveTurn(ctx, sid, transcript.RoleAssistant, reply)

	outcome := "played"
	id, err := s.synthesize(ctx, reply)
	if err != nil {
		// The pipeline just failed; do not try it again for the apology.
		outcome = "said"
		s.speak(ctx, r, resp, config.FallbackAudioError, false)
	} else {
		resp.Play(s.audioURL(r, id))
	}
	resp.Gather(s.gather())

	s.metrics.ObserveTurnStage(observability.StageTurnTotal, time.Since(start))
	s.metrics.ObserveWebhook(routeProcessSpeech, outcome)
	s.writeTwiML(w, resp)
}

func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.metrics.ObserveWebhook(routeCallStatus, "bad_form")
		respondError(w, http.StatusBadRequest, "invalid_form", err.Error())
		return
	}
	sid := strings.TrimSpace(r.PostForm.Get("CallSid"))
	status := strings.ToLower(strings.TrimSpace(r.PostForm.Get("CallStatus")))

	outcome := "ignored"
	if _, terminal := terminalCallStatuses[status]; terminal && sid != "" && s.calls != nil {
		if _, err := s.calls.End(sid, status); err == nil {
			outcome = "ended"
		} else if errors.Is(err, calls.ErrNotFound) {
			outcome = "unknown_call"
		}
	}
	s.metrics.ObserveWebhook(routeCallStatus, outcome)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) trackTurn(sid string, r *http.Request) {
	if sid == "" || s.calls == nil {
		return
	}
	if _, err := s.calls.Turn(sid); errors.Is(err, calls.ErrNotFound) {
		// The call predates this process or was expired by the janitor.
		s.calls.Begin(sid, r.PostForm.Get("From"), r.PostForm.Get("To"))
		_, _ = s.calls.Turn(sid)
		s.metrics.ObserveCallEvent("resumed")
		s.metrics.SetActiveCalls(s.calls.ActiveCount())
	}
}

func (s *Server) greetingID() (string, bool) {
	if s.speech == nil {
		return "", false
	}
	return s.speech.GreetingID()
}

func (s *Server) synthesize(ctx context.Context, text string) (string, error) {
	if s.speech == nil {
		return "", pipeline.ErrSynthesisUnavailable
	}
	return s.speech.Synthesize(ctx, text, "")
}

// speak plays text through the pipeline when allowed and it succeeds, otherwise
// has the provider read it aloud.
func (s *Server) speak(ctx context.Context, r *http.Request, resp *twiml.Response, text string, viaPipeline bool) {
	if viaPipeline {
		if id, err := s.synthesize(ctx, text); err == nil {
			resp.Play(s.audioURL(r, id))
			return
		}
	}
	resp.Say(text)
}

func (s *Server) history(ctx context.Context, sid string) []brain.Turn {
	if s.transcripts == nil || sid == "" || s.cfg.BrainHistoryTurns <= 0 {
		return nil
	}
	turns, err := s.transcripts.Recent(ctx, sid, s.cfg.BrainHistoryTurns)
	if err != nil {
		s.logger.Warn("load call history failed", zap.Error(err), zap.String("call_sid", sid))
		return nil
	}
	out := make([]brain.Turn, 0, len(turns))
	for _, t := range turns {
		role := brain.RoleCaller
		if t.Role == transcript.RoleAssistant {
			role = brain.RoleAssistant
		}
		out = append(out, brain.Turn{Role: role, Text: t.Content})
	}
	return out
}

func (s *Server) saveTurn(ctx context.Context, sid, role, text string) {
	if s.transcripts == nil || sid == "" {
		return
	}
	if err := s.transcripts.SaveTurn(ctx, transcript.Turn{CallSID: sid, Role: role, Content: text}); err != nil {
		s.logger.Warn("save call turn failed", zap.Error(err), zap.String("call_sid", sid), zap.String("role", role))
	}
}

func (s *Server) gather() twiml.Gather {
	timeout := s.cfg.GatherTimeoutSeconds
	if timeout <= 0 {
		timeout = 5
	}
	model := s.cfg.GatherSpeechModel
	if model == "" {
		model = "default"
	}
	return twiml.Gather{
		Input:         "speech",
		Action:        processSpeechPath,
		Timeout:       timeout,
		SpeechTimeout: "auto",
		SpeechModel:   model,
	}
}

func (s *Server) writeTwiML(w http.ResponseWriter, resp *twiml.Response) {
	body, err := resp.Marshal()
	if err != nil {
		s.logger.Error("render twiml failed", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", twiml.ContentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
