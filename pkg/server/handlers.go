package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/pario-ai/llmgate/pkg/gateway"
	"github.com/pario-ai/llmgate/pkg/models"
	"github.com/pario-ai/llmgate/pkg/stream"
)

const (
	serviceName    = "llmgate"
	serviceVersion = "1.0.0"
	maxBodyBytes   = 64 << 10
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	prefix := s.versionPrefix()
	writeJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": serviceVersion,
		"endpoints": map[string]string{
			"auth":       "/auth/token",
			"inference":  prefix + "/infer",
			"streaming":  prefix + "/infer/stream",
			"metrics":    "/metrics",
			"prometheus": "/metrics/prometheus",
			"health":     "/health",
		},
	})
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Model   string `json:"model"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "degraded", Backend: "down", Model: s.backend.Model()}
	if s.backend.Health(r.Context()) {
		resp.Status = "healthy"
		resp.Backend = "up"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	username := r.PostForm.Get("username")
	password := r.PostForm.Get("password")
	if username == "" || password == "" {
		writeJSONError(w, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	tok, err := s.gw.Login(username, password)
	if err != nil {
		if errors.Is(err, gateway.ErrInvalidCredentials) {
			writeUnauthorized(w, "Incorrect username or password")
			return
		}
		s.logger.Error("token issue failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.Snapshot())
}

// decodePrompt reads an InferenceRequest. On failure it writes the response
// and returns false.
func decodePrompt(w http.ResponseWriter, r *http.Request) (string, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return "", false
	}
	var req models.InferenceRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	return req.Prompt, true
}

func (s *Server) infer(w http.ResponseWriter, r *http.Request) (gateway.Result, bool) {
	prompt, ok := decodePrompt(w, r)
	if !ok {
		return gateway.Result{}, false
	}

	res, err := s.gw.Infer(r.Context(), identityFrom(r.Context()), prompt)
	if err != nil {
		if r.Context().Err() != nil {
			// Caller is gone; nothing to write.
			return gateway.Result{}, false
		}
		if !writeGatewayError(w, err) {
			s.logger.Error("unexpected inference error", zap.Error(err))
			writeJSONError(w, http.StatusInternalServerError, "Inference failed")
		}
		return gateway.Result{}, false
	}

	if res.Cached {
		w.Header().Set("X-Llmgate-Cache", "hit")
	} else {
		w.Header().Set("X-Llmgate-Cache", "miss")
	}
	return res, true
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	res, ok := s.infer(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.InferenceResponse{Response: res.Text})
}

func (s *Server) handleInferStream(w http.ResponseWriter, r *http.Request) {
	res, ok := s.infer(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)

	for frag := range stream.Fragments(ctx, res.Text, s.cfg.Stream.Delay, s.cfg.Stream.Buffer) {
		if _, err := io.WriteString(w, frag); err != nil {
			s.logger.Debug("stream write failed", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}
