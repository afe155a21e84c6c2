// Package server exposes the ingestion pipeline over HTTP. It owns
// request decoding, per-app CORS, and the mapping from pipeline error
// codes to status codes; everything else is delegated to ingest.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"evsink/internal/ingest"
	"evsink/internal/schema"
)

// maxBodyBytes caps the JSON request body size.
const maxBodyBytes = 32 * 1024

// Server handles the events endpoint for every configured app.
type Server struct {
	schema   *schema.Schema
	ingester *ingest.Ingester
	log      *slog.Logger
}

// New builds the HTTP handler for the ingestion API.
func New(sch *schema.Schema, ingester *ingest.Ingester, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{schema: sch, ingester: ingester, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /apps/{app_id}/events", s.handleEvents)
	mux.HandleFunc("OPTIONS /apps/{app_id}/events", s.handlePreflight)
	return mux
}

// postBody is the request payload for the events endpoint.
type postBody struct {
	SecretKey string           `json:"secret_key"`
	Events    []map[string]any `json:"events"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	appID := r.PathValue("app_id")

	app, ok := s.schema.Apps[appID]
	if !ok {
		// Unknown app: no CORS policy to apply, reject before reading
		// the body.
		writeError(w, http.StatusNotFound, "unknown app")
		s.logRequest(r, requestID, http.StatusNotFound, start)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", app.AccessControlAllowOrigin)

	var body postBody
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, status, "invalid request body")
		s.logRequest(r, requestID, status, start)
		return
	}

	err := s.ingester.Ingest(r.Context(), ingest.Request{
		AppID:     appID,
		SecretKey: body.SecretKey,
		Events:    body.Events,
		Header:    r.Header,
	})
	if err != nil {
		status := statusFor(err)
		writeError(w, status, clientMessage(err))
		s.log.Warn("ingest rejected",
			"request_id", requestID,
			"app_id", appID,
			"code", ingest.CodeOf(err),
			"error", err)
		s.logRequest(r, requestID, status, start)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}\n"))
	s.logRequest(r, requestID, http.StatusOK, start)
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	app, ok := s.schema.Apps[r.PathValue("app_id")]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", app.AccessControlAllowOrigin)
	h.Set("Access-Control-Allow-Methods", http.MethodPost)
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) logRequest(r *http.Request, requestID string, status int, start time.Time) {
	s.log.Info("request",
		"request_id", requestID,
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"duration", time.Since(start))
}

// statusFor maps pipeline error codes to HTTP status codes.
func statusFor(err error) int {
	switch ingest.CodeOf(err) {
	case ingest.CodeNotFound:
		return http.StatusNotFound
	case ingest.CodeForbidden:
		return http.StatusForbidden
	case ingest.CodeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// clientMessage returns the caller-visible message for an ingestion
// error. Internal causes never leak to the client.
func clientMessage(err error) string {
	var ie *ingest.Error
	if errors.As(err, &ie) && ie.Code != ingest.CodeInternal {
		return ie.Message
	}
	return "internal error"
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: message})
}
