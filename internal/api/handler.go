// Package api exposes docent over HTTP and MCP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docent-ai/docent/internal/agent"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/ingest"
	"github.com/docent-ai/docent/internal/session"
)

const maxTurnBodySize = 1 << 20    // 1MB
const maxIngestBodySize = 20 << 20 // 20MB

// Asker answers one question within a session.
type Asker interface {
	Answer(ctx context.Context, sess *session.Session, query string) (agent.Result, error)
}

// Ingestor indexes one file.
type Ingestor interface {
	IngestFile(ctx context.Context, path string, tags []string) (ingest.Report, error)
}

// AppDeps holds the collaborators of the HTTP API.
type AppDeps struct {
	Sessions *session.Manager
	Agent    Asker
	Pipeline Ingestor
	Index    index.Index
	Token    string // empty disables authentication
}

// NewAppHandler builds the HTTP API. The health endpoint is always
// open; everything else sits behind bearer auth when a token is set.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(requireBearer(deps.Token))
		}
		r.Post("/sessions", handleCreateSession(deps))
		r.Delete("/sessions/{id}", handleDeleteSession(deps))
		r.Post("/sessions/{id}/turns", handleTurn(deps))
		r.Get("/sessions/{id}/history", handleHistory(deps))
		r.Post("/ingest", handleIngest(deps))
	})

	return r
}

// requireBearer rejects requests whose Authorization header does not
// carry token. The comparison is constant time.
func requireBearer(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			presented, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="docent"`)
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Index.CountDocuments(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "index unavailable: %v", err)
			return
		}
		chunks, err := deps.Index.CountChunks(r.Context())
		if err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "index unavailable: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"documents": docs,
			"chunks":    chunks,
			"sessions":  deps.Sessions.Len(),
		})
	}
}

func handleCreateSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := deps.Sessions.Start()
		writeJSON(w, http.StatusCreated, map[string]any{
			"session_id": s.ID,
			"created_at": s.CreatedAt,
		})
	}
}

func handleDeleteSession(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Sessions.End(id); err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "unknown session %s", id)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// TurnRequest asks one question in a session.
type TurnRequest struct {
	Query string `json:"query"`
}

// TurnResponse is the answer with its citations.
type TurnResponse struct {
	SessionID    string             `json:"session_id"`
	Answer       string             `json:"answer"`
	Fragments    []citationFragment `json:"fragments"`
	Insufficient bool               `json:"insufficient"`
}

type citationFragment struct {
	Text      string             `json:"text"`
	Citations []citationResponse `json:"citations,omitempty"`
}

type citationResponse struct {
	Ref     int    `json:"ref"`
	ChunkID string `json:"chunk_id"`
	Quote   string `json:"quote"`
}

func handleTurn(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxTurnBodySize)
		defer r.Body.Close()

		id := chi.URLParam(r, "id")
		sess, err := deps.Sessions.Get(id)
		if err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "unknown session %s", id)
			return
		}

		var req TurnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		res, err := deps.Agent.Answer(r.Context(), sess, req.Query)
		if err != nil {
			switch {
			case errors.Is(err, index.ErrUnavailable):
				httpError(w, http.StatusServiceUnavailable, "api_error", "index unavailable: %v", err)
			case errors.Is(err, agent.ErrGenerationFailed):
				httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			default:
				httpError(w, http.StatusInternalServerError, "api_error", "turn failed: %v", err)
			}
			return
		}

		out := TurnResponse{
			SessionID:    sess.ID,
			Answer:       res.Answer,
			Insufficient: res.Insufficient,
			Fragments:    make([]citationFragment, len(res.Fragments)),
		}
		for i, f := range res.Fragments {
			cf := citationFragment{Text: f.Text}
			for _, c := range f.Citations {
				cf.Citations = append(cf.Citations, citationResponse{
					Ref:     c.Ref,
					ChunkID: c.ChunkID,
					Quote:   c.Quote,
				})
			}
			out.Fragments[i] = cf
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sess, err := deps.Sessions.Get(id)
		if err != nil {
			httpError(w, http.StatusNotFound, "invalid_request_error", "unknown session %s", id)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"turns":      sess.Entries(),
		})
	}
}

// IngestRequest indexes one source. Either Path (a file reachable by
// the server) or Content (inline text) must be set.
type IngestRequest struct {
	Path    string   `json:"path"`
	Content string   `json:"content"`
	Title   string   `json:"title"`
	Tags    []string `json:"tags"`
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Path == "" && req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of path or content is required")
			return
		}

		path := req.Path
		if path == "" {
			tmp, err := spoolContent(req.Title, req.Content)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "spooling content: %v", err)
				return
			}
			defer os.RemoveAll(filepath.Dir(tmp))
			path = tmp
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		report, err := deps.Pipeline.IngestFile(ctx, path, req.Tags)
		if err != nil {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "ingest failed: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, report)
	}
}

// spoolContent writes inline text to a temp file so the pipeline's
// file-based readers can process it.
func spoolContent(title, content string) (string, error) {
	name := title
	if name == "" {
		name = uuid.NewString()
	}
	dir, err := os.MkdirTemp("", "docent-ingest-*")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name+".txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return path, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
