package gateway

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"github.com/rs/cors"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/services"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server exposes the reasoning engine over HTTP. Blocking turns return a
// single JSON response; streaming turns and conversation event feeds use SSE.
type Server struct {
	logger   *slog.Logger
	engine   *services.ReasoningEngine
	router   *services.ProviderRouter
	states   *services.StateManager
	invoker  *services.ToolInvoker
	eventBus *services.EventBus
}

func NewServer(
	logger *slog.Logger,
	engine *services.ReasoningEngine,
	router *services.ProviderRouter,
	states *services.StateManager,
	invoker *services.ToolInvoker,
	eventBus *services.EventBus,
) *Server {
	return &Server{
		logger:   logger,
		engine:   engine,
		router:   router,
		states:   states,
		invoker:  invoker,
		eventBus: eventBus,
	}
}

// Handler builds the full HTTP handler with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/conversations/{id}", s.handleGetConversation)
	mux.HandleFunc("GET /v1/conversations/{id}/events", s.handleConversationSSE)
	mux.HandleFunc("POST /v1/conversations/{id}/recover", s.handleRecover)
	mux.HandleFunc("POST /v1/conversations/{id}/terminate", s.handleTerminate)
	mux.HandleFunc("GET /v1/providers/health", s.handleProvidersHealth)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(mux)
}

type turnRequest struct {
	ConversationID string `json:"conversation_id"`
	AgentID        string `json:"agent_id"`
	UserID         string `json:"user_id"`
	Input          string `json:"input"`
	Stream         bool   `json:"stream"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.Input == "" {
		writeError(w, http.StatusBadRequest, "input cannot be empty")
		return
	}

	convID := domain.ConversationID(req.ConversationID)
	if convID == "" {
		convID = domain.NewConversationID()
	}
	turnCtx := domain.ConversationContext{AgentID: req.AgentID, UserID: req.UserID}

	if req.Stream {
		s.streamTurn(w, r, convID, req.Input, turnCtx)
		return
	}

	resp, err := s.engine.ProcessTurn(r.Context(), convID, req.Input, turnCtx)
	if err != nil {
		var agentErr *domain.AgentError
		if errors.As(err, &agentErr) && !agentErr.Retryable {
			writeError(w, http.StatusUnprocessableEntity, agentErr.Message)
			return
		}
		s.logger.Error("turn failed", "conversation_id", convID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, convID domain.ConversationID, input string, turnCtx domain.ConversationContext) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	events, err := s.engine.ProcessTurnStreaming(r.Context(), convID, input, turnCtx)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	for evt := range events {
		writeSSE(w, flusher, evt)
	}
}

// handleConversationSSE streams progress events for an existing conversation.
// Useful for observers following a turn driven by another client.
func (s *Server) handleConversationSSE(w http.ResponseWriter, r *http.Request) {
	convID := domain.ConversationID(r.PathValue("id"))
	if convID == "" {
		writeError(w, http.StatusBadRequest, "missing conversation id")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	setSSEHeaders(w)
	flusher.Flush()

	ch, unsub := s.eventBus.Subscribe(convID)
	defer unsub()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, flusher, evt)
		}
	}
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	convID := domain.ConversationID(r.PathValue("id"))
	state, err := s.states.Get(convID)
	if err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	convID := domain.ConversationID(r.PathValue("id"))
	recovered := s.states.AttemptRecovery(r.Context(), convID)
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"recovered":       recovered,
	})
}

func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	convID := domain.ConversationID(r.PathValue("id"))
	if err := s.states.Terminate(r.Context(), convID); err != nil {
		if errors.Is(err, domain.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": convID,
		"status":          domain.StatusCompleted,
	})
}

func (s *Server) handleProvidersHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.router.CheckAllHealth(r.Context()))
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.invoker.ListTools())
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, evt domain.ProgressEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
