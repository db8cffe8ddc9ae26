package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vendabot/vendabot/internal/config"
	"github.com/vendabot/vendabot/internal/guard"
	"github.com/vendabot/vendabot/internal/history"
	"github.com/vendabot/vendabot/internal/llm"
	"github.com/vendabot/vendabot/internal/logger"
	"github.com/vendabot/vendabot/internal/mcpserver"
	"github.com/vendabot/vendabot/internal/sales"
	"github.com/vendabot/vendabot/internal/session"
	"github.com/vendabot/vendabot/pkg/tools"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	store, err := sales.OpenSQLite(cfg.Sales.DBPath)
	if err != nil {
		logger.L.Error("failed to open sales store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if cfg.Sales.Seed {
		if err := store.Seed(context.Background()); err != nil {
			logger.L.Error("failed to seed sales store", "error", err)
			os.Exit(1)
		}
	}

	registry := tools.NewRegistry()
	for _, t := range tools.NewSalesTools(store, time.Now) {
		registry.Register(t)
	}

	// "vendabot mcp" serves the analytics tools over MCP stdio instead of
	// starting the chat server.
	if len(os.Args) > 1 && os.Args[1] == "mcp" {
		if err := mcpserver.ServeStdio(mcpserver.New(registry, version)); err != nil {
			logger.L.Error("mcp server terminated", "error", err)
			os.Exit(1)
		}
		return
	}

	g, err := guard.New(guardOptions(cfg.Guard))
	if err != nil {
		logger.L.Error("failed to build input guard", "error", err)
		os.Exit(1)
	}

	audit := history.NewStore(cfg.History.DBPath)
	defer audit.Close()

	llmClient := llm.NewClient(cfg.LLM)
	manager := newSessionManager(func(id string) *session.Session {
		return session.New(llmClient, g, registry, session.Options{
			ID:       id,
			Model:    cfg.LLM.Model,
			Recorder: auditRecorder{store: audit},
		})
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Message string `json:"message"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}

		ms, sessionID := manager.resolve(r.Header.Get("X-Session-ID"))
		w.Header().Set("X-Session-ID", sessionID)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		ms.mu.Lock()
		defer ms.mu.Unlock()
		for fragment := range ms.session.Send(r.Context(), req.Message) {
			// Fragments may span lines, so each SSE event carries a
			// JSON-encoded string.
			data, err := json.Marshal(fragment)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	})

	r.Get("/history", func(w http.ResponseWriter, r *http.Request) {
		ms, sessionID := manager.resolve(r.Header.Get("X-Session-ID"))
		w.Header().Set("X-Session-ID", sessionID)

		ms.mu.Lock()
		turns := ms.session.History()
		ms.mu.Unlock()

		type turnDTO struct {
			Role      string    `json:"role"`
			Content   string    `json:"content"`
			Timestamp time.Time `json:"timestamp"`
			IsError   bool      `json:"is_error"`
		}
		out := make([]turnDTO, 0, len(turns))
		for _, t := range turns {
			out = append(out, turnDTO{Role: string(t.Role), Content: t.Content, Timestamp: t.Timestamp, IsError: t.IsError})
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Post("/clear", func(w http.ResponseWriter, r *http.Request) {
		ms, sessionID := manager.resolve(r.Header.Get("X-Session-ID"))
		w.Header().Set("X-Session-ID", sessionID)

		ms.mu.Lock()
		ms.session.Clear()
		ms.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.L.Info("starting server", "address", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.L.Error("server terminated", "error", err)
		os.Exit(1)
	}
}

func guardOptions(cfg config.GuardConfig) guard.Options {
	rules := make([]guard.Rule, 0, len(cfg.InjectionRules))
	for _, r := range cfg.InjectionRules {
		rules = append(rules, guard.Rule{Name: r.Name, Pattern: r.Pattern})
	}
	return guard.Options{
		InjectionRules: rules,
		DomainKeywords: cfg.DomainKeywords,
		GreetingWords:  cfg.GreetingWords,
		MaxLength:      cfg.MaxMessageLength,
		RuleTimeout:    time.Duration(cfg.RuleTimeoutMillis) * time.Millisecond,
	}
}

// managedSession pairs a session with the mutex that serializes callers, as
// sessions themselves are single-caller by contract.
type managedSession struct {
	mu      sync.Mutex
	session *session.Session
}

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*managedSession
	create   func(id string) *session.Session
}

func newSessionManager(create func(id string) *session.Session) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*managedSession),
		create:   create,
	}
}

// resolve returns the session for id, creating it (and minting an id) when
// needed.
func (m *sessionManager) resolve(id string) (*managedSession, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	ms, ok := m.sessions[id]
	if !ok {
		ms = &managedSession{session: m.create(id)}
		m.sessions[id] = ms
	}
	return ms, id
}

type auditRecorder struct {
	store *history.Store
}

func (a auditRecorder) Record(sessionID string, turn session.Turn) {
	a.store.Save(history.Record{
		SessionID: sessionID,
		Role:      string(turn.Role),
		Content:   turn.Content,
		IsError:   turn.IsError,
		CreatedAt: turn.Timestamp,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}
