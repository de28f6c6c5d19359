package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/charvoice/platform/internal/character"
	"github.com/charvoice/platform/internal/errors"
	"github.com/charvoice/platform/internal/metrics"
	"github.com/charvoice/platform/internal/trace"
	"github.com/charvoice/platform/internal/voice"
	"github.com/charvoice/platform/internal/voice/transcript"
)

// Sessions is the session control surface the server drives.
type Sessions interface {
	Start(ctx context.Context, characterID string, cb voice.Callbacks) (*voice.Session, error)
	Stop(characterID string)
}

// Inbound control messages.
type Message struct {
	Type string `json:"type"`
}

type StartMessage struct {
	Type        string `json:"type"`
	CharacterID string `json:"character_id"`
}

// Outbound messages.
type StatusMessage struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

type TranscriptMessage struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type StoppedMessage struct {
	Type string `json:"type"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// wsWriter serializes writes to one connection; session callbacks and the
// read loop both send on it.
type wsWriter struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsWriter) send(msg any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	_ = wsjson.Write(ctx, w.conn, msg)
}

// Server exposes the REST API, the session control WebSocket, and metrics.
type Server struct {
	sessions Sessions
	chars    *character.Store
	gatherer prometheus.Gatherer
}

// New creates a server over the given session manager and character store.
func New(sessions Sessions, chars *character.Store, gatherer prometheus.Gatherer) *Server {
	return &Server{sessions: sessions, chars: chars, gatherer: gatherer}
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(trace.Middleware)
	r.Use(corsMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/characters", s.handleCharacters)
	r.Get("/ws", s.handleWebSocket)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(s.gatherer))
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCharacters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chars.List())
}

// handleWebSocket runs the session control protocol: the client starts and
// stops one live session at a time; status and transcript updates stream
// back. Disconnect tears the session down.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	conn.SetReadLimit(maxControlBytes)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	writer := &wsWriter{conn: conn}
	limiter := &rateLimiter{}

	var activeCharacter string
	defer func() {
		if activeCharacter != "" {
			s.sessions.Stop(activeCharacter)
		}
	}()

	for {
		var raw json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !limiter.allow() {
			writer.send(ErrorMessage{Type: "error", Code: "RATE_LIMITED", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(raw, &base); err != nil {
			continue
		}

		switch base.Type {
		case "start":
			var start StartMessage
			if err := json.Unmarshal(raw, &start); err != nil || start.CharacterID == "" {
				writer.send(ErrorMessage{Type: "error", Code: string(errors.CodeInvalidConfig), Message: "start requires character_id"})
				continue
			}
			s.startSession(baseCtx, writer, &activeCharacter, start.CharacterID)

		case "stop":
			if activeCharacter != "" {
				s.sessions.Stop(activeCharacter)
				activeCharacter = ""
			}
		}
	}
}

func (s *Server) startSession(ctx context.Context, writer *wsWriter, activeCharacter *string, characterID string) {
	log := trace.Logger(ctx)

	cb := voice.Callbacks{
		OnStatus: func(st voice.Status) {
			writer.send(StatusMessage{Type: "status", Status: string(st)})
		},
		OnTranscript: func(line transcript.Line) {
			writer.send(TranscriptMessage{
				Type:    "transcript",
				Speaker: line.Speaker.String(),
				Text:    line.Text,
			})
		},
	}

	sess, err := s.sessions.Start(ctx, characterID, cb)
	if err != nil {
		log.Warn("session start rejected", "character", characterID, "error", err)
		writer.send(ErrorMessage{
			Type:    "error",
			Code:    string(errors.CodeOf(err)),
			Message: err.Error(),
		})
		return
	}

	*activeCharacter = characterID
	go func() {
		<-sess.Done()
		if sess.State() == voice.StateClosed {
			writer.send(StoppedMessage{Type: "stopped"})
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
