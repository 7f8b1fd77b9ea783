package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/cache"
	"cryptopulse/pkg/marketdata"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// SendFailure means a session's connection rejected a write. The session has been removed.
type SendFailure struct {
	SessionID string
	Cause     error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send to session %s: %v", e.SessionID, e.Cause)
}

func (e *SendFailure) Unwrap() error {
	return e.Cause
}

// Registry tracks live sessions and fans messages out to them.
// It is not safe for concurrent use; the engine loop is its only caller.
type Registry struct {
	symbols  []string
	sessions map[string]*Session
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistry creates a registry whose sessions default-subscribe to symbols.
func NewRegistry(symbols []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		symbols:  append([]string(nil), symbols...),
		sessions: make(map[string]*Session),
		logger:   logger,
		now:      time.Now,
	}
}

// Register stores a new session subscribed to every tracked symbol.
func (r *Registry) Register(conn Conn) *Session {
	now := r.now()
	s := &Session{
		ID:            uuid.NewString(),
		ConnectedAt:   now,
		LastActivity:  now,
		conn:          conn,
		subscriptions: make(map[string]struct{}, len(r.symbols)),
		alerts:        make(map[string]*alert.Definition),
	}
	for _, sym := range r.symbols {
		s.subscriptions[sym] = struct{}{}
	}
	r.sessions[s.ID] = s
	r.logger.Info("session registered", zap.String("session", s.ID), zap.Int("sessions", len(r.sessions)))
	return s
}

// Unregister removes a session. It reports whether the session existed.
func (r *Registry) Unregister(id string) bool {
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	r.logger.Info("session unregistered", zap.String("session", id), zap.Int("sessions", len(r.sessions)))
	return true
}

// CloseAll removes every session and closes its connection.
func (r *Registry) CloseAll() {
	for id, s := range r.sessions {
		delete(r.sessions, id)
		_ = s.conn.Close()
	}
	r.logger.Info("all sessions closed")
}

func (r *Registry) Get(id string) (*Session, bool) {
	s, ok := r.sessions[id]
	return s, ok
}

func (r *Registry) Len() int { return len(r.sessions) }

// Symbols returns the tracked symbols.
func (r *Registry) Symbols() []string { return append([]string(nil), r.symbols...) }

// Sessions returns the live sessions ordered by connection time.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Broadcast sends each session the records it is subscribed to.
// Sessions whose send fails are removed; delivery to the others continues.
// It returns the ids of removed sessions.
func (r *Registry) Broadcast(msgType string, records map[string]marketdata.Record, metrics cache.MetricsSnapshot) []string {
	var removed []string
	now := r.now()

	for _, s := range r.Sessions() {
		data := make(map[string]Record)
		for sym, rec := range records {
			if s.Subscribed(sym) {
				data[sym] = FormatRecord(rec)
			}
		}
		if len(data) == 0 {
			continue
		}

		payload, err := json.Marshal(Data{Type: msgType, Data: data, Metrics: metrics, Timestamp: now})
		if err != nil {
			r.logger.Error("encode broadcast", zap.Error(err))
			continue
		}
		if err := r.deliver(s, payload); err != nil {
			removed = append(removed, s.ID)
		}
	}
	return removed
}

// SendTo delivers v to one session. A failed send removes the session and returns *SendFailure.
func (r *Registry) SendTo(id string, v any) error {
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return r.deliver(s, payload)
}

// SendToSubscribers delivers v to every session subscribed to symbol and returns removed ids.
func (r *Registry) SendToSubscribers(symbol string, v any) []string {
	return r.fanOut(v, func(s *Session) bool { return s.Subscribed(symbol) })
}

// SendAll delivers v to every session and returns removed ids.
func (r *Registry) SendAll(v any) []string {
	return r.fanOut(v, func(*Session) bool { return true })
}

func (r *Registry) fanOut(v any, match func(*Session) bool) []string {
	payload, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("encode message", zap.Error(err))
		return nil
	}

	var removed []string
	for _, s := range r.Sessions() {
		if !match(s) {
			continue
		}
		if err := r.deliver(s, payload); err != nil {
			removed = append(removed, s.ID)
		}
	}
	return removed
}

func (r *Registry) deliver(s *Session, payload []byte) error {
	if err := s.conn.Send(payload); err != nil {
		delete(r.sessions, s.ID)
		_ = s.conn.Close()
		r.logger.Warn("send failed, session removed",
			zap.String("session", s.ID),
			zap.Int("sessions", len(r.sessions)),
			zap.Error(err))
		return &SendFailure{SessionID: s.ID, Cause: err}
	}
	return nil
}
