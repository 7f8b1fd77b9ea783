package session

import (
	"sort"
	"time"

	"cryptopulse/internal/alert"
)

// Conn is the outbound half of a client connection. Send must not block for long;
// an error means the connection is gone.
type Conn interface {
	Send(payload []byte) error
	Close() error
}

// Session is one live client. It is owned by the Registry and touched only from the engine loop.
type Session struct {
	ID           string
	ConnectedAt  time.Time
	LastActivity time.Time

	conn          Conn
	subscriptions map[string]struct{}
	alerts        map[string]*alert.Definition
}

func (s *Session) Subscribe(symbol string) {
	s.subscriptions[symbol] = struct{}{}
}

func (s *Session) Unsubscribe(symbol string) {
	delete(s.subscriptions, symbol)
}

func (s *Session) Subscribed(symbol string) bool {
	_, ok := s.subscriptions[symbol]
	return ok
}

// Subscriptions returns the subscribed symbols, sorted.
func (s *Session) Subscriptions() []string {
	out := make([]string, 0, len(s.subscriptions))
	for sym := range s.subscriptions {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func (s *Session) AddAlert(def *alert.Definition) {
	s.alerts[def.ID] = def
}

func (s *Session) RemoveAlert(id string) bool {
	if _, ok := s.alerts[id]; !ok {
		return false
	}
	delete(s.alerts, id)
	return true
}

func (s *Session) Alert(id string) (*alert.Definition, bool) {
	def, ok := s.alerts[id]
	return def, ok
}

// Alerts returns the session's definitions, oldest first.
func (s *Session) Alerts() []*alert.Definition {
	out := make([]*alert.Definition, 0, len(s.alerts))
	for _, def := range s.alerts {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}
