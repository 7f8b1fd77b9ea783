package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/session"

	"go.uber.org/zap"
)

// HandleMessage processes one client frame. Client mistakes are answered with
// system_error; the returned error only reports a stopped or cancelled engine.
func (e *Engine) HandleMessage(ctx context.Context, id string, raw []byte) error {
	var in session.Inbound
	decodeErr := json.Unmarshal(raw, &in)

	return e.do(ctx, func() {
		s, ok := e.registry.Get(id)
		if !ok {
			return
		}
		s.Touch(e.now())

		if decodeErr != nil {
			e.replyError(id, "", "invalid message: "+decodeErr.Error())
			return
		}
		e.handle(s, in)
	})
}

func (e *Engine) handle(s *session.Session, in session.Inbound) {
	switch in.Type {
	case session.TypePing:
		e.reply(s.ID, session.Pong{
			Type:      session.TypePong,
			Timestamp: e.now(),
			Metrics:   e.source.Metrics().Snapshot(),
		})

	case session.TypeRequestData:
		e.sendSnapshot(s.ID, session.TypeCryptoData)

	case session.TypeForceRefresh:
		if e.State() != StateActive {
			e.replyError(s.ID, "", "data is still loading")
			return
		}
		e.startRefresh(true)

	case session.TypeSubscribe, session.TypeUnsubscribe:
		symbol := strings.ToLower(strings.TrimSpace(in.Symbol))
		if !e.tracked(symbol) {
			e.replyError(s.ID, symbol, fmt.Sprintf("symbol %q is not tracked", in.Symbol))
			return
		}
		if in.Type == session.TypeSubscribe {
			s.Subscribe(symbol)
			if _, ok := e.records[symbol]; ok {
				e.sendSnapshot(s.ID, session.TypeDataUpdate)
			}
		} else {
			s.Unsubscribe(symbol)
		}

	case session.TypeSetAlert:
		def, err := e.newAlert(s.ID, in.Params)
		if err != nil {
			e.replyError(s.ID, in.Symbol, err.Error())
			return
		}
		s.AddAlert(def)
		e.logger.Info("alert created",
			zap.String("session", s.ID),
			zap.String("alert", def.ID),
			zap.String("symbol", def.Symbol),
			zap.String("kind", string(def.Kind)))
		e.reply(s.ID, session.AlertCreated{Type: session.TypeAlertCreated, Alert: def.Snapshot()})

	case session.TypeDeleteAlert:
		if !s.RemoveAlert(in.AlertID) {
			e.replyError(s.ID, "", fmt.Sprintf("alert %q not found", in.AlertID))
			return
		}
		e.reply(s.ID, session.AlertDeleted{Type: session.TypeAlertDeleted, AlertID: in.AlertID})

	case session.TypeResetAlert:
		def, ok := s.Alert(in.AlertID)
		if !ok {
			e.replyError(s.ID, "", fmt.Sprintf("alert %q not found", in.AlertID))
			return
		}
		if err := def.Reset(); err != nil {
			e.replyError(s.ID, def.Symbol, err.Error())
			return
		}
		e.replyAlerts(s)

	case session.TypeDisableAlert, session.TypeEnableAlert:
		def, ok := s.Alert(in.AlertID)
		if !ok {
			e.replyError(s.ID, "", fmt.Sprintf("alert %q not found", in.AlertID))
			return
		}
		if in.Type == session.TypeDisableAlert {
			def.Disable()
		} else if err := def.Enable(); err != nil {
			e.replyError(s.ID, def.Symbol, err.Error())
			return
		}
		e.replyAlerts(s)

	case session.TypeListAlerts:
		e.replyAlerts(s)

	default:
		e.replyError(s.ID, "", fmt.Sprintf("unknown message type %q", in.Type))
	}
}

func (e *Engine) newAlert(owner string, p alert.Params) (*alert.Definition, error) {
	def, err := alert.NewDefinition(owner, p, e.now())
	if err != nil {
		return nil, err
	}
	if !e.tracked(def.Symbol) {
		return nil, fmt.Errorf("%w: symbol %q is not tracked", alert.ErrInvalidRule, def.Symbol)
	}
	if err := alert.Validate(def.Condition, e.cfg.HistoryCapacity); err != nil {
		return nil, err
	}
	return def, nil
}

func (e *Engine) tracked(symbol string) bool {
	for _, s := range e.cfg.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

func (e *Engine) replyAlerts(s *session.Session) {
	defs := s.Alerts()
	out := make([]alert.Definition, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Snapshot())
	}
	e.reply(s.ID, session.AlertList{Type: session.TypeAlertList, Alerts: out})
}

func (e *Engine) replyError(id, symbol, msg string) {
	e.reply(id, session.SystemError{
		Type:      session.TypeSystemError,
		Message:   msg,
		Symbol:    symbol,
		Timestamp: e.now(),
	})
}

func (e *Engine) reply(id string, v any) {
	if err := e.registry.SendTo(id, v); err != nil {
		var sf *session.SendFailure
		if errors.As(err, &sf) {
			e.afterSend()
		}
	}
}

// CheckAlerts evaluates every alert against the records held right now,
// without fetching, and delivers whatever fires.
func (e *Engine) CheckAlerts(ctx context.Context) ([]alert.TriggerEvent, error) {
	var events []alert.TriggerEvent
	err := e.do(ctx, func() {
		events = e.evaluator.Evaluate(e.records, e.definitions())
		e.deliver(events)
		e.afterSend()
	})
	return events, err
}
