package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cryptopulse/pkg/storage/postgres"

	"github.com/gin-gonic/gin"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// TriggerHistory reads persisted alert triggers, newest first.
type TriggerHistory interface {
	ListTriggers(ctx context.Context, symbol string, limit int) ([]postgres.TriggerRecord, error)
}

// SetTriggerHistory enables GET /alerts/history. Call it before serving.
func (s *Server) SetTriggerHistory(h TriggerHistory) {
	s.history = h
}

type triggerView struct {
	AlertID      string          `json:"alertId"`
	Owner        string          `json:"owner,omitempty"`
	Symbol       string          `json:"symbol"`
	Kind         string          `json:"alertType"`
	TriggerPrice float64         `json:"triggerPrice"`
	TriggerData  json.RawMessage `json:"triggerData,omitempty"`
	Message      string          `json:"message"`
	TriggeredAt  time.Time       `json:"triggeredAt"`
}

func (s *Server) getAlertHistory(c *gin.Context) {
	if s.history == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "trigger history is not configured"})
		return
	}

	limit, err := historyLimit(c.Query("limit"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	symbol := strings.ToLower(strings.TrimSpace(c.Query("symbol")))

	rows, err := s.history.ListTriggers(c.Request.Context(), symbol, limit)
	if err != nil {
		s.abort(c, err)
		return
	}

	out := make([]triggerView, 0, len(rows))
	for _, r := range rows {
		v := triggerView{
			AlertID:      r.AlertID,
			Owner:        r.Owner,
			Symbol:       r.Symbol,
			Kind:         r.Kind,
			TriggerPrice: r.TriggerPrice,
			Message:      r.Message,
			TriggeredAt:  r.TriggeredAt.UTC(),
		}
		if json.Valid([]byte(r.TriggerData)) {
			v.TriggerData = json.RawMessage(r.TriggerData)
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(out),
		"triggers": out,
	})
}

func historyLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", raw)
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}
