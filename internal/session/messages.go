package session

import (
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/cache"
	"cryptopulse/pkg/marketdata"

	"github.com/shopspring/decimal"
)

// Inbound message types.
const (
	TypePing         = "ping"
	TypeRequestData  = "request_data"
	TypeForceRefresh = "force_refresh"
	TypeSubscribe    = "subscribe"
	TypeUnsubscribe  = "unsubscribe"
	TypeSetAlert     = "set_alert"
	TypeDeleteAlert  = "delete_alert"
	TypeResetAlert   = "reset_alert"
	TypeDisableAlert = "disable_alert"
	TypeEnableAlert  = "enable_alert"
	TypeListAlerts   = "list_alerts"
)

// Outbound message types.
const (
	TypeConnected      = "connected"
	TypeCryptoData     = "crypto_data"
	TypeDataUpdate     = "data_update"
	TypeAlertTriggered = "alert_triggered"
	TypeDefaultAlert   = "default_alert"
	TypePong           = "pong"
	TypeSystemError    = "system_error"
	TypeAlertCreated   = "alert_created"
	TypeAlertList      = "alert_list"
	TypeAlertDeleted   = "alert_deleted"
)

// Inbound is any client frame. set_alert carries the rule fields inline.
type Inbound struct {
	Type    string `json:"type"`
	AlertID string `json:"alertId,omitempty"`
	alert.Params
}

type Connected struct {
	Type           string    `json:"type"`
	SessionID      string    `json:"sessionId"`
	Initialized    bool      `json:"initialized"`
	ActiveSessions int       `json:"activeSessions"`
	CacheEnabled   bool      `json:"cacheEnabled"`
	Symbols        []string  `json:"symbols"`
	Timestamp      time.Time `json:"timestamp"`
}

// Record is the per-symbol shape clients render.
type Record struct {
	Symbol         string  `json:"symbol"`
	Price          float64 `json:"price"`
	PriceFormatted string  `json:"priceFormatted"`
	Change24h      float64 `json:"change24h"`
	Volume24h      float64 `json:"volume24h"`
	MarketCap      float64 `json:"marketCap"`
	GalaxyScore    float64 `json:"galaxyScore"`
	AltRank        int     `json:"altRank"`
	LastUpdated    string  `json:"lastUpdated,omitempty"`
	Source         string  `json:"source"`
}

type Data struct {
	Type      string                `json:"type"`
	Data      map[string]Record     `json:"data"`
	Metrics   cache.MetricsSnapshot `json:"metrics"`
	Timestamp time.Time             `json:"timestamp"`
}

type AlertTriggered struct {
	Type        string             `json:"type"`
	AlertID     string             `json:"alertId"`
	Symbol      string             `json:"symbol"`
	Definition  alert.Definition   `json:"definition"`
	TriggerData map[string]float64 `json:"triggerData"`
	Price       float64            `json:"triggerPrice"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
}

type Pong struct {
	Type      string                `json:"type"`
	Timestamp time.Time             `json:"timestamp"`
	Metrics   cache.MetricsSnapshot `json:"metrics"`
}

type SystemError struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Symbol    string    `json:"symbol,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type AlertCreated struct {
	Type  string           `json:"type"`
	Alert alert.Definition `json:"alert"`
}

type AlertList struct {
	Type   string             `json:"type"`
	Alerts []alert.Definition `json:"alerts"`
}

type AlertDeleted struct {
	Type    string `json:"type"`
	AlertID string `json:"alertId"`
}

// FormatRecord renders a record for clients.
func FormatRecord(r marketdata.Record) Record {
	places := int32(2)
	if r.Price != 0 && r.Price < 1 {
		places = 6
	}

	out := Record{
		Symbol:         r.Symbol,
		Price:          r.Price,
		PriceFormatted: decimal.NewFromFloat(r.Price).StringFixed(places),
		Change24h:      decimal.NewFromFloat(r.PercentChange24h).Round(2).InexactFloat64(),
		Volume24h:      r.Volume24h,
		MarketCap:      r.MarketCap,
		GalaxyScore:    r.GalaxyScore,
		AltRank:        r.AltRank,
		Source:         string(r.Provenance),
	}
	if !r.UpdatedAt.IsZero() {
		out.LastUpdated = r.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}

// NewAlertTriggered builds the notification for one trigger event.
func NewAlertTriggered(ev alert.TriggerEvent) AlertTriggered {
	typ := TypeAlertTriggered
	if ev.Owner == "" {
		typ = TypeDefaultAlert
	}
	return AlertTriggered{
		Type:        typ,
		AlertID:     ev.AlertID,
		Symbol:      ev.Symbol,
		Definition:  ev.Definition,
		TriggerData: ev.TriggerData,
		Price:       ev.TriggerPrice,
		Message:     ev.Message,
		Timestamp:   ev.TriggeredAt,
	}
}
