package alert

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusDisabled  Status = "disabled"
	StatusInvalid   Status = "invalid" // parameters can never be evaluated
)

// Definition is one rule instance. Owner is empty for global alerts.
type Definition struct {
	ID           string        `json:"id"`
	Owner        string        `json:"owner,omitempty"`
	Symbol       string        `json:"symbol"`
	Kind         Kind          `json:"alertType"`
	Params       Params        `json:"params"`
	Condition    Condition     `json:"-"`
	Status       Status        `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	TriggeredAt  *time.Time    `json:"triggeredAt,omitempty"`
	TriggerCount int           `json:"triggerCount"`
	Cooldown     time.Duration `json:"-"`
	LastError    string        `json:"lastError,omitempty"`
}

// NewDefinition parses p into an active definition owned by owner.
func NewDefinition(owner string, p Params, now time.Time) (*Definition, error) {
	symbol := strings.ToLower(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, invalid("symbol is required")
	}

	cond, err := Parse(p)
	if err != nil {
		return nil, err
	}
	p.Symbol = symbol

	return &Definition{
		ID:        uuid.NewString(),
		Owner:     owner,
		Symbol:    symbol,
		Kind:      cond.Kind(),
		Params:    p,
		Condition: cond,
		Status:    StatusActive,
		CreatedAt: now,
		Cooldown:  p.Cooldown,
	}, nil
}

// Global reports whether the alert belongs to no session.
func (d *Definition) Global() bool { return d.Owner == "" }

// Reset rearms a triggered or invalid definition.
func (d *Definition) Reset() error {
	if d.Status == StatusInvalid {
		if err := Validate(d.Condition, 0); err != nil {
			return err
		}
	}
	d.Status = StatusActive
	d.LastError = ""
	return nil
}

func (d *Definition) Disable() { d.Status = StatusDisabled }

// Enable reactivates a disabled definition. Triggered ones need Reset.
func (d *Definition) Enable() error {
	if d.Status != StatusDisabled {
		return errors.New("alert is not disabled")
	}
	d.Status = StatusActive
	return nil
}

// Snapshot returns a copy safe to hand to other goroutines.
func (d *Definition) Snapshot() Definition {
	cp := *d
	if d.TriggeredAt != nil {
		t := *d.TriggeredAt
		cp.TriggeredAt = &t
	}
	return cp
}

func (d *Definition) markTriggered(now time.Time) {
	d.Status = StatusTriggered
	d.TriggeredAt = &now
	d.TriggerCount++
}

// rearm reactivates a triggered definition once its cooldown has elapsed.
func (d *Definition) rearm(now time.Time) {
	if d.Status != StatusTriggered || d.Cooldown <= 0 || d.TriggeredAt == nil {
		return
	}
	if now.Sub(*d.TriggeredAt) >= d.Cooldown {
		d.Status = StatusActive
	}
}
