package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cryptopulse/internal/alert"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var onTriggerConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "alert_id"}, {Name: "triggered_at"}},
	DoNothing: true,
}

func (p *PostgresClient) InsertTrigger(ctx context.Context, record *TriggerRecord) error {
	tx := p.DB.WithContext(ctx).Clauses(onTriggerConflict).Create(record)
	if tx.Error != nil {
		return tx.Error
	}

	if tx.RowsAffected == 0 {
		return fmt.Errorf(
			"duplicate trigger skipped: alert=%s triggered_at=%s",
			record.AlertID,
			record.TriggeredAt.Format(time.RFC3339Nano),
		)
	}

	return nil
}

// SaveTriggers stores a batch of trigger events in one transaction. Duplicates are ignored.
func (p *PostgresClient) SaveTriggers(ctx context.Context, events []alert.TriggerEvent) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]*TriggerRecord, 0, len(events))
	for _, ev := range events {
		rec, err := ToTriggerRecord(ev)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}

	return p.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(onTriggerConflict).Create(&records).Error
	})
}

// ListTriggers returns the newest triggers first. An empty symbol matches all.
func (p *PostgresClient) ListTriggers(ctx context.Context, symbol string, limit int) ([]TriggerRecord, error) {
	q := p.DB.WithContext(ctx).Order("triggered_at DESC")
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var out []TriggerRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteTriggersBefore prunes history and returns the number of rows removed.
func (p *PostgresClient) DeleteTriggersBefore(ctx context.Context, before time.Time) (int64, error) {
	tx := p.DB.WithContext(ctx).
		Where("triggered_at < ?", before).
		Delete(&TriggerRecord{})
	return tx.RowsAffected, tx.Error
}

// ToTriggerRecord converts a trigger event into a TriggerRecord for DB insertion.
func ToTriggerRecord(ev alert.TriggerEvent) (*TriggerRecord, error) {
	if ev.AlertID == "" {
		return nil, fmt.Errorf("trigger without alert id for %s", ev.Symbol)
	}

	data, err := json.Marshal(ev.TriggerData)
	if err != nil {
		return nil, fmt.Errorf("encode trigger data: %w", err)
	}
	params, err := json.Marshal(ev.Definition.Params)
	if err != nil {
		return nil, fmt.Errorf("encode alert params: %w", err)
	}

	return &TriggerRecord{
		AlertID:      ev.AlertID,
		TriggeredAt:  ev.TriggeredAt.UTC(),
		Owner:        ev.Owner,
		Symbol:       ev.Symbol,
		Kind:         string(ev.Kind),
		TriggerPrice: ev.TriggerPrice,
		Message:      ev.Message,
		TriggerData:  string(data),
		Params:       string(params),
	}, nil
}
