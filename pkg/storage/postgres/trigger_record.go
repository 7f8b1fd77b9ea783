package postgres

import "time"

// TriggerRecord is one fired alert. Global alerts have an empty Owner.
type TriggerRecord struct {
	ID uint `gorm:"primaryKey"`

	// unique index
	AlertID     string    `gorm:"type:text;not null;index:idx_trigger_alert_at,unique"`
	TriggeredAt time.Time `gorm:"not null;index:idx_trigger_alert_at,unique;index:idx_trigger_triggered_at"`

	Owner  string `gorm:"type:text;not null;default:'';index:idx_trigger_owner"`
	Symbol string `gorm:"type:text;not null;index:idx_trigger_symbol"`
	Kind   string `gorm:"type:varchar(32);not null"`

	TriggerPrice float64 `gorm:"type:numeric;not null"`
	Message      string  `gorm:"type:text"`
	TriggerData  string  `gorm:"type:jsonb"`
	Params       string  `gorm:"type:jsonb"`

	RecordedAt time.Time `gorm:"autoCreateTime"`
}

// TableName overrides the default table name for GORM.
func (TriggerRecord) TableName() string {
	return "alert_trigger"
}
