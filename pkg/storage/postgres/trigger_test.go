package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/pkg/storage/postgres"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triggerEvent(symbol string, price float64, at time.Time) alert.TriggerEvent {
	id := uuid.NewString()
	return alert.TriggerEvent{
		AlertID:      id,
		Owner:        "session-1",
		Symbol:       symbol,
		Kind:         alert.KindPriceAbove,
		TriggerPrice: price,
		TriggerData:  map[string]float64{"price": price},
		Message:      "price crossed above threshold",
		TriggeredAt:  at,
		Definition: alert.Definition{
			ID:     id,
			Symbol: symbol,
			Kind:   alert.KindPriceAbove,
			Params: alert.Params{Type: "price_above", Symbol: symbol, Threshold: 100000},
		},
	}
}

// go test -v --run TestToTriggerRecord
func TestToTriggerRecord(t *testing.T) {
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	ev := triggerEvent("bitcoin", 101000, at)

	rec, err := postgres.ToTriggerRecord(ev)
	require.NoError(t, err)
	assert.Equal(t, ev.AlertID, rec.AlertID)
	assert.Equal(t, "price_above", rec.Kind)
	assert.Equal(t, time.UTC, rec.TriggeredAt.Location())
	assert.True(t, rec.TriggeredAt.Equal(at))

	var data map[string]float64
	require.NoError(t, json.Unmarshal([]byte(rec.TriggerData), &data))
	assert.Equal(t, 101000.0, data["price"])

	var params map[string]any
	require.NoError(t, json.Unmarshal([]byte(rec.Params), &params))
	assert.Equal(t, 100000.0, params["threshold"])

	_, err = postgres.ToTriggerRecord(alert.TriggerEvent{Symbol: "bitcoin"})
	require.Error(t, err)
}

// go test -v --run TestTriggerCRUD
func TestTriggerCRUD(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	symbol := "test-" + uuid.NewString()[:8]
	old := triggerEvent(symbol, 90000, now.Add(-48*time.Hour))
	fresh := triggerEvent(symbol, 101000, now)

	require.NoError(t, client.SaveTriggers(ctx, []alert.TriggerEvent{old, fresh}))
	require.NoError(t, client.SaveTriggers(ctx, []alert.TriggerEvent{fresh}), "duplicates are ignored")

	dup, err := postgres.ToTriggerRecord(fresh)
	require.NoError(t, err)
	require.Error(t, client.InsertTrigger(ctx, dup))

	got, err := client.ListTriggers(ctx, symbol, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fresh.AlertID, got[0].AlertID, "newest first")

	n, err := client.DeleteTriggersBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err = client.ListTriggers(ctx, symbol, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = client.DeleteTriggersBefore(ctx, now.Add(time.Hour))
	require.NoError(t, err)
}
