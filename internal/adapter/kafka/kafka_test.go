package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 6, 0, 0, 0, time.UTC)
	record := domain.HazardRecord{
		DistrictID: "IN-MH-01",
		Period:     "2021-06",
		Variable:   "2m_temperature_exceedance_count",
		Value:      7,
		ProducedAt: now,
	}

	msg, err := serializeToMessage(record)
	require.NoError(t, err)

	assert.Equal(t, []byte("IN-MH-01"), msg.Key)
	assert.Contains(t, string(msg.Value), `"period":"2021-06"`)
	assert.Contains(t, string(msg.Value), `"value":7`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "variable", msg.Headers[0].Key)
	assert.Equal(t, []byte("2m_temperature_exceedance_count"), msg.Headers[0].Value)
	assert.Equal(t, "produced_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}
