// pkg/model/coerce_test.go
package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerceRecord(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)

	raw := RawRecord{
		"game_id":        int64(745123),
		"game_type":      "R",
		"season":         2026,
		"game_date":      "2026-08-22",
		"status_code":    "F",
		"home_team_id":   float64(144),
		"away_team_id":   "121",
		"home_team_name": "Atlanta Braves",
		"home_score":     int32(5),
		"away_score":     int64(3),
	}

	rec, err := CoerceRecord(raw, now)
	require.NoError(t, err)

	assert.Equal(t, int64(745123), rec.GameID)
	assert.Equal(t, "R", rec.GameType)
	assert.Equal(t, int64(2026), rec.Season)
	assert.Equal(t, "2026-08-22", rec.GameDate)
	assert.Equal(t, "F", rec.StatusCode)
	require.NotNil(t, rec.HomeTeamID)
	assert.Equal(t, int64(144), *rec.HomeTeamID)
	require.NotNil(t, rec.AwayTeamID)
	assert.Equal(t, int64(121), *rec.AwayTeamID)
	require.NotNil(t, rec.HomeScore)
	assert.Equal(t, int64(5), *rec.HomeScore)
	assert.Equal(t, "2026-08-23T12:00:00Z", rec.IngestedAt)
	assert.Nil(t, rec.VenueID)
	assert.Nil(t, rec.AwayTeamName)
}

func TestCoerceRecordRejectsMissingKeyFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  RawRecord
	}{
		{
			name: "missing game_id",
			raw:  RawRecord{"game_type": "R", "status_code": "F"},
		},
		{
			name: "null game_id",
			raw:  RawRecord{"game_id": nil, "game_type": "R", "status_code": "F"},
		},
		{
			name: "empty string game_type",
			raw:  RawRecord{"game_id": int64(1), "game_type": "", "status_code": "F"},
		},
		{
			name: "missing status_code",
			raw:  RawRecord{"game_id": int64(1), "game_type": "R"},
		},
		{
			name: "unparseable game_id",
			raw:  RawRecord{"game_id": "not-a-number", "game_type": "R", "status_code": "F"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := CoerceRecord(tt.raw, time.Now())
			assert.Error(t, err)
		})
	}
}

func TestCoerceRecordTreatsNullMarkersAsAbsent(t *testing.T) {
	t.Parallel()

	raw := RawRecord{
		"game_id":     "745123",
		"game_type":   "R",
		"status_code": "DS",
		"home_score":  "null",
		"away_score":  "NULL",
		"venue_name":  "",
	}

	rec, err := CoerceRecord(raw, time.Now())
	require.NoError(t, err)

	assert.Nil(t, rec.HomeScore)
	assert.Nil(t, rec.AwayScore)
	assert.Nil(t, rec.VenueName)
}

func TestEffectiveDate(t *testing.T) {
	t.Parallel()

	rec := EventRecord{GameDate: "2026-08-22"}
	assert.Equal(t, time.Date(2026, 8, 22, 0, 0, 0, 0, time.UTC), rec.EffectiveDate())

	assert.True(t, (&EventRecord{GameDate: ""}).EffectiveDate().IsZero())
	assert.True(t, (&EventRecord{GameDate: "yesterday"}).EffectiveDate().IsZero())
}

func TestNaturalKeyString(t *testing.T) {
	t.Parallel()

	rec := EventRecord{GameID: 745123, GameType: "R"}
	assert.Equal(t, "745123/R", rec.Key().String())
}
