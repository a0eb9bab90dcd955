// pkg/model/record.go
package model

import (
	"fmt"
	"time"
)

// EventRecord is one captured instance of a logical game event. The
// warehouse may hold several physical rows for the same natural key
// until the resolver or sync engine reconciles them; IngestID is the
// warehouse-assigned row identity and the last-resort ordering for
// conflict resolution.
type EventRecord struct {
	IngestID     int64   `db:"ingest_id" json:"ingestId"`
	GameID       int64   `db:"game_id" json:"gameId"`
	GameType     string  `db:"game_type" json:"gameType"`
	Season       int64   `db:"season" json:"season"`
	GameDate     string  `db:"game_date" json:"gameDate"` // YYYY-MM-DD
	StatusCode   string  `db:"status_code" json:"statusCode"`
	HomeTeamID   *int64  `db:"home_team_id" json:"homeTeamId,omitempty"`
	AwayTeamID   *int64  `db:"away_team_id" json:"awayTeamId,omitempty"`
	HomeTeamName *string `db:"home_team_name" json:"homeTeamName,omitempty"`
	AwayTeamName *string `db:"away_team_name" json:"awayTeamName,omitempty"`
	HomeScore    *int64  `db:"home_score" json:"homeScore,omitempty"`
	AwayScore    *int64  `db:"away_score" json:"awayScore,omitempty"`
	VenueID      *int64  `db:"venue_id" json:"venueId,omitempty"`
	VenueName    *string `db:"venue_name" json:"venueName,omitempty"`
	IngestedAt   string  `db:"ingested_at" json:"ingestedAt"` // RFC 3339
}

// NaturalKey identifies one logical event. Extraction may emit multiple
// physical rows for the same key; exactly one survives reconciliation.
type NaturalKey struct {
	GameID   int64
	GameType string
}

// Key returns the record's natural key
func (r *EventRecord) Key() NaturalKey {
	return NaturalKey{GameID: r.GameID, GameType: r.GameType}
}

// String returns the canonical formatting of a natural key
func (k NaturalKey) String() string {
	return fmt.Sprintf("%d/%s", k.GameID, k.GameType)
}

// EffectiveDate parses the record's game date. A zero time is returned
// for missing or unparseable dates so they sort last.
func (r *EventRecord) EffectiveDate() time.Time {
	if r.GameDate == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", r.GameDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// OutcomeFields returns the nullable numeric outcome fields used by the
// default completeness scorer.
func (r *EventRecord) OutcomeFields() []*int64 {
	return []*int64{r.HomeScore, r.AwayScore}
}
