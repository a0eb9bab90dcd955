// pkg/model/coerce.go
package model

import (
	"fmt"
	"strconv"
	"time"
)

// RawRecord is the loosely-typed row shape delivered by the extraction
// collaborator. Field names follow the staging source.
type RawRecord map[string]interface{}

// CoerceRecord converts a raw record into a typed EventRecord. A record
// that cannot be coerced (missing or malformed natural key fields) is
// rejected with an error so the caller can isolate it from its batch.
func CoerceRecord(raw RawRecord, now time.Time) (EventRecord, error) {
	var rec EventRecord

	gameID, err := requireInt64(raw, "game_id")
	if err != nil {
		return rec, err
	}

	gameType, err := requireString(raw, "game_type")
	if err != nil {
		return rec, err
	}

	status, err := requireString(raw, "status_code")
	if err != nil {
		return rec, err
	}

	rec = EventRecord{
		GameID:       gameID,
		GameType:     gameType,
		StatusCode:   status,
		Season:       optionalInt64Value(raw, "season"),
		GameDate:     optionalStringValue(raw, "game_date"),
		HomeTeamID:   optionalInt64(raw, "home_team_id"),
		AwayTeamID:   optionalInt64(raw, "away_team_id"),
		HomeTeamName: optionalString(raw, "home_team_name"),
		AwayTeamName: optionalString(raw, "away_team_name"),
		HomeScore:    optionalInt64(raw, "home_score"),
		AwayScore:    optionalInt64(raw, "away_score"),
		VenueID:      optionalInt64(raw, "venue_id"),
		VenueName:    optionalString(raw, "venue_name"),
		IngestedAt:   now.UTC().Format(time.RFC3339),
	}

	return rec, nil
}

// isNull determines if a raw value should be treated as NULL
func isNull(value interface{}) bool {
	if value == nil {
		return true
	}

	if strVal, ok := value.(string); ok {
		switch strVal {
		case "", "null", "NULL", "nil", "NIL":
			return true
		}
	}

	return false
}

func asInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case []byte:
		return asInt64(string(v))
	case string:
		if floatVal, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(floatVal), nil
		}
		return 0, fmt.Errorf("cannot convert string %q to integer", v)
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case time.Time:
		return v.Format("2006-01-02"), nil
	case int, int32, int64, float32, float64, bool:
		return fmt.Sprintf("%v", v), nil
	default:
		return "", fmt.Errorf("cannot convert %T to string", value)
	}
}

func requireInt64(raw RawRecord, field string) (int64, error) {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return 0, fmt.Errorf("required field %s is missing", field)
	}

	n, err := asInt64(value)
	if err != nil {
		return 0, fmt.Errorf("field %s: %w", field, err)
	}
	return n, nil
}

func requireString(raw RawRecord, field string) (string, error) {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return "", fmt.Errorf("required field %s is missing", field)
	}

	s, err := asString(value)
	if err != nil {
		return "", fmt.Errorf("field %s: %w", field, err)
	}
	return s, nil
}

func optionalInt64(raw RawRecord, field string) *int64 {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return nil
	}

	n, err := asInt64(value)
	if err != nil {
		return nil
	}
	return &n
}

func optionalInt64Value(raw RawRecord, field string) int64 {
	if p := optionalInt64(raw, field); p != nil {
		return *p
	}
	return 0
}

func optionalString(raw RawRecord, field string) *string {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return nil
	}

	s, err := asString(value)
	if err != nil {
		return nil
	}
	return &s
}

func optionalStringValue(raw RawRecord, field string) string {
	if p := optionalString(raw, field); p != nil {
		return *p
	}
	return ""
}
