// pkg/sync/sync.go
package sync

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/elijahcraig45/hanks-tank-data/pkg/model"
	"github.com/elijahcraig45/hanks-tank-data/pkg/resolve"
	"github.com/elijahcraig45/hanks-tank-data/pkg/warehouse"
)

// RecordError captures one record that could not be synced, keyed by
// its position in the incoming batch since malformed records may lack a
// usable natural key.
type RecordError struct {
	Index  int    `json:"index"`
	Key    string `json:"key,omitempty"`
	Reason string `json:"reason"`
}

// Result accounts for every record in a synced batch
type Result struct {
	Table    string        `json:"table"`
	Received int           `json:"received"`
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Skipped  int           `json:"skipped"`
	Errors   []RecordError `json:"errors,omitempty"`
}

// Failed returns the number of records that could not be applied
func (r *Result) Failed() int {
	return len(r.Errors)
}

// Engine applies incoming raw records to a warehouse table under the
// authority policy: new keys insert, incoming records that outrank the
// stored one replace it, everything else is skipped. Applying the same
// batch twice leaves the table unchanged.
type Engine struct {
	store  *warehouse.Store
	policy *resolve.AuthorityPolicy
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a sync engine using the given authority policy
func NewEngine(store *warehouse.Store, policy *resolve.AuthorityPolicy, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		policy: policy,
		logger: logger.Named("sync"),
		now:    time.Now,
	}
}

// WithClock overrides the engine's clock used for ingestion timestamps
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Sync applies one batch of raw records to a table. Each record is
// isolated: coercion failures and per-record write failures are
// recorded in the result and do not stop the batch.
func (e *Engine) Sync(ctx context.Context, table string, batch []model.RawRecord) (*Result, error) {
	result := &Result{Table: table, Received: len(batch)}

	for i, raw := range batch {
		rec, err := model.CoerceRecord(raw, e.now())
		if err != nil {
			result.Errors = append(result.Errors, RecordError{
				Index:  i,
				Reason: err.Error(),
			})
			continue
		}

		action, err := e.applyRecord(ctx, table, &rec)
		if err != nil {
			e.logger.Warn("Failed to sync record",
				zap.String("table", table),
				zap.String("key", rec.Key().String()),
				zap.Error(err))
			result.Errors = append(result.Errors, RecordError{
				Index:  i,
				Key:    rec.Key().String(),
				Reason: err.Error(),
			})
			continue
		}

		switch action {
		case actionInsert:
			result.Inserted++
		case actionReplace:
			result.Updated++
		case actionSkip:
			result.Skipped++
		}
	}

	e.logger.Info("Synced batch",
		zap.String("table", table),
		zap.Int("received", result.Received),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed()))

	return result, nil
}

type syncAction int

const (
	actionInsert syncAction = iota
	actionReplace
	actionSkip
)

// applyRecord decides and applies the action for one coerced record
func (e *Engine) applyRecord(ctx context.Context, table string, rec *model.EventRecord) (syncAction, error) {
	existing, err := e.store.SelectByKey(ctx, table, rec.Key())
	if err != nil {
		return actionSkip, err
	}

	if len(existing) == 0 {
		err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
			return e.store.InsertRecord(ctx, tx, table, rec)
		})
		if err != nil {
			return actionSkip, err
		}
		return actionInsert, nil
	}

	// The warehouse may still hold duplicates for the key; compare
	// against the most authoritative stored row so sync never undoes a
	// resolver decision.
	stored := &existing[0]
	for i := 1; i < len(existing); i++ {
		if e.policy.Outranks(&existing[i], stored) {
			stored = &existing[i]
		}
	}

	if !e.incomingOutranks(rec, stored) {
		return actionSkip, nil
	}

	err = e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return e.store.ReplaceRecord(ctx, tx, table, rec)
	})
	if err != nil {
		return actionSkip, err
	}
	return actionReplace, nil
}

// incomingOutranks compares an incoming record against the stored one.
// Incoming records have no ingestion id yet, so the id tie-break
// resolves in favor of the stored row: identical authority means skip,
// which is what makes replays idempotent.
func (e *Engine) incomingOutranks(incoming, stored *model.EventRecord) bool {
	classIn, classStored := e.policy.Class(incoming.StatusCode), e.policy.Class(stored.StatusCode)
	if classIn != classStored {
		return classIn < classStored
	}

	dateIn, dateStored := incoming.EffectiveDate(), stored.EffectiveDate()
	if !dateIn.Equal(dateStored) {
		return dateIn.After(dateStored)
	}

	return e.policy.Score(incoming) > e.policy.Score(stored)
}
