package db

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	selectTopQuery = `
		SELECT full_name, position_cur
		FROM repositories
		ORDER BY stars DESC, full_name ASC
		LIMIT ?`

	// Every ranked row leaves the window first, remembering its rank.
	// Rows that stay are re-ranked right after.
	releasePositionsQuery = `
		UPDATE repositories
		SET position_prev = position_cur, position_cur = NULL
		WHERE position_cur IS NOT NULL`

	assignPositionQuery = `
		UPDATE repositories
		SET position_cur = ?, position_prev = ?
		WHERE full_name = ?`
)

type rankRow struct {
	FullName    string `db:"full_name"`
	PositionCur *int   `db:"position_cur"`
}

// RecomputePositions re-ranks the top topN repositories by stars.
// A row entering the window gets position_prev equal to its new rank; a
// row leaving it keeps its last rank in position_prev.
func (db *DB) RecomputePositions(ctx context.Context, topN int) error {
	if topN <= 0 {
		return fmt.Errorf("%w: top n must be positive, got %d", ErrInvalidInput, topN)
	}

	db.rankMu.Lock()
	defer db.rankMu.Unlock()

	start := time.Now()

	ctx, cancel := db.withTimeout(ctx)
	defer cancel()

	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransactionFailed, classify(err))
	}
	defer tx.Rollback()

	var top []rankRow
	if err := tx.SelectContext(ctx, &top, tx.Rebind(selectTopQuery), topN); err != nil {
		return fmt.Errorf("failed to read ranking order: %w", classify(err))
	}

	if _, err := tx.ExecContext(ctx, releasePositionsQuery); err != nil {
		return fmt.Errorf("failed to release positions: %w", classify(err))
	}

	assign := tx.Rebind(assignPositionQuery)
	for i, row := range top {
		cur := i + 1
		prev := cur
		if row.PositionCur != nil {
			prev = *row.PositionCur
		}
		if _, err := tx.ExecContext(ctx, assign, cur, prev, row.FullName); err != nil {
			return fmt.Errorf("failed to assign position %d to %s: %w", cur, row.FullName, classify(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %w", ErrTransactionFailed, classify(err))
	}

	db.log.Info("Leaderboard positions recomputed",
		zap.Int("top_n", topN),
		zap.Int("ranked", len(top)),
		zap.Duration("duration", time.Since(start)))
	return nil
}
