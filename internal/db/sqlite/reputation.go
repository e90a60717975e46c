package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

const timeLayout = time.RFC3339Nano

var authorColumns = []string{
	"handle", "status", "last_exploration_at", "first_seen", "last_seen", "observations",
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the author's record, or (nil, nil) when none exists.
func (s *Store) Get(ctx context.Context, author string) (*models.ReputationRecord, error) {
	author = models.NormalizeHandle(author)
	if author == "" {
		return nil, nil
	}
	query, args, err := selectAuthor(author)
	if err != nil {
		return nil, err
	}
	return scanAuthor(s.queryRowContext(ctx, query, args...), author)
}

// Commit applies the batch in a single transaction.
func (s *Store) Commit(ctx context.Context, batch *reputation.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch == nil || batch.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	touched := batch.Touched()
	for _, author := range touched {
		current, err := loadAuthor(ctx, tx, author)
		if errors.Is(err, reputation.ErrCorruptRecord) {
			// Rebuilt from scratch; the upsert below overwrites the bad row.
			current = nil
		} else if err != nil {
			return err
		}
		if err := upsertAuthor(ctx, tx, batch.Apply(author, current)); err != nil {
			return err
		}
	}

	for _, o := range batch.Observations() {
		query, args, err := sq.Insert("score_observations").
			Columns("author", "post_id", "score", "observed_at_epoch").
			Values(o.Author, o.PostID, o.Score, o.ObservedAt.UnixNano()).
			ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert observation for %q: %w", o.Author, err)
		}
	}

	for _, author := range touched {
		if err := trimHistory(ctx, tx, author, s.historyLimit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reputation batch: %w", err)
	}
	return nil
}

// History returns up to limit observations for the author, newest first.
func (s *Store) History(ctx context.Context, author string, limit int) ([]models.ScoreObservation, error) {
	author = models.NormalizeHandle(author)
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	query, args, err := sq.Select("author", "post_id", "score", "observed_at_epoch").
		From("score_observations").
		Where(sq.Eq{"author": author}).
		OrderBy("observed_at_epoch DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []models.ScoreObservation
	for rows.Next() {
		var (
			o      models.ScoreObservation
			postID sql.NullString
			epoch  int64
		)
		if err := rows.Scan(&o.Author, &postID, &o.Score, &epoch); err != nil {
			return nil, err
		}
		o.PostID = postID.String
		o.ObservedAt = time.Unix(0, epoch).UTC()
		out = append(out, o)
	}
	return out, rows.Err()
}

// Authors returns every known author handle in ascending order.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	query, args, err := sq.Select("handle").From("authors").OrderBy("handle").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, err
		}
		out = append(out, handle)
	}
	return out, rows.Err()
}

func selectAuthor(author string) (string, []any, error) {
	return sq.Select(authorColumns...).
		From("authors").
		Where(sq.Eq{"handle": author}).
		ToSql()
}

func loadAuthor(ctx context.Context, q queryer, author string) (*models.ReputationRecord, error) {
	query, args, err := selectAuthor(author)
	if err != nil {
		return nil, err
	}
	return scanAuthor(q.QueryRowContext(ctx, query, args...), author)
}

func scanAuthor(row *sql.Row, author string) (*models.ReputationRecord, error) {
	var (
		handle, status, firstSeen, lastSeen string
		lastExploration                     sql.NullString
		observations                        int
	)
	err := row.Scan(&handle, &status, &lastExploration, &firstSeen, &lastSeen, &observations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get author %q: %w", author, err)
	}

	rec := &models.ReputationRecord{Author: handle, Observations: observations}
	if rec.Status, err = models.ParseAuthorStatus(status); err != nil {
		return nil, fmt.Errorf("%w: author %q: %w", reputation.ErrCorruptRecord, author, err)
	}
	if rec.FirstSeen, err = parseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("%w: author %q first_seen: %w", reputation.ErrCorruptRecord, author, err)
	}
	if rec.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("%w: author %q last_seen: %w", reputation.ErrCorruptRecord, author, err)
	}
	if lastExploration.Valid && lastExploration.String != "" {
		at, err := parseTime(lastExploration.String)
		if err != nil {
			return nil, fmt.Errorf("%w: author %q last_exploration_at: %w", reputation.ErrCorruptRecord, author, err)
		}
		rec.LastExplorationAt = &at
	}
	return rec, nil
}

func upsertAuthor(ctx context.Context, tx *sql.Tx, rec *models.ReputationRecord) error {
	var lastExploration any
	if rec.LastExplorationAt != nil {
		lastExploration = formatTime(*rec.LastExplorationAt)
	}
	query, args, err := sq.Insert("authors").
		Columns(authorColumns...).
		Values(
			rec.Author,
			string(models.StatusOf(rec)),
			lastExploration,
			formatTime(rec.FirstSeen),
			formatTime(rec.LastSeen),
			rec.Observations,
		).
		Suffix(`ON CONFLICT(handle) DO UPDATE SET
			status = excluded.status,
			last_exploration_at = excluded.last_exploration_at,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen,
			observations = excluded.observations`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert author %q: %w", rec.Author, err)
	}
	return nil
}

func trimHistory(ctx context.Context, tx *sql.Tx, author string, limit int) error {
	keep := sq.Select("id").
		From("score_observations").
		Where(sq.Eq{"author": author}).
		OrderBy("observed_at_epoch DESC", "id DESC").
		Limit(uint64(limit))
	keepSQL, keepArgs, err := keep.ToSql()
	if err != nil {
		return err
	}

	query, args, err := sq.Delete("score_observations").
		Where(sq.Eq{"author": author}).
		Where("id NOT IN ("+keepSQL+")", keepArgs...).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("trim history for %q: %w", author, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

var _ reputation.Store = (*Store)(nil)
