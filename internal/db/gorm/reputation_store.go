package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

// Get returns the author's record, or (nil, nil) when none exists.
func (s *Store) Get(ctx context.Context, author string) (*models.ReputationRecord, error) {
	author = models.NormalizeHandle(author)
	if author == "" {
		return nil, nil
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout, "get_author")
	defer cancel()

	return loadAuthor(s.DB.WithContext(ctx), author)
}

// Commit applies the batch in a single transaction.
func (s *Store) Commit(ctx context.Context, batch *reputation.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if batch == nil || batch.Empty() {
		return nil
	}
	ctx, cancel := withTimeout(ctx, SlowQueryTimeout, "commit_batch")
	defer cancel()

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		touched := batch.Touched()
		for _, author := range touched {
			current, err := loadAuthor(tx.Clauses(clause.Locking{Strength: "UPDATE"}), author)
			if errors.Is(err, reputation.ErrCorruptRecord) {
				current = nil
			} else if err != nil {
				return err
			}
			row := authorFromRecord(batch.Apply(author, current))
			err = tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "handle"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"status", "last_exploration_at", "first_seen", "last_seen", "observations",
				}),
			}).Create(row).Error
			if err != nil {
				return fmt.Errorf("upsert author %q: %w", author, err)
			}
		}

		observations := batch.Observations()
		if len(observations) > 0 {
			rows := make([]ScoreObservation, len(observations))
			for i, o := range observations {
				rows[i] = ScoreObservation{
					Author:          o.Author,
					PostID:          o.PostID,
					Score:           o.Score,
					ObservedAtEpoch: o.ObservedAt.UnixNano(),
				}
			}
			if err := tx.CreateInBatches(rows, 100).Error; err != nil {
				return fmt.Errorf("insert observations: %w", err)
			}
		}

		for _, author := range touched {
			keep := tx.Model(&ScoreObservation{}).
				Select("id").
				Where("author = ?", author).
				Order("observed_at_epoch DESC, id DESC").
				Limit(s.historyLimit)
			err := tx.Where("author = ? AND id NOT IN (?)", author, keep).
				Delete(&ScoreObservation{}).Error
			if err != nil {
				return fmt.Errorf("trim history for %q: %w", author, err)
			}
		}
		return nil
	})
}

// History returns up to limit observations for the author, newest first.
func (s *Store) History(ctx context.Context, author string, limit int) ([]models.ScoreObservation, error) {
	author = models.NormalizeHandle(author)
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout, "history")
	defer cancel()

	var rows []ScoreObservation
	err := s.DB.WithContext(ctx).
		Where("author = ?", author).
		Order("observed_at_epoch DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	out := make([]models.ScoreObservation, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// Authors returns every known author handle in ascending order.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout, "list_authors")
	defer cancel()

	var handles []string
	if err := s.DB.WithContext(ctx).Model(&Author{}).Order("handle").Pluck("handle", &handles).Error; err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	return handles, nil
}

func loadAuthor(db *gorm.DB, author string) (*models.ReputationRecord, error) {
	var row Author
	err := db.Where("handle = ?", author).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get author %q: %w", author, err)
	}
	return row.toRecord()
}

var _ reputation.Store = (*Store)(nil)
