package gorm

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thebtf/xfeed/internal/reputation"
	"github.com/thebtf/xfeed/pkg/models"
)

// Author is one row of the authors table.
type Author struct {
	FirstSeen         time.Time    `gorm:"not null"`
	LastSeen          time.Time    `gorm:"not null"`
	LastExplorationAt sql.NullTime `gorm:"index"`
	Handle            string       `gorm:"primaryKey"`
	Status            string       `gorm:"type:text;default:'unknown';index;not null"`
	Observations      int          `gorm:"default:0;not null"`
}

func (Author) TableName() string { return "authors" }

// ScoreObservation is one row of the score_observations table.
type ScoreObservation struct {
	Author          string `gorm:"index:idx_score_observations_author,priority:1;not null"`
	PostID          string
	ID              int64   `gorm:"primaryKey;autoIncrement"`
	Score           float64 `gorm:"not null"`
	ObservedAtEpoch int64   `gorm:"index:idx_score_observations_author,priority:2,sort:desc;not null"`
}

func (ScoreObservation) TableName() string { return "score_observations" }

// toRecord converts a row into the domain record, reporting rows that cannot be decoded.
func (a *Author) toRecord() (*models.ReputationRecord, error) {
	status, err := models.ParseAuthorStatus(a.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: author %q: %w", reputation.ErrCorruptRecord, a.Handle, err)
	}
	rec := &models.ReputationRecord{
		Author:       a.Handle,
		Status:       status,
		FirstSeen:    a.FirstSeen.UTC(),
		LastSeen:     a.LastSeen.UTC(),
		Observations: a.Observations,
	}
	if a.LastExplorationAt.Valid {
		at := a.LastExplorationAt.Time.UTC()
		rec.LastExplorationAt = &at
	}
	return rec, nil
}

func authorFromRecord(rec *models.ReputationRecord) *Author {
	row := &Author{
		Handle:       rec.Author,
		Status:       string(models.StatusOf(rec)),
		FirstSeen:    rec.FirstSeen.UTC(),
		LastSeen:     rec.LastSeen.UTC(),
		Observations: rec.Observations,
	}
	if rec.LastExplorationAt != nil {
		row.LastExplorationAt = sql.NullTime{Time: rec.LastExplorationAt.UTC(), Valid: true}
	}
	return row
}

func (o *ScoreObservation) toModel() models.ScoreObservation {
	return models.ScoreObservation{
		Author:     o.Author,
		PostID:     o.PostID,
		Score:      o.Score,
		ObservedAt: time.Unix(0, o.ObservedAtEpoch).UTC(),
	}
}
