package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/RigelNana/backdrop/services/compose-service/models"
)

type RunRepository interface {
	BaseRepository[models.Run]
	ListBySession(sessionID string, limit, offset int) ([]*models.Run, error)
	SaveResult(id uuid.UUID, index int, result models.GenerationResult) error
	SetStatus(id uuid.UUID, status string) error
}

type RunRepositoryImpl struct {
	*BaseRepositoryImpl[models.Run]
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &RunRepositoryImpl{
		BaseRepositoryImpl: NewBaseRepository[models.Run](db),
	}
}

// ListBySession returns the session's runs, newest first. A negative limit
// returns all of them.
func (r *RunRepositoryImpl) ListBySession(sessionID string, limit, offset int) ([]*models.Run, error) {
	var runs []*models.Run
	err := r.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// SaveResult replaces the result at index and refreshes the counters.
// Transitions that would move a result backwards are ignored.
func (r *RunRepositoryImpl) SaveResult(id uuid.UUID, index int, result models.GenerationResult) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var run models.Run
		if err := tx.First(&run, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		results := run.Results.Data()
		if index < 0 || index >= len(results) {
			return fmt.Errorf("result index %d out of range [0,%d)", index, len(results))
		}
		if results[index].Status != result.Status && !results[index].Status.CanAdvanceTo(result.Status) {
			return nil
		}
		results[index] = result

		run.Results = datatypes.NewJSONType(results)
		run.Tally()
		if run.Status == models.RunStatusQueued {
			run.Status = models.RunStatusRunning
		}
		return tx.Save(&run).Error
	})
}

// SetStatus updates the run status; completed and canceled runs get a
// finish time.
func (r *RunRepositoryImpl) SetStatus(id uuid.UUID, status string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.RunStatusCompleted || status == models.RunStatusCanceled {
		updates["finished_at"] = time.Now()
	}
	res := r.db.Model(&models.Run{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
