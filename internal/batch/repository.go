package batch

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/darrien-wang/QuickLabel/internal/database"
	"github.com/darrien-wang/QuickLabel/internal/models"
)

// Repository persists batches and the workstation restoration hints.
// It is the persist(batches)/load() pair behind the in-memory store;
// the sync layer never touches it.
type Repository struct {
	db *database.DB
}

// NewRepository creates a repository over an open database.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// SaveAll upserts every batch and its records, then prunes batches that
// no longer exist in memory.
func (r *Repository) SaveAll(batches []models.Batch) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		keep := make([]string, 0, len(batches))
		for i := range batches {
			b := batches[i]
			keep = append(keep, b.ID)
			records := b.Records
			b.Records = nil
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&b).Error; err != nil {
				return fmt.Errorf("failed to save batch %s: %w", b.ID, err)
			}
			// Records are replaced wholesale; scan state lives in the rows.
			if err := tx.Where("batch_id = ?", b.ID).Delete(&models.Record{}).Error; err != nil {
				return fmt.Errorf("failed to clear records for batch %s: %w", b.ID, err)
			}
			if len(records) > 0 {
				if err := tx.CreateInBatches(records, 500).Error; err != nil {
					return fmt.Errorf("failed to save records for batch %s: %w", b.ID, err)
				}
			}
		}
		q := tx.Model(&models.Batch{})
		if len(keep) > 0 {
			q = q.Where("id NOT IN ?", keep)
		} else {
			// Nothing in memory means delete-all; gorm refuses an
			// unqualified delete without this.
			q = q.Session(&gorm.Session{AllowGlobalUpdate: true})
		}
		if err := q.Delete(&models.Batch{}).Error; err != nil {
			return fmt.Errorf("failed to prune stale batches: %w", err)
		}
		rq := tx.Model(&models.Record{})
		if len(keep) > 0 {
			rq = rq.Where("batch_id NOT IN ?", keep)
		} else {
			rq = rq.Session(&gorm.Session{AllowGlobalUpdate: true})
		}
		if err := rq.Delete(&models.Record{}).Error; err != nil {
			return fmt.Errorf("failed to prune stale records: %w", err)
		}
		return nil
	})
}

// LoadAll reads every persisted batch with its records.
func (r *Repository) LoadAll() ([]models.Batch, error) {
	var batches []models.Batch
	if err := r.db.Preload("Records").Order("created_at").Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	return batches, nil
}

// SaveState upserts the single workstation-state row.
func (r *Repository) SaveState(st models.WorkstationState) error {
	st.ID = 1
	if err := r.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&st).Error; err != nil {
		return fmt.Errorf("failed to save workstation state: %w", err)
	}
	return nil
}

// LoadState reads the restoration hints; a missing row yields zero values.
func (r *Repository) LoadState() (models.WorkstationState, error) {
	var st models.WorkstationState
	err := r.db.First(&st, 1).Error
	if err == gorm.ErrRecordNotFound {
		return models.WorkstationState{}, nil
	}
	if err != nil {
		return models.WorkstationState{}, fmt.Errorf("failed to load workstation state: %w", err)
	}
	return st, nil
}
