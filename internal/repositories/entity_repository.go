package repositories

import (
	"errors"

	"gorm.io/gorm"

	"mwork_attachments/internal/models"
)

var (
	ErrEntityNotFound   = errors.New("entity not found")
	ErrEntityNotStored  = errors.New("entity has no stored row")
	ErrEntityAlreadySet = errors.New("entity already has a stored row")
)

// EntityRepository stores bound Records. Every call fires the Record's gorm
// hooks, and with them the entity's attachment lifecycle.
type EntityRepository interface {
	Create(db *gorm.DB, rec *models.Record) error
	Update(db *gorm.DB, rec *models.Record) error
	// FindByID loads the row into rec, which must already be bound to an
	// entity of the requested kind.
	FindByID(db *gorm.DB, rec *models.Record, kind, id string) error
	Delete(db *gorm.DB, rec *models.Record) error
	ListIDs(db *gorm.DB, kind string, limit, offset int) ([]string, error)
}

type EntityRepositoryImpl struct{}

func NewEntityRepository() EntityRepository {
	return &EntityRepositoryImpl{}
}

func (r *EntityRepositoryImpl) Create(db *gorm.DB, rec *models.Record) error {
	if rec.Entity() != nil && rec.Entity().Persisted() {
		return ErrEntityAlreadySet
	}
	return db.Create(rec).Error
}

// Update requires a previously stored row; gorm's Save would otherwise fall
// back to an insert that skips the hooks.
func (r *EntityRepositoryImpl) Update(db *gorm.DB, rec *models.Record) error {
	if rec.ID == "" || rec.Entity() == nil || !rec.Entity().Persisted() {
		return ErrEntityNotStored
	}
	return db.Save(rec).Error
}

func (r *EntityRepositoryImpl) FindByID(db *gorm.DB, rec *models.Record, kind, id string) error {
	err := db.Where("id = ? AND kind = ?", id, kind).First(rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEntityNotFound
		}
		return err
	}
	return nil
}

func (r *EntityRepositoryImpl) Delete(db *gorm.DB, rec *models.Record) error {
	if rec.ID == "" {
		return ErrEntityNotStored
	}
	result := db.Delete(rec)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrEntityNotFound
	}
	return nil
}

func (r *EntityRepositoryImpl) ListIDs(db *gorm.DB, kind string, limit, offset int) ([]string, error) {
	var ids []string
	err := db.Model(&models.Record{}).
		Where("kind = ?", kind).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Offset(offset).
		Pluck("id", &ids).Error
	return ids, err
}
