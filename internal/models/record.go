package models

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mwork_attachments/internal/attachment"
)

// Record is the stored row of an entity: its kind and its whole attribute
// store, attachment metadata included, as one JSON column.
//
// A Record must be bound to an attachment.Entity before it is created,
// saved, loaded or deleted; its gorm hooks translate into the entity's
// lifecycle events.
type Record struct {
	BaseModel
	Kind       string            `gorm:"type:varchar(64);not null;index"`
	Attributes datatypes.JSONMap `gorm:"not null"`

	entity      *attachment.Entity
	coordinator *attachment.Coordinator
}

func (Record) TableName() string {
	return "entities"
}

var ErrUnbound = errors.New("record is not bound to an entity")

// NewRecord returns a Record bound to e.
func NewRecord(c *attachment.Coordinator, e *attachment.Entity) *Record {
	r := &Record{}
	r.Bind(c, e)
	return r
}

func (r *Record) Bind(c *attachment.Coordinator, e *attachment.Entity) {
	r.coordinator = c
	r.entity = e
	r.ID = e.ID()
	r.Kind = e.Kind()
}

func (r *Record) Entity() *attachment.Entity {
	return r.entity
}

func (r *Record) handle(tx *gorm.DB, event attachment.Event) error {
	if r.entity == nil || r.coordinator == nil {
		return ErrUnbound
	}
	return r.coordinator.Handle(ctxOf(tx), event, r.entity)
}

// syncColumns copies the entity into the columns gorm is about to write.
func (r *Record) syncColumns() error {
	attrs := make(datatypes.JSONMap, r.entity.Attributes().Len())
	for key, v := range r.entity.Attributes().Map() {
		if _, ok := v.(*attachment.Attachment); ok {
			return fmt.Errorf("attribute %q still holds an attachment", key)
		}
		attrs[key] = v
	}
	r.Attributes = attrs
	r.Kind = r.entity.Kind()
	return nil
}

func (r *Record) BeforeSave(tx *gorm.DB) error {
	if err := r.handle(tx, attachment.EventSaving); err != nil {
		return err
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	r.entity.SetID(r.ID)
	return r.syncColumns()
}

func (r *Record) BeforeUpdate(tx *gorm.DB) error {
	if err := r.handle(tx, attachment.EventUpdating); err != nil {
		return err
	}
	return r.syncColumns()
}

// AfterSave runs attachment processing. Metadata written by the attachments
// is stored with a second, nested save of the same record.
func (r *Record) AfterSave(tx *gorm.DB) error {
	if r.entity == nil {
		return ErrUnbound
	}
	r.entity.MarkPersisted(true)
	r.entity.SetPersister(func(ctx context.Context) error {
		return tx.Session(&gorm.Session{NewDB: true}).WithContext(ctx).Save(r).Error
	})
	return r.handle(tx, attachment.EventSaved)
}

// AfterFind loads the columns into the entity in a stable key order.
func (r *Record) AfterFind(tx *gorm.DB) error {
	if r.entity == nil {
		return ErrUnbound
	}
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := r.entity.Attributes()
	for _, k := range keys {
		attrs.Set(k, r.Attributes[k])
	}
	r.entity.SetID(r.ID)
	r.entity.MarkPersisted(true)
	r.entity.SetPersister(func(ctx context.Context) error {
		return tx.Session(&gorm.Session{NewDB: true}).WithContext(ctx).Save(r).Error
	})
	return r.handle(tx, attachment.EventRetrieved)
}

func (r *Record) BeforeDelete(tx *gorm.DB) error {
	return r.handle(tx, attachment.EventDeleting)
}

func (r *Record) AfterDelete(tx *gorm.DB) error {
	if r.entity == nil {
		return ErrUnbound
	}
	r.entity.MarkPersisted(false)
	return r.handle(tx, attachment.EventDeleted)
}

func ctxOf(tx *gorm.DB) context.Context {
	if tx != nil && tx.Statement != nil && tx.Statement.Context != nil {
		return tx.Statement.Context
	}
	return context.Background()
}
