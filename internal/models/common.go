package models

import (
	"time"
)

// BaseModel ids are uuids assigned by the application, so the schema works
// on both postgres and sqlite.
type BaseModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
