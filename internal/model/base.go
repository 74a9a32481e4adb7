package model

import (
	"time"
)

// BaseModel contains common fields for all models
type BaseModel struct {
	ID        int       `gorm:"primaryKey;autoIncrement" json:"id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// All returns every model managed by migrations
func All() []interface{} {
	return []interface{}{
		&Domain{},
		&DNSRecord{},
		&SyncJob{},
	}
}
