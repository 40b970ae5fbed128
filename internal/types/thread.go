package types

import (
	"time"

	"github.com/google/uuid"
)

// Thread is a persisted conversation context. ResourceID groups threads by
// owner (one per end user or channel) and never changes after creation.
type Thread struct {
	ID         string    `gorm:"primaryKey" json:"id"`
	ResourceID string    `gorm:"index;not null;column:resource_id" json:"resourceId"`
	Title      string    `gorm:"column:title" json:"title,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"not null" json:"updatedAt"`
}

func (Thread) TableName() string {
	return "thread"
}

func NewThread(resourceID string) *Thread {
	return &Thread{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
	}
}
