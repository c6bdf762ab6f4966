// internal/models/notification.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the persisted half of an ownership event; delivery to the
// user is handled by the stream broker and is best-effort.
type Notification struct {
	BaseModel
	UserID    uuid.UUID  `json:"user_id" gorm:"type:uuid;not null;index"`
	Title     string     `json:"title" gorm:"size:255;not null"`
	Message   string     `json:"message" gorm:"type:text;not null"`
	ProductID *uuid.UUID `json:"product_id" gorm:"type:uuid;index"`
	TxHash    string     `json:"tx_hash" gorm:"size:128"`
	ReadAt    *time.Time `json:"read_at"`
}

type AuditLog struct {
	BaseModel
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Action       string     `json:"action" gorm:"size:255;not null"`
	ResourceType string     `json:"resource_type" gorm:"size:100;index"`
	ResourceID   *uuid.UUID `json:"resource_id" gorm:"type:uuid;index"`
	IPAddress    string     `json:"ip_address" gorm:"size:45"`
	UserAgent    string     `json:"user_agent" gorm:"size:500"`
	NewValues    JSONB      `json:"new_values" gorm:"type:jsonb"`
}
