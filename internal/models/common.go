// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns the id in the application so every supported dialect
// behaves the same.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB type for PostgreSQL
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}

	return json.Unmarshal(bytes, j)
}

// Enums
type UserType string

const (
	UserTypeManufacturer UserType = "manufacturer"
	UserTypeConsumer     UserType = "consumer"
	UserTypeAdmin        UserType = "admin"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

type ListingStatus string

const (
	ListingStatusAvailable ListingStatus = "available"
	ListingStatusReserved  ListingStatus = "reserved"
	ListingStatusSold      ListingStatus = "sold"
)

type PurchaseStatus string

const (
	PurchaseStatusPendingSeller          PurchaseStatus = "pending_seller"
	PurchaseStatusAcceptedWaitingPayment PurchaseStatus = "accepted_waiting_payment"
	PurchaseStatusPaidPendingTransfer    PurchaseStatus = "paid_pending_transfer"
	PurchaseStatusCompleted              PurchaseStatus = "completed"
	PurchaseStatusRejected               PurchaseStatus = "rejected"
	PurchaseStatusCancelled              PurchaseStatus = "cancelled"
)

// ActivePurchaseStatuses are the states in which a request still gates its
// product. At most one request per product may be in any of them.
var ActivePurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPendingSeller,
	PurchaseStatusAcceptedWaitingPayment,
	PurchaseStatusPaidPendingTransfer,
}

func (s PurchaseStatus) Terminal() bool {
	switch s {
	case PurchaseStatusCompleted, PurchaseStatusRejected, PurchaseStatusCancelled:
		return true
	}
	return false
}
