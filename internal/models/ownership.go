// internal/models/ownership.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// Ownership rows are immutable once EndOn is set. The invariant is that at
// most one row per product has EndOn = NULL; that row is the current owner.
type Ownership struct {
	BaseModel
	OwnerID        *uuid.UUID `json:"owner_id" gorm:"type:uuid;index"`
	OwnerPublicKey string     `json:"owner_public_key" gorm:"size:64;not null;index"`
	ProductID      uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	StartOn        time.Time  `json:"start_on" gorm:"not null"`
	EndOn          *time.Time `json:"end_on" gorm:"index"`
	TxHash         string     `json:"tx_hash" gorm:"size:128;not null"`

	// Relationships
	Owner   *User   `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}

func (o *Ownership) Active() bool {
	return o.EndOn == nil
}

// BlockchainNode mirrors one ledger transaction into the per-product hash
// chain. Append-only: rows are never updated or deleted. PrevTxHash links to
// the chronologically preceding node, nil for the genesis node.
type BlockchainNode struct {
	TxHash        string     `json:"tx_hash" gorm:"primaryKey;size:128"`
	PrevTxHash    *string    `json:"prev_tx_hash" gorm:"size:128"`
	FromUserID    *uuid.UUID `json:"from_user_id" gorm:"type:uuid"`
	FromPublicKey string     `json:"from_public_key" gorm:"size:64"`
	ToUserID      *uuid.UUID `json:"to_user_id" gorm:"type:uuid"`
	ToPublicKey   string     `json:"to_public_key" gorm:"size:64"`
	ProductID     uuid.UUID  `json:"product_id" gorm:"type:uuid;not null;index"`
	BlockSlot     uint64     `json:"block_slot" gorm:"not null"`
	CreatedOn     time.Time  `json:"created_on" gorm:"not null"`

	Product Product `json:"-" gorm:"foreignKey:ProductID"`
}

func (BlockchainNode) TableName() string {
	return "blockchain_nodes"
}
