// internal/models/product.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Product struct {
	BaseModel
	SerialNumber string     `json:"serial_number" gorm:"uniqueIndex;size:128;not null"`
	Name         string     `json:"name" gorm:"size:255;not null"`
	Description  string     `json:"description" gorm:"type:text"`
	RegisteredBy *uuid.UUID `json:"registered_by" gorm:"type:uuid;index"`
	ChainAddress *string    `json:"chain_address" gorm:"uniqueIndex;size:64"`
	LastTxHash   string     `json:"last_tx_hash" gorm:"size:128"`
	Track        bool       `json:"track" gorm:"default:true;index"`
	Tags         pq.StringArray `json:"tags" gorm:"type:text[]"`

	// Relationships
	Manufacturer *User            `json:"manufacturer,omitempty" gorm:"foreignKey:RegisteredBy"`
	Metadata     *ProductMetadata `json:"metadata,omitempty" gorm:"foreignKey:ProductID"`
	Ownerships   []Ownership      `json:"ownerships,omitempty" gorm:"foreignKey:ProductID"`
	Nodes        []BlockchainNode `json:"nodes,omitempty" gorm:"foreignKey:ProductID"`
	Listings     []ProductListing `json:"listings,omitempty" gorm:"foreignKey:ProductID"`
}

// ProductMetadata holds the exact canonical JSON document whose SHA-256 is
// embedded in the on-chain account. Document bytes are served verbatim so the
// hash stays reproducible.
type ProductMetadata struct {
	BaseModel
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;uniqueIndex;not null"`
	URI       string    `json:"uri" gorm:"size:255"`
	Hash      string    `json:"hash" gorm:"size:64;not null"`
	Document  []byte    `json:"-" gorm:"type:bytea"`

	Product Product `json:"-" gorm:"foreignKey:ProductID"`
}

type ProductListing struct {
	BaseModel
	ProductID uuid.UUID     `json:"product_id" gorm:"type:uuid;not null;index"`
	SellerID  uuid.UUID     `json:"seller_id" gorm:"type:uuid;not null;index"`
	Price     float64       `json:"price" gorm:"type:decimal(12,2);not null"`
	Currency  string        `json:"currency" gorm:"size:8;not null;default:'SGD'"`
	Status    ListingStatus `json:"status" gorm:"type:varchar(20);default:'available';index"`

	// Relationships
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Seller  User    `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
}
