// internal/models/purchase.go
package models

import (
	"github.com/google/uuid"
)

type PurchaseRequest struct {
	BaseModel
	ProductID       uuid.UUID      `json:"product_id" gorm:"type:uuid;not null;index"`
	ListingID       uuid.UUID      `json:"listing_id" gorm:"type:uuid;not null;index"`
	SellerID        uuid.UUID      `json:"seller_id" gorm:"type:uuid;not null;index"`
	BuyerID         uuid.UUID      `json:"buyer_id" gorm:"type:uuid;not null;index"`
	OfferedPrice    float64        `json:"offered_price" gorm:"type:decimal(12,2);not null"`
	OfferedCurrency string         `json:"offered_currency" gorm:"size:8;not null"`
	Status          PurchaseStatus `json:"status" gorm:"type:varchar(30);default:'pending_seller';index"`
	PaymentTxHash   string         `json:"payment_tx_hash" gorm:"size:128"`
	PaymentRef      string         `json:"payment_ref" gorm:"size:255"`
	TransferPDA     string         `json:"transfer_pda" gorm:"size:64"`
	ProductPDA      string         `json:"product_pda" gorm:"size:64"`

	// Relationships
	Product Product        `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	Listing ProductListing `json:"listing,omitempty" gorm:"foreignKey:ListingID"`
	Seller  User           `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Buyer   User           `json:"buyer,omitempty" gorm:"foreignKey:BuyerID"`
}
