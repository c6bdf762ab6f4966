// internal/services/ledger_service.go
package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chainproof/provenance-backend/internal/models"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// LedgerService exposes the transactional primitives every ownership-mutating
// flow is built on. All mutating methods take the caller's transaction handle:
// the caller decides the transaction boundary, this service never opens one.
type LedgerService struct{}

func NewLedgerService() *LedgerService {
	return &LedgerService{}
}

// rowLock adds SELECT ... FOR UPDATE. The sqlite dialect used by tests has no
// row locks; its single-writer model gives the same guarantee.
func rowLock(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// ActiveOwnership returns the product's single open ownership row, locked for
// update, or nil when the product has no current owner.
func (s *LedgerService) ActiveOwnership(tx *gorm.DB, productID uuid.UUID) (*models.Ownership, error) {
	var ownership models.Ownership
	err := rowLock(tx).
		Where("product_id = ? AND end_on IS NULL", productID).
		First(&ownership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ownership, nil
}

// CloseActiveOwnership stamps end_on on the current ownership row and returns
// it, or returns nil when there was none to close.
func (s *LedgerService) CloseActiveOwnership(tx *gorm.DB, productID uuid.UUID, endOn time.Time) (*models.Ownership, error) {
	ownership, err := s.ActiveOwnership(tx, productID)
	if err != nil || ownership == nil {
		return nil, err
	}

	ownership.EndOn = &endOn
	if err := tx.Model(ownership).Update("end_on", endOn).Error; err != nil {
		return nil, err
	}
	return ownership, nil
}

// OpenOwnership inserts the new active row for the product.
func (s *LedgerService) OpenOwnership(tx *gorm.DB, ownerID *uuid.UUID, ownerPublicKey string, productID uuid.UUID, txHash string) (*models.Ownership, error) {
	ownership := &models.Ownership{
		OwnerID:        ownerID,
		OwnerPublicKey: ownerPublicKey,
		ProductID:      productID,
		StartOn:        time.Now().UTC(),
		TxHash:         txHash,
	}
	if err := tx.Create(ownership).Error; err != nil {
		return nil, err
	}
	return ownership, nil
}

// AppendNode inserts a chain node. The tx_hash primary key makes retries
// idempotent: a duplicate insert is a no-op and reports inserted=false.
func (s *LedgerService) AppendNode(tx *gorm.DB, node *models.BlockchainNode) (bool, error) {
	if node.CreatedOn.IsZero() {
		node.CreatedOn = time.Now().UTC()
	}
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(node)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// LatestNode returns the chain head for the product, or nil when the product
// has no nodes yet. Slot order decides; created_on breaks ties so sentinel
// nodes (slot 0 but appended last) never shadow a later real transfer.
func (s *LedgerService) LatestNode(tx *gorm.DB, productID uuid.UUID) (*models.BlockchainNode, error) {
	var node models.BlockchainNode
	err := tx.
		Where("product_id = ?", productID).
		Order("block_slot DESC, created_on DESC").
		First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// NodesInOrder returns the product's full chain, oldest first. Sentinel
// end-tracking nodes carry block slot 0 but close the chain, so they sort
// after every real transfer regardless of slot.
func (s *LedgerService) NodesInOrder(tx *gorm.DB, productID uuid.UUID) ([]models.BlockchainNode, error) {
	var nodes []models.BlockchainNode
	err := tx.
		Where("product_id = ?", productID).
		Order("CASE WHEN tx_hash LIKE 'end:%' THEN 1 ELSE 0 END ASC, block_slot ASC, created_on ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, err
	}
	return nodes, nil
}

// NodeByTxHash fetches one node, nil when absent.
func (s *LedgerService) NodeByTxHash(tx *gorm.DB, txHash string) (*models.BlockchainNode, error) {
	var node models.BlockchainNode
	err := tx.Where("tx_hash = ?", txHash).First(&node).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// ActiveOwnershipCount reports how many open rows the product has. Anything
// other than 1 (or 0 for untracked products) is a data-integrity defect.
func (s *LedgerService) ActiveOwnershipCount(tx *gorm.DB, productID uuid.UUID) (int64, error) {
	var count int64
	err := tx.Model(&models.Ownership{}).
		Where("product_id = ? AND end_on IS NULL", productID).
		Count(&count).Error
	return count, err
}
