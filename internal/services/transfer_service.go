// internal/services/transfer_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/database"
	"github.com/chainproof/provenance-backend/internal/models"
)

// TransferService orchestrates the propose/accept/execute transfer protocol.
// Propose and accept only record the parties' on-chain signatures; execute is
// the single step that mutates ownership rows and appends a chain node, and
// it does so inside one transaction.
type TransferService struct {
	db            *gorm.DB
	ledger        *LedgerService
	users         *UserService
	notifications *NotificationService
	codes         *CodeService
	client        chain.Client
	programID     string
}

func NewTransferService(
	db *gorm.DB,
	ledger *LedgerService,
	users *UserService,
	notifications *NotificationService,
	codes *CodeService,
	client chain.Client,
	programID string,
) *TransferService {
	return &TransferService{
		db:            db,
		ledger:        ledger,
		users:         users,
		notifications: notifications,
		codes:         codes,
		client:        client,
		programID:     programID,
	}
}

type ProposeTransferInput struct {
	ProductID   uuid.UUID `json:"product_id" validate:"required"`
	FromUserID  uuid.UUID `json:"from_user_id" validate:"required"`
	ToPublicKey string    `json:"to_public_key" validate:"required,public_key"`
	TxHash      string    `json:"tx_hash" validate:"required,tx_hash"`
}

// TransferProposal is the confirmation payload returned to the seller.
type TransferProposal struct {
	ProductID        uuid.UUID `json:"product_id"`
	ProductAddress   string    `json:"product_address"`
	TransferAddress  string    `json:"transfer_address"`
	ConfirmationCode string    `json:"confirmation_code"`
	ToPublicKey      string    `json:"to_public_key"`
}

// Propose records the seller's signed intent. Ownership rows are untouched;
// only product.last_tx_hash moves, and a one-time confirmation code is issued
// for the receiver.
func (s *TransferService) Propose(ctx context.Context, input ProposeTransferInput) (*TransferProposal, error) {
	product, err := s.loadTrackedProduct(s.db, input.ProductID)
	if err != nil {
		return nil, err
	}

	ownership, err := s.ledger.ActiveOwnership(s.db, product.ID)
	if err != nil {
		return nil, err
	}
	if ownership == nil {
		return nil, apperrors.NotFoundf("product %s has no active ownership", product.SerialNumber)
	}
	if ownership.OwnerID == nil || *ownership.OwnerID != input.FromUserID {
		return nil, apperrors.PermissionDenied("only the current owner can propose a transfer")
	}

	// The buyer may not have registered yet; resolve for notification only.
	buyer, err := s.users.Resolve(s.db, nil, input.ToPublicKey)
	if err != nil {
		return nil, err
	}

	if err := s.client.ConfirmTransaction(ctx, input.TxHash); err != nil {
		return nil, err
	}

	if err := s.db.Model(product).Update("last_tx_hash", input.TxHash).Error; err != nil {
		return nil, err
	}

	code, err := s.codes.Issue(product.ID, input.ToPublicKey)
	if err != nil {
		return nil, err
	}

	if buyer != nil {
		s.notifications.Notify(nil, buyer.ID,
			"Transfer proposed",
			fmt.Sprintf("You have been offered ownership of %s", product.Name),
			&product.ID, input.TxHash)
	}

	return &TransferProposal{
		ProductID:        product.ID,
		ProductAddress:   chain.ProductAddress(s.programID, product.SerialNumber),
		TransferAddress:  chain.TransferAddress(s.programID, product.SerialNumber, ownership.OwnerPublicKey, input.ToPublicKey),
		ConfirmationCode: code,
		ToPublicKey:      input.ToPublicKey,
	}, nil
}

type AcceptTransferInput struct {
	ProductID        uuid.UUID  `json:"product_id" validate:"required"`
	ToUserID         *uuid.UUID `json:"to_user_id"`
	ToPublicKey      string     `json:"to_public_key" validate:"omitempty,public_key"`
	TxHash           string     `json:"tx_hash" validate:"required,tx_hash"`
	ConfirmationCode string     `json:"confirmation_code"`
}

// Accept records the buyer's signed acceptance. The buyer may still be
// unregistered; identity comes from the id when present, else the key.
func (s *TransferService) Accept(ctx context.Context, input AcceptTransferInput) error {
	product, err := s.loadTrackedProduct(s.db, input.ProductID)
	if err != nil {
		return err
	}

	buyer, err := s.users.Resolve(s.db, input.ToUserID, input.ToPublicKey)
	if err != nil {
		return err
	}
	if buyer == nil && input.ToPublicKey == "" {
		return apperrors.NotFound("transfer receiver")
	}

	if input.ConfirmationCode != "" {
		if err := s.codes.Redeem(input.ConfirmationCode, product.ID); err != nil {
			return err
		}
	}

	if err := s.client.ConfirmTransaction(ctx, input.TxHash); err != nil {
		return err
	}

	if err := s.db.Model(product).Update("last_tx_hash", input.TxHash).Error; err != nil {
		return err
	}

	ownership, err := s.ledger.ActiveOwnership(s.db, product.ID)
	if err != nil {
		return err
	}
	if ownership != nil && ownership.OwnerID != nil {
		s.notifications.Notify(nil, *ownership.OwnerID,
			"Transfer accepted",
			fmt.Sprintf("The receiver has accepted the transfer of %s", product.Name),
			&product.ID, input.TxHash)
	}
	return nil
}

type ExecuteTransferInput struct {
	ProductID     uuid.UUID  `json:"product_id" validate:"required"`
	FromUserID    *uuid.UUID `json:"from_user_id"`
	FromPublicKey string     `json:"from_public_key" validate:"omitempty,public_key"`
	ToUserID      *uuid.UUID `json:"to_user_id"`
	ToPublicKey   string     `json:"to_public_key" validate:"omitempty,public_key"`
	TxHash        string     `json:"tx_hash" validate:"required,tx_hash"`
	BlockSlot     uint64     `json:"block_slot" validate:"required"`
}

// Execute moves ownership: close the seller's row, open the buyer's, append
// the chain node, all in one transaction. Retrying with the same tx_hash is a
// no-op because the node already exists.
func (s *TransferService) Execute(ctx context.Context, input ExecuteTransferInput) (*models.Ownership, error) {
	product, err := s.loadTrackedProduct(s.db, input.ProductID)
	if err != nil {
		return nil, err
	}

	var opened *models.Ownership
	err = database.WithTransaction(s.db, func(tx *gorm.DB) error {
		existing, err := s.ledger.NodeByTxHash(tx, input.TxHash)
		if err != nil {
			return err
		}
		if existing != nil {
			// Retry of an already-applied transfer.
			opened, err = s.ledger.ActiveOwnership(tx, product.ID)
			return err
		}

		seller, err := s.users.Resolve(tx, input.FromUserID, input.FromPublicKey)
		if err != nil {
			return err
		}
		buyer, err := s.users.Resolve(tx, input.ToUserID, input.ToPublicKey)
		if err != nil {
			return err
		}

		fromKey := input.FromPublicKey
		if seller != nil {
			fromKey = seller.PublicKey
		}
		toKey := input.ToPublicKey
		if buyer != nil {
			toKey = buyer.PublicKey
		}
		if toKey == "" {
			return apperrors.NotFound("transfer receiver")
		}

		prev, err := s.ledger.LatestNode(tx, product.ID)
		if err != nil {
			return err
		}
		var prevHash *string
		if prev != nil {
			prevHash = &prev.TxHash
		}

		closed, err := s.ledger.CloseActiveOwnership(tx, product.ID, nowUTC())
		if err != nil {
			return err
		}
		if closed != nil && seller != nil && closed.OwnerID != nil && *closed.OwnerID != seller.ID {
			return apperrors.PermissionDenied("transfer sender is not the current owner")
		}

		var buyerID *uuid.UUID
		if buyer != nil {
			buyerID = &buyer.ID
		}
		opened, err = s.ledger.OpenOwnership(tx, buyerID, toKey, product.ID, input.TxHash)
		if err != nil {
			return err
		}

		node := &models.BlockchainNode{
			TxHash:        input.TxHash,
			PrevTxHash:    prevHash,
			FromPublicKey: fromKey,
			ToUserID:      buyerID,
			ToPublicKey:   toKey,
			ProductID:     product.ID,
			BlockSlot:     input.BlockSlot,
			CreatedOn:     nowUTC(),
		}
		if seller != nil {
			node.FromUserID = &seller.ID
		}
		if _, err := s.ledger.AppendNode(tx, node); err != nil {
			return err
		}

		if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Update("last_tx_hash", input.TxHash).Error; err != nil {
			return err
		}

		if seller != nil {
			s.notifications.Notify(tx, seller.ID,
				"Transfer executed",
				fmt.Sprintf("Ownership of %s has been transferred", product.Name),
				&product.ID, input.TxHash)
		}
		if buyer != nil {
			s.notifications.Notify(tx, buyer.ID,
				"Ownership received",
				fmt.Sprintf("You are now the owner of %s", product.Name),
				&product.ID, input.TxHash)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.codes.Invalidate(product.ID)
	return opened, nil
}

// Cancel withdraws a pending proposal. No ownership rows have moved yet, so
// cancellation only invalidates the outstanding confirmation code.
func (s *TransferService) Cancel(ctx context.Context, productID, byUserID uuid.UUID) error {
	product, err := s.loadTrackedProduct(s.db, productID)
	if err != nil {
		return err
	}

	ownership, err := s.ledger.ActiveOwnership(s.db, product.ID)
	if err != nil {
		return err
	}
	if ownership == nil || ownership.OwnerID == nil || *ownership.OwnerID != byUserID {
		return apperrors.PermissionDenied("only the current owner can cancel a transfer")
	}

	s.codes.Invalidate(product.ID)
	logrus.WithFields(logrus.Fields{
		"product_id": product.ID,
		"user_id":    byUserID,
	}).Info("Transfer proposal cancelled")
	return nil
}

// EndTracking retires a product from the ledger mirror. The current ownership
// row is closed and a sentinel node with a synthetic tx hash keeps the chain
// walkable for history queries. Afterwards every transfer operation rejects
// the product.
func (s *TransferService) EndTracking(ctx context.Context, productID, byUserID uuid.UUID) error {
	product, err := s.loadTrackedProduct(s.db, productID)
	if err != nil {
		return err
	}

	return database.WithTransaction(s.db, func(tx *gorm.DB) error {
		closed, err := s.ledger.CloseActiveOwnership(tx, product.ID, nowUTC())
		if err != nil {
			return err
		}
		if closed == nil {
			return apperrors.NotFoundf("product %s has no active ownership", product.SerialNumber)
		}
		if closed.OwnerID == nil || *closed.OwnerID != byUserID {
			return apperrors.PermissionDenied("only the current owner can end tracking")
		}

		prev, err := s.ledger.LatestNode(tx, product.ID)
		if err != nil {
			return err
		}
		var prevHash *string
		if prev != nil {
			prevHash = &prev.TxHash
		}

		sentinel := &models.BlockchainNode{
			TxHash:        "end:" + uuid.NewString(),
			PrevTxHash:    prevHash,
			FromUserID:    closed.OwnerID,
			FromPublicKey: closed.OwnerPublicKey,
			ToUserID:      closed.OwnerID,
			ToPublicKey:   closed.OwnerPublicKey,
			ProductID:     product.ID,
			BlockSlot:     0,
			CreatedOn:     nowUTC(),
		}
		if _, err := s.ledger.AppendNode(tx, sentinel); err != nil {
			return err
		}

		if err := tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Updates(map[string]interface{}{
				"track":        false,
				"last_tx_hash": sentinel.TxHash,
			}).Error; err != nil {
			return err
		}

		s.notifications.Notify(tx, byUserID,
			"Tracking ended",
			fmt.Sprintf("Provenance tracking for %s has ended", product.Name),
			&product.ID, sentinel.TxHash)
		return nil
	})
}

// OwnershipRecord pairs an ownership span with its originating chain node.
type OwnershipRecord struct {
	Ownership models.Ownership       `json:"ownership"`
	Node      *models.BlockchainNode `json:"node,omitempty"`
}

// OwnershipHistory returns every ownership span of the product, oldest first,
// each joined to the chain node that created it.
func (s *TransferService) OwnershipHistory(productID uuid.UUID) ([]OwnershipRecord, error) {
	var product models.Product
	err := s.db.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}

	var ownerships []models.Ownership
	if err := s.db.Preload("Owner").
		Where("product_id = ?", productID).
		Order("start_on ASC").
		Find(&ownerships).Error; err != nil {
		return nil, err
	}

	records := make([]OwnershipRecord, 0, len(ownerships))
	for _, ownership := range ownerships {
		node, err := s.ledger.NodeByTxHash(s.db, ownership.TxHash)
		if err != nil {
			return nil, err
		}
		records = append(records, OwnershipRecord{Ownership: ownership, Node: node})
	}
	return records, nil
}

// CheckOwnership reports whether the given party currently owns the product,
// resolving by id first and falling back to the public key.
func (s *TransferService) CheckOwnership(productID uuid.UUID, userID *uuid.UUID, publicKey string) (bool, *models.Ownership, error) {
	ownership, err := s.ledger.ActiveOwnership(s.db, productID)
	if err != nil {
		return false, nil, err
	}
	if ownership == nil {
		return false, nil, nil
	}

	if userID != nil {
		return ownership.OwnerID != nil && *ownership.OwnerID == *userID, ownership, nil
	}
	if publicKey != "" {
		return ownership.OwnerPublicKey == publicKey, ownership, nil
	}
	return false, ownership, nil
}

func (s *TransferService) loadTrackedProduct(tx *gorm.DB, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := tx.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}
	if !product.Track {
		return nil, apperrors.NotTracked(product.SerialNumber)
	}
	return &product, nil
}

// WaitForConfirmation applies the bounded wait around an arbitrary signature,
// surfaced for handlers that submit their own instructions.
func (s *TransferService) WaitForConfirmation(ctx context.Context, signature string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.client.ConfirmTransaction(ctx, signature)
}
