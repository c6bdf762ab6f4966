// internal/services/purchase_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/database"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

// PurchaseService drives the marketplace purchase-request state machine:
//
//	pending_seller -> accepted_waiting_payment -> paid_pending_transfer -> completed
//	pending_seller -> rejected
//	pending_seller | accepted_waiting_payment -> cancelled
//
// Each transition runs in one transaction with the request and listing rows
// locked, so concurrent calls cannot reserve one listing twice or double-close
// an ownership row.
type PurchaseService struct {
	db            *gorm.DB
	ledger        *LedgerService
	users         *UserService
	notifications *NotificationService
	programID     string
}

func NewPurchaseService(db *gorm.DB, ledger *LedgerService, users *UserService, notifications *NotificationService, programID string) *PurchaseService {
	return &PurchaseService{
		db:            db,
		ledger:        ledger,
		users:         users,
		notifications: notifications,
		programID:     programID,
	}
}

type ProposePurchaseInput struct {
	ListingID       uuid.UUID `json:"listing_id" validate:"required"`
	OfferedPrice    float64   `json:"offered_price" validate:"required,gt=0"`
	OfferedCurrency string    `json:"offered_currency" validate:"omitempty,len=3"`
}

// Propose creates a purchase request against an available listing and
// reserves it.
func (s *PurchaseService) Propose(buyerID uuid.UUID, input ProposePurchaseInput) (*models.PurchaseRequest, error) {
	var request *models.PurchaseRequest
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		var listing models.ProductListing
		err := rowLock(tx).First(&listing, "id = ?", input.ListingID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("listing")
		}
		if err != nil {
			return err
		}
		if listing.Status != models.ListingStatusAvailable {
			return apperrors.InvalidState(string(listing.Status), string(models.ListingStatusAvailable))
		}
		if listing.SellerID == buyerID {
			return apperrors.PermissionDenied("cannot purchase your own listing")
		}

		var product models.Product
		if err := tx.First(&product, "id = ?", listing.ProductID).Error; err != nil {
			return err
		}
		if !product.Track {
			return apperrors.NotTracked(product.SerialNumber)
		}

		// The seller must still own the product, when ownership exists at all.
		ownership, err := s.ledger.ActiveOwnership(tx, product.ID)
		if err != nil {
			return err
		}
		if ownership != nil && (ownership.OwnerID == nil || *ownership.OwnerID != listing.SellerID) {
			return apperrors.PermissionDenied("listing seller is not the current owner")
		}

		var active int64
		err = tx.Model(&models.PurchaseRequest{}).
			Where("product_id = ? AND status IN ?", product.ID, models.ActivePurchaseStatuses).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active > 0 {
			return apperrors.InvalidStatef("product %s already has an active purchase request", product.SerialNumber)
		}

		currency := input.OfferedCurrency
		if currency == "" {
			currency = listing.Currency
		}
		request = &models.PurchaseRequest{
			ProductID:       product.ID,
			ListingID:       listing.ID,
			SellerID:        listing.SellerID,
			BuyerID:         buyerID,
			OfferedPrice:    input.OfferedPrice,
			OfferedCurrency: currency,
			Status:          models.PurchaseStatusPendingSeller,
		}
		if err := tx.Create(request).Error; err != nil {
			return err
		}

		if err := tx.Model(&listing).Update("status", models.ListingStatusReserved).Error; err != nil {
			return err
		}

		s.notifications.Notify(tx, listing.SellerID,
			"Purchase offer received",
			fmt.Sprintf("Offer of %.2f %s for %s", input.OfferedPrice, currency, product.Name),
			&product.ID, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// Accept is the seller's approval; the request starts waiting for payment and
// the on-chain addresses for the coming transfer are attached.
func (s *PurchaseService) Accept(sellerID, requestID uuid.UUID) (*models.PurchaseRequest, error) {
	return s.transition(requestID, func(tx *gorm.DB, request *models.PurchaseRequest) error {
		if request.SellerID != sellerID {
			return apperrors.PermissionDenied("only the seller can accept a purchase request")
		}
		if request.Status != models.PurchaseStatusPendingSeller {
			return apperrors.InvalidState(string(request.Status), string(models.PurchaseStatusPendingSeller))
		}

		ownership, err := s.ledger.ActiveOwnership(tx, request.ProductID)
		if err != nil {
			return err
		}
		if ownership != nil && (ownership.OwnerID == nil || *ownership.OwnerID != sellerID) {
			return apperrors.PermissionDenied("seller is no longer the current owner")
		}

		var product models.Product
		if err := tx.First(&product, "id = ?", request.ProductID).Error; err != nil {
			return err
		}
		buyer, err := s.users.Resolve(tx, &request.BuyerID, "")
		if err != nil {
			return err
		}

		sellerKey := ""
		if ownership != nil {
			sellerKey = ownership.OwnerPublicKey
		}
		request.Status = models.PurchaseStatusAcceptedWaitingPayment
		request.ProductPDA = chain.ProductAddress(s.programID, product.SerialNumber)
		request.TransferPDA = chain.TransferAddress(s.programID, product.SerialNumber, sellerKey, buyer.PublicKey)
		if err := tx.Save(request).Error; err != nil {
			return err
		}

		s.notifications.Notify(tx, request.BuyerID,
			"Offer accepted",
			fmt.Sprintf("Your offer for %s was accepted, payment is due", product.Name),
			&request.ProductID, "")
		return nil
	})
}

// Reject is the seller's refusal of a pending request; the listing reopens.
func (s *PurchaseService) Reject(sellerID, requestID uuid.UUID) (*models.PurchaseRequest, error) {
	return s.transition(requestID, func(tx *gorm.DB, request *models.PurchaseRequest) error {
		if request.SellerID != sellerID {
			return apperrors.PermissionDenied("only the seller can reject a purchase request")
		}
		if request.Status != models.PurchaseStatusPendingSeller {
			return apperrors.InvalidState(string(request.Status), string(models.PurchaseStatusPendingSeller))
		}

		request.Status = models.PurchaseStatusRejected
		if err := tx.Save(request).Error; err != nil {
			return err
		}
		if err := s.reopenListing(tx, request.ListingID); err != nil {
			return err
		}

		s.notifications.Notify(tx, request.BuyerID,
			"Offer rejected",
			"Your purchase offer was rejected by the seller",
			&request.ProductID, "")
		return nil
	})
}

// Pay records the buyer's payment and moves the request to
// paid_pending_transfer. Both the direct buyer-accept flow (no payment
// reference) and the card flow (payment_ref set) land here.
func (s *PurchaseService) Pay(buyerID, requestID uuid.UUID, paymentTxHash, paymentRef string) (*models.PurchaseRequest, error) {
	return s.transition(requestID, func(tx *gorm.DB, request *models.PurchaseRequest) error {
		if request.BuyerID != buyerID {
			return apperrors.PermissionDenied("only the buyer can pay for a purchase request")
		}
		if request.Status != models.PurchaseStatusAcceptedWaitingPayment {
			return apperrors.InvalidState(string(request.Status), string(models.PurchaseStatusAcceptedWaitingPayment))
		}

		request.Status = models.PurchaseStatusPaidPendingTransfer
		request.PaymentTxHash = paymentTxHash
		request.PaymentRef = paymentRef
		if err := tx.Save(request).Error; err != nil {
			return err
		}

		s.notifications.Notify(tx, request.SellerID,
			"Payment received",
			"The buyer has paid, the transfer can be finalized",
			&request.ProductID, paymentTxHash)
		return nil
	})
}

// BuyerCancel withdraws the request before the transfer is finalized.
func (s *PurchaseService) BuyerCancel(buyerID, requestID uuid.UUID) (*models.PurchaseRequest, error) {
	return s.transition(requestID, func(tx *gorm.DB, request *models.PurchaseRequest) error {
		if request.BuyerID != buyerID {
			return apperrors.PermissionDenied("only the buyer can cancel a purchase request")
		}
		switch request.Status {
		case models.PurchaseStatusPendingSeller, models.PurchaseStatusAcceptedWaitingPayment:
		default:
			return apperrors.InvalidState(string(request.Status),
				string(models.PurchaseStatusPendingSeller),
				string(models.PurchaseStatusAcceptedWaitingPayment))
		}

		request.Status = models.PurchaseStatusCancelled
		if err := tx.Save(request).Error; err != nil {
			return err
		}
		if err := s.reopenListing(tx, request.ListingID); err != nil {
			return err
		}

		s.notifications.Notify(tx, request.SellerID,
			"Offer cancelled",
			"The buyer has withdrawn the purchase offer",
			&request.ProductID, "")
		return nil
	})
}

// Finalize completes the purchase: ensure the chain node exists, move
// ownership to the buyer, mark the request completed and the listing sold.
// One transaction; a retry with the same transfer tx is a no-op on the node.
func (s *PurchaseService) Finalize(sellerID, requestID uuid.UUID, transferTxHash string, blockSlot uint64) (*models.PurchaseRequest, error) {
	return s.transition(requestID, func(tx *gorm.DB, request *models.PurchaseRequest) error {
		if request.SellerID != sellerID {
			return apperrors.PermissionDenied("only the seller can finalize a purchase request")
		}
		switch request.Status {
		case models.PurchaseStatusAcceptedWaitingPayment, models.PurchaseStatusPaidPendingTransfer:
		default:
			return apperrors.InvalidState(string(request.Status),
				string(models.PurchaseStatusAcceptedWaitingPayment),
				string(models.PurchaseStatusPaidPendingTransfer))
		}

		ownership, err := s.ledger.ActiveOwnership(tx, request.ProductID)
		if err != nil {
			return err
		}
		if ownership != nil && (ownership.OwnerID == nil || *ownership.OwnerID != sellerID) {
			return apperrors.PermissionDenied("seller is no longer the current owner")
		}

		seller, err := s.users.Resolve(tx, &request.SellerID, "")
		if err != nil {
			return err
		}
		buyer, err := s.users.Resolve(tx, &request.BuyerID, "")
		if err != nil {
			return err
		}

		prev, err := s.ledger.LatestNode(tx, request.ProductID)
		if err != nil {
			return err
		}
		var prevHash *string
		if prev != nil {
			prevHash = &prev.TxHash
		}

		fromKey := seller.PublicKey
		if ownership != nil {
			fromKey = ownership.OwnerPublicKey
		}
		node := &models.BlockchainNode{
			TxHash:        transferTxHash,
			PrevTxHash:    prevHash,
			FromUserID:    &request.SellerID,
			FromPublicKey: fromKey,
			ToUserID:      &request.BuyerID,
			ToPublicKey:   buyer.PublicKey,
			ProductID:     request.ProductID,
			BlockSlot:     blockSlot,
			CreatedOn:     nowUTC(),
		}
		if _, err := s.ledger.AppendNode(tx, node); err != nil {
			return err
		}

		if _, err := s.ledger.CloseActiveOwnership(tx, request.ProductID, nowUTC()); err != nil {
			return err
		}
		if _, err := s.ledger.OpenOwnership(tx, &request.BuyerID, buyer.PublicKey, request.ProductID, transferTxHash); err != nil {
			return err
		}

		request.Status = models.PurchaseStatusCompleted
		if err := tx.Save(request).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.ProductListing{}).Where("id = ?", request.ListingID).
			Update("status", models.ListingStatusSold).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Product{}).Where("id = ?", request.ProductID).
			Update("last_tx_hash", transferTxHash).Error; err != nil {
			return err
		}

		s.notifications.Notify(tx, request.BuyerID,
			"Purchase complete",
			"Ownership has been transferred to you",
			&request.ProductID, transferTxHash)
		s.notifications.Notify(tx, request.SellerID,
			"Sale complete",
			"Ownership has been transferred to the buyer",
			&request.ProductID, transferTxHash)
		return nil
	})
}

// GetByID loads one request with its relations.
func (s *PurchaseService) GetByID(requestID uuid.UUID) (*models.PurchaseRequest, error) {
	var request models.PurchaseRequest
	err := s.db.Preload("Product").Preload("Listing").
		First(&request, "id = ?", requestID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("purchase request")
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListForBuyer returns the buyer's requests, newest first.
func (s *PurchaseService) ListForBuyer(buyerID uuid.UUID, params utils.PaginationParams) ([]models.PurchaseRequest, int64, error) {
	return s.list("buyer_id", buyerID, params)
}

// ListForSeller returns the seller's requests, newest first.
func (s *PurchaseService) ListForSeller(sellerID uuid.UUID, params utils.PaginationParams) ([]models.PurchaseRequest, int64, error) {
	return s.list("seller_id", sellerID, params)
}

func (s *PurchaseService) list(column string, userID uuid.UUID, params utils.PaginationParams) ([]models.PurchaseRequest, int64, error) {
	var requests []models.PurchaseRequest
	var total int64

	query := s.db.Model(&models.PurchaseRequest{}).Where(column+" = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := utils.ApplyPagination(query.Preload("Product").Order("created_at DESC"), params).
		Find(&requests).Error
	return requests, total, err
}

// transition loads and locks the request, applies fn inside one transaction,
// and returns the mutated row.
func (s *PurchaseService) transition(requestID uuid.UUID, fn func(tx *gorm.DB, request *models.PurchaseRequest) error) (*models.PurchaseRequest, error) {
	var request models.PurchaseRequest
	err := database.WithTransaction(s.db, func(tx *gorm.DB) error {
		err := rowLock(tx).First(&request, "id = ?", requestID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("purchase request")
		}
		if err != nil {
			return err
		}
		return fn(tx, &request)
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// reopenListing reverts a reserved listing to available. A sold listing is
// never reopened.
func (s *PurchaseService) reopenListing(tx *gorm.DB, listingID uuid.UUID) error {
	return tx.Model(&models.ProductListing{}).
		Where("id = ? AND status = ?", listingID, models.ListingStatusReserved).
		Update("status", models.ListingStatusAvailable).Error
}
