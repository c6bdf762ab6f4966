// internal/services/purchase_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/models"
)

type PurchaseSuite struct {
	suite.Suite
	h       *harness
	seller  *models.User
	buyer   *models.User
	product *models.Product
	listing *models.ProductListing
}

func (s *PurchaseSuite) SetupTest() {
	s.h = newHarness(s.T())
	s.seller = s.h.createUser(s.T(), "seller", models.UserTypeConsumer)
	s.buyer = s.h.createUser(s.T(), "buyer", models.UserTypeConsumer)
	s.product = s.h.createProduct(s.T(), "SN-PURCHASE-1", nil)
	s.listing = s.h.createListing(s.T(), s.seller, s.product.ID, 100)
}

func (s *PurchaseSuite) propose() *models.PurchaseRequest {
	request, err := s.h.purchase.Propose(s.buyer.ID, ProposePurchaseInput{
		ListingID:    s.listing.ID,
		OfferedPrice: 100,
	})
	s.Require().NoError(err)
	return request
}

func (s *PurchaseSuite) listingStatus() models.ListingStatus {
	var listing models.ProductListing
	s.Require().NoError(s.h.db.First(&listing, "id = ?", s.listing.ID).Error)
	return listing.Status
}

func (s *PurchaseSuite) requestStatus(id uuid.UUID) models.PurchaseStatus {
	var request models.PurchaseRequest
	s.Require().NoError(s.h.db.First(&request, "id = ?", id).Error)
	return request.Status
}

// Full happy path: propose at 100 SGD, accept, pay with tx abc123, finalize
// with transfer tx def456. The product starts with no ownership row at all.
func (s *PurchaseSuite) TestFullPurchaseFlow() {
	request := s.propose()
	s.Equal(models.PurchaseStatusPendingSeller, request.Status)
	s.Equal("SGD", request.OfferedCurrency)
	s.Equal(models.ListingStatusReserved, s.listingStatus())

	accepted, err := s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusAcceptedWaitingPayment, accepted.Status)
	s.NotEmpty(accepted.ProductPDA)
	s.NotEmpty(accepted.TransferPDA)

	paid, err := s.h.purchase.Pay(s.buyer.ID, request.ID, "abc123", "")
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusPaidPendingTransfer, paid.Status)
	s.Equal("abc123", paid.PaymentTxHash)

	completed, err := s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusCompleted, completed.Status)
	s.Equal(models.ListingStatusSold, s.listingStatus())

	active, err := s.h.ledger.ActiveOwnership(s.h.db, s.product.ID)
	s.Require().NoError(err)
	s.Require().NotNil(active)
	s.Equal(s.buyer.ID, *active.OwnerID)
	s.Equal("def456", active.TxHash)

	count, err := s.h.ledger.ActiveOwnershipCount(s.h.db, s.product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	node, err := s.h.ledger.NodeByTxHash(s.h.db, "def456")
	s.Require().NoError(err)
	s.Require().NotNil(node)
	s.Equal(s.seller.ID, *node.FromUserID)
	s.Equal(s.buyer.ID, *node.ToUserID)
}

// Finalize when the seller held a prior ownership row: it is closed, the
// buyer's is the only open one.
func (s *PurchaseSuite) TestFinalizeClosesPriorOwnership() {
	s.h.createOwnership(s.T(), s.seller, s.product.ID, "1111")

	request := s.propose()
	_, err := s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)
	_, err = s.h.purchase.Pay(s.buyer.ID, request.ID, "abc123", "")
	s.Require().NoError(err)
	_, err = s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.Require().NoError(err)

	var closed models.Ownership
	s.Require().NoError(s.h.db.First(&closed, "tx_hash = ?", "1111").Error)
	s.NotNil(closed.EndOn)

	count, err := s.h.ledger.ActiveOwnershipCount(s.h.db, s.product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

// Finalize may also run straight from accepted_waiting_payment (off-platform
// settlement).
func (s *PurchaseSuite) TestFinalizeFromAccepted() {
	request := s.propose()
	_, err := s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)

	completed, err := s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusCompleted, completed.Status)
}

func (s *PurchaseSuite) TestProposeGuards() {
	// Seller cannot buy their own listing.
	_, err := s.h.purchase.Propose(s.seller.ID, ProposePurchaseInput{
		ListingID:    s.listing.ID,
		OfferedPrice: 100,
	})
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))

	// Second active request for the same product is refused.
	s.propose()
	other := s.h.createUser(s.T(), "other", models.UserTypeConsumer)
	_, err = s.h.purchase.Propose(other.ID, ProposePurchaseInput{
		ListingID:    s.listing.ID,
		OfferedPrice: 120,
	})
	s.True(apperrors.Is(err, apperrors.KindInvalidState))
}

func (s *PurchaseSuite) TestProposeRejectsUntrackedProduct() {
	s.Require().NoError(s.h.db.Model(&models.Product{}).
		Where("id = ?", s.product.ID).Update("track", false).Error)

	_, err := s.h.purchase.Propose(s.buyer.ID, ProposePurchaseInput{
		ListingID:    s.listing.ID,
		OfferedPrice: 100,
	})
	s.True(apperrors.Is(err, apperrors.KindNotTracked))
	s.Equal(models.ListingStatusAvailable, s.listingStatus())
}

func (s *PurchaseSuite) TestProposeRejectsWhenSellerNotOwner() {
	other := s.h.createUser(s.T(), "actual-owner", models.UserTypeConsumer)
	s.h.createOwnership(s.T(), other, s.product.ID, "1111")

	_, err := s.h.purchase.Propose(s.buyer.ID, ProposePurchaseInput{
		ListingID:    s.listing.ID,
		OfferedPrice: 100,
	})
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))
}

func (s *PurchaseSuite) TestRejectReopensListing() {
	request := s.propose()

	rejected, err := s.h.purchase.Reject(s.seller.ID, request.ID)
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusRejected, rejected.Status)
	s.Equal(models.ListingStatusAvailable, s.listingStatus())
}

func (s *PurchaseSuite) TestBuyerCancelFromAccepted() {
	request := s.propose()
	_, err := s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)

	cancelled, err := s.h.purchase.BuyerCancel(s.buyer.ID, request.ID)
	s.Require().NoError(err)
	s.Equal(models.PurchaseStatusCancelled, cancelled.Status)
	s.Equal(models.ListingStatusAvailable, s.listingStatus())
}

// Invalid transitions are refused with an invalid-state error and leave the
// request and listing untouched.
func (s *PurchaseSuite) TestInvalidTransitions() {
	request := s.propose()

	// Pay before accept.
	_, err := s.h.purchase.Pay(s.buyer.ID, request.ID, "abc123", "")
	s.True(apperrors.Is(err, apperrors.KindInvalidState))
	s.Equal(models.PurchaseStatusPendingSeller, s.requestStatus(request.ID))

	// Finalize before accept.
	_, err = s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.True(apperrors.Is(err, apperrors.KindInvalidState))
	s.Equal(models.PurchaseStatusPendingSeller, s.requestStatus(request.ID))

	// Wrong caller on accept.
	_, err = s.h.purchase.Accept(s.buyer.ID, request.ID)
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))

	_, err = s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)

	// Accept twice.
	_, err = s.h.purchase.Accept(s.seller.ID, request.ID)
	s.True(apperrors.Is(err, apperrors.KindInvalidState))

	// Reject after accept.
	_, err = s.h.purchase.Reject(s.seller.ID, request.ID)
	s.True(apperrors.Is(err, apperrors.KindInvalidState))

	_, err = s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.Require().NoError(err)

	// Cancel after completion.
	_, err = s.h.purchase.BuyerCancel(s.buyer.ID, request.ID)
	s.True(apperrors.Is(err, apperrors.KindInvalidState))
	s.Equal(models.PurchaseStatusCompleted, s.requestStatus(request.ID))
	s.Equal(models.ListingStatusSold, s.listingStatus())
}

// A completed sale never reopens the listing, even if a stale cancel arrives.
func (s *PurchaseSuite) TestSoldListingNeverReopens() {
	request := s.propose()
	_, err := s.h.purchase.Accept(s.seller.ID, request.ID)
	s.Require().NoError(err)
	_, err = s.h.purchase.Finalize(s.seller.ID, request.ID, "def456", 77)
	s.Require().NoError(err)

	err = s.h.purchase.reopenListing(s.h.db, s.listing.ID)
	s.Require().NoError(err)
	s.Equal(models.ListingStatusSold, s.listingStatus())
}

func (s *PurchaseSuite) TestListForBuyerAndSeller() {
	request := s.propose()

	params := defaultParams()
	buyerRequests, total, err := s.h.purchase.ListForBuyer(s.buyer.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(buyerRequests, 1)
	s.Equal(request.ID, buyerRequests[0].ID)

	sellerRequests, total, err := s.h.purchase.ListForSeller(s.seller.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Require().Len(sellerRequests, 1)

	_, total, err = s.h.purchase.ListForSeller(s.buyer.ID, params)
	s.Require().NoError(err)
	s.Equal(int64(0), total)
}

func TestPurchaseSuite(t *testing.T) {
	suite.Run(t, new(PurchaseSuite))
}
