// internal/services/payment_service.go
package services

import (
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/models"
)

// PaymentService handles the fiat leg of a purchase through Stripe. The
// on-chain transfer is settled separately; this only covers the card payment
// for an accepted purchase request.
type PaymentService struct {
	db       *gorm.DB
	purchase *PurchaseService
	cfg      *config.Config
}

func NewPaymentService(db *gorm.DB, purchase *PurchaseService, cfg *config.Config) *PaymentService {
	stripe.Key = cfg.Payment.StripeSecretKey
	return &PaymentService{db: db, purchase: purchase, cfg: cfg}
}

type PaymentIntentResponse struct {
	ClientSecret    string  `json:"client_secret"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

// CreateIntent opens a Stripe payment intent for an accepted request. Only
// the buyer can start payment, and only while the request waits for it.
func (s *PaymentService) CreateIntent(buyerID, requestID uuid.UUID) (*PaymentIntentResponse, error) {
	request, err := s.purchase.GetByID(requestID)
	if err != nil {
		return nil, err
	}
	if request.BuyerID != buyerID {
		return nil, apperrors.PermissionDenied("only the buyer can pay for a purchase request")
	}
	if request.Status != models.PurchaseStatusAcceptedWaitingPayment {
		return nil, apperrors.InvalidState(string(request.Status), string(models.PurchaseStatusAcceptedWaitingPayment))
	}

	amountInCents := int64(request.OfferedPrice * 100)
	currency := strings.ToLower(request.OfferedCurrency)

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountInCents),
		Currency: stripe.String(currency),
	}
	params.AddMetadata("purchase_request_id", request.ID.String())
	params.AddMetadata("product_id", request.ProductID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, apperrors.Internal("failed to create payment intent", err)
	}

	return &PaymentIntentResponse{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		Amount:          request.OfferedPrice,
		Currency:        request.OfferedCurrency,
	}, nil
}

// ConfirmAndPay verifies the intent with Stripe and, on success, moves the
// request to paid_pending_transfer with the intent id as payment reference.
func (s *PaymentService) ConfirmAndPay(buyerID, requestID uuid.UUID, paymentIntentID string) (*models.PurchaseRequest, error) {
	pi, err := paymentintent.Get(paymentIntentID, nil)
	if err != nil {
		return nil, apperrors.Internal("failed to fetch payment intent", err)
	}

	if pi.Metadata["purchase_request_id"] != requestID.String() {
		return nil, apperrors.PermissionDenied("payment intent belongs to another purchase request")
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return s.purchase.Pay(buyerID, requestID, "", paymentIntentID)
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return nil, apperrors.InvalidStatef("payment requires further action (%s)", pi.Status)
	default:
		return nil, apperrors.InvalidStatef("payment intent in state %s", pi.Status)
	}
}
