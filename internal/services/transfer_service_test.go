// internal/services/transfer_service_test.go
package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/models"
)

type TransferSuite struct {
	suite.Suite
	h       *harness
	seller  *models.User
	buyer   *models.User
	product *models.Product
}

func (s *TransferSuite) SetupTest() {
	s.h = newHarness(s.T())
	s.seller = s.h.createUser(s.T(), "seller", models.UserTypeConsumer)
	s.buyer = s.h.createUser(s.T(), "buyer", models.UserTypeConsumer)
	s.product = s.h.createProduct(s.T(), "SN-TRANSFER-1", nil)
	s.h.createOwnership(s.T(), s.seller, s.product.ID, "1111")
}

func (s *TransferSuite) TestProposeIssuesCode() {
	proposal, err := s.h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   s.product.ID,
		FromUserID:  s.seller.ID,
		ToPublicKey: s.buyer.PublicKey,
		TxHash:      "2222",
	})
	s.Require().NoError(err)
	s.NotEmpty(proposal.ConfirmationCode)
	s.NotEmpty(proposal.ProductAddress)
	s.NotEmpty(proposal.TransferAddress)

	var product models.Product
	s.Require().NoError(s.h.db.First(&product, "id = ?", s.product.ID).Error)
	s.Equal("2222", product.LastTxHash)

	// The registered buyer was notified.
	var count int64
	s.h.db.Model(&models.Notification{}).Where("user_id = ?", s.buyer.ID).Count(&count)
	s.Equal(int64(1), count)
}

func (s *TransferSuite) TestProposeRejectsNonOwner() {
	_, err := s.h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   s.product.ID,
		FromUserID:  s.buyer.ID,
		ToPublicKey: s.buyer.PublicKey,
		TxHash:      "2222",
	})
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))
}

func (s *TransferSuite) TestAcceptRedeemsCode() {
	proposal, err := s.h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   s.product.ID,
		FromUserID:  s.seller.ID,
		ToPublicKey: s.buyer.PublicKey,
		TxHash:      "2222",
	})
	s.Require().NoError(err)

	err = s.h.transfer.Accept(context.Background(), AcceptTransferInput{
		ProductID:        s.product.ID,
		ToUserID:         &s.buyer.ID,
		TxHash:           "3333",
		ConfirmationCode: proposal.ConfirmationCode,
	})
	s.Require().NoError(err)

	// A code is single-use.
	err = s.h.transfer.Accept(context.Background(), AcceptTransferInput{
		ProductID:        s.product.ID,
		ToUserID:         &s.buyer.ID,
		TxHash:           "3333",
		ConfirmationCode: proposal.ConfirmationCode,
	})
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))
}

func (s *TransferSuite) TestExecuteMovesOwnership() {
	opened, err := s.h.transfer.Execute(context.Background(), ExecuteTransferInput{
		ProductID:  s.product.ID,
		FromUserID: &s.seller.ID,
		ToUserID:   &s.buyer.ID,
		TxHash:     "4444",
		BlockSlot:  42,
	})
	s.Require().NoError(err)
	s.Equal(s.buyer.ID, *opened.OwnerID)

	count, err := s.h.ledger.ActiveOwnershipCount(s.h.db, s.product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	node, err := s.h.ledger.NodeByTxHash(s.h.db, "4444")
	s.Require().NoError(err)
	s.Require().NotNil(node)
	s.Nil(node.PrevTxHash)
	s.Equal(s.seller.ID, *node.FromUserID)
	s.Equal(s.buyer.ID, *node.ToUserID)
	s.Equal(uint64(42), node.BlockSlot)
}

func (s *TransferSuite) TestExecuteLinksPrevNode() {
	s.h.createNode(s.T(), &models.BlockchainNode{
		TxHash:      "1111",
		ToUserID:    &s.seller.ID,
		ToPublicKey: s.seller.PublicKey,
		ProductID:   s.product.ID,
		BlockSlot:   1,
	})

	_, err := s.h.transfer.Execute(context.Background(), ExecuteTransferInput{
		ProductID:  s.product.ID,
		FromUserID: &s.seller.ID,
		ToUserID:   &s.buyer.ID,
		TxHash:     "4444",
		BlockSlot:  42,
	})
	s.Require().NoError(err)

	node, err := s.h.ledger.NodeByTxHash(s.h.db, "4444")
	s.Require().NoError(err)
	s.Require().NotNil(node.PrevTxHash)
	s.Equal("1111", *node.PrevTxHash)
}

func (s *TransferSuite) TestExecuteRetryIsNoOp() {
	input := ExecuteTransferInput{
		ProductID:  s.product.ID,
		FromUserID: &s.seller.ID,
		ToUserID:   &s.buyer.ID,
		TxHash:     "4444",
		BlockSlot:  42,
	}
	_, err := s.h.transfer.Execute(context.Background(), input)
	s.Require().NoError(err)

	opened, err := s.h.transfer.Execute(context.Background(), input)
	s.Require().NoError(err)
	s.Equal(s.buyer.ID, *opened.OwnerID)

	var nodes int64
	s.h.db.Model(&models.BlockchainNode{}).Where("product_id = ?", s.product.ID).Count(&nodes)
	s.Equal(int64(1), nodes)

	count, err := s.h.ledger.ActiveOwnershipCount(s.h.db, s.product.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), count)
}

func (s *TransferSuite) TestEndTrackingInsertsSentinel() {
	err := s.h.transfer.EndTracking(context.Background(), s.product.ID, s.seller.ID)
	s.Require().NoError(err)

	var product models.Product
	s.Require().NoError(s.h.db.First(&product, "id = ?", s.product.ID).Error)
	s.False(product.Track)

	nodes, err := s.h.ledger.NodesInOrder(s.h.db, product.ID)
	s.Require().NoError(err)
	s.Require().Len(nodes, 1)
	s.True(strings.HasPrefix(nodes[0].TxHash, "end:"))
	s.Equal(uint64(0), nodes[0].BlockSlot)
	s.Equal(s.seller.ID, *nodes[0].FromUserID)
	s.Equal(s.seller.ID, *nodes[0].ToUserID)

	count, err := s.h.ledger.ActiveOwnershipCount(s.h.db, product.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), count)

	// Every transfer operation now rejects the product.
	_, err = s.h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   s.product.ID,
		FromUserID:  s.seller.ID,
		ToPublicKey: s.buyer.PublicKey,
		TxHash:      "5555",
	})
	s.True(apperrors.Is(err, apperrors.KindNotTracked))

	_, err = s.h.transfer.Execute(context.Background(), ExecuteTransferInput{
		ProductID:  s.product.ID,
		FromUserID: &s.seller.ID,
		ToUserID:   &s.buyer.ID,
		TxHash:     "5555",
		BlockSlot:  50,
	})
	s.True(apperrors.Is(err, apperrors.KindNotTracked))
}

func (s *TransferSuite) TestEndTrackingRejectsNonOwner() {
	err := s.h.transfer.EndTracking(context.Background(), s.product.ID, s.buyer.ID)
	s.True(apperrors.Is(err, apperrors.KindPermissionDenied))

	// Nothing moved: the ownership row is still open.
	count, err2 := s.h.ledger.ActiveOwnershipCount(s.h.db, s.product.ID)
	s.Require().NoError(err2)
	s.Equal(int64(1), count)
}

func (s *TransferSuite) TestCheckOwnershipPrecedence() {
	// Id wins over key when both are present.
	isOwner, _, err := s.h.transfer.CheckOwnership(s.product.ID, &s.buyer.ID, s.seller.PublicKey)
	s.Require().NoError(err)
	s.False(isOwner)

	isOwner, _, err = s.h.transfer.CheckOwnership(s.product.ID, nil, s.seller.PublicKey)
	s.Require().NoError(err)
	s.True(isOwner)
}

func (s *TransferSuite) TestOwnershipHistory() {
	_, err := s.h.transfer.Execute(context.Background(), ExecuteTransferInput{
		ProductID:  s.product.ID,
		FromUserID: &s.seller.ID,
		ToUserID:   &s.buyer.ID,
		TxHash:     "4444",
		BlockSlot:  42,
	})
	s.Require().NoError(err)

	records, err := s.h.transfer.OwnershipHistory(s.product.ID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal(s.seller.ID, *records[0].Ownership.OwnerID)
	s.NotNil(records[0].Ownership.EndOn)
	s.Equal(s.buyer.ID, *records[1].Ownership.OwnerID)
	s.Nil(records[1].Ownership.EndOn)
	s.Require().NotNil(records[1].Node)
	s.Equal("4444", records[1].Node.TxHash)
}

func TestTransferSuite(t *testing.T) {
	suite.Run(t, new(TransferSuite))
}

func TestProposeUnknownProduct(t *testing.T) {
	h := newHarness(t)
	user := h.createUser(t, "solo", models.UserTypeConsumer)

	_, err := h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   user.ID, // no product with this id
		FromUserID:  user.ID,
		ToPublicKey: user.PublicKey,
		TxHash:      "9999",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestProposeSurfacesConfirmationTimeout(t *testing.T) {
	h := newHarness(t)
	seller := h.createUser(t, "seller-t", models.UserTypeConsumer)
	buyer := h.createUser(t, "buyer-t", models.UserTypeConsumer)
	product := h.createProduct(t, "SN-TIMEOUT", nil)
	h.createOwnership(t, seller, product.ID, "1111")

	h.client.confirmErr = apperrors.InfraTimeout("confirmation timed out", nil)

	_, err := h.transfer.Propose(context.Background(), ProposeTransferInput{
		ProductID:   product.ID,
		FromUserID:  seller.ID,
		ToPublicKey: buyer.PublicKey,
		TxHash:      "2222",
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindInfraTimeout))
	assert.True(t, apperrors.Retryable(err))
}
