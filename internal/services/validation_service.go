// internal/services/validation_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

// ValidationService cross-checks the database mirror against on-chain data.
// Every check accumulates discrepancies into its result instead of failing on
// the first one; only infrastructure failures (RPC unreachable, timeouts)
// come back as errors.
type ValidationService struct {
	db         *gorm.DB
	ledger     *LedgerService
	client     chain.Client
	commitment string
	programID  string
}

func NewValidationService(db *gorm.DB, ledger *LedgerService, client chain.Client, commitment, programID string) *ValidationService {
	return &ValidationService{
		db:         db,
		ledger:     ledger,
		client:     client,
		commitment: commitment,
		programID:  programID,
	}
}

// NodeValidationResult lists every field where the stored node and the
// on-chain transfer record disagree. Valid means zero mismatches.
type NodeValidationResult struct {
	TxHash     string                    `json:"tx_hash"`
	Valid      bool                      `json:"valid"`
	Mismatches []apperrors.FieldMismatch `json:"mismatches,omitempty"`
}

// ValidateNode compares one stored chain node against the transfer record
// embedded in the on-chain transaction. Fails with a not-found error when
// either side is missing.
func (s *ValidationService) ValidateNode(ctx context.Context, txHash string) (*NodeValidationResult, error) {
	node, err := s.ledger.NodeByTxHash(s.db, txHash)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, apperrors.NotFoundf("chain node %s not found", txHash)
	}

	meta, err := s.client.GetTransaction(ctx, txHash, s.commitment)
	if err != nil {
		return nil, err
	}
	if meta.Memo == nil {
		return nil, apperrors.NotFoundf("transaction %s carries no transfer record", txHash)
	}

	result := &NodeValidationResult{TxHash: txHash}
	compare := func(field, stored, onChain string) {
		if stored != onChain {
			result.Mismatches = append(result.Mismatches, apperrors.FieldMismatch{
				Field:   field,
				Stored:  stored,
				OnChain: onChain,
			})
		}
	}

	compare("from_user_id", uuidString(node.FromUserID), meta.Memo.FromUserID)
	compare("from_public_key", node.FromPublicKey, meta.Memo.FromPublicKey)
	compare("to_user_id", uuidString(node.ToUserID), meta.Memo.ToUserID)
	compare("to_public_key", node.ToPublicKey, meta.Memo.ToPublicKey)
	compare("product_id", node.ProductID.String(), meta.Memo.ProductID)

	result.Valid = len(result.Mismatches) == 0
	return result, nil
}

// OwnershipValidationResult extends the node check with the ownership row's
// own receiver fields.
type OwnershipValidationResult struct {
	OwnershipID uuid.UUID                 `json:"ownership_id"`
	TxHash      string                    `json:"tx_hash"`
	Valid       bool                      `json:"valid"`
	Mismatches  []apperrors.FieldMismatch `json:"mismatches,omitempty"`
}

// ValidateOwnershipRecord validates the node that created the ownership row,
// then checks the row's owner fields against the node's receiver fields.
func (s *ValidationService) ValidateOwnershipRecord(ctx context.Context, ownershipID uuid.UUID) (*OwnershipValidationResult, error) {
	var ownership models.Ownership
	err := s.db.First(&ownership, "id = ?", ownershipID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("ownership record")
	}
	if err != nil {
		return nil, err
	}

	nodeResult, err := s.ValidateNode(ctx, ownership.TxHash)
	if err != nil {
		return nil, err
	}

	result := &OwnershipValidationResult{
		OwnershipID: ownershipID,
		TxHash:      ownership.TxHash,
		Mismatches:  nodeResult.Mismatches,
	}

	node, err := s.ledger.NodeByTxHash(s.db, ownership.TxHash)
	if err != nil {
		return nil, err
	}
	if uuidString(ownership.OwnerID) != uuidString(node.ToUserID) {
		result.Mismatches = append(result.Mismatches, apperrors.FieldMismatch{
			Field:   "owner_id",
			Stored:  uuidString(ownership.OwnerID),
			OnChain: uuidString(node.ToUserID),
		})
	}
	if ownership.OwnerPublicKey != node.ToPublicKey {
		result.Mismatches = append(result.Mismatches, apperrors.FieldMismatch{
			Field:   "owner_public_key",
			Stored:  ownership.OwnerPublicKey,
			OnChain: node.ToPublicKey,
		})
	}

	result.Valid = len(result.Mismatches) == 0
	return result, nil
}

// OwnerCheck reports the current-owner comparison inside a chain report.
type OwnerCheck struct {
	OwnerID   string `json:"owner_id,omitempty"`
	PublicKey string `json:"public_key"`
	Verified  bool   `json:"verified"`
}

// ChainReport is the full diagnostic for one product's chain of custody.
type ChainReport struct {
	ProductID    uuid.UUID              `json:"product_id"`
	IsValid      bool                   `json:"is_valid"`
	Errors       []string               `json:"errors,omitempty"`
	Nodes        []NodeValidationResult `json:"nodes"`
	CurrentOwner *OwnerCheck            `json:"current_owner,omitempty"`
}

// ValidateProductChain walks the product's full node sequence: hash linkage,
// transfer continuity, per-node chain comparison, and finally the active
// ownership row against the last node's receiver. Sentinel end-tracking nodes
// exist only in the mirror and skip the on-chain comparison.
func (s *ValidationService) ValidateProductChain(ctx context.Context, productID uuid.UUID) (*ChainReport, error) {
	var product models.Product
	err := s.db.First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}

	nodes, err := s.ledger.NodesInOrder(s.db, productID)
	if err != nil {
		return nil, err
	}

	report := &ChainReport{ProductID: productID}

	for i, node := range nodes {
		if i == 0 {
			if node.PrevTxHash != nil {
				report.Errors = append(report.Errors,
					fmt.Sprintf("chain broken at tx %s: genesis node has a previous hash", node.TxHash))
			}
		} else {
			prev := nodes[i-1]
			if node.PrevTxHash == nil || *node.PrevTxHash != prev.TxHash {
				report.Errors = append(report.Errors,
					fmt.Sprintf("chain broken at tx %s", node.TxHash))
			}
			if uuidString(node.FromUserID) != uuidString(prev.ToUserID) {
				report.Errors = append(report.Errors,
					fmt.Sprintf("continuity broken at tx %s", node.TxHash))
			}
		}

		if isSentinel(node.TxHash) {
			report.Nodes = append(report.Nodes, NodeValidationResult{TxHash: node.TxHash, Valid: true})
			continue
		}

		nodeResult, err := s.ValidateNode(ctx, node.TxHash)
		if err != nil {
			if apperrors.Is(err, apperrors.KindNotFound) {
				report.Errors = append(report.Errors,
					fmt.Sprintf("transaction %s not found on chain", node.TxHash))
				report.Nodes = append(report.Nodes, NodeValidationResult{TxHash: node.TxHash, Valid: false})
				continue
			}
			return nil, err
		}
		report.Nodes = append(report.Nodes, *nodeResult)
		if !nodeResult.Valid {
			report.Errors = append(report.Errors,
				fmt.Sprintf("node %s disagrees with chain", node.TxHash))
		}
	}

	s.checkCurrentOwner(report, &product, nodes)

	report.IsValid = len(report.Errors) == 0
	return report, nil
}

func (s *ValidationService) checkCurrentOwner(report *ChainReport, product *models.Product, nodes []models.BlockchainNode) {
	count, err := s.ledger.ActiveOwnershipCount(s.db, product.ID)
	if err != nil {
		report.Errors = append(report.Errors, "failed to count active ownership records")
		return
	}

	if !product.Track {
		// An ended product correctly has no open row.
		if count != 0 {
			report.Errors = append(report.Errors,
				fmt.Sprintf("untracked product has %d active ownership records", count))
		}
		return
	}

	switch {
	case count == 0:
		if len(nodes) > 0 {
			report.Errors = append(report.Errors, "no active ownership record")
		}
		return
	case count > 1:
		report.Errors = append(report.Errors,
			fmt.Sprintf("%d active ownership records, expected exactly one", count))
		return
	}

	ownership, err := s.ledger.ActiveOwnership(s.db, product.ID)
	if err != nil || ownership == nil {
		report.Errors = append(report.Errors, "failed to load active ownership record")
		return
	}

	check := &OwnerCheck{
		OwnerID:   uuidString(ownership.OwnerID),
		PublicKey: ownership.OwnerPublicKey,
	}
	report.CurrentOwner = check

	if len(nodes) == 0 {
		// Ownership without chain history; nothing to compare against.
		check.Verified = true
		return
	}

	last := nodes[len(nodes)-1]
	if uuidString(ownership.OwnerID) != uuidString(last.ToUserID) ||
		ownership.OwnerPublicKey != last.ToPublicKey {
		report.Errors = append(report.Errors, "Current owner mismatch")
		return
	}
	check.Verified = true
}

// OwnerVerification is the tri-state outcome of VerifyCurrentOwner.
type OwnerVerification struct {
	IsOwner  bool `json:"is_owner"`
	Verified bool `json:"verified"`
}

// VerifyCurrentOwner combines the database ownership lookup with a chain
// check of the row's transaction: not-owner, owner-but-unverified, or
// owner-and-verified.
func (s *ValidationService) VerifyCurrentOwner(ctx context.Context, productID uuid.UUID, userID *uuid.UUID, publicKey string) (*OwnerVerification, error) {
	ownership, err := s.ledger.ActiveOwnership(s.db, productID)
	if err != nil {
		return nil, err
	}
	if ownership == nil {
		return &OwnerVerification{}, nil
	}

	isOwner := false
	if userID != nil {
		isOwner = ownership.OwnerID != nil && *ownership.OwnerID == *userID
	} else if publicKey != "" {
		isOwner = ownership.OwnerPublicKey == publicKey
	}
	if !isOwner {
		return &OwnerVerification{}, nil
	}

	if isSentinel(ownership.TxHash) {
		return &OwnerVerification{IsOwner: true, Verified: true}, nil
	}

	nodeResult, err := s.ValidateNode(ctx, ownership.TxHash)
	if err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return &OwnerVerification{IsOwner: true, Verified: false}, nil
		}
		return nil, err
	}
	return &OwnerVerification{IsOwner: true, Verified: nodeResult.Valid}, nil
}

// RegistrationValidationResult compares a product's stored registration data
// with the decoded on-chain account.
type RegistrationValidationResult struct {
	ProductID  uuid.UUID                 `json:"product_id"`
	Address    string                    `json:"address"`
	Valid      bool                      `json:"valid"`
	Mismatches []apperrors.FieldMismatch `json:"mismatches,omitempty"`
}

// ValidateProductRegistration fetches the product's on-chain account, decodes
// it, and compares serial hash, metadata hash, and the active flag against
// the stored rows.
func (s *ValidationService) ValidateProductRegistration(ctx context.Context, productID uuid.UUID) (*RegistrationValidationResult, error) {
	var product models.Product
	err := s.db.Preload("Metadata").First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}

	address := ""
	if product.ChainAddress != nil {
		address = *product.ChainAddress
	} else {
		address = chain.ProductAddress(s.programID, product.SerialNumber)
	}

	info, err := s.client.GetAccountInfo(ctx, address)
	if err != nil {
		return nil, err
	}

	account, err := chain.DecodeProductAccount(info.Data)
	if err != nil {
		return nil, err
	}

	result := &RegistrationValidationResult{ProductID: productID, Address: address}
	compare := func(field, stored, onChain string) {
		if stored != onChain {
			result.Mismatches = append(result.Mismatches, apperrors.FieldMismatch{
				Field:   field,
				Stored:  stored,
				OnChain: onChain,
			})
		}
	}

	compare("serial_hash", utils.HashString(product.SerialNumber), account.SerialHash)
	if product.Metadata != nil {
		compare("metadata_hash", product.Metadata.Hash, account.MetadataHash)
	}
	compare("track", fmt.Sprintf("%t", product.Track), fmt.Sprintf("%t", account.Active))

	result.Valid = len(result.Mismatches) == 0
	return result, nil
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func isSentinel(txHash string) bool {
	return strings.HasPrefix(txHash, "end:")
}
