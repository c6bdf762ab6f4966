// internal/services/services_test.go
package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/database"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

const testProgramID = "a1b2c3d4e5f601020304050607080910111213141516171819202122232425ff"

func hashHex(t *testing.T, s string) string {
	t.Helper()
	return utils.HashString(s)
}

func defaultParams() utils.PaginationParams {
	return utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations(db))
	return db
}

// fakeChainClient serves canned responses so service tests never touch a
// network.
type fakeChainClient struct {
	transactions    map[string]*chain.TransactionMeta
	accounts        map[string]*chain.AccountInfo
	programAccounts []chain.KeyedAccount
	confirmErr      error
}

func newFakeChainClient() *fakeChainClient {
	return &fakeChainClient{
		transactions: make(map[string]*chain.TransactionMeta),
		accounts:     make(map[string]*chain.AccountInfo),
	}
}

func (f *fakeChainClient) GetTransaction(ctx context.Context, signature, commitment string) (*chain.TransactionMeta, error) {
	meta, ok := f.transactions[signature]
	if !ok {
		return nil, apperrors.NotFoundf("transaction %s not found", signature)
	}
	return meta, nil
}

func (f *fakeChainClient) GetAccountInfo(ctx context.Context, address string) (*chain.AccountInfo, error) {
	info, ok := f.accounts[address]
	if !ok {
		return nil, apperrors.NotFoundf("account %s not found", address)
	}
	return info, nil
}

func (f *fakeChainClient) GetSignaturesForAddress(ctx context.Context, address string, limit int, before string) ([]chain.SignatureInfo, error) {
	return nil, nil
}

func (f *fakeChainClient) GetProgramAccounts(ctx context.Context, programID string, dataSize int) ([]chain.KeyedAccount, error) {
	return f.programAccounts, nil
}

func (f *fakeChainClient) SubmitInstruction(ctx context.Context, signer chain.Signer, ix chain.Instruction) (string, error) {
	return "submitted", nil
}

func (f *fakeChainClient) ConfirmTransaction(ctx context.Context, signature string) error {
	return f.confirmErr
}

func (f *fakeChainClient) RequestAirdrop(ctx context.Context, address string, amount uint64) (string, error) {
	return "airdrop", nil
}

// addTransferTx registers an on-chain transaction whose embedded record
// mirrors the given node fields.
func (f *fakeChainClient) addTransferTx(txHash string, slot uint64, memo chain.TransferMemo) {
	f.transactions[txHash] = &chain.TransactionMeta{
		Signature: txHash,
		Slot:      slot,
		BlockTime: time.Now().Unix(),
		Memo:      &memo,
	}
}

// fakeFetcher serves metadata documents from memory.
type fakeFetcher struct {
	docs map[string][]byte
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	raw, ok := f.docs[uri]
	if !ok {
		return nil, apperrors.NotFoundf("metadata document at %s not found", uri)
	}
	return raw, nil
}

// harness wires every service against one in-memory database and fake chain.
type harness struct {
	db            *gorm.DB
	client        *fakeChainClient
	ledger        *LedgerService
	users         *UserService
	notifications *NotificationService
	codes         *CodeService
	metadata      *MetadataService
	transfer      *TransferService
	purchase      *PurchaseService
	validation    *ValidationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := newTestDB(t)
	client := newFakeChainClient()
	ledger := NewLedgerService()
	users := NewUserService(db)
	notifications := NewNotificationService(db, nil)
	codes := NewCodeService(time.Minute)
	t.Cleanup(codes.Close)

	cfg := &config.Config{}
	cfg.Metadata.BaseURL = "http://metadata.test"
	metadata, err := NewMetadataService(db, cfg)
	require.NoError(t, err)

	return &harness{
		db:            db,
		client:        client,
		ledger:        ledger,
		users:         users,
		notifications: notifications,
		codes:         codes,
		metadata:      metadata,
		transfer:      NewTransferService(db, ledger, users, notifications, codes, client, testProgramID),
		purchase:      NewPurchaseService(db, ledger, users, notifications, testProgramID),
		validation:    NewValidationService(db, ledger, client, chain.CommitmentConfirmed, testProgramID),
	}
}

var keyCounter int

func testKey(t *testing.T) string {
	t.Helper()
	keyCounter++
	return fmt.Sprintf("%064x", keyCounter)
}

func (h *harness) createUser(t *testing.T, username string, userType models.UserType) *models.User {
	t.Helper()
	user := &models.User{
		Username:  username,
		PublicKey: testKey(t),
		UserType:  userType,
		Status:    models.UserStatusActive,
	}
	require.NoError(t, h.db.Create(user).Error)
	return user
}

func (h *harness) createProduct(t *testing.T, serial string, registeredBy *uuid.UUID) *models.Product {
	t.Helper()
	addr := chain.ProductAddress(testProgramID, serial)
	product := &models.Product{
		SerialNumber: serial,
		Name:         "Product " + serial,
		RegisteredBy: registeredBy,
		ChainAddress: &addr,
		Track:        true,
	}
	require.NoError(t, h.db.Create(product).Error)
	return product
}

func (h *harness) createOwnership(t *testing.T, owner *models.User, productID uuid.UUID, txHash string) *models.Ownership {
	t.Helper()
	ownership := &models.Ownership{
		OwnerID:        &owner.ID,
		OwnerPublicKey: owner.PublicKey,
		ProductID:      productID,
		StartOn:        time.Now().UTC(),
		TxHash:         txHash,
	}
	require.NoError(t, h.db.Create(ownership).Error)
	return ownership
}

func (h *harness) createListing(t *testing.T, seller *models.User, productID uuid.UUID, price float64) *models.ProductListing {
	t.Helper()
	listing := &models.ProductListing{
		ProductID: productID,
		SellerID:  seller.ID,
		Price:     price,
		Currency:  "SGD",
		Status:    models.ListingStatusAvailable,
	}
	require.NoError(t, h.db.Create(listing).Error)
	return listing
}

func (h *harness) createNode(t *testing.T, node *models.BlockchainNode) *models.BlockchainNode {
	t.Helper()
	if node.CreatedOn.IsZero() {
		node.CreatedOn = time.Now().UTC()
	}
	require.NoError(t, h.db.Create(node).Error)
	return node
}
