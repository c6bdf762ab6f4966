// internal/services/ledger_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/provenance-backend/internal/models"
)

func TestAppendNodeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(t, "owner", models.UserTypeConsumer)
	product := h.createProduct(t, "SN-LEDGER-1", nil)

	node := &models.BlockchainNode{
		TxHash:      "aa11",
		ToUserID:    &owner.ID,
		ToPublicKey: owner.PublicKey,
		ProductID:   product.ID,
		BlockSlot:   10,
	}

	inserted, err := h.ledger.AppendNode(h.db, node)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = h.ledger.AppendNode(h.db, &models.BlockchainNode{
		TxHash:    "aa11",
		ProductID: product.ID,
		BlockSlot: 10,
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	var count int64
	require.NoError(t, h.db.Model(&models.BlockchainNode{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLatestNodeOrdersBySlotThenTime(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-LEDGER-2", nil)

	base := time.Now().UTC().Add(-time.Hour)
	h.createNode(t, &models.BlockchainNode{TxHash: "bb01", ProductID: product.ID, BlockSlot: 5, CreatedOn: base})
	h.createNode(t, &models.BlockchainNode{TxHash: "bb02", ProductID: product.ID, BlockSlot: 9, CreatedOn: base.Add(time.Minute)})
	// Sentinel appended last: slot 0 but the newest row.
	h.createNode(t, &models.BlockchainNode{TxHash: "end:sentinel", ProductID: product.ID, BlockSlot: 0, CreatedOn: base.Add(2 * time.Minute)})

	latest, err := h.ledger.LatestNode(h.db, product.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "bb02", latest.TxHash)
}

func TestLatestNodeNilWhenEmpty(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-LEDGER-3", nil)

	latest, err := h.ledger.LatestNode(h.db, product.ID)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestCloseAndOpenOwnership(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser(t, "alice", models.UserTypeConsumer)
	bob := h.createUser(t, "bob", models.UserTypeConsumer)
	product := h.createProduct(t, "SN-LEDGER-4", nil)
	h.createOwnership(t, alice, product.ID, "cc01")

	closed, err := h.ledger.CloseActiveOwnership(h.db, product.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, alice.ID, *closed.OwnerID)
	assert.NotNil(t, closed.EndOn)

	opened, err := h.ledger.OpenOwnership(h.db, &bob.ID, bob.PublicKey, product.ID, "cc02")
	require.NoError(t, err)
	assert.True(t, opened.Active())

	count, err := h.ledger.ActiveOwnershipCount(h.db, product.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	active, err := h.ledger.ActiveOwnership(h.db, product.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, bob.ID, *active.OwnerID)
}

func TestCloseActiveOwnershipNoneOpen(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-LEDGER-5", nil)

	closed, err := h.ledger.CloseActiveOwnership(h.db, product.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, closed)
}

func TestNodesInOrder(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-LEDGER-6", nil)

	base := time.Now().UTC().Add(-time.Hour)
	h.createNode(t, &models.BlockchainNode{TxHash: "dd03", ProductID: product.ID, BlockSlot: 30, CreatedOn: base.Add(2 * time.Minute)})
	h.createNode(t, &models.BlockchainNode{TxHash: "dd01", ProductID: product.ID, BlockSlot: 10, CreatedOn: base})
	h.createNode(t, &models.BlockchainNode{TxHash: "dd02", ProductID: product.ID, BlockSlot: 20, CreatedOn: base.Add(time.Minute)})

	nodes, err := h.ledger.NodesInOrder(h.db, product.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "dd01", nodes[0].TxHash)
	assert.Equal(t, "dd02", nodes[1].TxHash)
	assert.Equal(t, "dd03", nodes[2].TxHash)
}

// A sentinel node has block slot 0 but closes the chain; it must come after
// every real transfer, not before the genesis node.
func TestNodesInOrderPlacesSentinelLast(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-LEDGER-7", nil)

	base := time.Now().UTC().Add(-time.Hour)
	h.createNode(t, &models.BlockchainNode{TxHash: "ee01", ProductID: product.ID, BlockSlot: 7, CreatedOn: base})
	prev := "ee01"
	h.createNode(t, &models.BlockchainNode{TxHash: "end:closing", PrevTxHash: &prev, ProductID: product.ID, BlockSlot: 0, CreatedOn: base.Add(time.Minute)})

	nodes, err := h.ledger.NodesInOrder(h.db, product.ID)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "ee01", nodes[0].TxHash)
	assert.Equal(t, "end:closing", nodes[1].TxHash)
}
