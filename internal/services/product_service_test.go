// internal/services/product_service_test.go
package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

func TestRegisterProduct(t *testing.T) {
	h := newHarness(t)
	maker := h.createUser(t, "maker", models.UserTypeManufacturer)
	products := NewProductService(h.db, h.metadata, testProgramID)

	product, err := products.Register(maker, RegisterProductInput{
		SerialNumber: "SN-PROD-1",
		Name:         "Widget",
		Description:  "A widget",
	})
	require.NoError(t, err)
	require.NotNil(t, product.ChainAddress)
	assert.Equal(t, chain.ProductAddress(testProgramID, "SN-PROD-1"), *product.ChainAddress)
	assert.True(t, product.Track)

	// The stored document hashes to the recorded value and round-trips.
	require.NotNil(t, product.Metadata)
	assert.Equal(t, utils.HashBytes(product.Metadata.Document), product.Metadata.Hash)

	var doc MetadataDocument
	require.NoError(t, json.Unmarshal(product.Metadata.Document, &doc))
	assert.Equal(t, "SN-PROD-1", doc.SerialNumber)

	// Duplicate serial is refused.
	_, err = products.Register(maker, RegisterProductInput{
		SerialNumber: "SN-PROD-1",
		Name:         "Widget again",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestRegisterRequiresManufacturer(t *testing.T) {
	h := newHarness(t)
	consumer := h.createUser(t, "consumer", models.UserTypeConsumer)
	products := NewProductService(h.db, h.metadata, testProgramID)

	_, err := products.Register(consumer, RegisterProductInput{
		SerialNumber: "SN-PROD-2",
		Name:         "Widget",
	})
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
}

func TestCreateListingGuards(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(t, "owner", models.UserTypeConsumer)
	other := h.createUser(t, "other", models.UserTypeConsumer)
	product := h.createProduct(t, "SN-PROD-3", nil)
	h.createOwnership(t, owner, product.ID, "1111")
	products := NewProductService(h.db, h.metadata, testProgramID)

	// Only the current owner can list.
	_, err := products.CreateListing(other, CreateListingInput{ProductID: product.ID, Price: 50})
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))

	listing, err := products.CreateListing(owner, CreateListingInput{ProductID: product.ID, Price: 50})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusAvailable, listing.Status)
	assert.Equal(t, "SGD", listing.Currency)

	// One open listing per product.
	_, err = products.CreateListing(owner, CreateListingInput{ProductID: product.ID, Price: 60})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestCreateListingUntracked(t *testing.T) {
	h := newHarness(t)
	owner := h.createUser(t, "owner", models.UserTypeConsumer)
	product := h.createProduct(t, "SN-PROD-4", nil)
	require.NoError(t, h.db.Model(&models.Product{}).Where("id = ?", product.ID).Update("track", false).Error)
	products := NewProductService(h.db, h.metadata, testProgramID)

	_, err := products.CreateListing(owner, CreateListingInput{ProductID: product.ID, Price: 50})
	assert.True(t, apperrors.Is(err, apperrors.KindNotTracked))
}

// Metadata bytes are stored and served verbatim; Put twice with the same
// document keeps the same hash.
func TestMetadataPutIsStable(t *testing.T) {
	h := newHarness(t)
	product := h.createProduct(t, "SN-PROD-5", nil)

	doc := MetadataDocument{SerialNumber: "SN-PROD-5", Name: "Widget"}
	first, err := h.metadata.Put(nil, product.ID, doc)
	require.NoError(t, err)
	second, err := h.metadata.Put(nil, product.ID, doc)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)

	stored, err := h.metadata.Get(product.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Document, stored.Document)

	var count int64
	h.db.Model(&models.ProductMetadata{}).Where("product_id = ?", product.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}
