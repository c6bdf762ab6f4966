// internal/services/code_service_test.go
package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/provenance-backend/internal/apperrors"
)

func TestCodeIssueAndRedeem(t *testing.T) {
	codes := NewCodeService(time.Minute)
	defer codes.Close()

	productID := uuid.New()
	code, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)
	require.Len(t, code, 8)

	require.NoError(t, codes.Redeem(code, productID))

	// Single use.
	err = codes.Redeem(code, productID)
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
}

func TestCodeBoundToProduct(t *testing.T) {
	codes := NewCodeService(time.Minute)
	defer codes.Close()

	productID := uuid.New()
	code, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)

	err = codes.Redeem(code, uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))

	// The failed attempt did not consume it.
	require.NoError(t, codes.Redeem(code, productID))
}

func TestCodeReissueReplaces(t *testing.T) {
	codes := NewCodeService(time.Minute)
	defer codes.Close()

	productID := uuid.New()
	first, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)
	second, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)

	assert.Equal(t, 1, codes.PendingCount())
	err = codes.Redeem(first, productID)
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
	require.NoError(t, codes.Redeem(second, productID))
}

func TestCodeExpiry(t *testing.T) {
	codes := NewCodeService(20 * time.Millisecond)
	defer codes.Close()

	productID := uuid.New()
	code, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)
	err = codes.Redeem(code, productID)
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
}

func TestCodeInvalidate(t *testing.T) {
	codes := NewCodeService(time.Minute)
	defer codes.Close()

	productID := uuid.New()
	code, err := codes.Issue(productID, "abcd")
	require.NoError(t, err)

	codes.Invalidate(productID)
	assert.Equal(t, 0, codes.PendingCount())
	err = codes.Redeem(code, productID)
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
}
