// internal/services/user_service_test.go
package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/models"
)

// The id always wins over the public key when both are supplied.
func TestResolvePrecedence(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser(t, "alice", models.UserTypeConsumer)
	bob := h.createUser(t, "bob", models.UserTypeConsumer)

	resolved, err := h.users.Resolve(nil, &alice.ID, bob.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, resolved.ID)

	resolved, err = h.users.Resolve(nil, nil, bob.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, resolved.ID)
}

// An explicit id that does not exist is an error; an unknown key is not.
func TestResolveUnknownParties(t *testing.T) {
	h := newHarness(t)
	ghost := h.createUser(t, "ghost", models.UserTypeConsumer)
	require.NoError(t, h.db.Delete(&models.User{}, "id = ?", ghost.ID).Error)

	_, err := h.users.Resolve(nil, &ghost.ID, "")
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	resolved, err := h.users.Resolve(nil, nil, testKey(t))
	require.NoError(t, err)
	assert.Nil(t, resolved)

	resolved, err = h.users.Resolve(nil, nil, "")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestResolveOrCreateReturnsExisting(t *testing.T) {
	h := newHarness(t)
	alice := h.createUser(t, "alice", models.UserTypeConsumer)

	user, err := h.users.ResolveOrCreate(nil, alice.PublicKey, models.UserTypeManufacturer)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
	// Existing users keep their type.
	assert.Equal(t, models.UserTypeConsumer, user.UserType)
}

func TestResolveOrCreateCreatesShell(t *testing.T) {
	h := newHarness(t)
	key := testKey(t)

	user, err := h.users.ResolveOrCreate(nil, key, models.UserTypeConsumer)
	require.NoError(t, err)
	assert.Equal(t, key, user.PublicKey)
	assert.Empty(t, user.PasswordHash)
	assert.Contains(t, user.Username, "wallet_")
	assert.Nil(t, user.Email)
}

// The reconciler discovers many never-seen owner keys in one pass; each must
// get its own shell row even though none of them carries an email.
func TestResolveOrCreateManyShellsWithoutEmail(t *testing.T) {
	h := newHarness(t)

	first, err := h.users.ResolveOrCreate(nil, testKey(t), models.UserTypeConsumer)
	require.NoError(t, err)
	second, err := h.users.ResolveOrCreate(nil, testKey(t), models.UserTypeConsumer)
	require.NoError(t, err)
	third, err := h.users.ResolveOrCreate(nil, testKey(t), models.UserTypeManufacturer)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.NotEqual(t, second.ID, third.ID)

	var count int64
	require.NoError(t, h.db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

// Keys sharing a long common prefix still get distinct shell usernames.
func TestResolveOrCreateShellUsernamesDistinct(t *testing.T) {
	h := newHarness(t)
	keyA := "00112233445566778899aabbccddeeff" + "0000000000000000000000000000000a"
	keyB := "00112233445566778899aabbccddeeff" + "0000000000000000000000000000000b"

	a, err := h.users.ResolveOrCreate(nil, keyA, models.UserTypeConsumer)
	require.NoError(t, err)
	b, err := h.users.ResolveOrCreate(nil, keyB, models.UserTypeConsumer)
	require.NoError(t, err)

	assert.NotEqual(t, a.Username, b.Username)
}

// Registering with a public key the reconciler already synced upgrades the
// shell account instead of failing the unique index.
func TestRegisterClaimsShellAccount(t *testing.T) {
	h := newHarness(t)
	key := testKey(t)
	shell, err := h.users.ResolveOrCreate(nil, key, models.UserTypeConsumer)
	require.NoError(t, err)

	user, err := h.users.Register(RegisterUserInput{
		Username:  "claimed",
		Email:     "claimed@example.com",
		Password:  "supersecret",
		PublicKey: key,
	})
	require.NoError(t, err)
	assert.Equal(t, shell.ID, user.ID)
	assert.Equal(t, "claimed", user.Username)
	assert.NotEmpty(t, user.PasswordHash)

	// A second registration on the same key is refused.
	_, err = h.users.Register(RegisterUserInput{
		Username:  "claimed2",
		Password:  "supersecret",
		PublicKey: key,
	})
	assert.True(t, apperrors.Is(err, apperrors.KindInvalidState))
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	_, err := h.users.Register(RegisterUserInput{
		Username:  "login-user",
		Password:  "supersecret",
		PublicKey: testKey(t),
	})
	require.NoError(t, err)

	user, err := h.users.Authenticate("login-user", "supersecret")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)

	_, err = h.users.Authenticate("login-user", "wrong")
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))

	_, err = h.users.Authenticate("nobody", "supersecret")
	assert.True(t, apperrors.Is(err, apperrors.KindPermissionDenied))
}
