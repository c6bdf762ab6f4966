// internal/services/user_service.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/models"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// Resolve looks a user up by id when one is given, otherwise by public key.
// The id always takes precedence; a request carrying both never falls back to
// the key. Returns nil without error when neither identifier is present or
// the key is unknown — callers decide whether an unresolved party is fatal.
func (s *UserService) Resolve(tx *gorm.DB, userID *uuid.UUID, publicKey string) (*models.User, error) {
	if tx == nil {
		tx = s.db
	}

	if userID != nil {
		var user models.User
		err := tx.First(&user, "id = ?", *userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFoundf("user %s not found", userID)
		}
		if err != nil {
			return nil, err
		}
		return &user, nil
	}

	if publicKey == "" {
		return nil, nil
	}

	var user models.User
	err := tx.First(&user, "public_key = ?", publicKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByID fetches a user or a typed not-found error.
func (s *UserService) GetByID(userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundf("user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUsername fetches a user by login name.
func (s *UserService) GetByUsername(username string) (*models.User, error) {
	var user models.User
	err := s.db.First(&user, "username = ?", username).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveOrCreate returns the user owning the public key, creating a shell
// account when the key has never been seen. Used by the chain reconciler,
// which discovers owners from raw account state before they sign up.
func (s *UserService) ResolveOrCreate(tx *gorm.DB, publicKey string, userType models.UserType) (*models.User, error) {
	if tx == nil {
		tx = s.db
	}

	user, err := s.Resolve(tx, nil, publicKey)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	// The full key keeps shell usernames as unique as the wallets they
	// stand in for.
	user = &models.User{
		Username:  fmt.Sprintf("wallet_%s", publicKey),
		PublicKey: publicKey,
		UserType:  userType,
		Status:    models.UserStatusActive,
	}
	if err := tx.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

type RegisterUserInput struct {
	Username  string          `json:"username" validate:"required,min=3,max=50"`
	Email     string          `json:"email" validate:"omitempty,email"`
	Password  string          `json:"password" validate:"required,min=8"`
	PublicKey string          `json:"public_key" validate:"required,public_key"`
	UserType  models.UserType `json:"user_type" validate:"omitempty,oneof=manufacturer consumer"`
}

// Register creates a full account. Shell accounts created by the reconciler
// are claimed here: registering with an already-synced public key upgrades
// the shell row instead of failing the unique index.
func (s *UserService) Register(input RegisterUserInput) (*models.User, error) {
	if input.UserType == "" {
		input.UserType = models.UserTypeConsumer
	}

	var user *models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := s.Resolve(tx, nil, input.PublicKey)
		if err != nil {
			return err
		}

		if existing != nil {
			if existing.PasswordHash != "" {
				return apperrors.InvalidStatef("public key %s is already registered", input.PublicKey)
			}
			// Claim the shell account the reconciler created.
			existing.Username = input.Username
			existing.Email = emailOrNil(input.Email)
			existing.UserType = input.UserType
			if err := existing.SetPassword(input.Password); err != nil {
				return err
			}
			if err := tx.Save(existing).Error; err != nil {
				return err
			}
			user = existing
			return nil
		}

		user = &models.User{
			Username:  input.Username,
			Email:     emailOrNil(input.Email),
			PublicKey: input.PublicKey,
			UserType:  input.UserType,
			Status:    models.UserStatusActive,
		}
		if err := user.SetPassword(input.Password); err != nil {
			return err
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// emailOrNil keeps the unique index honest: an absent email is NULL, never
// the empty string.
func emailOrNil(email string) *string {
	if email == "" {
		return nil
	}
	return &email
}

// Authenticate checks credentials and stamps last_login_at.
func (s *UserService) Authenticate(username, password string) (*models.User, error) {
	user, err := s.GetByUsername(username)
	if err != nil {
		return nil, apperrors.PermissionDenied("invalid credentials")
	}
	if user.Status != models.UserStatusActive {
		return nil, apperrors.PermissionDenied("account suspended")
	}
	if err := user.CheckPassword(password); err != nil {
		return nil, apperrors.PermissionDenied("invalid credentials")
	}

	now := nowUTC()
	s.db.Model(user).Update("last_login_at", now)
	user.LastLoginAt = &now
	return user, nil
}
