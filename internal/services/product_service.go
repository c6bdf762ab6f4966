// internal/services/product_service.go
package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type ProductService struct {
	db        *gorm.DB
	metadata  *MetadataService
	programID string
}

func NewProductService(db *gorm.DB, metadata *MetadataService, programID string) *ProductService {
	return &ProductService{db: db, metadata: metadata, programID: programID}
}

type RegisterProductInput struct {
	SerialNumber string            `json:"serial_number" validate:"required,max=128"`
	Name         string            `json:"name" validate:"required,max=255"`
	Description  string            `json:"description"`
	Tags         []string          `json:"tags"`
	Attributes   map[string]string `json:"attributes"`
}

// Register creates the product row and its canonical metadata document. The
// on-chain account is created separately by the manufacturer's wallet; the
// reconciler links it back by the derived address.
func (s *ProductService) Register(manufacturer *models.User, input RegisterProductInput) (*models.Product, error) {
	if manufacturer.UserType != models.UserTypeManufacturer {
		return nil, apperrors.PermissionDenied("only manufacturers can register products")
	}

	chainAddress := chain.ProductAddress(s.programID, input.SerialNumber)

	var product *models.Product
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Product
		err := tx.First(&existing, "serial_number = ?", input.SerialNumber).Error
		if err == nil {
			return apperrors.InvalidStatef("serial number %s is already registered", input.SerialNumber)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		product = &models.Product{
			SerialNumber: input.SerialNumber,
			Name:         input.Name,
			Description:  input.Description,
			RegisteredBy: &manufacturer.ID,
			ChainAddress: &chainAddress,
			Track:        true,
			Tags:         pq.StringArray(input.Tags),
		}
		if err := tx.Create(product).Error; err != nil {
			return err
		}

		metadata, err := s.metadata.Put(tx, product.ID, MetadataDocument{
			SerialNumber: input.SerialNumber,
			Name:         input.Name,
			Description:  input.Description,
			Attributes:   input.Attributes,
		})
		if err != nil {
			return err
		}
		product.Metadata = metadata
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (s *ProductService) GetByID(productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Metadata").First(&product, "id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *ProductService) GetBySerial(serialNumber string) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Metadata").First(&product, "serial_number = ?", serialNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product")
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products, optionally filtered to one manufacturer.
func (s *ProductService) List(registeredBy *uuid.UUID, params utils.PaginationParams) ([]models.Product, int64, error) {
	var products []models.Product
	var total int64

	query := s.db.Model(&models.Product{})
	if registeredBy != nil {
		query = query.Where("registered_by = ?", *registeredBy)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = utils.ApplySort(query, params, []string{"created_at", "name", "serial_number"})
	err := utils.ApplyPagination(query, params).Find(&products).Error
	return products, total, err
}

type CreateListingInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Price     float64   `json:"price" validate:"required,gt=0"`
	Currency  string    `json:"currency" validate:"omitempty,len=3"`
}

// CreateListing puts a tracked product up for sale. Only the current owner
// may list, and a product carries at most one open listing.
func (s *ProductService) CreateListing(seller *models.User, input CreateListingInput) (*models.ProductListing, error) {
	if input.Currency == "" {
		input.Currency = "SGD"
	}

	var listing *models.ProductListing
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		err := tx.First(&product, "id = ?", input.ProductID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NotFound("product")
		}
		if err != nil {
			return err
		}
		if !product.Track {
			return apperrors.NotTracked(product.SerialNumber)
		}

		var ownership models.Ownership
		err = tx.Where("product_id = ? AND end_on IS NULL", product.ID).First(&ownership).Error
		if err == nil {
			if ownership.OwnerID == nil || *ownership.OwnerID != seller.ID {
				return apperrors.PermissionDenied("only the current owner can list a product")
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var open int64
		err = tx.Model(&models.ProductListing{}).
			Where("product_id = ? AND status IN ?", product.ID,
				[]models.ListingStatus{models.ListingStatusAvailable, models.ListingStatusReserved}).
			Count(&open).Error
		if err != nil {
			return err
		}
		if open > 0 {
			return apperrors.InvalidStatef("product %s already has an open listing", product.SerialNumber)
		}

		listing = &models.ProductListing{
			ProductID: product.ID,
			SellerID:  seller.ID,
			Price:     input.Price,
			Currency:  input.Currency,
			Status:    models.ListingStatusAvailable,
		}
		return tx.Create(listing).Error
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// ListListings returns open listings for browsing.
func (s *ProductService) ListListings(params utils.PaginationParams) ([]models.ProductListing, int64, error) {
	var listings []models.ProductListing
	var total int64

	query := s.db.Model(&models.ProductListing{}).
		Where("status = ?", models.ListingStatusAvailable)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := utils.ApplyPagination(query.Preload("Product").Order("created_at DESC"), params).
		Find(&listings).Error
	return listings, total, err
}
