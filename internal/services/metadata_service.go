// internal/services/metadata_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

// MetadataDocument is the canonical product document. Its JSON encoding is
// hashed into the on-chain account, so the stored bytes are authoritative and
// served verbatim; re-marshalling a parsed copy would break the hash.
type MetadataDocument struct {
	SerialNumber string            `json:"serial_number"`
	Name         string            `json:"name"`
	Description  string            `json:"description,omitempty"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// MetadataService owns canonical metadata documents: the database row is the
// source of truth, S3 is an optional public mirror for chain explorers.
type MetadataService struct {
	db       *gorm.DB
	s3Client *s3.S3
	cfg      *config.Config
	http     *http.Client
}

func NewMetadataService(db *gorm.DB, cfg *config.Config) (*MetadataService, error) {
	svc := &MetadataService{
		db:   db,
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}

	if cfg.AWS.AccessKeyID != "" {
		sess, err := session.NewSession(&aws.Config{
			Region: aws.String(cfg.AWS.Region),
			Credentials: credentials.NewStaticCredentials(
				cfg.AWS.AccessKeyID,
				cfg.AWS.SecretAccessKey,
				"",
			),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create AWS session: %w", err)
		}
		svc.s3Client = s3.New(sess)
	}

	return svc, nil
}

// Put stores the canonical document for a product and returns the row. The
// document is marshalled once; the resulting bytes and their SHA-256 are what
// every later verification compares against.
func (s *MetadataService) Put(tx *gorm.DB, productID uuid.UUID, doc MetadataDocument) (*models.ProductMetadata, error) {
	if tx == nil {
		tx = s.db
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}

	metadata := &models.ProductMetadata{
		ProductID: productID,
		URI:       s.uriFor(productID),
		Hash:      utils.HashBytes(raw),
		Document:  raw,
	}

	var existing models.ProductMetadata
	err = tx.First(&existing, "product_id = ?", productID).Error
	switch {
	case err == nil:
		existing.URI = metadata.URI
		existing.Hash = metadata.Hash
		existing.Document = raw
		metadata = &existing
		err = tx.Save(metadata).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		err = tx.Create(metadata).Error
	}
	if err != nil {
		return nil, err
	}

	if s.s3Client != nil {
		if uploadErr := s.uploadToS3(productID, raw); uploadErr != nil {
			// The mirror is advisory; the database row already holds the
			// bytes the hash gate verifies against.
			return metadata, nil
		}
	}
	return metadata, nil
}

// Upsert stores an already-encoded document fetched during reconciliation.
func (s *MetadataService) Upsert(tx *gorm.DB, productID uuid.UUID, uri, hash string, raw []byte) (bool, error) {
	if tx == nil {
		tx = s.db
	}

	var existing models.ProductMetadata
	err := tx.First(&existing, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, tx.Create(&models.ProductMetadata{
			ProductID: productID,
			URI:       uri,
			Hash:      hash,
			Document:  raw,
		}).Error
	}
	if err != nil {
		return false, err
	}

	if existing.URI == uri && existing.Hash == hash && bytes.Equal(existing.Document, raw) {
		return false, nil
	}
	existing.URI = uri
	existing.Hash = hash
	existing.Document = raw
	return true, tx.Save(&existing).Error
}

// Get returns the stored row, with the exact canonical bytes.
func (s *MetadataService) Get(productID uuid.UUID) (*models.ProductMetadata, error) {
	var metadata models.ProductMetadata
	err := s.db.First(&metadata, "product_id = ?", productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("product metadata")
	}
	if err != nil {
		return nil, err
	}
	return &metadata, nil
}

// Fetch retrieves a metadata document from a remote URI, returning the exact
// response bytes for hash verification.
func (s *MetadataService) Fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.InfraTimeout("metadata fetch timed out", err)
		}
		return nil, apperrors.Internal("metadata fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFoundf("metadata document at %s not found", uri)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Internal(fmt.Sprintf("metadata fetch returned status %d", resp.StatusCode), nil)
	}

	return io.ReadAll(resp.Body)
}

func (s *MetadataService) uriFor(productID uuid.UUID) string {
	return fmt.Sprintf("%s/api/v1/products/%s/metadata", s.cfg.Metadata.BaseURL, productID)
}

func (s *MetadataService) uploadToS3(productID uuid.UUID, raw []byte) error {
	_, err := s.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.AWS.S3Bucket),
		Key:           aws.String(fmt.Sprintf("metadata/%s.json", productID)),
		Body:          bytes.NewReader(raw),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(raw))),
	})
	return err
}
