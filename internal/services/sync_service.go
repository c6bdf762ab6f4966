// internal/services/sync_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/models"
	"github.com/chainproof/provenance-backend/internal/utils"
)

// MetadataFetcher retrieves the document an on-chain account points at. The
// bytes must be returned exactly as served; they are hashed for the
// authenticity gate.
type MetadataFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// SyncService rebuilds product rows from raw on-chain program accounts. It is
// a batch job: one Run scans every account of the program, and running it
// twice against unchanged chain state produces zero net row changes.
type SyncService struct {
	db        *gorm.DB
	users     *UserService
	metadata  *MetadataService
	fetcher   MetadataFetcher
	client    chain.Client
	programID string
}

func NewSyncService(db *gorm.DB, users *UserService, metadata *MetadataService, fetcher MetadataFetcher, client chain.Client, programID string) *SyncService {
	if fetcher == nil {
		fetcher = metadata
	}
	return &SyncService{
		db:        db,
		users:     users,
		metadata:  metadata,
		fetcher:   fetcher,
		client:    client,
		programID: programID,
	}
}

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Scanned   int `json:"scanned"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
}

// Run executes one full reconciliation pass. Individual bad accounts are
// skipped and logged; only infrastructure failures abort the pass.
func (s *SyncService) Run(ctx context.Context) (*SyncReport, error) {
	accounts, err := s.client.GetProgramAccounts(ctx, s.programID, chain.ProductAccountSize)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, keyed := range accounts {
		report.Scanned++

		log := logrus.WithField("address", keyed.Address)

		account, err := chain.DecodeProductAccount(keyed.Data)
		if err != nil {
			log.WithError(err).Warn("Skipping undecodable program account")
			report.Skipped++
			continue
		}

		raw, err := s.fetcher.Fetch(ctx, account.URI)
		if err != nil {
			log.WithError(err).Warn("Skipping account with unreachable metadata")
			report.Skipped++
			continue
		}

		// Authenticity gate: a stale or tampered document disqualifies the
		// account for this pass.
		if utils.HashBytes(raw) != account.MetadataHash {
			log.WithField("uri", account.URI).Warn("Skipping account with metadata hash mismatch")
			report.Skipped++
			continue
		}

		var doc MetadataDocument
		if err := json.Unmarshal(raw, &doc); err != nil || doc.SerialNumber == "" {
			log.WithError(err).Warn("Skipping account with unusable metadata document")
			report.Skipped++
			continue
		}

		outcome, err := s.applyAccount(ctx, keyed.Address, account, doc, raw)
		if err != nil {
			return nil, err
		}
		switch outcome {
		case syncCreated:
			report.Created++
		case syncUpdated:
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	logrus.WithFields(logrus.Fields{
		"scanned":   report.Scanned,
		"created":   report.Created,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"skipped":   report.Skipped,
	}).Info("Chain sync pass complete")
	return report, nil
}

type syncOutcome int

const (
	syncUnchanged syncOutcome = iota
	syncCreated
	syncUpdated
)

func (s *SyncService) applyAccount(ctx context.Context, address string, account *chain.ProductAccount, doc MetadataDocument, raw []byte) (syncOutcome, error) {
	outcome := syncUnchanged

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// Owner accounts are created eagerly so ownership checks resolve;
		// the manufacturer account exists only for attribution.
		if _, err := s.users.ResolveOrCreate(tx, account.OwnerKey, models.UserTypeConsumer); err != nil {
			return err
		}
		manufacturer, err := s.users.ResolveOrCreate(tx, account.ManufacturerKey, models.UserTypeManufacturer)
		if err != nil {
			return err
		}

		var product models.Product
		err = tx.First(&product, "chain_address = ?", address).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			addr := address
			product = models.Product{
				SerialNumber: doc.SerialNumber,
				Name:         doc.Name,
				Description:  doc.Description,
				RegisteredBy: &manufacturer.ID,
				ChainAddress: &addr,
				Track:        account.Active,
			}
			if err := tx.Create(&product).Error; err != nil {
				return err
			}
			outcome = syncCreated
		case err != nil:
			return err
		default:
			changed := false
			if product.Name != doc.Name {
				product.Name = doc.Name
				changed = true
			}
			if product.Description != doc.Description {
				product.Description = doc.Description
				changed = true
			}
			if product.Track != account.Active {
				product.Track = account.Active
				changed = true
			}
			// First writer wins for attribution.
			if product.RegisteredBy == nil {
				product.RegisteredBy = &manufacturer.ID
				changed = true
			}
			if changed {
				if err := tx.Save(&product).Error; err != nil {
					return err
				}
				outcome = syncUpdated
			}
		}

		metadataChanged, err := s.metadata.Upsert(tx, product.ID, account.URI, account.MetadataHash, raw)
		if err != nil {
			return err
		}
		if metadataChanged && outcome == syncUnchanged {
			outcome = syncUpdated
		}
		return nil
	})
	if err != nil {
		return syncUnchanged, err
	}
	return outcome, nil
}
