// internal/services/code_service.go
package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainproof/provenance-backend/internal/apperrors"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type pendingCode struct {
	productID   uuid.UUID
	toPublicKey string
	expiresAt   time.Time
}

// CodeService issues the one-time confirmation codes handed to a buyer during
// a proposed transfer. Codes live only in process memory: losing them on
// restart just means the transfer is re-proposed. Expired entries are swept
// on a ticker so an abandoned proposal cannot pin memory.
type CodeService struct {
	mtx       sync.Mutex
	codes     map[string]pendingCode
	ttl       time.Duration
	done      chan struct{}
	closeOnce sync.Once
}

func NewCodeService(ttl time.Duration) *CodeService {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	s := &CodeService{
		codes: make(map[string]pendingCode),
		ttl:   ttl,
		done:  make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Issue creates a fresh code bound to one product and receiver. Re-proposing
// the same product replaces any earlier code for it.
func (s *CodeService) Issue(productID uuid.UUID, toPublicKey string) (string, error) {
	code, err := utils.GenerateRandomString(8)
	if err != nil {
		return "", err
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()

	for existing, pending := range s.codes {
		if pending.productID == productID {
			delete(s.codes, existing)
		}
	}
	s.codes[code] = pendingCode{
		productID:   productID,
		toPublicKey: toPublicKey,
		expiresAt:   time.Now().Add(s.ttl),
	}
	return code, nil
}

// Redeem consumes the code. A code is single-use: the first successful redeem
// removes it.
func (s *CodeService) Redeem(code string, productID uuid.UUID) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	pending, ok := s.codes[code]
	if !ok || time.Now().After(pending.expiresAt) {
		delete(s.codes, code)
		return apperrors.PermissionDenied("confirmation code is invalid or expired")
	}
	if pending.productID != productID {
		return apperrors.PermissionDenied("confirmation code was issued for another product")
	}

	delete(s.codes, code)
	return nil
}

// Invalidate drops any code issued for the product, used when a proposal is
// cancelled.
func (s *CodeService) Invalidate(productID uuid.UUID) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for code, pending := range s.codes {
		if pending.productID == productID {
			delete(s.codes, code)
		}
	}
}

// PendingCount is exposed for tests and health introspection.
func (s *CodeService) PendingCount() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.codes)
}

func (s *CodeService) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *CodeService) sweep() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mtx.Lock()
			for code, pending := range s.codes {
				if now.After(pending.expiresAt) {
					delete(s.codes, code)
				}
			}
			s.mtx.Unlock()
		}
	}
}
