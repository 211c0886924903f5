package persistence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/persistence/models"
)

// GormAuthStateStore implements integration.AuthStateStore using GORM.
// Consume is single-use across processes: only the caller whose DELETE removes the row wins.
type GormAuthStateStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time

	startOnce sync.Once
	closeOnce sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewGormAuthStateStore creates a new GormAuthStateStore. A non-positive ttl uses the default of 15 minutes.
func NewGormAuthStateStore(db *gorm.DB, ttl time.Duration) *GormAuthStateStore {
	if ttl <= 0 {
		ttl = integration.DefaultStateTTL
	}
	return &GormAuthStateStore{db: db, ttl: ttl, now: time.Now, stopChan: make(chan struct{})}
}

// Create persists a new authorization state
func (s *GormAuthStateStore) Create(ctx context.Context, codeVerifier, returnTo string) (*integration.AuthorizationState, error) {
	state, err := integration.NewAuthorizationState(codeVerifier, returnTo, s.now(), s.ttl)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(models.AuthStateModelFromDomain(state)).Error; err != nil {
		return nil, err
	}
	return state, nil
}

// Consume finds and deletes the state. The expiry check runs after the delete so an
// expired state is still destroyed.
func (s *GormAuthStateStore) Consume(ctx context.Context, state string) (*integration.AuthorizationState, error) {
	if state == "" {
		return nil, nil
	}

	var model models.AuthStateModel
	if err := s.db.WithContext(ctx).First(&model, "state = ?", state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	result := s.db.WithContext(ctx).Where("state = ?", state).Delete(&models.AuthStateModel{})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected != 1 {
		// A concurrent consumer deleted it first.
		return nil, nil
	}

	found := model.ToDomain()
	if found.IsExpired(s.now()) {
		return nil, nil
	}
	return found, nil
}

// Cleanup removes every expired state
func (s *GormAuthStateStore) Cleanup(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now().UTC()).
		Delete(&models.AuthStateModel{})
	return result.RowsAffected, result.Error
}

// StartCleanup deletes expired states every interval in the background until Close.
// Only the first call starts the loop.
func (s *GormAuthStateStore) StartCleanup(interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	s.startOnce.Do(func() {
		s.wg.Add(1)
		go s.cleanupLoop(interval, log)
	})
}

// Close stops the cleanup loop. Safe to call multiple times.
func (s *GormAuthStateStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *GormAuthStateStore) cleanupLoop(interval time.Duration, log *zap.Logger) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			deleted, err := s.Cleanup(ctx)
			cancel()
			if err != nil {
				log.Warn("Failed to clean up expired authorization states", zap.Error(err))
				continue
			}
			if deleted > 0 {
				log.Debug("Expired authorization states removed", zap.Int64("deleted", deleted))
			}
		}
	}
}

var _ integration.AuthStateStore = (*GormAuthStateStore)(nil)
