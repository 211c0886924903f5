package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/persistence/models"
)

// TokenCipher encrypts token material before it is written and decrypts it after it is read.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// GormGrantStore implements integration.GrantStore using GORM.
type GormGrantStore struct {
	db     *gorm.DB
	cipher TokenCipher
	now    func() time.Time
}

// GrantStoreOption configures a GormGrantStore
type GrantStoreOption func(*GormGrantStore)

// WithTokenCipher encrypts access and refresh tokens at rest
func WithTokenCipher(c TokenCipher) GrantStoreOption {
	return func(s *GormGrantStore) {
		s.cipher = c
	}
}

// NewGormGrantStore creates a new GormGrantStore
func NewGormGrantStore(db *gorm.DB, opts ...GrantStoreOption) *GormGrantStore {
	s := &GormGrantStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetActive returns the most recently updated grant, or nil when no seller is connected
func (s *GormGrantStore) GetActive(ctx context.Context) (*integration.Grant, error) {
	var model models.GrantModel
	err := s.db.WithContext(ctx).
		Order("updated_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	grant := model.ToDomain()
	if err := s.open(grant); err != nil {
		return nil, err
	}
	return grant, nil
}

// Save upserts the grant by seller ID in one statement so readers never observe
// a mix of old and new tokens. ID and CreatedAt are refreshed from the stored row.
func (s *GormGrantStore) Save(ctx context.Context, grant *integration.Grant) error {
	if grant.SellerID == "" {
		return fmt.Errorf("grant store: seller id is required")
	}
	now := s.now().UTC()
	if grant.ID == uuid.Nil {
		grant.ID = uuid.New()
	}
	if grant.CreatedAt.IsZero() {
		grant.CreatedAt = now
	}
	grant.UpdatedAt = now

	model := models.GrantModelFromDomain(grant)
	if err := s.seal(model); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "seller_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"user_id",
				"access_token",
				"refresh_token",
				"scope",
				"expires_at",
				"updated_at",
			}),
		}).
		Create(model).Error
	if err != nil {
		return err
	}

	var stored models.GrantModel
	if err := s.db.WithContext(ctx).
		Select("id", "created_at").
		First(&stored, "seller_id = ?", grant.SellerID).Error; err != nil {
		return err
	}
	grant.ID = stored.ID
	grant.CreatedAt = stored.CreatedAt
	return nil
}

// Clear hard-deletes the grant
func (s *GormGrantStore) Clear(ctx context.Context, grantID uuid.UUID) error {
	return s.db.WithContext(ctx).
		Where("id = ?", grantID).
		Delete(&models.GrantModel{}).Error
}

func (s *GormGrantStore) seal(m *models.GrantModel) error {
	if s.cipher == nil {
		return nil
	}
	access, err := s.cipher.Encrypt(m.AccessToken)
	if err != nil {
		return fmt.Errorf("grant store: encrypt access token: %w", err)
	}
	m.AccessToken = access
	if m.RefreshToken != "" {
		refresh, err := s.cipher.Encrypt(m.RefreshToken)
		if err != nil {
			return fmt.Errorf("grant store: encrypt refresh token: %w", err)
		}
		m.RefreshToken = refresh
	}
	return nil
}

func (s *GormGrantStore) open(g *integration.Grant) error {
	if s.cipher == nil {
		return nil
	}
	access, err := s.cipher.Decrypt(g.AccessToken)
	if err != nil {
		return fmt.Errorf("grant store: decrypt access token: %w", err)
	}
	g.AccessToken = access
	if g.RefreshToken != "" {
		refresh, err := s.cipher.Decrypt(g.RefreshToken)
		if err != nil {
			return fmt.Errorf("grant store: decrypt refresh token: %w", err)
		}
		g.RefreshToken = refresh
	}
	return nil
}

var _ integration.GrantStore = (*GormGrantStore)(nil)
