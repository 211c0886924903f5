package persistence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellerlink/backend/internal/domain/integration"
	"github.com/sellerlink/backend/internal/infrastructure/persistence/models"
)

// reverseCipher is a reversible stand-in for a real TokenCipher
type reverseCipher struct{}

func (reverseCipher) Encrypt(plaintext string) (string, error) {
	return "enc:" + reverse(plaintext), nil
}

func (reverseCipher) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.New("not encrypted")
	}
	return reverse(strings.TrimPrefix(ciphertext, "enc:")), nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

func newTestGrant(sellerID string) *integration.Grant {
	return &integration.Grant{
		SellerID:     sellerID,
		UserID:       sellerID,
		AccessToken:  "APP_USR-access-" + sellerID,
		RefreshToken: "TG-refresh-" + sellerID,
		Scope:        []string{"offline_access", "read", "write"},
		ExpiresAt:    time.Now().UTC().Add(time.Hour).Truncate(time.Second),
	}
}

func TestGormGrantStore_GetActiveEmpty(t *testing.T) {
	store := NewGormGrantStore(setupMarketplaceTestDB(t))

	grant, err := store.GetActive(context.Background())
	require.NoError(t, err)
	assert.Nil(t, grant)
}

func TestGormGrantStore_SaveAndGetActive(t *testing.T) {
	store := NewGormGrantStore(setupMarketplaceTestDB(t))
	ctx := context.Background()

	grant := newTestGrant("12345")
	require.NoError(t, store.Save(ctx, grant))
	assert.NotEqual(t, uuid.Nil, grant.ID)
	assert.False(t, grant.CreatedAt.IsZero())

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, grant.ID, active.ID)
	assert.Equal(t, "12345", active.SellerID)
	assert.Equal(t, grant.AccessToken, active.AccessToken)
	assert.Equal(t, grant.RefreshToken, active.RefreshToken)
	assert.Equal(t, []string{"offline_access", "read", "write"}, active.Scope)
	assert.True(t, grant.ExpiresAt.Equal(active.ExpiresAt))
}

func TestGormGrantStore_SaveReplacesTokensForSameSeller(t *testing.T) {
	db := setupMarketplaceTestDB(t)
	store := NewGormGrantStore(db)
	ctx := context.Background()

	first := newTestGrant("12345")
	require.NoError(t, store.Save(ctx, first))

	second := newTestGrant("12345")
	second.AccessToken = "APP_USR-rotated"
	second.RefreshToken = "TG-rotated"
	require.NoError(t, store.Save(ctx, second))

	assert.Equal(t, first.ID, second.ID, "upsert keeps the original row identity")
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))

	var count int64
	require.NoError(t, db.Model(&models.GrantModel{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "APP_USR-rotated", active.AccessToken)
	assert.Equal(t, "TG-rotated", active.RefreshToken)
}

func TestGormGrantStore_GetActiveReturnsMostRecentlyUpdated(t *testing.T) {
	store := NewGormGrantStore(setupMarketplaceTestDB(t))
	ctx := context.Background()

	base := time.Now()
	store.now = func() time.Time { return base.Add(-time.Hour) }
	require.NoError(t, store.Save(ctx, newTestGrant("111")))

	store.now = func() time.Time { return base }
	require.NoError(t, store.Save(ctx, newTestGrant("222")))

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "222", active.SellerID)
}

func TestGormGrantStore_Clear(t *testing.T) {
	store := NewGormGrantStore(setupMarketplaceTestDB(t))
	ctx := context.Background()

	grant := newTestGrant("12345")
	require.NoError(t, store.Save(ctx, grant))
	require.NoError(t, store.Clear(ctx, grant.ID))

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestGormGrantStore_SaveRequiresSeller(t *testing.T) {
	store := NewGormGrantStore(setupMarketplaceTestDB(t))

	err := store.Save(context.Background(), &integration.Grant{AccessToken: "x"})
	assert.Error(t, err)
}

func TestGormGrantStore_TokenCipher(t *testing.T) {
	db := setupMarketplaceTestDB(t)
	store := NewGormGrantStore(db, WithTokenCipher(reverseCipher{}))
	ctx := context.Background()

	grant := newTestGrant("12345")
	require.NoError(t, store.Save(ctx, grant))

	var raw models.GrantModel
	require.NoError(t, db.First(&raw, "seller_id = ?", "12345").Error)
	assert.NotEqual(t, grant.AccessToken, raw.AccessToken)
	assert.True(t, strings.HasPrefix(raw.AccessToken, "enc:"))
	assert.True(t, strings.HasPrefix(raw.RefreshToken, "enc:"))

	active, err := store.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, grant.AccessToken, active.AccessToken)
	assert.Equal(t, grant.RefreshToken, active.RefreshToken)

	// A store without the cipher cannot read the plaintext back.
	plain, err := NewGormGrantStore(db).GetActive(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, grant.AccessToken, plain.AccessToken)
}

func TestGormGrantStore_SaveUsesSingleUpsertOnPostgres(t *testing.T) {
	gormDB, mock, mockDB := newMockPostgresDB(t)
	defer mockDB.Close()

	store := NewGormGrantStore(gormDB)
	grant := newTestGrant("12345")

	mock.ExpectExec(`INSERT INTO "marketplace_grants" .* ON CONFLICT \("seller_id"\) DO UPDATE SET "user_id"="excluded"."user_id","access_token"="excluded"."access_token","refresh_token"="excluded"."refresh_token"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT "id","created_at" FROM "marketplace_grants" WHERE seller_id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).
			AddRow(grant.ID.String(), time.Now()))

	require.NoError(t, store.Save(context.Background(), grant))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormGrantStore_SavePropagatesDatabaseError(t *testing.T) {
	gormDB, mock, mockDB := newMockPostgresDB(t)
	defer mockDB.Close()

	store := NewGormGrantStore(gormDB)
	dbErr := errors.New("connection reset")
	mock.ExpectExec(`INSERT INTO "marketplace_grants"`).WillReturnError(dbErr)

	err := store.Save(context.Background(), newTestGrant("12345"))
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
