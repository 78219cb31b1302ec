package services

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

type vaultFixture struct {
	v        *vault
	clock    *clock
	sessions *sessions.SQLiteRepository
	meta     *metadata.SQLiteRepository
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()
	store, settings := setupStore(t), setupSettings(t)
	c := newClock()
	v := NewVault(store, settings, logging.Nop()).(*vault)
	v.now = c.Now
	return &vaultFixture{
		v:        v,
		clock:    c,
		sessions: sessions.NewSQLiteRepository(store),
		meta:     metadata.NewSQLiteRepository(settings),
	}
}

var alice = models.OfflineUser{ID: "u1", Username: "alice", Email: "alice@example.com", Timezone: "Europe/Riga"}

func TestVault_TokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "server-token"))

	token, err := fx.v.GetDecryptedSessionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "server-token", token)

	raw, err := fx.sessions.Get(ctx, models.CurrentSessionID)
	require.NoError(t, err)
	require.NotNil(t, raw)
	assert.NotContains(t, string(raw.SessionToken), "server-token")
	assert.True(t, fx.clock.Now().Add(timex.Days(SessionLifetimeDays)).Equal(raw.ExpiresAt))

	u, err := fx.v.GetOfflineUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, &alice, u)
}

func TestVault_DeviceIDPersisted(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	first, err := fx.meta.Get(ctx, common.DeviceIDKey)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok2"))
	second, err := fx.meta.Get(ctx, common.DeviceIDKey)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVault_DecryptFailureDropsSession(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	require.NoError(t, fx.meta.Set(ctx, common.DeviceIDKey, []byte("another-device")))

	token, err := fx.v.GetDecryptedSessionToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)

	has, err := fx.v.HasOfflineSession(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestVault_ExpiredSessionIsDeleted(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	fx.clock.Advance(timex.Days(SessionLifetimeDays) + time.Millisecond)

	s, err := fx.v.GetOfflineSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	raw, err := fx.sessions.Get(ctx, models.CurrentSessionID)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestVault_IncompleteSessionIsDeleted(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.sessions.Save(ctx, &models.OfflineSession{
		ID:        models.CurrentSessionID,
		UserID:    "u1",
		Username:  "alice",
		CreatedAt: fx.clock.Now(),
		ExpiresAt: fx.clock.Now().Add(time.Hour),
	}))

	s, err := fx.v.GetOfflineSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, s)

	raw, err := fx.sessions.Get(ctx, models.CurrentSessionID)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestVault_TokenSubstitute(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, ""))

	token, err := fx.v.GetDecryptedSessionToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	deviceID, err := fx.meta.Get(ctx, common.DeviceIDKey)
	require.NoError(t, err)
	key, err := cryptox.DeriveSigningKey(string(deviceID))
	require.NoError(t, err)
	sealKey, err := cryptox.DeriveDeviceKey(string(deviceID))
	require.NoError(t, err)

	_, err = jwt.Parse(token, func(*jwt.Token) (any, error) { return sealKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid, "the encryption key must not verify substitutes")

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "alice", claims["name"])
	assert.Equal(t, true, claims["offline"])
}

func TestVault_CreateRequiresIdentity(t *testing.T) {
	fx := newVaultFixture(t)
	err := fx.v.CreateOfflineSession(context.Background(), models.OfflineUser{Username: "x"}, "tok")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestVault_ExtendSession(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	// no session: no-op
	require.NoError(t, fx.v.ExtendSession(ctx, 5))

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	fx.clock.Advance(timex.Days(25))

	soon, err := fx.v.IsSessionExpiringSoon(ctx, 0)
	require.NoError(t, err)
	assert.True(t, soon)

	require.NoError(t, fx.v.ExtendSession(ctx, 0))
	left, err := fx.v.GetSessionTimeRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, timex.Days(SessionLifetimeDays), left)

	soon, err = fx.v.IsSessionExpiringSoon(ctx, 0)
	require.NoError(t, err)
	assert.False(t, soon)

	require.NoError(t, fx.v.ExtendSession(ctx, 2))
	left, err = fx.v.GetSessionTimeRemaining(ctx)
	require.NoError(t, err)
	assert.Equal(t, timex.Days(2), left)
}

func TestVault_UpdateSessionUser(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.UpdateSessionUser(ctx, models.UserPatch{Username: ptr("bob")}))

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	require.NoError(t, fx.v.UpdateSessionUser(ctx, models.UserPatch{Email: ptr("new@example.com")}))

	u, err := fx.v.GetOfflineUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "new@example.com", u.Email)
	assert.Equal(t, "Europe/Riga", u.Timezone)

	token, err := fx.v.GetDecryptedSessionToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestVault_NoSession(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	left, err := fx.v.GetSessionTimeRemaining(ctx)
	require.NoError(t, err)
	assert.Zero(t, left)

	soon, err := fx.v.IsSessionExpiringSoon(ctx, 7)
	require.NoError(t, err)
	assert.False(t, soon)

	u, err := fx.v.GetOfflineUser(ctx)
	require.NoError(t, err)
	assert.Nil(t, u)

	token, err := fx.v.GetDecryptedSessionToken(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestVault_ClearOfflineSession(t *testing.T) {
	ctx := context.Background()
	fx := newVaultFixture(t)

	require.NoError(t, fx.v.CreateOfflineSession(ctx, alice, "tok"))
	require.NoError(t, fx.v.ClearOfflineSession(ctx))

	has, err := fx.v.HasOfflineSession(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	// idempotent
	require.NoError(t, fx.v.ClearOfflineSession(ctx))
}
