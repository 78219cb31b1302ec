package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/tripkeeper/internal/client/repositories/sessions"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
	"github.com/dmitrijs2005/tripkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
)

const (
	// SessionLifetimeDays is how long an offline session stays valid after
	// creation or extension.
	SessionLifetimeDays = 30

	// ExpiryWarningDays is the default window of IsSessionExpiringSoon.
	ExpiryWarningDays = 7
)

// Vault keeps an encrypted proof of the last online login so cached data
// stays viewable offline. The token is sealed with a key derived from the
// device identifier, which never leaves the device. Losing the identifier
// makes stored sessions unrecoverable.
//
// Expired, incomplete or undecryptable sessions are deleted when read and
// reported as absent.
type Vault interface {
	// CreateOfflineSession replaces the current session. An empty token is
	// replaced by a locally signed substitute.
	CreateOfflineSession(ctx context.Context, user models.OfflineUser, sessionToken string) error
	GetOfflineSession(ctx context.Context) (*models.OfflineSession, error)
	// GetDecryptedSessionToken returns "" when there is no usable session.
	GetDecryptedSessionToken(ctx context.Context) (string, error)

	ExtendSession(ctx context.Context, days int) error
	UpdateSessionUser(ctx context.Context, patch models.UserPatch) error

	IsSessionExpiringSoon(ctx context.Context, days int) (bool, error)
	GetSessionTimeRemaining(ctx context.Context) (time.Duration, error)
	HasOfflineSession(ctx context.Context) (bool, error)
	GetOfflineUser(ctx context.Context) (*models.OfflineUser, error)
	ClearOfflineSession(ctx context.Context) error
}

type vault struct {
	store    *sql.DB
	settings *sql.DB
	log      logging.Logger
	now      func() time.Time

	mu       sync.Mutex
	keyOwner string
	keys     *sessionKeys
}

// sessionKeys are derived from one device identifier: seal encrypts the
// stored token and sign signs token substitutes.
type sessionKeys struct {
	seal []byte
	sign []byte
}

// NewVault returns a Vault keeping the session in store and the device
// identifier in settings.
func NewVault(store, settings *sql.DB, log logging.Logger) Vault {
	return &vault{store: store, settings: settings, log: log.With("module", "vault"), now: time.Now}
}

func (v *vault) sessions() sessions.Repository {
	return sessions.NewSQLiteRepository(v.store)
}

// deviceKeys returns the keys derived from the persisted device identifier,
// creating the identifier on first use.
func (v *vault) deviceKeys(ctx context.Context) (*sessionKeys, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	meta := metadata.NewSQLiteRepository(v.settings)
	raw, err := meta.Get(ctx, common.DeviceIDKey)
	if err != nil {
		return nil, err
	}
	deviceID := string(raw)
	if deviceID == "" {
		deviceID = uuid.NewString()
		if err := meta.Set(ctx, common.DeviceIDKey, []byte(deviceID)); err != nil {
			return nil, fmt.Errorf("persist device id: %w", err)
		}
		v.log.Info(ctx, "device identifier created")
	}

	if v.keys != nil && v.keyOwner == deviceID {
		return v.keys, nil
	}
	seal, err := cryptox.DeriveDeviceKey(deviceID)
	if err != nil {
		return nil, err
	}
	sign, err := cryptox.DeriveSigningKey(deviceID)
	if err != nil {
		return nil, err
	}
	v.keys, v.keyOwner = &sessionKeys{seal: seal, sign: sign}, deviceID
	return v.keys, nil
}

func (v *vault) tokenSubstitute(user models.OfflineUser, key []byte) (string, error) {
	claims := jwt.MapClaims{
		"sub":     user.ID,
		"name":    user.Username,
		"iat":     v.now().Unix(),
		"offline": true,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

func (v *vault) CreateOfflineSession(ctx context.Context, user models.OfflineUser, sessionToken string) error {
	if user.ID == "" || user.Username == "" {
		return fmt.Errorf("%w: user id and username are required", common.ErrInvalidToken)
	}

	keys, err := v.deviceKeys(ctx)
	if err != nil {
		return err
	}
	if sessionToken == "" {
		if sessionToken, err = v.tokenSubstitute(user, keys.sign); err != nil {
			return fmt.Errorf("sign token substitute: %w", err)
		}
	}

	ct, nonce, err := cryptox.EncryptEntry(sessionToken, keys.seal)
	if err != nil {
		return fmt.Errorf("encrypt session token: %w", err)
	}

	now := v.now()
	s := &models.OfflineSession{
		ID:           models.CurrentSessionID,
		UserID:       user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Timezone:     user.Timezone,
		SessionToken: ct,
		Nonce:        nonce,
		CreatedAt:    now,
		ExpiresAt:    now.Add(timex.Days(SessionLifetimeDays)),
	}
	if err := v.sessions().Save(ctx, s); err != nil {
		return err
	}

	v.log.Info(ctx, "offline session created", "user_id", user.ID, "expires_at", s.ExpiresAt)
	return nil
}

func (v *vault) GetOfflineSession(ctx context.Context) (*models.OfflineSession, error) {
	repo := v.sessions()
	s, err := repo.Get(ctx, models.CurrentSessionID)
	if err != nil || s == nil {
		return nil, err
	}

	if s.Complete() && !v.now().After(s.ExpiresAt) {
		return s, nil
	}

	if err := repo.Delete(ctx, models.CurrentSessionID); err != nil {
		return nil, err
	}
	v.log.Info(ctx, "offline session dropped", "expired", v.now().After(s.ExpiresAt), "complete", s.Complete())
	return nil, nil
}

func (v *vault) GetDecryptedSessionToken(ctx context.Context) (string, error) {
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return "", err
	}

	keys, err := v.deviceKeys(ctx)
	if err != nil {
		return "", err
	}

	var token string
	if err := cryptox.DecryptEntry(s.SessionToken, s.Nonce, keys.seal, &token); err != nil {
		v.log.Warn(ctx, "offline session dropped", "error", fmt.Errorf("%w: %w", common.ErrSessionInvalid, err))
		if err := v.sessions().Delete(ctx, models.CurrentSessionID); err != nil {
			return "", err
		}
		return "", nil
	}
	return token, nil
}

func (v *vault) ExtendSession(ctx context.Context, days int) error {
	if days <= 0 {
		days = SessionLifetimeDays
	}
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return err
	}
	_, err = v.sessions().SetExpiry(ctx, models.CurrentSessionID, v.now().Add(timex.Days(days)))
	return err
}

func (v *vault) UpdateSessionUser(ctx context.Context, patch models.UserPatch) error {
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return err
	}
	if patch.Username != nil {
		s.Username = *patch.Username
	}
	if patch.Email != nil {
		s.Email = *patch.Email
	}
	if patch.Timezone != nil {
		s.Timezone = *patch.Timezone
	}
	return v.sessions().Save(ctx, s)
}

func (v *vault) GetSessionTimeRemaining(ctx context.Context) (time.Duration, error) {
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return 0, err
	}
	return max(s.ExpiresAt.Sub(v.now()), 0), nil
}

func (v *vault) IsSessionExpiringSoon(ctx context.Context, days int) (bool, error) {
	if days <= 0 {
		days = ExpiryWarningDays
	}
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return false, err
	}
	return s.ExpiresAt.Sub(v.now()) <= timex.Days(days), nil
}

func (v *vault) HasOfflineSession(ctx context.Context) (bool, error) {
	s, err := v.GetOfflineSession(ctx)
	return s != nil, err
}

func (v *vault) GetOfflineUser(ctx context.Context) (*models.OfflineUser, error) {
	s, err := v.GetOfflineSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}
	u := s.User()
	return &u, nil
}

func (v *vault) ClearOfflineSession(ctx context.Context) error {
	if err := v.sessions().Delete(ctx, models.CurrentSessionID); err != nil {
		return err
	}
	v.log.Info(ctx, "offline session cleared")
	return nil
}
