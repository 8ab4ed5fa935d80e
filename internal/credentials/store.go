package credentials

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teemow/calbot/internal/instrumentation"
	"github.com/teemow/calbot/internal/logging"
)

// Backend stores opaque per-user records.
// Get returns ErrNotFound when no record exists. Delete of a missing record
// is not an error.
type Backend interface {
	Get(ctx context.Context, userID int64) ([]byte, error)
	Put(ctx context.Context, userID int64, data []byte) error
	Delete(ctx context.Context, userID int64) error
	Close() error
}

// Options configures a Store.
type Options struct {
	Backend   Backend
	Refresher Refresher

	// Encryption encrypts access and refresh tokens at rest. Optional.
	Encryption *TokenEncryption

	// RefreshThreshold refreshes credentials this long before they expire.
	RefreshThreshold time.Duration

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger

	// Clock overrides time.Now in tests.
	Clock func() time.Time
}

// Store is the per-user credential store.
type Store struct {
	backend   Backend
	refresher Refresher
	enc       *TokenEncryption
	threshold time.Duration
	metrics   *instrumentation.Metrics
	logger    *slog.Logger
	now       func() time.Time

	locks sync.Map // int64 -> *sync.Mutex
}

// NewStore creates a Store over the given backend.
func NewStore(opts Options) (*Store, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("credential backend is required")
	}
	s := &Store{
		backend:   opts.Backend,
		refresher: opts.Refresher,
		enc:       opts.Encryption,
		threshold: opts.RefreshThreshold,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		now:       opts.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = logging.WithComponent(s.logger, "credentials")
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) lock(userID int64) func() {
	mu, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// Load returns the user's credential, refreshing it first if it has expired.
//
// A nil credential with a nil error means the user has no usable credential:
// none was stored, the record was corrupt, or the refresh failed. In the last
// two cases the credential has been deleted.
func (s *Store) Load(ctx context.Context, userID int64) (*Credential, error) {
	defer s.lock(userID)()

	logger := logging.WithUser(s.logger, userID)

	rec, err := s.read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, nil
	case errors.Is(err, errCorrupt):
		logger.Warn("Discarding unreadable credential record", logging.Err(err))
		s.discard(ctx, userID)
		return nil, nil
	case err != nil:
		return nil, err
	}

	cred := rec.Credential
	if cred == nil {
		return nil, nil
	}
	if !isTokenExpired(cred, s.threshold, s.now()) {
		return cred, nil
	}

	if cred.RefreshToken == "" || s.refresher == nil {
		logger.Info("Credential expired and cannot be refreshed")
		s.clearCredential(ctx, userID, rec)
		return nil, nil
	}

	logger.Debug("Refreshing expired credential", "expiry", cred.Expiry)
	tok, err := s.refresher.Refresh(ctx, cred.Token())
	if err != nil {
		s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		logger.Warn("Token refresh failed, deleting credential", logging.Err(err))
		s.clearCredential(ctx, userID, rec)
		return nil, nil
	}
	s.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)

	refreshed := FromToken(tok)
	// Token endpoints usually omit these on refresh.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = cred.RefreshToken
	}
	if len(refreshed.Scopes) == 0 {
		refreshed.Scopes = cred.Scopes
	}

	rec.Credential = refreshed
	if err := s.write(ctx, userID, rec); err != nil {
		// The refreshed token is still valid for this call.
		logger.Warn("Failed to save refreshed credential", logging.Err(err))
	}
	return refreshed, nil
}

// Save stores cred for the user, replacing any earlier credential.
func (s *Store) Save(ctx context.Context, userID int64, cred *Credential) error {
	if cred == nil {
		return fmt.Errorf("credential cannot be nil")
	}
	defer s.lock(userID)()

	rec, err := s.readOrNew(ctx, userID)
	if err != nil {
		return err
	}
	rec.Credential = cred
	return s.write(ctx, userID, rec)
}

// Delete removes the user's credential. A pending authorization is kept.
func (s *Store) Delete(ctx context.Context, userID int64) error {
	defer s.lock(userID)()

	rec, err := s.read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case errors.Is(err, errCorrupt):
		return s.remove(ctx, userID)
	case err != nil:
		return err
	}
	rec.Credential = nil
	return s.persist(ctx, userID, rec)
}

// SavePending records a pending authorization, overwriting any earlier one.
func (s *Store) SavePending(ctx context.Context, userID int64, pending *PendingAuthorization) error {
	if pending == nil || pending.State == "" {
		return fmt.Errorf("pending authorization requires a state")
	}
	defer s.lock(userID)()

	rec, err := s.readOrNew(ctx, userID)
	if err != nil {
		return err
	}
	if pending.CreatedAt.IsZero() {
		pending.CreatedAt = s.now().UTC()
	}
	rec.Pending = pending
	return s.write(ctx, userID, rec)
}

// PeekPending returns the pending authorization without clearing it.
func (s *Store) PeekPending(ctx context.Context, userID int64) (*PendingAuthorization, error) {
	defer s.lock(userID)()

	rec, err := s.read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, errCorrupt):
		return nil, ErrNoPending
	case err != nil:
		return nil, err
	}
	if rec.Pending == nil {
		return nil, ErrNoPending
	}
	return rec.Pending, nil
}

// TakePending clears and returns the pending authorization if its state
// equals state. On ErrNoPending or ErrStateMismatch nothing is changed.
func (s *Store) TakePending(ctx context.Context, userID int64, state string) (*PendingAuthorization, error) {
	defer s.lock(userID)()

	rec, err := s.read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, errCorrupt):
		return nil, ErrNoPending
	case err != nil:
		return nil, err
	}
	if rec.Pending == nil {
		return nil, ErrNoPending
	}
	if subtle.ConstantTimeCompare([]byte(rec.Pending.State), []byte(state)) != 1 {
		return nil, ErrStateMismatch
	}

	pending := rec.Pending
	rec.Pending = nil
	if err := s.persist(ctx, userID, rec); err != nil {
		return nil, err
	}
	return pending, nil
}

func (s *Store) readOrNew(ctx context.Context, userID int64) (*record, error) {
	rec, err := s.read(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, errCorrupt):
		return &record{}, nil
	case err != nil:
		return nil, err
	}
	return rec, nil
}

func (s *Store) read(ctx context.Context, userID int64) (*record, error) {
	data, err := s.backend.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "get", UserID: userID, Err: err}
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}
	if rec.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", errCorrupt, rec.Version)
	}
	if rec.Credential != nil {
		cred := *rec.Credential
		if cred.AccessToken, err = s.enc.Decrypt(cred.AccessToken); err != nil {
			return nil, fmt.Errorf("%w: access token: %v", errCorrupt, err)
		}
		if cred.RefreshToken, err = s.enc.Decrypt(cred.RefreshToken); err != nil {
			return nil, fmt.Errorf("%w: refresh token: %v", errCorrupt, err)
		}
		rec.Credential = &cred
	}
	return &rec, nil
}

func (s *Store) write(ctx context.Context, userID int64, rec *record) error {
	out := record{
		Version:   recordVersion,
		UserID:    userID,
		Pending:   rec.Pending,
		UpdatedAt: s.now().UTC(),
	}
	if rec.Credential != nil {
		cred := *rec.Credential
		var err error
		if cred.AccessToken, err = s.enc.Encrypt(cred.AccessToken); err != nil {
			return fmt.Errorf("encrypt access token: %w", err)
		}
		if cred.RefreshToken, err = s.enc.Encrypt(cred.RefreshToken); err != nil {
			return fmt.Errorf("encrypt refresh token: %w", err)
		}
		out.Credential = &cred
	}

	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode credential record: %w", err)
	}
	if err := s.backend.Put(ctx, userID, data); err != nil {
		return &StorageError{Op: "put", UserID: userID, Err: err}
	}
	return nil
}

// persist writes rec, or removes it when nothing is left in it.
func (s *Store) persist(ctx context.Context, userID int64, rec *record) error {
	if rec.empty() {
		return s.remove(ctx, userID)
	}
	return s.write(ctx, userID, rec)
}

func (s *Store) remove(ctx context.Context, userID int64) error {
	if err := s.backend.Delete(ctx, userID); err != nil {
		return &StorageError{Op: "delete", UserID: userID, Err: err}
	}
	return nil
}

func (s *Store) clearCredential(ctx context.Context, userID int64, rec *record) {
	rec.Credential = nil
	if err := s.persist(ctx, userID, rec); err != nil {
		s.logger.Error("Failed to delete credential", logging.User(userID), logging.Err(err))
	}
}

func (s *Store) discard(ctx context.Context, userID int64) {
	if err := s.remove(ctx, userID); err != nil {
		s.logger.Error("Failed to delete credential record", logging.User(userID), logging.Err(err))
	}
}
