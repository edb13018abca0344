package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/84adam/zkauth/models"
	"github.com/84adam/zkauth/storage"
)

// Session is the wire form of an issued session.
type Session = models.Session

// SessionIssuer mints sessions and keeps their server-side records.
type SessionIssuer struct {
	store  storage.Store
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewSessionIssuer(store storage.Store, secret []byte, expiry time.Duration) *SessionIssuer {
	return &SessionIssuer{
		store:  store,
		secret: secret,
		expiry: expiry,
		now:    time.Now,
	}
}

// Secret is the token signing key, for JWTMiddleware.
func (si *SessionIssuer) Secret() []byte { return si.secret }

// Issue creates a session for user. transcript is the accepted proof's
// binding material; it is hashed into the id together with the issue time
// so two logins in the same second get different ids.
func (si *SessionIssuer) Issue(ctx context.Context, user *models.UserRecord, method string, transcript []byte) (*Session, error) {
	now := si.now().UTC()
	session := &Session{
		ID:        sessionID(user, now, transcript),
		Identity:  user.Identity,
		Method:    method,
		IssuedAt:  now,
		ExpiresAt: now.Add(si.expiry),
	}

	token, err := generateToken(si.secret, session.ID, session.Identity, method, session.IssuedAt, session.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}
	session.AccessToken = token

	record := &models.SessionRecord{
		ID:        session.ID,
		Identity:  session.Identity,
		Method:    method,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	}
	value, err := record.Marshal()
	if err != nil {
		return nil, err
	}
	if err := si.store.Put(ctx, storage.CollectionSessions, record.Key(), value); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return session, nil
}

// Lookup returns the live session record for id.
func (si *SessionIssuer) Lookup(ctx context.Context, id string) (*models.SessionRecord, error) {
	value, err := si.store.Get(ctx, storage.CollectionSessions, []byte(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	record, err := models.UnmarshalSessionRecord(value)
	if err != nil {
		return nil, err
	}
	if record.Expired(si.now()) {
		return nil, ErrSessionNotFound
	}
	return record, nil
}

// Revoke deletes the session, invalidating its access token.
func (si *SessionIssuer) Revoke(ctx context.Context, id string) error {
	err := si.store.Delete(ctx, storage.CollectionSessions, []byte(id))
	if errors.Is(err, storage.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

func sessionID(user *models.UserRecord, at time.Time, transcript []byte) string {
	h := sha256.New()
	h.Write([]byte(user.String()))
	h.Write([]byte("||"))
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	h.Write([]byte("||"))
	h.Write([]byte(hex.EncodeToString(transcript)))
	return hex.EncodeToString(h.Sum(nil))
}
