package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/84adam/zkauth/config"
	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/logging"
	"github.com/84adam/zkauth/models"
	"github.com/84adam/zkauth/storage"
	"github.com/84adam/zkauth/utils"
)

// Algorithms a client can register for.
const (
	AlgorithmInteractive    = models.AlgorithmInteractive
	AlgorithmNonInteractive = models.AlgorithmNonInteractive
)

// nonInteractiveGroup is the group non-interactive registrations use.
const nonInteractiveGroup = crypto.GroupRistretto255

// maxAuthIDAttempts bounds the search for an unused auth id.
const maxAuthIDAttempts = 8

// Options configures a Service.
type Options struct {
	InteractiveGroup string
	ChallengeTTL     time.Duration
	Skew             time.Duration
	// Rand overrides crypto/rand for challenge sampling.
	Rand   io.Reader
	Events *logging.SecurityEventLogger
}

// Service is the verifier side of the protocol: it keeps registered users,
// issues and resolves challenges, and hands out sessions.
type Service struct {
	store       storage.Store
	sessions    *SessionIssuer
	events      *logging.SecurityEventLogger
	interactive *crypto.ChaumPedersen
	protocols   map[string]*crypto.ChaumPedersen
	ttl         time.Duration
	skew        time.Duration
	now         func() time.Time

	// serializes the replay check and record of non-interactive transcripts
	transcriptMu sync.Mutex
}

func NewService(store storage.Store, sessions *SessionIssuer, opts Options) (*Service, error) {
	if opts.InteractiveGroup == "" {
		opts.InteractiveGroup = crypto.GroupMODP2048
	}
	if opts.ChallengeTTL <= 0 || opts.Skew <= 0 {
		return nil, fmt.Errorf("challenge ttl and skew must be positive")
	}

	protocols := make(map[string]*crypto.ChaumPedersen)
	for _, name := range crypto.GroupNames() {
		group, err := crypto.NewGroup(name)
		if err != nil {
			return nil, err
		}
		protocols[name] = crypto.NewChaumPedersenWithReader(group, opts.Rand)
	}
	interactive, ok := protocols[opts.InteractiveGroup]
	if !ok {
		return nil, fmt.Errorf("%w: %s", crypto.ErrUnknownGroup, opts.InteractiveGroup)
	}

	return &Service{
		store:       store,
		sessions:    sessions,
		events:      opts.Events,
		interactive: interactive,
		protocols:   protocols,
		ttl:         opts.ChallengeTTL,
		skew:        opts.Skew,
		now:         time.Now,
	}, nil
}

// NewServiceFromConfig wires a Service and its SessionIssuer from cfg.
func NewServiceFromConfig(cfg *config.Config, store storage.Store, events *logging.SecurityEventLogger) (*Service, error) {
	issuer := NewSessionIssuer(store, []byte(cfg.Security.JWTSecret), cfg.JWTExpiry())
	return NewService(store, issuer, Options{
		InteractiveGroup: cfg.Protocol.InteractiveGroup,
		ChallengeTTL:     cfg.ChallengeTTL(),
		Skew:             cfg.NonInteractiveSkew(),
		Events:           events,
	})
}

func (s *Service) Sessions() *SessionIssuer { return s.sessions }

// GroupForAlgorithm maps a client algorithm name to its group.
func (s *Service) GroupForAlgorithm(algorithm string) (crypto.Group, error) {
	switch algorithm {
	case AlgorithmInteractive, "":
		return s.interactive.Group(), nil
	case AlgorithmNonInteractive:
		return s.protocols[nonInteractiveGroup].Group(), nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrMalformedInput, algorithm)
	}
}

// Register stores identity's public keys, replacing any earlier record.
func (s *Service) Register(ctx context.Context, identity, groupName, y1, y2 string) error {
	if err := utils.ValidateIdentity(identity); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}
	protocol, ok := s.protocols[groupName]
	if !ok {
		return fmt.Errorf("%w: unknown group %q", ErrMalformedInput, groupName)
	}
	group := protocol.Group()
	e1, err := group.DecodeElement(y1)
	if err != nil {
		return fmt.Errorf("%w: y1: %v", ErrMalformedInput, err)
	}
	e2, err := group.DecodeElement(y2)
	if err != nil {
		return fmt.Errorf("%w: y2: %v", ErrMalformedInput, err)
	}

	user := &models.UserRecord{
		Identity:     identity,
		Group:        groupName,
		Y1:           group.EncodeElement(e1),
		Y2:           group.EncodeElement(e2),
		RegisteredAt: s.now().UTC(),
	}
	value, err := user.Marshal()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, storage.CollectionUsers, user.Key(), value); err != nil {
		logging.ErrorLogger.Printf("Failed to store user %s: %v", identity, err)
		return fmt.Errorf("failed to store user: %w", err)
	}

	s.logEvent(ctx, logging.EventRegistration, identity, map[string]interface{}{"group": groupName})
	logging.InfoLogger.Printf("Registered %s (%s)", identity, groupName)
	return nil
}

// IssueChallenge records the commitment (r1, r2) for identity and returns a
// fresh challenge with the auth id that answers it.
func (s *Service) IssueChallenge(ctx context.Context, identity, r1, r2 string) (string, string, error) {
	user, err := s.loadUser(ctx, identity)
	if err != nil {
		return "", "", err
	}
	group := s.interactive.Group()
	if user.Group != group.Name() {
		return "", "", fmt.Errorf("%w: registered for %s", ErrGroupMismatch, user.Group)
	}

	e1, err := group.DecodeElement(r1)
	if err != nil {
		return "", "", fmt.Errorf("%w: r1: %v", ErrMalformedInput, err)
	}
	e2, err := group.DecodeElement(r2)
	if err != nil {
		return "", "", fmt.Errorf("%w: r2: %v", ErrMalformedInput, err)
	}

	c, err := s.interactive.GenerateChallenge()
	if err != nil {
		logging.ErrorLogger.Printf("Challenge generation failed: %v", err)
		return "", "", err
	}

	now := s.now().UTC()
	record := &models.ChallengeRecord{
		Challenge: group.EncodeScalar(c),
		R1:        group.EncodeElement(e1),
		R2:        group.EncodeElement(e2),
		User:      *user,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	authID, key, err := s.freeAuthID(ctx, record)
	if err != nil {
		return "", "", err
	}
	value, err := record.Marshal()
	if err != nil {
		return "", "", err
	}
	if err := s.store.Put(ctx, storage.CollectionChallenges, key, value); err != nil {
		logging.ErrorLogger.Printf("Failed to store challenge for %s: %v", identity, err)
		return "", "", fmt.Errorf("failed to store challenge: %w", err)
	}

	s.logEvent(ctx, logging.EventChallengeIssued, identity, nil)
	return record.Challenge, authID, nil
}

// freeAuthID bumps record.Nonce until its auth id is unused.
func (s *Service) freeAuthID(ctx context.Context, record *models.ChallengeRecord) (string, []byte, error) {
	for attempt := 0; attempt < maxAuthIDAttempts; attempt++ {
		record.Nonce = attempt
		authID := record.AuthID()
		key, _ := models.AuthIDKey(authID)
		exists, err := s.store.Exists(ctx, storage.CollectionChallenges, key)
		if err != nil {
			return "", nil, fmt.Errorf("failed to check challenge: %w", err)
		}
		if !exists {
			return authID, key, nil
		}
	}
	return "", nil, fmt.Errorf("%w: no free auth id after %d attempts", storage.ErrStoreFailure, maxAuthIDAttempts)
}

// Resolve answers the challenge behind authID with response sHex. The
// challenge is consumed whether or not the proof verifies.
func (s *Service) Resolve(ctx context.Context, authID, sHex string) (*Session, error) {
	key, ok := models.AuthIDKey(authID)
	if !ok {
		s.logEvent(ctx, logging.EventUnknownChallenge, "", nil)
		return nil, ErrChallengeNotFound
	}

	value, err := s.store.Get(ctx, storage.CollectionChallenges, key)
	if errors.Is(err, storage.ErrNotFound) {
		s.logEvent(ctx, logging.EventUnknownChallenge, "", nil)
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}
	// Claim: of concurrent resolvers only the one whose delete succeeds
	// proceeds.
	if err := s.store.Delete(ctx, storage.CollectionChallenges, key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}

	record, err := models.UnmarshalChallengeRecord(value)
	if err != nil {
		return nil, err
	}
	identity := record.User.Identity
	if record.Expired(s.now()) {
		s.logEvent(ctx, logging.EventUnknownChallenge, identity, map[string]interface{}{"reason": "expired"})
		return nil, ErrChallengeNotFound
	}

	protocol, ok := s.protocols[record.User.Group]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group %q", models.ErrSerialization, record.User.Group)
	}
	proof, err := challengeProof(protocol.Group(), record)
	if err != nil {
		return nil, err
	}
	sv, err := protocol.Group().DecodeScalar(sHex)
	if err != nil {
		s.logEvent(ctx, logging.EventProofRejected, identity, map[string]interface{}{"method": AlgorithmInteractive, "reason": "malformed response"})
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	proof.S = sv

	if !protocol.Verify(ctx, proof) {
		s.logEvent(ctx, logging.EventProofRejected, identity, map[string]interface{}{"method": AlgorithmInteractive})
		return nil, ErrInvalidProof
	}

	transcript := append(key, []byte(protocol.Group().EncodeScalar(sv))...)
	session, err := s.sessions.Issue(ctx, &record.User, AlgorithmInteractive, transcript)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, logging.EventProofAccepted, identity, map[string]interface{}{"method": AlgorithmInteractive})
	return session, nil
}

// challengeProof rebuilds the stored half of a proof. Decoding failures
// here mean the record itself is corrupt.
func challengeProof(group crypto.Group, record *models.ChallengeRecord) (*crypto.Proof, error) {
	var err error
	proof := &crypto.Proof{}
	decode := func(dst *crypto.Element, s string) {
		if err == nil {
			*dst, err = group.DecodeElement(s)
		}
	}
	decode(&proof.Y1, record.User.Y1)
	decode(&proof.Y2, record.User.Y2)
	decode(&proof.R1, record.R1)
	decode(&proof.R2, record.R2)
	if err == nil {
		proof.C, err = group.DecodeScalar(record.Challenge)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: challenge record: %v", models.ErrSerialization, err)
	}
	return proof, nil
}

// AuthenticateNonInteractive verifies a Fiat-Shamir proof (c, s) that
// identity produced at issuedAt (unix seconds).
func (s *Service) AuthenticateNonInteractive(ctx context.Context, identity, cHex, sHex string, issuedAt int64) (*Session, error) {
	user, err := s.loadUser(ctx, identity)
	if err != nil {
		return nil, err
	}
	protocol, ok := s.protocols[user.Group]
	if !ok {
		return nil, fmt.Errorf("%w: unknown group %q", models.ErrSerialization, user.Group)
	}
	group := protocol.Group()

	reject := func(reason string) error {
		s.logEvent(ctx, logging.EventProofRejected, identity, map[string]interface{}{"method": AlgorithmNonInteractive, "reason": reason})
		return fmt.Errorf("%w: %s", ErrInvalidProof, reason)
	}

	now := s.now()
	issued := time.Unix(issuedAt, 0)
	if issued.Before(now.Add(-s.skew)) || issued.After(now.Add(s.skew)) {
		return nil, reject("timestamp outside accepted window")
	}

	c, err := group.DecodeScalar(cHex)
	if err != nil {
		return nil, reject("malformed challenge")
	}
	sv, err := group.DecodeScalar(sHex)
	if err != nil {
		return nil, reject("malformed response")
	}
	y1, err := group.DecodeElement(user.Y1)
	if err != nil {
		return nil, fmt.Errorf("%w: user record: %v", models.ErrSerialization, err)
	}
	y2, err := group.DecodeElement(user.Y2)
	if err != nil {
		return nil, fmt.Errorf("%w: user record: %v", models.ErrSerialization, err)
	}

	proof := &crypto.NonInteractiveProof{C: c, S: sv, IssuedAt: issuedAt}
	if !protocol.VerifyNonInteractive(ctx, identity, y1, y2, proof) {
		return nil, reject("verification failed")
	}

	transcript := models.NewTranscriptRecord(identity, group.EncodeScalar(c), group.EncodeScalar(sv), issuedAt, issued.Add(s.skew))
	if err := s.recordTranscript(ctx, transcript); err != nil {
		if errors.Is(err, ErrReplayedProof) {
			s.logEvent(ctx, logging.EventReplayDetected, identity, nil)
		}
		return nil, err
	}

	session, err := s.sessions.Issue(ctx, user, AlgorithmNonInteractive, transcript.Key())
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, logging.EventProofAccepted, identity, map[string]interface{}{"method": AlgorithmNonInteractive})
	return session, nil
}

func (s *Service) recordTranscript(ctx context.Context, transcript *models.TranscriptRecord) error {
	s.transcriptMu.Lock()
	defer s.transcriptMu.Unlock()

	exists, err := s.store.Exists(ctx, storage.CollectionTranscripts, transcript.Key())
	if err != nil {
		return fmt.Errorf("failed to check transcript: %w", err)
	}
	if exists {
		return ErrReplayedProof
	}
	value, err := transcript.Marshal()
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, storage.CollectionTranscripts, transcript.Key(), value); err != nil {
		return fmt.Errorf("failed to store transcript: %w", err)
	}
	return nil
}

// RevokeSession ends a session before it expires.
func (s *Service) RevokeSession(ctx context.Context, identity, sessionID string) error {
	if err := s.sessions.Revoke(ctx, sessionID); err != nil {
		return err
	}
	s.logEvent(ctx, logging.EventSessionRevoked, identity, nil)
	return nil
}

// SweepExpired deletes expired challenges, transcripts and sessions and
// returns how many records it removed. Records that no longer decode are
// removed too.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.now()
	sweeps := []struct {
		collection string
		expired    func([]byte) bool
	}{
		{storage.CollectionChallenges, func(b []byte) bool {
			r, err := models.UnmarshalChallengeRecord(b)
			return err != nil || r.Expired(now)
		}},
		{storage.CollectionTranscripts, func(b []byte) bool {
			r, err := models.UnmarshalTranscriptRecord(b)
			return err != nil || r.Expired(now)
		}},
		{storage.CollectionSessions, func(b []byte) bool {
			r, err := models.UnmarshalSessionRecord(b)
			return err != nil || r.Expired(now)
		}},
	}

	removed := 0
	for _, sweep := range sweeps {
		var stale [][]byte
		err := s.store.ForEach(ctx, sweep.collection, func(key, value []byte) error {
			if sweep.expired(value) {
				stale = append(stale, append([]byte(nil), key...))
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("failed to scan %s: %w", sweep.collection, err)
		}
		for _, key := range stale {
			err := s.store.Delete(ctx, sweep.collection, key)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return removed, fmt.Errorf("failed to delete from %s: %w", sweep.collection, err)
			}
			removed++
		}
	}
	if removed > 0 {
		logging.DebugLogger.Printf("Swept %d expired records", removed)
	}
	return removed, nil
}

func (s *Service) loadUser(ctx context.Context, identity string) (*models.UserRecord, error) {
	value, err := s.store.Get(ctx, storage.CollectionUsers, models.UserKey(identity))
	if errors.Is(err, storage.ErrNotFound) {
		s.logEvent(ctx, logging.EventUnknownIdentity, identity, nil)
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return models.UnmarshalUserRecord(value)
}

func (s *Service) logEvent(ctx context.Context, eventType logging.SecurityEventType, identity string, details map[string]interface{}) {
	var id *string
	if identity != "" {
		id = &identity
	}
	s.events.LogSecurityEvent(eventType, ClientIP(ctx), id, details)
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address for security event logging.
func WithClientIP(ctx context.Context, ip net.IP) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func ClientIP(ctx context.Context) net.IP {
	ip, _ := ctx.Value(clientIPKey{}).(net.IP)
	return ip
}
