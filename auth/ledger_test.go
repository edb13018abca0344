package auth

import (
	"context"
	"encoding/hex"
	"io"
	"math/big"
	"os"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/84adam/zkauth/crypto"
	"github.com/84adam/zkauth/logging"
	"github.com/84adam/zkauth/models"
	"github.com/84adam/zkauth/storage"
)

var testSecret = []byte("test-jwt-secret-for-ledger")

func TestMain(m *testing.M) {
	logging.SetOutputForTest(io.Discard)
	os.Exit(m.Run())
}

func newTestService(t *testing.T, group string) (*Service, storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc, err := NewService(store, NewSessionIssuer(store, testSecret, time.Hour), Options{
		InteractiveGroup: group,
		ChallengeTTL:     2 * time.Minute,
		Skew:             time.Minute,
	})
	require.NoError(t, err)
	return svc, store
}

// testIdentity is the identity newTestProver derives keys for.
const testIdentity = "nyancat"

// testProver plays the client side for one password.
type testProver struct {
	cp     *crypto.ChaumPedersen
	x      *big.Int
	y1, y2 string
}

func newTestProver(t *testing.T, groupName, password string) *testProver {
	t.Helper()
	return newTestProverFor(t, groupName, testIdentity, password)
}

func newTestProverFor(t *testing.T, groupName, identity, password string) *testProver {
	t.Helper()
	group, err := crypto.NewGroup(groupName)
	require.NoError(t, err)
	cp := crypto.NewChaumPedersen(group)
	x := cp.SecretFromPassword(identity, password)
	y1, y2, err := cp.GeneratePublicKeys(context.Background(), x)
	require.NoError(t, err)
	return &testProver{cp: cp, x: x, y1: group.EncodeElement(y1), y2: group.EncodeElement(y2)}
}

func (p *testProver) register(t *testing.T, svc *Service, identity string) {
	t.Helper()
	require.NoError(t, svc.Register(context.Background(), identity, p.cp.Group().Name(), p.y1, p.y2))
}

// login runs a full interactive round answering with the secret derived
// from password.
func (p *testProver) login(t *testing.T, svc *Service, identity, password string) (*Session, error) {
	t.Helper()
	ctx := context.Background()
	group := p.cp.Group()
	commitment, err := p.cp.Commit(ctx)
	require.NoError(t, err)
	c, authID, err := svc.IssueChallenge(ctx, identity, group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2))
	if err != nil {
		return nil, err
	}
	cv, err := group.DecodeScalar(c)
	require.NoError(t, err)
	s := p.cp.SolveChallenge(commitment.K, cv, p.cp.SecretFromPassword(identity, password))
	return svc.Resolve(ctx, authID, group.EncodeScalar(s))
}

func (p *testProver) proveNonInteractive(t *testing.T, identity, password string, issuedAt int64) (string, string) {
	t.Helper()
	group := p.cp.Group()
	x := p.cp.SecretFromPassword(identity, password)
	y1, err := group.DecodeElement(p.y1)
	require.NoError(t, err)
	y2, err := group.DecodeElement(p.y2)
	require.NoError(t, err)
	proof, err := p.cp.ProveNonInteractive(context.Background(), identity, x, y1, y2, issuedAt)
	require.NoError(t, err)
	return group.EncodeScalar(proof.C), group.EncodeScalar(proof.S)
}

func TestInteractiveLogin(t *testing.T) {
	for _, group := range crypto.GroupNames() {
		t.Run(group, func(t *testing.T) {
			svc, _ := newTestService(t, group)
			p := newTestProver(t, group, "nyancat")
			p.register(t, svc, "nyancat")

			session, err := p.login(t, svc, "nyancat", "nyancat")
			require.NoError(t, err)
			assert.Equal(t, "nyancat", session.Identity)
			assert.Equal(t, AlgorithmInteractive, session.Method)
			assert.Len(t, session.ID, 64)
			assert.NotEmpty(t, session.AccessToken)

			_, err = p.login(t, svc, "nyancat", "nyandog")
			assert.ErrorIs(t, err, ErrInvalidProof)
		})
	}
}

func TestRegistrationIsIdempotent(t *testing.T) {
	svc, store := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")
	p.register(t, svc, "nyancat")
	p.register(t, svc, "nyancat")

	count := 0
	require.NoError(t, store.ForEach(context.Background(), storage.CollectionUsers, func(_, _ []byte) error {
		count++
		return nil
	}))
	assert.Equal(t, 1, count)

	_, err := p.login(t, svc, "nyancat", "nyancat")
	assert.NoError(t, err)
}

func TestReRegistrationReplacesKeys(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	newTestProver(t, crypto.GroupMODP2048, "nyancat").register(t, svc, "nyancat")
	p := newTestProver(t, crypto.GroupMODP2048, "nyandog")
	p.register(t, svc, "nyancat")

	_, err := p.login(t, svc, "nyancat", "nyancat")
	assert.ErrorIs(t, err, ErrInvalidProof)
	_, err = p.login(t, svc, "nyancat", "nyandog")
	assert.NoError(t, err)
}

func TestRegisterRejectsMalformedInput(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")
	ctx := context.Background()

	tests := []struct {
		name, identity, group, y1, y2 string
	}{
		{"bad identity", "a b", crypto.GroupMODP2048, p.y1, p.y2},
		{"unknown group", "nyancat", "p256", p.y1, p.y2},
		{"y1 not hex", "nyancat", crypto.GroupMODP2048, "zz", p.y2},
		{"y2 is one", "nyancat", crypto.GroupMODP2048, p.y1, "1"},
		{"wrong group encoding", "nyancat", crypto.GroupRistretto255, p.y1, p.y2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Register(ctx, tt.identity, tt.group, tt.y1, tt.y2)
			assert.ErrorIs(t, err, ErrMalformedInput)
		})
	}
}

func TestUnknownUserIsRejected(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")

	_, err := p.login(t, svc, "nobody", "nyancat")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = svc.AuthenticateNonInteractive(context.Background(), "nobody", "01", "01", time.Now().Unix())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUnknownChallengeIsRejected(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	ctx := context.Background()

	for _, authID := range []string{"", "not-hex", strings.Repeat("ab", 32), strings.Repeat("AB", 32)} {
		_, err := svc.Resolve(ctx, authID, "01")
		assert.ErrorIs(t, err, ErrChallengeNotFound, authID)
	}
}

func TestChallengeIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupRistretto255)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	group := p.cp.Group()

	commitment, err := p.cp.Commit(ctx)
	require.NoError(t, err)
	c, authID, err := svc.IssueChallenge(ctx, "nyancat", group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2))
	require.NoError(t, err)
	cv, err := group.DecodeScalar(c)
	require.NoError(t, err)

	// A wrong answer consumes the challenge too.
	_, err = svc.Resolve(ctx, authID, group.EncodeScalar(big.NewInt(7)))
	assert.ErrorIs(t, err, ErrInvalidProof)

	s := p.cp.SolveChallenge(commitment.K, cv, p.x)
	_, err = svc.Resolve(ctx, authID, group.EncodeScalar(s))
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestConcurrentResolveSucceedsOnce(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupRistretto255)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	group := p.cp.Group()

	commitment, err := p.cp.Commit(ctx)
	require.NoError(t, err)
	c, authID, err := svc.IssueChallenge(ctx, "nyancat", group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2))
	require.NoError(t, err)
	cv, _ := group.DecodeScalar(c)
	answer := group.EncodeScalar(p.cp.SolveChallenge(commitment.K, cv, p.x))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Resolve(ctx, authID, answer); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrChallengeNotFound)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestChallengeExpires(t *testing.T) {
	svc, store := newTestService(t, crypto.GroupRistretto255)
	clock := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	group := p.cp.Group()

	commitment, err := p.cp.Commit(ctx)
	require.NoError(t, err)
	_, authID, err := svc.IssueChallenge(ctx, "nyancat", group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2))
	require.NoError(t, err)
	_, staleID, err := svc.IssueChallenge(ctx, "nyancat", group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2))
	require.NoError(t, err)
	assert.NotEqual(t, authID, staleID)

	clock = clock.Add(3 * time.Minute)
	_, err = svc.Resolve(ctx, authID, "01")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	key, _ := models.AuthIDKey(staleID)
	exists, err := store.Exists(ctx, storage.CollectionChallenges, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIdenticalCommitmentsGetDistinctAuthIDs(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupRistretto255)
	// A constant reader makes every challenge equal.
	svc.interactive = crypto.NewChaumPedersenWithReader(svc.interactive.Group(), constReader(0x01))
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	group := p.cp.Group()

	commitment, err := p.cp.Commit(ctx)
	require.NoError(t, err)
	r1, r2 := group.EncodeElement(commitment.R1), group.EncodeElement(commitment.R2)
	c1, id1, err := svc.IssueChallenge(ctx, "nyancat", r1, r2)
	require.NoError(t, err)
	c2, id2, err := svc.IssueChallenge(ctx, "nyancat", r1, r2)
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.NotEqual(t, id1, id2)
}

type constReader byte

func (b constReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(b)
	}
	return len(p), nil
}

func TestGroupMismatch(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")

	_, _, err := svc.IssueChallenge(context.Background(), "nyancat", p.y1, p.y2)
	assert.ErrorIs(t, err, ErrGroupMismatch)
}

func TestIssueChallengeRejectsMalformedCommitment(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")
	p.register(t, svc, "nyancat")

	_, _, err := svc.IssueChallenge(context.Background(), "nyancat", "0", p.y2)
	assert.ErrorIs(t, err, ErrMalformedInput)
	_, _, err = svc.IssueChallenge(context.Background(), "nyancat", p.y1, "xyz")
	assert.ErrorIs(t, err, ErrMalformedInput)
}

func TestRandomnessFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	svc, err := NewService(store, NewSessionIssuer(store, testSecret, time.Hour), Options{
		InteractiveGroup: crypto.GroupMODP2048,
		ChallengeTTL:     time.Minute,
		Skew:             time.Minute,
		Rand:             iotest.ErrReader(io.ErrUnexpectedEOF),
	})
	require.NoError(t, err)
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")
	p.register(t, svc, "nyancat")

	_, _, err = svc.IssueChallenge(context.Background(), "nyancat", p.y1, p.y2)
	assert.ErrorIs(t, err, crypto.ErrRandomnessUnavailable)
}

func TestNonInteractiveLogin(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	now := time.Now().Unix()

	c, s := p.proveNonInteractive(t, "nyancat", "nyancat", now)
	session, err := svc.AuthenticateNonInteractive(ctx, "nyancat", c, s, now)
	require.NoError(t, err)
	assert.Equal(t, AlgorithmNonInteractive, session.Method)

	_, err = svc.AuthenticateNonInteractive(ctx, "nyancat", c, s, now)
	assert.ErrorIs(t, err, ErrReplayedProof)

	c, s = p.proveNonInteractive(t, "nyancat", "nyandog", now)
	_, err = svc.AuthenticateNonInteractive(ctx, "nyancat", c, s, now)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestSharedPasswordGivesDistinctKeys(t *testing.T) {
	for _, group := range []string{crypto.GroupMODP2048, crypto.GroupRistretto255} {
		t.Run(group, func(t *testing.T) {
			svc, store := newTestService(t, crypto.GroupMODP2048)
			ctx := context.Background()
			alice := newTestProverFor(t, group, "alice", "nyancat")
			bob := newTestProverFor(t, group, "bob", "nyancat")
			alice.register(t, svc, "alice")
			bob.register(t, svc, "bob")

			records := map[string]*models.UserRecord{}
			for _, identity := range []string{"alice", "bob"} {
				value, err := store.Get(ctx, storage.CollectionUsers, models.UserKey(identity))
				require.NoError(t, err)
				records[identity], err = models.UnmarshalUserRecord(value)
				require.NoError(t, err)
			}
			assert.NotEqual(t, records["alice"].Y1, records["bob"].Y1)
			assert.NotEqual(t, records["alice"].Y2, records["bob"].Y2)

			if group == crypto.GroupRistretto255 {
				now := time.Now().Unix()
				c, s := alice.proveNonInteractive(t, "alice", "nyancat", now)
				_, err := svc.AuthenticateNonInteractive(ctx, "alice", c, s, now)
				assert.NoError(t, err)
			} else {
				_, err := alice.login(t, svc, "alice", "nyancat")
				assert.NoError(t, err)
			}
		})
	}
}

func TestNonInteractiveRejectsTampering(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	p.register(t, svc, "nyancat2")
	ctx := context.Background()
	now := time.Now().Unix()
	c, s := p.proveNonInteractive(t, "nyancat", "nyancat", now)

	flip := func(h string) string {
		b, _ := hex.DecodeString(h)
		b[0] ^= 0x01
		return hex.EncodeToString(b)
	}

	tests := []struct {
		name, identity, c, s string
		issuedAt             int64
	}{
		{"other identity", "nyancat2", c, s, now},
		{"tampered c", "nyancat", flip(c), s, now},
		{"tampered s", "nyancat", c, flip(s), now},
		{"shifted timestamp", "nyancat", c, s, now - 1},
		{"stale", "nyancat", c, s, now - 3600},
		{"future", "nyancat", c, s, now + 3600},
		{"malformed c", "nyancat", "zz", s, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.AuthenticateNonInteractive(ctx, tt.identity, tt.c, tt.s, tt.issuedAt)
			assert.ErrorIs(t, err, ErrInvalidProof)
		})
	}

	// The untouched proof still verifies.
	_, err := svc.AuthenticateNonInteractive(ctx, "nyancat", c, s, now)
	assert.NoError(t, err)
}

func TestSweepRemovesExpiredTranscriptsAndSessions(t *testing.T) {
	svc, store := newTestService(t, crypto.GroupMODP2048)
	p := newTestProver(t, crypto.GroupRistretto255, "nyancat")
	p.register(t, svc, "nyancat")
	ctx := context.Background()
	now := time.Now()

	c, s := p.proveNonInteractive(t, "nyancat", "nyancat", now.Unix())
	_, err := svc.AuthenticateNonInteractive(ctx, "nyancat", c, s, now.Unix())
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, storage.CollectionChallenges, []byte("junk"), []byte("{not json")))

	removed, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "only the corrupt record is due")

	svc.now = func() time.Time { return now.Add(2 * time.Hour) }
	removed, err = svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed, "transcript and session")
}

func TestStoreFailuresPropagate(t *testing.T) {
	p := newTestProver(t, crypto.GroupMODP2048, "nyancat")
	ctx := context.Background()

	ms := new(storage.MockStore)
	svc, err := NewService(ms, NewSessionIssuer(ms, testSecret, time.Hour), Options{ChallengeTTL: time.Minute, Skew: time.Minute})
	require.NoError(t, err)

	ms.On("Put", mock.Anything, storage.CollectionUsers, mock.Anything, mock.Anything).Return(storage.ErrStoreFailure).Once()
	err = svc.Register(ctx, "nyancat", crypto.GroupMODP2048, p.y1, p.y2)
	assert.ErrorIs(t, err, storage.ErrStoreFailure)

	ms.On("Get", mock.Anything, storage.CollectionUsers, models.UserKey("nyancat")).Return(nil, storage.ErrStoreFailure).Once()
	_, _, err = svc.IssueChallenge(ctx, "nyancat", p.y1, p.y2)
	assert.ErrorIs(t, err, storage.ErrStoreFailure)
	assert.NotErrorIs(t, err, ErrUserNotFound)

	ms.On("ForEach", mock.Anything, storage.CollectionChallenges, mock.Anything).Return(storage.ErrStoreFailure).Once()
	_, err = svc.SweepExpired(ctx)
	assert.ErrorIs(t, err, storage.ErrStoreFailure)

	ms.AssertExpectations(t)
}

func TestNewServiceRejectsUnknownGroup(t *testing.T) {
	store := storage.NewMemoryStore()
	_, err := NewService(store, NewSessionIssuer(store, testSecret, time.Hour), Options{
		InteractiveGroup: "p256",
		ChallengeTTL:     time.Minute,
		Skew:             time.Minute,
	})
	assert.ErrorIs(t, err, crypto.ErrUnknownGroup)
}

func TestGroupForAlgorithm(t *testing.T) {
	svc, _ := newTestService(t, crypto.GroupMODP3072Legacy)

	g, err := svc.GroupForAlgorithm(AlgorithmInteractive)
	require.NoError(t, err)
	assert.Equal(t, crypto.GroupMODP3072Legacy, g.Name())

	g, err = svc.GroupForAlgorithm(AlgorithmNonInteractive)
	require.NoError(t, err)
	assert.Equal(t, crypto.GroupRistretto255, g.Name())

	_, err = svc.GroupForAlgorithm("quantum")
	assert.ErrorIs(t, err, ErrMalformedInput)
}
