package crypto

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allGroups(t *testing.T) []Group {
	t.Helper()
	var groups []Group
	for _, name := range GroupNames() {
		g, err := NewGroup(name)
		require.NoError(t, err)
		groups = append(groups, g)
	}
	return groups
}

// runRound performs one interactive round and returns the verifier decision.
func runRound(t *testing.T, cp *ChaumPedersen, registered, attempted string) bool {
	t.Helper()
	ctx := context.Background()

	x := cp.SecretFromPassword("nyancat", registered)
	y1, y2, err := cp.GeneratePublicKeys(ctx, x)
	require.NoError(t, err)

	commitment, err := cp.Commit(ctx)
	require.NoError(t, err)

	c, err := cp.GenerateChallenge()
	require.NoError(t, err)

	s := cp.SolveChallenge(commitment.K, c, cp.SecretFromPassword("nyancat", attempted))
	return cp.Verify(ctx, &Proof{Y1: y1, Y2: y2, R1: commitment.R1, R2: commitment.R2, C: c, S: s})
}

func TestNewGroupUnknown(t *testing.T) {
	_, err := NewGroup("p256")
	assert.ErrorIs(t, err, ErrUnknownGroup)
}

func TestChaumPedersenRoundTrip(t *testing.T) {
	for _, grp := range allGroups(t) {
		t.Run(grp.Name(), func(t *testing.T) {
			cp := NewChaumPedersen(grp)
			assert.True(t, runRound(t, cp, "correct horse battery staple", "correct horse battery staple"))
			assert.False(t, runRound(t, cp, "correct horse battery staple", "correct horse battery stapler"))
		})
	}
}

func TestFixedNonceAndChallenge(t *testing.T) {
	ctx := context.Background()
	for _, grp := range allGroups(t) {
		t.Run(grp.Name(), func(t *testing.T) {
			cp := NewChaumPedersen(grp)
			k := grp.HashToScalar([]byte("fixed nonce"))
			c := grp.HashToScalar([]byte("fixed challenge"))

			x := cp.SecretFromPassword("nyancat", "nyancat")
			y1, y2, err := cp.GeneratePublicKeys(ctx, x)
			require.NoError(t, err)

			commitment, err := cp.CommitWithNonce(ctx, k)
			require.NoError(t, err)

			good := &Proof{Y1: y1, Y2: y2, R1: commitment.R1, R2: commitment.R2, C: c, S: cp.SolveChallenge(k, c, x)}
			assert.True(t, cp.Verify(ctx, good), "nyancat must verify")

			bad := *good
			bad.S = cp.SolveChallenge(k, c, cp.SecretFromPassword("nyancat", "nyandog"))
			assert.False(t, cp.Verify(ctx, &bad), "nyandog must not verify")
		})
	}
}

func TestVerifyRejectsTamperedProof(t *testing.T) {
	ctx := context.Background()
	for _, grp := range allGroups(t) {
		t.Run(grp.Name(), func(t *testing.T) {
			cp := NewChaumPedersen(grp)
			x := cp.SecretFromPassword("nyancat", "hunter2")
			y1, y2, err := cp.GeneratePublicKeys(ctx, x)
			require.NoError(t, err)
			commitment, err := cp.Commit(ctx)
			require.NoError(t, err)
			c, err := cp.GenerateChallenge()
			require.NoError(t, err)
			s := cp.SolveChallenge(commitment.K, c, x)

			valid := Proof{Y1: y1, Y2: y2, R1: commitment.R1, R2: commitment.R2, C: c, S: s}
			require.True(t, cp.Verify(ctx, &valid))

			tests := []struct {
				name   string
				mutate func(p *Proof)
			}{
				{"response off by one", func(p *Proof) { p.S = ReduceNonNegative(new(big.Int).Add(s, one), grp.Order()) }},
				{"different challenge", func(p *Proof) { p.C = ReduceNonNegative(new(big.Int).Add(c, one), grp.Order()) }},
				{"swapped commitment", func(p *Proof) { p.R1, p.R2 = p.R2, p.R1 }},
				{"swapped keys", func(p *Proof) { p.Y1, p.Y2 = p.Y2, p.Y1 }},
				{"missing r1", func(p *Proof) { p.R1 = nil }},
				{"missing r2", func(p *Proof) { p.R2 = nil }},
				{"missing key", func(p *Proof) { p.Y1 = nil }},
				{"missing response", func(p *Proof) { p.S = nil }},
				{"negative response", func(p *Proof) { p.S = big.NewInt(-1) }},
				{"response not reduced", func(p *Proof) { p.S = new(big.Int).Add(s, grp.Order()) }},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					p := valid
					tt.mutate(&p)
					assert.False(t, cp.Verify(ctx, &p))
				})
			}
			assert.False(t, cp.Verify(ctx, nil))
		})
	}
}

func TestVerifyCanceledContext(t *testing.T) {
	cp := NewChaumPedersen(ristretto)
	ctx, cancel := context.WithCancel(context.Background())
	x := cp.SecretFromPassword("nyancat", "pw")
	y1, y2, err := cp.GeneratePublicKeys(context.Background(), x)
	require.NoError(t, err)
	commitment, err := cp.Commit(context.Background())
	require.NoError(t, err)
	c, err := cp.GenerateChallenge()
	require.NoError(t, err)

	cancel()
	_, err = cp.Commit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, cp.Verify(ctx, &Proof{Y1: y1, Y2: y2, R1: commitment.R1, R2: commitment.R2, C: c, S: cp.SolveChallenge(commitment.K, c, x)}))
}

func TestSolveResponseIsNonNegative(t *testing.T) {
	q := big.NewInt(101)
	tests := []struct {
		k, c, x int64
	}{
		{5, 100, 100},
		{0, 1, 1},
		{100, 0, 7},
		{1, 99, 3},
	}
	for _, tt := range tests {
		k, c, x := big.NewInt(tt.k), big.NewInt(tt.c), big.NewInt(tt.x)
		s := SolveResponse(k, c, x, q)
		assert.GreaterOrEqual(t, s.Sign(), 0)
		assert.Equal(t, -1, s.Cmp(q))

		// s ≡ k - c·x (mod q)
		want := new(big.Int).Sub(k, new(big.Int).Mul(c, x))
		want.Mod(want, q)
		assert.Equal(t, 0, want.Cmp(s), "k=%d c=%d x=%d", tt.k, tt.c, tt.x)
	}

	assert.Equal(t, int64(96), ReduceNonNegative(big.NewInt(-5), q).Int64())
}

func TestSolveResponseReducesForRandomInputs(t *testing.T) {
	for _, grp := range allGroups(t) {
		t.Run(grp.Name(), func(t *testing.T) {
			q := grp.Order()
			for i := 0; i < 200; i++ {
				k, err := SampleScalar(nil, q)
				require.NoError(t, err)
				c, err := SampleScalar(nil, q)
				require.NoError(t, err)
				x, err := SampleScalar(nil, q)
				require.NoError(t, err)
				if i%4 == 0 {
					// c·x far above k+q
					c = new(big.Int).Sub(q, one)
					x = new(big.Int).Sub(q, big.NewInt(int64(i+1)))
					k = big.NewInt(int64(i))
				}

				s := SolveResponse(k, c, x, q)
				require.GreaterOrEqual(t, s.Sign(), 0)
				require.Equal(t, -1, s.Cmp(q))

				// s + c·x ≡ k (mod q)
				back := new(big.Int).Add(s, new(big.Int).Mul(c, x))
				require.Equal(t, 0, back.Mod(back, q).Cmp(new(big.Int).Mod(k, q)), "k=%s c=%s x=%s", k, c, x)
			}
		})
	}
}

func TestSecretIsBoundToIdentity(t *testing.T) {
	ctx := context.Background()
	for _, grp := range allGroups(t) {
		t.Run(grp.Name(), func(t *testing.T) {
			cp := NewChaumPedersen(grp)
			alice := cp.SecretFromPassword("alice", "nyancat")
			bob := cp.SecretFromPassword("bob", "nyancat")
			aliceY1, _, err := cp.GeneratePublicKeys(ctx, alice)
			require.NoError(t, err)
			bobY1, _, err := cp.GeneratePublicKeys(ctx, bob)
			require.NoError(t, err)

			if grp.Name() == GroupMODP3072Legacy {
				assert.True(t, grp.Equal(aliceY1, bobY1), "legacy keys depend on the password only")
				assert.Equal(t, 0, alice.Cmp(grp.HashToScalar([]byte("nyancat"))))
				return
			}
			assert.False(t, grp.Equal(aliceY1, bobY1))
			assert.NotEqual(t, 0, alice.Cmp(grp.HashToScalar([]byte("nyancat"))))
			assert.Equal(t, 0, alice.Cmp(cp.SecretFromPassword("alice", "nyancat")))
		})
	}

	// the group is part of the label
	a := NewChaumPedersen(modp2048).SecretFromPassword("alice", "nyancat")
	b := NewChaumPedersen(ristretto).SecretFromPassword("alice", "nyancat")
	assert.NotEqual(t, 0, a.Cmp(b))
}

func TestSampleScalar(t *testing.T) {
	bound := big.NewInt(3)
	for i := 0; i < 50; i++ {
		v, err := SampleScalar(nil, bound)
		require.NoError(t, err)
		assert.True(t, v.Cmp(one) >= 0 && v.Cmp(bound) < 0, "sample %s out of range", v)
	}

	_, err := SampleScalar(iotest.ErrReader(errors.New("entropy pool empty")), modp2048.Order())
	assert.ErrorIs(t, err, ErrRandomnessUnavailable)

	_, err = SampleScalar(nil, big.NewInt(1))
	assert.ErrorIs(t, err, ErrInvalidScalar)
}

func TestRandomnessFailurePropagates(t *testing.T) {
	cp := NewChaumPedersenWithReader(modp2048, iotest.ErrReader(errors.New("no entropy")))
	_, err := cp.Commit(context.Background())
	assert.ErrorIs(t, err, ErrRandomnessUnavailable)
	_, err = cp.GenerateChallenge()
	assert.ErrorIs(t, err, ErrRandomnessUnavailable)
}

func TestHashToIntLittleEndian(t *testing.T) {
	v := HashToInt([]byte("nyancat"))
	assert.LessOrEqual(t, v.BitLen(), 512)
	assert.NotEqual(t, 0, v.Cmp(HashToInt([]byte("nyandog"))))
}
