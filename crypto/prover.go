package crypto

import (
	"context"
	"fmt"
	"io"
	"math/big"
)

// Commitment is the prover's first message. K is the secret nonce and must
// stay with the prover; only R1 and R2 are sent.
type Commitment struct {
	K      *big.Int
	R1, R2 Element
}

// Prover is the client side of the protocol.
type Prover interface {
	GeneratePublicKeys(ctx context.Context, x *big.Int) (y1, y2 Element, err error)
	Commit(ctx context.Context) (*Commitment, error)
	SolveChallenge(k, c, x *big.Int) *big.Int
}

// ChaumPedersen implements both protocol roles over one Group.
type ChaumPedersen struct {
	group Group
	rand  io.Reader
}

var (
	_ Prover   = (*ChaumPedersen)(nil)
	_ Verifier = (*ChaumPedersen)(nil)
)

// NewChaumPedersen returns a protocol instance drawing randomness from
// crypto/rand.
func NewChaumPedersen(group Group) *ChaumPedersen {
	return &ChaumPedersen{group: group}
}

// NewChaumPedersenWithReader uses r as the randomness source.
func NewChaumPedersenWithReader(group Group, r io.Reader) *ChaumPedersen {
	return &ChaumPedersen{group: group, rand: r}
}

func (cp *ChaumPedersen) Group() Group { return cp.group }

const secretDomain = "zkauth/chaum-pedersen/secret/v1"

// SecretFromPassword derives the exponent x for identity from a password.
// The hash is labeled with the group and identity, so equal passwords give
// unrelated keys. The legacy MODP group hashes the bare password, as its
// existing registrations expect.
func (cp *ChaumPedersen) SecretFromPassword(identity, password string) *big.Int {
	if cp.group.Name() == GroupMODP3072Legacy {
		return cp.group.HashToScalar([]byte(password))
	}
	t := NewTranscript(secretDomain)
	t.AppendMessage("group", []byte(cp.group.Name()))
	t.AppendMessage("identity", []byte(identity))
	t.AppendMessage("password", []byte(password))
	return t.ChallengeScalar(cp.group)
}

// GeneratePublicKeys returns y1 = g^x and y2 = h^x.
func (cp *ChaumPedersen) GeneratePublicKeys(ctx context.Context, x *big.Int) (Element, Element, error) {
	if x == nil {
		return nil, nil, fmt.Errorf("%w: nil secret", ErrInvalidScalar)
	}
	return cp.expGenerators(ctx, x)
}

// Commit samples a fresh nonce k and returns r1 = g^k, r2 = h^k.
func (cp *ChaumPedersen) Commit(ctx context.Context) (*Commitment, error) {
	k, err := SampleScalar(cp.rand, cp.group.Order())
	if err != nil {
		return nil, err
	}
	return cp.CommitWithNonce(ctx, k)
}

// CommitWithNonce commits to a caller-chosen nonce. Reusing a nonce across
// two challenges reveals x.
func (cp *ChaumPedersen) CommitWithNonce(ctx context.Context, k *big.Int) (*Commitment, error) {
	if k == nil {
		return nil, fmt.Errorf("%w: nil nonce", ErrInvalidScalar)
	}
	r1, r2, err := cp.expGenerators(ctx, k)
	if err != nil {
		return nil, err
	}
	return &Commitment{K: k, R1: r1, R2: r2}, nil
}

// SolveChallenge returns s = (k + q - c·x) mod q.
func (cp *ChaumPedersen) SolveChallenge(k, c, x *big.Int) *big.Int {
	return SolveResponse(k, c, x, cp.group.Order())
}

func (cp *ChaumPedersen) expGenerators(ctx context.Context, e *big.Int) (Element, Element, error) {
	g, h := cp.group.G(), cp.group.H()
	return computePair(ctx,
		func() Element { return cp.group.Exp(g, e) },
		func() Element { return cp.group.Exp(h, e) },
	)
}
