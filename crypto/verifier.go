package crypto

import (
	"context"
	"math/big"
)

// Proof carries everything the verifier checks: the public keys, the
// commitment, the challenge and the response.
type Proof struct {
	Y1, Y2 Element
	R1, R2 Element
	C, S   *big.Int
}

// Verifier is the server side of the protocol.
type Verifier interface {
	GenerateChallenge() (*big.Int, error)
	Verify(ctx context.Context, proof *Proof) bool
}

// GenerateChallenge samples c uniformly from [1, q-1].
func (cp *ChaumPedersen) GenerateChallenge() (*big.Int, error) {
	return SampleScalar(cp.rand, cp.group.Order())
}

// Verify checks r1 == g^s·y1^c and r2 == h^s·y2^c. Missing values and a
// canceled context count as failure.
func (cp *ChaumPedersen) Verify(ctx context.Context, proof *Proof) bool {
	if !proof.complete() || !cp.inRange(proof.C) || !cp.inRange(proof.S) {
		return false
	}
	t1, t2, err := cp.recomputeCommitment(ctx, proof.Y1, proof.Y2, proof.C, proof.S)
	if err != nil {
		return false
	}
	return cp.group.Equal(t1, proof.R1) && cp.group.Equal(t2, proof.R2)
}

// recomputeCommitment returns (g^s·y1^c, h^s·y2^c).
func (cp *ChaumPedersen) recomputeCommitment(ctx context.Context, y1, y2 Element, c, s *big.Int) (Element, Element, error) {
	grp := cp.group
	return computePair(ctx,
		func() Element { return grp.Op(grp.Exp(grp.G(), s), grp.Exp(y1, c)) },
		func() Element { return grp.Op(grp.Exp(grp.H(), s), grp.Exp(y2, c)) },
	)
}

func (cp *ChaumPedersen) inRange(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(cp.group.Order()) < 0
}

func (p *Proof) complete() bool {
	return p != nil &&
		p.Y1 != nil && p.Y2 != nil &&
		p.R1 != nil && p.R2 != nil &&
		p.C != nil && p.S != nil
}
