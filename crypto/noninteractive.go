package crypto

import (
	"context"
	"crypto/subtle"
	"fmt"
	"math/big"
)

const nonInteractiveDomain = "zkauth/chaum-pedersen/fiat-shamir/v1"

// NonInteractiveProof is a Fiat-Shamir transformed proof. IssuedAt (unix
// seconds) is hashed into the challenge so a verifier can bound freshness.
type NonInteractiveProof struct {
	C        *big.Int
	S        *big.Int
	IssuedAt int64
}

// ProveNonInteractive proves knowledge of x for (y1, y2) bound to identity
// and issuedAt.
func (cp *ChaumPedersen) ProveNonInteractive(ctx context.Context, identity string, x *big.Int, y1, y2 Element, issuedAt int64) (*NonInteractiveProof, error) {
	if x == nil || y1 == nil || y2 == nil {
		return nil, fmt.Errorf("%w: incomplete statement", ErrInvalidScalar)
	}
	commitment, err := cp.Commit(ctx)
	if err != nil {
		return nil, err
	}
	c := cp.fiatShamirChallenge(identity, issuedAt, y1, y2, commitment.R1, commitment.R2)
	return &NonInteractiveProof{
		C:        c,
		S:        cp.SolveChallenge(commitment.K, c, x),
		IssuedAt: issuedAt,
	}, nil
}

// VerifyNonInteractive recomputes r1' = g^s·y1^c and r2' = h^s·y2^c,
// re-derives the challenge from them and accepts only if it equals C.
func (cp *ChaumPedersen) VerifyNonInteractive(ctx context.Context, identity string, y1, y2 Element, proof *NonInteractiveProof) bool {
	if proof == nil || proof.C == nil || proof.S == nil || y1 == nil || y2 == nil {
		return false
	}
	if !cp.inRange(proof.C) || !cp.inRange(proof.S) {
		return false
	}
	r1, r2, err := cp.recomputeCommitment(ctx, y1, y2, proof.C, proof.S)
	if err != nil {
		return false
	}
	expected := cp.fiatShamirChallenge(identity, proof.IssuedAt, y1, y2, r1, r2)

	size := (cp.group.Order().BitLen() + 7) / 8
	return subtle.ConstantTimeCompare(fixedBytes(expected, size), fixedBytes(proof.C, size)) == 1
}

func (cp *ChaumPedersen) fiatShamirChallenge(identity string, issuedAt int64, y1, y2, r1, r2 Element) *big.Int {
	t := NewTranscript(nonInteractiveDomain)
	t.AppendMessage("group", []byte(cp.group.Name()))
	t.AppendMessage("identity", []byte(identity))
	t.AppendUint64("issued_at", uint64(issuedAt))
	t.AppendMessage("g", cp.group.G().Bytes())
	t.AppendMessage("h", cp.group.H().Bytes())
	t.AppendMessage("y1", y1.Bytes())
	t.AppendMessage("y2", y2.Bytes())
	t.AppendMessage("r1", r1.Bytes())
	t.AppendMessage("r2", r2.Bytes())
	return t.ChallengeScalar(cp.group)
}
