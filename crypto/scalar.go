package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var ErrRandomnessUnavailable = errors.New("secure randomness unavailable")

var one = big.NewInt(1)

// SampleScalar returns a uniformly random integer in [1, bound-1] read from r.
// A nil reader means crypto/rand.
func SampleScalar(r io.Reader, bound *big.Int) (*big.Int, error) {
	if bound == nil || bound.Cmp(big.NewInt(2)) < 0 {
		return nil, fmt.Errorf("%w: bound must be at least 2", ErrInvalidScalar)
	}
	if r == nil {
		r = rand.Reader
	}
	// Rejection sampling in [0, bound-1), read straight from r so that a
	// caller-supplied reader is honored.
	n := new(big.Int).Sub(bound, one)
	bitLen := n.BitLen()
	buf := make([]byte, (bitLen+7)/8)
	v := new(big.Int)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRandomnessUnavailable, err)
		}
		if rem := bitLen % 8; rem != 0 {
			buf[0] &= byte(1<<rem) - 1
		}
		if v.SetBytes(buf).Cmp(n) < 0 {
			return v.Add(v, one), nil
		}
	}
}

// ReduceNonNegative returns v mod q in [0, q-1], also for negative v.
func ReduceNonNegative(v, q *big.Int) *big.Int {
	// big.Int.Mod is Euclidean, the result already carries q's sign.
	return new(big.Int).Mod(v, q)
}

// SolveResponse computes s = (k + q - c·x) mod q.
func SolveResponse(k, c, x, q *big.Int) *big.Int {
	s := new(big.Int).Mul(c, x)
	s.Sub(new(big.Int).Add(k, q), s)
	return ReduceNonNegative(s, q)
}

// HashToInt returns SHA-512(data) read as a little-endian integer.
func HashToInt(data []byte) *big.Int {
	sum := sha512.Sum512(data)
	return new(big.Int).SetBytes(reverse(sum[:]))
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// fixedBytes returns v big-endian, left padded to size bytes.
func fixedBytes(v *big.Int, size int) []byte {
	return v.FillBytes(make([]byte, size))
}
