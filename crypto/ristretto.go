package crypto

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/gtank/ristretto255"
)

const (
	ristrettoScalarSize  = 32
	ristrettoElementSize = 32

	// Domain string hashed to the second generator.
	ristrettoHDomain = "zkauth/chaum-pedersen/ristretto255/H"
)

var ristretto = newRistrettoGroup()

type ristrettoElement struct {
	p *ristretto255.Element
}

func (e ristrettoElement) Bytes() []byte { return e.p.Encode(nil) }

// ristrettoGroup is the prime-order ristretto255 group written additively.
type ristrettoGroup struct {
	l    *big.Int
	g, h *ristretto255.Element
}

func newRistrettoGroup() *ristrettoGroup {
	l, _ := new(big.Int).SetString("7237005577332262213973186563042994240857116359379907606001950938285454250989", 10)

	digest := sha512.Sum512([]byte(ristrettoHDomain))
	return &ristrettoGroup{
		l: l,
		g: ristretto255.NewElement().Base(),
		h: ristretto255.NewElement().FromUniformBytes(digest[:]),
	}
}

func (r *ristrettoGroup) Name() string { return GroupRistretto255 }
func (r *ristrettoGroup) Order() *big.Int { return new(big.Int).Set(r.l) }
func (r *ristrettoGroup) G() Element { return ristrettoElement{p: r.g} }
func (r *ristrettoGroup) H() Element { return ristrettoElement{p: r.h} }

func (r *ristrettoGroup) Exp(base Element, k *big.Int) Element {
	s := r.toScalar(k)
	return ristrettoElement{p: ristretto255.NewElement().ScalarMult(s, base.(ristrettoElement).p)}
}

func (r *ristrettoGroup) Op(a, b Element) Element {
	return ristrettoElement{p: ristretto255.NewElement().Add(a.(ristrettoElement).p, b.(ristrettoElement).p)}
}

func (r *ristrettoGroup) Equal(a, b Element) bool {
	ea, ok1 := a.(ristrettoElement)
	eb, ok2 := b.(ristrettoElement)
	return ok1 && ok2 && ea.p.Equal(eb.p) == 1
}

func (r *ristrettoGroup) EncodeElement(e Element) string {
	return hex.EncodeToString(e.Bytes())
}

// DecodeElement accepts the hex of a canonical 32-byte encoding. The
// identity is rejected.
func (r *ristrettoGroup) DecodeElement(s string) (Element, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ristrettoElementSize {
		return nil, fmt.Errorf("%w: want %d hex-encoded bytes", ErrInvalidElement, ristrettoElementSize)
	}
	p := ristretto255.NewElement()
	if err := p.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidElement, err)
	}
	if p.Equal(ristretto255.NewElement()) == 1 {
		return nil, fmt.Errorf("%w: identity", ErrInvalidElement)
	}
	return ristrettoElement{p: p}, nil
}

func (r *ristrettoGroup) EncodeScalar(k *big.Int) string {
	return hex.EncodeToString(r.toScalar(k).Encode(nil))
}

func (r *ristrettoGroup) DecodeScalar(s string) (*big.Int, error) {
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != ristrettoScalarSize {
		return nil, fmt.Errorf("%w: want %d hex-encoded bytes", ErrInvalidScalar, ristrettoScalarSize)
	}
	sc := ristretto255.NewScalar()
	if err := sc.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScalar, err)
	}
	return new(big.Int).SetBytes(reverse(raw)), nil
}

// HashToScalar reduces the 64-byte SHA-512 digest of data modulo l.
func (r *ristrettoGroup) HashToScalar(data []byte) *big.Int {
	digest := sha512.Sum512(data)
	sc := ristretto255.NewScalar().FromUniformBytes(digest[:])
	return new(big.Int).SetBytes(reverse(sc.Encode(nil)))
}

// toScalar converts k, reduced modulo l, to its 32-byte little-endian form.
func (r *ristrettoGroup) toScalar(k *big.Int) *ristretto255.Scalar {
	le := reverse(fixedBytes(ReduceNonNegative(k, r.l), ristrettoScalarSize))
	sc := ristretto255.NewScalar()
	if err := sc.Decode(le); err != nil {
		// unreachable: the value is reduced below l
		panic(fmt.Sprintf("crypto: ristretto scalar: %v", err))
	}
	return sc
}
