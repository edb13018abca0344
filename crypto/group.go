package crypto

import (
	"errors"
	"fmt"
	"math/big"
)

// Group names accepted by NewGroup.
const (
	GroupMODP2048       = "modp2048"
	GroupMODP3072Legacy = "modp3072-legacy"
	GroupRistretto255   = "ristretto255"
)

var (
	ErrInvalidElement = errors.New("invalid group element")
	ErrInvalidScalar  = errors.New("invalid scalar")
	ErrUnknownGroup   = errors.New("unknown group")
)

// Element is an opaque member of a Group. Bytes returns its canonical,
// fixed-width encoding.
type Element interface {
	Bytes() []byte
}

// Group is a cyclic group of prime (or, for the legacy MODP set, composite)
// exponent bound Order with two public generators G and H whose relative
// discrete logarithm is unknown. Implementations are immutable and safe for
// concurrent use.
type Group interface {
	Name() string
	Order() *big.Int
	G() Element
	H() Element

	// Exp returns base^k (multiplicative notation) or k·base (additive).
	Exp(base Element, k *big.Int) Element
	// Op applies the group operation.
	Op(a, b Element) Element
	Equal(a, b Element) bool

	EncodeElement(e Element) string
	DecodeElement(s string) (Element, error)
	EncodeScalar(k *big.Int) string
	DecodeScalar(s string) (*big.Int, error)

	// HashToScalar maps arbitrary bytes to a scalar in [0, Order).
	HashToScalar(data []byte) *big.Int
}

// NewGroup returns the named group.
func NewGroup(name string) (Group, error) {
	switch name {
	case GroupMODP2048:
		return modp2048, nil
	case GroupMODP3072Legacy:
		return modp3072Legacy, nil
	case GroupRistretto255:
		return ristretto, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
	}
}

// GroupNames lists every supported group.
func GroupNames() []string {
	return []string{GroupMODP2048, GroupMODP3072Legacy, GroupRistretto255}
}
