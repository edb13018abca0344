package crypto

import (
	"fmt"
	"math/big"
)

// RFC 3526 group 14: 2048-bit MODP safe prime.
const rfc3526Prime2048 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AACAA68FFFFFFFFFFFFFFFF"

// RFC 3526 group 15: 3072-bit MODP safe prime. Earlier deployments use it
// with the full p-1 exponent bound.
const rfc3526Prime3072 = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1" +
	"29024E088A67CC74020BBEA63B139B22514A08798E3404DD" +
	"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245" +
	"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED" +
	"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D" +
	"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F" +
	"83655D23DCA3AD961C62F356208552BB9ED529077096966D" +
	"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B" +
	"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9" +
	"DE2BCBF6955817183995497CEA956AE515D2261898FA0510" +
	"15728E5A8AAAC42DAD33170D04507A33A85521ABDF1CBA64" +
	"ECFB850458DBEF0A8AEA71575D060C7DB3970F85A6E1E4C7" +
	"ABF5AE8CDB0933D71E8C94E04A25619DCEE3D2261AD2EE6B" +
	"F12FFA06D98A0864D87602733EC86A64521F2B18177B200C" +
	"BBE117577A615D6C770988C0BAD946E208E24FA074E5AB31" +
	"43DB5BFCE0FD108E4B82D120A93AD2CAFFFFFFFFFFFFFFFF"

var (
	modp2048       = newMODPGroup(GroupMODP2048, rfc3526Prime2048, true)
	modp3072Legacy = newMODPGroup(GroupMODP3072Legacy, rfc3526Prime3072, false)
)

type modpElement struct {
	v    *big.Int
	size int
}

func (e modpElement) Bytes() []byte { return fixedBytes(e.v, e.size) }

// modpGroup is a multiplicative group modulo a safe prime p = 2q' + 1.
//
// With subgroup set, exponents live modulo q' and g, h are quadratic
// residues, so every non-identity element of the subgroup generates it.
// Without it the exponent bound is p-1 with g = 2, h = 3, which is what
// earlier deployments used on the wire.
type modpGroup struct {
	name     string
	p        *big.Int
	q        *big.Int
	g, h     *big.Int
	subgroup bool
	size     int
}

func newMODPGroup(name, prime string, subgroup bool) *modpGroup {
	p, ok := new(big.Int).SetString(prime, 16)
	if !ok {
		panic("crypto: bad MODP prime")
	}
	grp := &modpGroup{
		name:     name,
		p:        p,
		subgroup: subgroup,
		size:     (p.BitLen() + 7) / 8,
	}
	pm1 := new(big.Int).Sub(p, one)
	if subgroup {
		grp.q = new(big.Int).Rsh(pm1, 1)
		grp.g = big.NewInt(4)
		grp.h = big.NewInt(9)
	} else {
		grp.q = pm1
		grp.g = big.NewInt(2)
		grp.h = big.NewInt(3)
	}
	return grp
}

func (m *modpGroup) Name() string { return m.name }
func (m *modpGroup) Order() *big.Int { return new(big.Int).Set(m.q) }
func (m *modpGroup) Modulus() *big.Int { return new(big.Int).Set(m.p) }
func (m *modpGroup) G() Element { return m.wrap(m.g) }
func (m *modpGroup) H() Element { return m.wrap(m.h) }

func (m *modpGroup) wrap(v *big.Int) Element {
	return modpElement{v: v, size: m.size}
}

func (m *modpGroup) Exp(base Element, k *big.Int) Element {
	return m.wrap(new(big.Int).Exp(base.(modpElement).v, k, m.p))
}

func (m *modpGroup) Op(a, b Element) Element {
	v := new(big.Int).Mul(a.(modpElement).v, b.(modpElement).v)
	return m.wrap(v.Mod(v, m.p))
}

func (m *modpGroup) Equal(a, b Element) bool {
	ea, ok1 := a.(modpElement)
	eb, ok2 := b.(modpElement)
	return ok1 && ok2 && ea.v.Cmp(eb.v) == 0
}

func (m *modpGroup) EncodeElement(e Element) string {
	return e.(modpElement).v.Text(16)
}

// DecodeElement parses base-16 text. Values outside [2, p-1] are rejected,
// and for the subgroup parameters so is anything that is not a quadratic
// residue.
func (m *modpGroup) DecodeElement(s string) (Element, error) {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: not base-16", ErrInvalidElement)
	}
	if v.Cmp(one) <= 0 || v.Cmp(m.p) >= 0 {
		return nil, fmt.Errorf("%w: out of range", ErrInvalidElement)
	}
	if m.subgroup && big.Jacobi(v, m.p) != 1 {
		return nil, fmt.Errorf("%w: not in prime-order subgroup", ErrInvalidElement)
	}
	return m.wrap(v), nil
}

func (m *modpGroup) EncodeScalar(k *big.Int) string {
	return k.Text(16)
}

func (m *modpGroup) DecodeScalar(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("%w: not base-16", ErrInvalidScalar)
	}
	if v.Sign() < 0 || v.Cmp(m.q) >= 0 {
		return nil, fmt.Errorf("%w: out of range", ErrInvalidScalar)
	}
	return v, nil
}

func (m *modpGroup) HashToScalar(data []byte) *big.Int {
	return ReduceNonNegative(HashToInt(data), m.q)
}
