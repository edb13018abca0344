package crypto

import (
	"bytes"
	"encoding/binary"
	"math/big"
)

// Transcript accumulates length-prefixed, labeled messages for Fiat-Shamir
// challenge derivation.
type Transcript struct {
	buf bytes.Buffer
}

func NewTranscript(domain string) *Transcript {
	t := &Transcript{}
	t.AppendMessage("domain", []byte(domain))
	return t
}

func (t *Transcript) AppendMessage(label string, msg []byte) {
	t.appendLen(len(label))
	t.buf.WriteString(label)
	t.appendLen(len(msg))
	t.buf.Write(msg)
}

func (t *Transcript) AppendUint64(label string, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	t.AppendMessage(label, b[:])
}

// ChallengeScalar hashes everything appended so far into a scalar of g.
func (t *Transcript) ChallengeScalar(g Group) *big.Int {
	return g.HashToScalar(t.buf.Bytes())
}

// Bytes returns the raw transcript.
func (t *Transcript) Bytes() []byte {
	return bytes.Clone(t.buf.Bytes())
}

func (t *Transcript) appendLen(n int) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	t.buf.Write(b[:])
}
