package models

import (
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)

func testUser() UserRecord {
	return UserRecord{
		Identity:     "nyancat",
		Group:        "modp2048",
		Y1:           "4a1f",
		Y2:           "77c3",
		RegisteredAt: fixedTime,
	}
}

func TestUserRecordRoundTrip(t *testing.T) {
	u := testUser()
	b, err := u.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalUserRecord(b)
	require.NoError(t, err)
	assert.Equal(t, u, *decoded)
	assert.Equal(t, u.String(), decoded.String())

	sum := sha256.Sum256([]byte("nyancat"))
	assert.Equal(t, sum[:], u.Key())
}

func TestChallengeRecordRoundTrip(t *testing.T) {
	c := ChallengeRecord{
		Challenge: "abc",
		R1:        "01",
		R2:        "02",
		User:      testUser(),
		IssuedAt:  fixedTime,
		ExpiresAt: fixedTime.Add(2 * time.Minute),
	}
	b, err := c.Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalChallengeRecord(b)
	require.NoError(t, err)
	assert.Equal(t, c, *decoded)
	assert.Equal(t, c.AuthID(), decoded.AuthID())
}

func TestUnmarshalCorruptRecord(t *testing.T) {
	_, err := UnmarshalUserRecord([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerialization)
	_, err = UnmarshalChallengeRecord([]byte{0xff})
	assert.ErrorIs(t, err, ErrSerialization)
	_, err = UnmarshalTranscriptRecord(nil)
	assert.ErrorIs(t, err, ErrSerialization)
	_, err = UnmarshalSessionRecord([]byte("[]"))
	assert.ErrorIs(t, err, ErrSerialization)
}

func TestAuthIDBindsEveryField(t *testing.T) {
	base := ChallengeRecord{Challenge: "c", R1: "r1", R2: "r2", User: testUser()}
	id := base.AuthID()
	assert.Len(t, id, 64)

	mutations := map[string]func(c *ChallengeRecord){
		"challenge": func(c *ChallengeRecord) { c.Challenge = "d" },
		"r1":        func(c *ChallengeRecord) { c.R1 = "r1x" },
		"r2":        func(c *ChallengeRecord) { c.R2 = "r2x" },
		"identity":  func(c *ChallengeRecord) { c.User.Identity = "nyandog" },
		"group":     func(c *ChallengeRecord) { c.User.Group = "ristretto255" },
		"y1":        func(c *ChallengeRecord) { c.User.Y1 = "00" },
		"nonce":     func(c *ChallengeRecord) { c.Nonce = 1 },
		// length prefixes keep shifted boundaries apart
		"boundary": func(c *ChallengeRecord) { c.R1, c.R2 = "r1r", "2" },
	}
	for name, mutate := range mutations {
		c := base
		mutate(&c)
		assert.NotEqual(t, id, c.AuthID(), name)
	}

	// Timestamps are not part of the handle.
	later := base
	later.IssuedAt = fixedTime
	assert.Equal(t, id, later.AuthID())
}

func TestAuthIDKey(t *testing.T) {
	c := ChallengeRecord{Challenge: "c", User: testUser()}
	key, ok := AuthIDKey(c.AuthID())
	require.True(t, ok)
	assert.Len(t, key, 32)

	for _, bad := range []string{"", "xyz", "abcd", c.AuthID()[:62], "ABCDEF" + c.AuthID()[6:]} {
		_, ok := AuthIDKey(bad)
		assert.False(t, ok, bad)
	}
}

func TestExpiry(t *testing.T) {
	c := ChallengeRecord{ExpiresAt: fixedTime}
	assert.False(t, c.Expired(fixedTime.Add(-time.Second)))
	assert.True(t, c.Expired(fixedTime))
	assert.False(t, (&ChallengeRecord{}).Expired(fixedTime), "zero expiry never expires")

	tr := NewTranscriptRecord("nyancat", "c", "s", fixedTime.Unix(), fixedTime)
	assert.True(t, tr.Expired(fixedTime.Add(time.Second)))
	assert.Len(t, tr.Key(), 32)
	assert.NotEqual(t, tr.Digest, NewTranscriptRecord("nyancat", "c", "s2", fixedTime.Unix(), fixedTime).Digest)

	s := SessionRecord{ID: "abc", ExpiresAt: fixedTime}
	assert.True(t, s.Expired(fixedTime))
	assert.Equal(t, []byte("abc"), s.Key())
}
