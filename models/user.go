package models

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// UserRecord is a registered identity and its public keys, encoded in the
// textual form of Group.
type UserRecord struct {
	Identity     string    `json:"identity"`
	Group        string    `json:"group"`
	Y1           string    `json:"y1"`
	Y2           string    `json:"y2"`
	RegisteredAt time.Time `json:"registered_at"`
}

// UserKey is the storage key of an identity.
func UserKey(identity string) []byte {
	sum := sha256.Sum256([]byte(identity))
	return sum[:]
}

func (u *UserRecord) Key() []byte {
	return UserKey(u.Identity)
}

// String is a stable rendering used as session id input.
func (u *UserRecord) String() string {
	return fmt.Sprintf("%s|%s|%s|%s", u.Identity, u.Group, u.Y1, u.Y2)
}

func (u *UserRecord) Marshal() ([]byte, error) {
	return encode(u)
}

func UnmarshalUserRecord(b []byte) (*UserRecord, error) {
	var u UserRecord
	if err := decode(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
