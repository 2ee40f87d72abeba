package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/awnumar/memguard"

	"github.com/imovelprime/primegate/internal/util"
)

var (
	ErrEmptyPassword = errors.New("password is empty")
	ErrMalformedHash = errors.New("malformed password hash")
)

const saltLen = 16

// PasswordHasher turns raw passwords into a stored form and checks raw
// passwords against it.
type PasswordHasher interface {
	Hash(raw string) (string, error)
	Verify(raw, stored string) bool
}

// Argon2idHasher stores passwords in the PHC string format
// $argon2id$v=19$m=<KiB>,t=<time>,p=<parallelism>$<salt>$<key>
// with unpadded standard base64 salt and key.
type Argon2idHasher struct {
	Params util.Argon2idParams
}

// NewArgon2idHasher returns a hasher using util.DefaultArgon2idParams.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{Params: util.DefaultArgon2idParams()}
}

var b64 = base64.RawStdEncoding

func (h *Argon2idHasher) Hash(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyPassword
	}
	salt, err := util.RandomBytes(saltLen)
	if err != nil {
		return "", err
	}
	key, err := derive(raw, salt, h.Params)
	if err != nil {
		return "", err
	}
	defer memguard.WipeBytes(key)

	p := h.Params
	return fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		p.MemoryKiB, p.Time, p.Parallelism, b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify uses the parameters recorded in stored, not h.Params, so hashes
// made with older settings keep working.
func (h *Argon2idHasher) Verify(raw, stored string) bool {
	if raw == "" {
		return false
	}
	params, salt, key, err := parsePHC(stored)
	if err != nil {
		return false
	}
	buf := memguard.NewBufferFromBytes([]byte(util.Normalize(raw)))
	defer buf.Destroy()
	ok, err := util.CompareArgon2idKey(buf.Bytes(), salt, params, key)
	return err == nil && ok
}

func derive(raw string, salt []byte, params util.Argon2idParams) ([]byte, error) {
	buf := memguard.NewBufferFromBytes([]byte(util.Normalize(raw)))
	defer buf.Destroy()
	return util.DeriveArgon2idKey(buf.Bytes(), salt, params)
}

func parsePHC(stored string) (util.Argon2idParams, []byte, []byte, error) {
	var params util.Argon2idParams
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != 19 {
		return params, nil, nil, fmt.Errorf("%w: unsupported version", ErrMalformedHash)
	}
	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.MemoryKiB, &params.Time, &parallelism); err != nil {
		return params, nil, nil, fmt.Errorf("%w: parameters: %v", ErrMalformedHash, err)
	}
	if parallelism == 0 || parallelism > 255 {
		return params, nil, nil, fmt.Errorf("%w: parallelism out of range", ErrMalformedHash)
	}
	params.Parallelism = uint8(parallelism)
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return params, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
