package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const argon2Version = argon2.Version

var b64 = base64.RawStdEncoding

// Hash validates password against the policy and returns its encoded Argon2id hash.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, c.Params.Iterations, c.Params.MemoryKiB, c.Params.Parallelism, c.Params.KeyLength)
	return encode(c.Params, salt, key), nil
}

// Verify checks whether password matches encodedHash.
// Returns (false, ErrInvalidHash) for malformed hashes or hashes far above the configured cost.
func (c Config) Verify(encodedHash, password string) (bool, error) {
	h, err := decode(encodedHash)
	if err != nil {
		return false, err
	}
	if !withinReasonableBounds(h.params, c.Params) {
		return false, ErrInvalidHash
	}

	key := argon2.IDKey([]byte(password), h.salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, h.params.KeyLength)
	return subtle.ConstantTimeCompare(key, h.key) == 1, nil
}

// VerifyDummy spends the same work as Verify against a throwaway hash.
// Callers use it when the account does not exist so response timing does not reveal that.
func (c Config) VerifyDummy(password string) {
	dummyOnce.Do(func() {
		salt := make([]byte, c.Params.SaltLength)
		_, _ = rand.Read(salt)
		key := argon2.IDKey([]byte("pulse-dummy"), salt, c.Params.Iterations, c.Params.MemoryKiB, c.Params.Parallelism, c.Params.KeyLength)
		dummyHash = encode(c.Params, salt, key)
	})
	_, _ = c.Verify(dummyHash, password)
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// NeedsRehash reports whether encodedHash was produced with different parameters than c.
func (c Config) NeedsRehash(encodedHash string) bool {
	h, err := decode(encodedHash)
	if err != nil {
		return true
	}
	p := h.params
	return p.MemoryKiB != c.Params.MemoryKiB ||
		p.Iterations != c.Params.Iterations ||
		p.Parallelism != c.Params.Parallelism ||
		p.KeyLength != c.Params.KeyLength
}

// Hashes generated with older, smaller settings verify; wildly larger ones are refused.
func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	switch {
	case got.MemoryKiB > limits.MemoryKiB*2,
		got.Iterations > limits.Iterations*2,
		uint32(got.Parallelism) > uint32(limits.Parallelism)*2,
		got.SaltLength < 8 || got.SaltLength > 64,
		got.KeyLength < 16 || got.KeyLength > 128:
		return false
	}
	return true
}

type decodedHash struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func encode(p Argon2idParams, salt, key []byte) string {
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version, p.MemoryKiB, p.Iterations, p.Parallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key),
	)
}

func decode(encoded string) (decodedHash, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decodedHash{}, ErrInvalidHash
	}
	if parts[2] != fmt.Sprintf("v=%d", argon2Version) {
		return decodedHash{}, ErrInvalidHash
	}

	var mem, it, par uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &it, &par); err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 {
		return decodedHash{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return decodedHash{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil {
		return decodedHash{}, ErrInvalidHash
	}

	return decodedHash{
		params: Argon2idParams{
			MemoryKiB:   mem,
			Iterations:  it,
			Parallelism: uint8(par),        // #nosec G115 -- bounded above.
			SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by input length.
			KeyLength:   uint32(len(key)),  // #nosec G115 -- bounded by input length.
		},
		salt: salt,
		key:  key,
	}, nil
}
