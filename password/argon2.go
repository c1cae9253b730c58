package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const algorithmID = "argon2id"

// Lower bounds accepted by NewArgon2 and by the PHC parser.
const (
	minMemoryKB uint32 = 8 * 1024
	minSaltLen  uint32 = 16
	minKeyLen   uint32 = 16
)

var (
	// ErrTooShort is returned by Hash for passwords below Config.MinLength bytes.
	ErrTooShort = errors.New("password: too short")
	// ErrInvalidHash is returned for stored hashes that are not argon2id PHC strings.
	ErrInvalidHash = errors.New("password: invalid hash encoding")
	// ErrInvalidConfig is returned by NewArgon2 for parameters below the lower bounds.
	ErrInvalidConfig = errors.New("password: invalid argon2 parameters")
)

// Hasher hashes and verifies user passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// Config holds Argon2id cost parameters.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// DefaultConfig returns the production cost parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   8,
	}
}

// Argon2 is a Hasher producing PHC-encoded argon2id hashes.
type Argon2 struct {
	cfg Config
}

// NewArgon2 validates cfg and returns a hasher.
func NewArgon2(cfg Config) (*Argon2, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, fmt.Errorf("%w: memory must be >= %d KB", ErrInvalidConfig, minMemoryKB)
	case cfg.Time < 1:
		return nil, fmt.Errorf("%w: time must be >= 1", ErrInvalidConfig)
	case cfg.Parallelism < 1:
		return nil, fmt.Errorf("%w: parallelism must be >= 1", ErrInvalidConfig)
	case cfg.SaltLength < minSaltLen:
		return nil, fmt.Errorf("%w: salt length must be >= %d", ErrInvalidConfig, minSaltLen)
	case cfg.KeyLength < minKeyLen:
		return nil, fmt.Errorf("%w: key length must be >= %d", ErrInvalidConfig, minKeyLen)
	case cfg.MinLength < 0:
		return nil, fmt.Errorf("%w: negative minimum length", ErrInvalidConfig)
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash returns the PHC string for password. Bytes are hashed as given, with
// no Unicode normalization.
func (a *Argon2) Hash(password string) (string, error) {
	if len(password) < a.cfg.MinLength {
		return "", ErrTooShort
	}

	salt := make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID, argon2.Version,
		a.cfg.Memory, a.cfg.Time, a.cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded, in constant time.
func (a *Argon2) Verify(password, encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), p.salt, p.time, p.memory, p.parallelism, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(key, p.key) == 1, nil
}

// NeedsUpgrade reports whether encoded was produced with weaker parameters
// than the hasher's current ones.
func (a *Argon2) NeedsUpgrade(encoded string) (bool, error) {
	p, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return p.memory < a.cfg.Memory ||
		p.time < a.cfg.Time ||
		p.parallelism < a.cfg.Parallelism ||
		uint32(len(p.key)) != a.cfg.KeyLength, nil
}

type phc struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

func decode(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return nil, ErrInvalidHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHash, parts[2])
	}

	var p phc
	var seen int
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("%w: parameter %q", ErrInvalidHash, name)
		}
		switch name {
		case "m":
			if uint32(n) < minMemoryKB {
				return nil, fmt.Errorf("%w: memory below minimum", ErrInvalidHash)
			}
			p.memory = uint32(n)
		case "t":
			p.time = uint32(n)
		case "p":
			if n > 255 {
				return nil, fmt.Errorf("%w: parallelism out of range", ErrInvalidHash)
			}
			p.parallelism = uint8(n)
		default:
			return nil, fmt.Errorf("%w: unknown parameter %q", ErrInvalidHash, name)
		}
		seen++
	}
	if seen != 3 || p.memory == 0 || p.time == 0 || p.parallelism == 0 {
		return nil, fmt.Errorf("%w: missing parameters", ErrInvalidHash)
	}

	var err error
	if p.salt, err = decodeB64(parts[4]); err != nil || uint32(len(p.salt)) < minSaltLen {
		return nil, fmt.Errorf("%w: salt", ErrInvalidHash)
	}
	if p.key, err = decodeB64(parts[5]); err != nil || uint32(len(p.key)) < minKeyLen {
		return nil, fmt.Errorf("%w: key", ErrInvalidHash)
	}
	return &p, nil
}

// decodeB64 accepts both the unpadded PHC form and padded hashes written by
// older releases.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}
