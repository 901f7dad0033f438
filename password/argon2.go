package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned by Hash when the raw password is empty.
var ErrEmptyPassword = errors.New("password: empty password")

// maxMemory bounds the memory parameter accepted from a stored hash (KiB).
// A tampered hash must not be able to make Verify allocate arbitrarily.
const maxMemory = 1024 * 1024

const maxTime = 32

// Params are the argon2id cost parameters.
type Params struct {
	Memory      uint32 `koanf:"memory"` // KiB
	Time        uint32 `koanf:"time"`
	Parallelism uint8  `koanf:"parallelism"`
	SaltLen     uint32 `koanf:"salt_len"`
	KeyLen      uint32 `koanf:"key_len"`
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 1,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// Validate checks the parameters are usable for hashing.
func (p Params) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Memory, validation.Required, validation.Min(uint32(8*1024)), validation.Max(uint32(maxMemory))),
		validation.Field(&p.Time, validation.Required, validation.Max(uint32(maxTime))),
		validation.Field(&p.Parallelism, validation.Required),
		validation.Field(&p.SaltLen, validation.Required, validation.Min(uint32(8))),
		validation.Field(&p.KeyLen, validation.Required, validation.Min(uint32(16))),
	)
}

// Hasher hashes and verifies passwords.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, encoded string) bool
}

// Argon2 produces argon2id digests in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>
//
// It also verifies legacy bcrypt digests so stored credentials created by an
// older deployment keep working; NeedsRehash reports those for upgrade.
type Argon2 struct {
	params Params
}

var _ Hasher = (*Argon2)(nil)

// NewArgon2 returns a hasher using p.
func NewArgon2(p Params) (*Argon2, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("password: invalid params: %w", err)
	}
	return &Argon2{params: p}, nil
}

// Params returns the parameters new hashes are created with.
func (a *Argon2) Params() Params {
	return a.params
}

// Hash returns a salted argon2id digest of raw.
func (a *Argon2) Hash(raw string) (string, error) {
	if raw == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, a.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: read salt: %w", err)
	}

	key := argon2.IDKey([]byte(raw), salt, a.params.Time, a.params.Memory, a.params.Parallelism, a.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		a.params.Memory, a.params.Time, a.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether encoded was derived from raw. Malformed or unknown
// formats yield false.
func (a *Argon2) Verify(raw, encoded string) bool {
	if isBcrypt(encoded) {
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(raw)) == nil
	}

	d, err := parsePHC(encoded)
	if err != nil {
		return false
	}

	key := argon2.IDKey([]byte(raw), d.salt, d.params.Time, d.params.Memory, d.params.Parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(key, d.key) == 1
}

// NeedsRehash reports whether encoded should be replaced by a fresh Hash,
// because it is a legacy format or was created with different parameters.
func (a *Argon2) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	d, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return d.params.Memory != a.params.Memory ||
		d.params.Time != a.params.Time ||
		d.params.Parallelism != a.params.Parallelism ||
		uint32(len(d.key)) != a.params.KeyLen ||
		uint32(len(d.salt)) != a.params.SaltLen
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

var errMalformed = errors.New("password: malformed hash")

func parsePHC(encoded string) (decoded, error) {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return decoded{}, errMalformed
	}

	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return decoded{}, errMalformed
	}

	var d decoded
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return decoded{}, errMalformed
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return decoded{}, errMalformed
		}
		switch name {
		case "m":
			d.params.Memory = uint32(n)
		case "t":
			d.params.Time = uint32(n)
		case "p":
			if n > 255 {
				return decoded{}, errMalformed
			}
			d.params.Parallelism = uint8(n)
		default:
			return decoded{}, errMalformed
		}
	}

	if d.params.Memory == 0 || d.params.Memory > maxMemory ||
		d.params.Time == 0 || d.params.Time > maxTime ||
		d.params.Parallelism == 0 {
		return decoded{}, errMalformed
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(d.salt) == 0 {
		return decoded{}, errMalformed
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return decoded{}, errMalformed
	}
	d.params.SaltLen = uint32(len(d.salt))
	d.params.KeyLen = uint32(len(d.key))

	return d, nil
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
