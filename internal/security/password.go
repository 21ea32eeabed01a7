package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/qdmz/webchaxun/internal/config"
)

var ErrUnknownHashFormat = errors.New("unknown password hash format")

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// PasswordHasher hashes new passwords with the configured algorithm and
// verifies both bcrypt ($2a$, $2b$, $2y$) and argon2id hashes.
type PasswordHasher struct {
	algorithm  string
	bcryptCost int
	argon      Argon2Params
}

func NewPasswordHasher(cfg config.SecurityConfig) *PasswordHasher {
	return &PasswordHasher{
		algorithm:  cfg.PasswordAlgorithm,
		bcryptCost: cfg.BcryptCost,
		argon: Argon2Params{
			Time:    cfg.Argon2.Time,
			Memory:  cfg.Argon2.Memory,
			Threads: cfg.Argon2.Threads,
			KeyLen:  32,
			SaltLen: 16,
		},
	}
}

func (h *PasswordHasher) Hash(password string) ([]byte, error) {
	if h.algorithm == config.PasswordArgon2id {
		return hashArgon2(password, h.argon)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt: %w", err)
	}
	return hash, nil
}

// Verify reports whether password matches encoded. A mismatch is not an
// error; a malformed hash is.
func (h *PasswordHasher) Verify(password string, encoded []byte) (bool, error) {
	switch {
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword(encoded, []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("bcrypt: %w", err)
		}
		return true, nil
	case isArgon2(encoded):
		return verifyArgon2(password, encoded)
	default:
		return false, ErrUnknownHashFormat
	}
}

// NeedsRehash reports whether encoded was produced by another algorithm or
// with weaker parameters than currently configured.
func (h *PasswordHasher) NeedsRehash(encoded []byte) bool {
	switch {
	case isBcrypt(encoded):
		if h.algorithm != config.PasswordBcrypt {
			return true
		}
		cost, err := bcrypt.Cost(encoded)
		return err != nil || cost < h.bcryptCost
	case isArgon2(encoded):
		if h.algorithm != config.PasswordArgon2id {
			return true
		}
		params, _, _, err := parseArgon2(encoded)
		if err != nil {
			return true
		}
		return params.Time < h.argon.Time ||
			params.Memory < h.argon.Memory ||
			params.Threads < h.argon.Threads
	default:
		return true
	}
}

func isBcrypt(encoded []byte) bool {
	s := string(encoded)
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func isArgon2(encoded []byte) bool {
	return strings.HasPrefix(string(encoded), "$argon2id$")
}

func hashArgon2(password string, params Argon2Params) ([]byte, error) {
	salt := make([]byte, params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	result := fmt.Sprintf("$argon2id$v=%d$t=%d,m=%d,p=%d$%s$%s",
		argon2.Version,
		params.Time, params.Memory, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash))

	return []byte(result), nil
}

func parseArgon2(encoded []byte) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(string(encoded), "$")
	if len(parts) != 6 {
		return Argon2Params{}, nil, nil, ErrUnknownHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2Params{}, nil, nil, fmt.Errorf("argon2 version: %w", ErrUnknownHashFormat)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "t=%d,m=%d,p=%d", &params.Time, &params.Memory, &params.Threads); err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("parse params: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("decode salt: %w", err)
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Params{}, nil, nil, fmt.Errorf("decode hash: %w", err)
	}
	params.SaltLen = uint32(len(salt))
	params.KeyLen = uint32(len(hash))
	return params, salt, hash, nil
}

func verifyArgon2(password string, encoded []byte) (bool, error) {
	params, salt, hash, err := parseArgon2(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// IsStrongPassword requires 8 characters to MaxPasswordBytes bytes with an
// upper-case letter, a lower-case letter and a digit.
func IsStrongPassword(password string) bool {
	if len(password) < 8 || len(password) > MaxPasswordBytes {
		return false
	}
	var upper, lower, digit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}
