package authcore

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const totpSecretBytes = 20

// totpManager implements the standard HOTP/TOTP construction with a
// configurable time-step skew. Codes are compared in constant time.
type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpManager{config: cfg}
}

// GenerateSecret returns a fresh 160-bit secret and its unpadded base32
// form for authenticator apps.
func (m *totpManager) GenerateSecret() ([]byte, string, error) {
	raw := make([]byte, totpSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", err
	}
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(raw)
	return raw, encoded, nil
}

func (m *totpManager) ProvisionURI(secretBase32, account string) string {
	params := url.Values{
		"secret":    {secretBase32},
		"issuer":    {m.config.Issuer},
		"period":    {strconv.Itoa(m.config.Period)},
		"digits":    {strconv.Itoa(m.config.Digits)},
		"algorithm": {strings.ToUpper(m.config.Algorithm)},
	}
	label := url.PathEscape(m.config.Issuer + ":" + account)
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// VerifyCode checks code against the secret at now, accepting +/- Skew
// time steps around the current one. Malformed codes are rejected
// silently; only a missing secret or unknown algorithm is an error.
func (m *totpManager) VerifyCode(secret []byte, code string, now time.Time) (bool, error) {
	candidate := strings.TrimSpace(code)
	if len(candidate) != m.config.Digits || !isNumericString(candidate) {
		return false, nil
	}
	if len(secret) == 0 {
		return false, errors.New("empty totp secret")
	}

	step := now.Unix() / int64(m.config.Period)
	for delta := -m.config.Skew; delta <= m.config.Skew; delta++ {
		counter := step + int64(delta)
		if counter < 0 {
			continue
		}
		expected, err := hotpCode(secret, counter, m.config.Digits, m.config.Algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(candidate)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

// hotpCode computes the RFC 4226 value for one counter.
func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	newHash, err := hashForAlgorithm(algorithm)
	if err != nil {
		return "", err
	}

	mac := hmac.New(newHash, secret)
	if err := binary.Write(mac, binary.BigEndian, uint64(counter)); err != nil {
		return "", err
	}
	digest := mac.Sum(nil)

	// Dynamic truncation: low nibble of the last byte picks a 31-bit
	// big-endian window.
	offset := digest[len(digest)-1] & 0x0f
	truncated := binary.BigEndian.Uint32(digest[offset:offset+4]) & 0x7fffffff

	modulus := uint32(1)
	for i := 0; i < digits; i++ {
		modulus *= 10
	}

	return fmt.Sprintf("%0*d", digits, truncated%modulus), nil
}

func hashForAlgorithm(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("unsupported totp algorithm")
	}
}

func isNumericString(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
