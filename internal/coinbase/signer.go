package coinbase

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signer produces the CB-ACCESS-* headers for Advanced Trade requests.
// Keys are kept as []byte so they can be wiped on shutdown.
type Signer struct {
	key        []byte
	secret     []byte
	passphrase []byte
	now        func() time.Time
}

// NewSigner accepts a base64 encoded secret and falls back to the raw bytes
// when the secret does not decode.
func NewSigner(key, secret, passphrase string) *Signer {
	decoded, err := base64.StdEncoding.DecodeString(secret)
	if err != nil || len(decoded) == 0 {
		decoded = []byte(secret)
	}
	return &Signer{
		key:        []byte(key),
		secret:     decoded,
		passphrase: []byte(passphrase),
		now:        time.Now,
	}
}

func (s *Signer) Wipe() {
	if s == nil {
		return
	}
	for _, b := range [][]byte{s.key, s.secret, s.passphrase} {
		for i := range b {
			b[i] = 0
		}
	}
}

// Headers signs timestamp + method + path + body. path excludes the query string.
func (s *Signer) Headers(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	headers := map[string]string{
		"CB-ACCESS-KEY":       string(s.key),
		"CB-ACCESS-SIGN":      s.sign(timestamp + method + path + body),
		"CB-ACCESS-TIMESTAMP": timestamp,
		"Content-Type":        "application/json",
	}
	if len(s.passphrase) > 0 {
		headers["CB-ACCESS-PASSPHRASE"] = string(s.passphrase)
	}
	return headers
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
