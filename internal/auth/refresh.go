package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/quanhua92/buildscale-ai-sub000/internal/apperr"
)

// Refresh tokens travel as "body.sig": a 32-byte random body, hex encoded,
// followed by the hex HMAC-SHA256 of the body under the refresh secret. Only
// sha256(body) is stored, so a database leak yields nothing presentable, and
// the signature check rejects forgeries before any database round trip.

const refreshBodyLen = 64 // hex chars of a 32-byte body

type refreshCodec struct {
	secret []byte
}

func newRefreshCodec(secret string) refreshCodec {
	return refreshCodec{secret: []byte(secret)}
}

// mint returns the presentation value and the at-rest hash of a fresh token.
func (c refreshCodec) mint() (presented, bodyHash string) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	body := hex.EncodeToString(buf)
	return body + "." + c.sign(body), hashRefreshBody(body)
}

// verify checks shape and signature and returns the at-rest hash to look up.
// Legacy UUID-shaped values (issued before the signed format) are rejected
// outright; holders must log in again.
func (c refreshCodec) verify(presented string) (bodyHash string, err error) {
	if isUUIDShaped(presented) {
		return "", apperr.InvalidToken("legacy refresh token, log in again")
	}
	body, sig, ok := strings.Cut(presented, ".")
	if !ok || len(body) != refreshBodyLen {
		return "", apperr.InvalidToken("malformed refresh token")
	}
	expected := c.sign(body)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", apperr.InvalidToken("refresh token signature mismatch")
	}
	return hashRefreshBody(body), nil
}

func (c refreshCodec) sign(body string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func hashRefreshBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// isUUIDShaped matches 8-4-4-4-12 hex groups.
func isUUIDShaped(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, r := range s {
		switch i {
		case 8, 13, 18, 23:
			if r != '-' {
				return false
			}
		default:
			if !isHexDigit(r) {
				return false
			}
		}
	}
	return true
}

func isHexDigit(r rune) bool {
	return r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F'
}
