package association

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/gob"
	"errors"

	"github.com/ossrs/go-dcsctp/callback"
)

// cookieSecretLen matches the HMAC-SHA256 digest the cookie is signed with.
const cookieSecretLen = 32

// cookieLifetimeMs bounds how long a minted state cookie stays acceptable,
// independent of t1_cookie_timeout_ms since the cookie may sit at the peer
// across several of the peer's own COOKIE-ECHO retransmissions.
const cookieLifetimeMs = 60000

// cookieData is the opaque state a passive side hands the active side inside
// the INIT-ACK's state cookie parameter and expects echoed back verbatim in
// COOKIE-ECHO, letting the passive side stay stateless between the two.
type cookieData struct {
	CreatedAtMs     int64
	PeerTag         uint32
	LocalTag        uint32
	PeerInitialTSN  uint32
	LocalInitialTSN uint32
}

func newCookieSecret(cb *callback.Deferrer) []byte {
	secret := make([]byte, cookieSecretLen)
	for i := range secret {
		secret[i] = byte(cb.GetRandomInt(0, 256))
	}
	return secret
}

func mintCookie(secret []byte, d cookieData) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, err
	}
	payload := buf.Bytes()

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	sig := mac.Sum(nil)

	return append(sig, payload...), nil
}

var errCookieTooShort = errors.New("state cookie too short")
var errCookieBadSignature = errors.New("state cookie signature mismatch")
var errCookieStale = errors.New("state cookie stale")

func verifyCookie(secret []byte, nowMs int64, raw []byte) (cookieData, error) {
	var d cookieData

	sigLen := sha256.Size
	if len(raw) < sigLen {
		return d, errCookieTooShort
	}
	sig, payload := raw[:sigLen], raw[sigLen:]

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return d, errCookieBadSignature
	}

	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&d); err != nil {
		return d, err
	}

	if nowMs-d.CreatedAtMs > cookieLifetimeMs {
		return d, errCookieStale
	}

	return d, nil
}
