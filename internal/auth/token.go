package auth

import (
	"crypto/sha256"
	"net/http"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog/log"
)

const bearerScheme = "bearer"

// redactedLength is how many fingerprint characters appear in logs.
const redactedLength = 10

// maxLoggedSchemeLength caps the scheme written to logs. Real schemes are short.
const maxLoggedSchemeLength = 16

// ExtractToken returns the bearer token from an Authorization header.
// The scheme is matched case-insensitively and everything after the first
// space, trimmed, is the token. Returns false when the header is absent,
// uses another scheme, or carries an empty token.
func ExtractToken(header http.Header) (string, bool) {
	authHeader := strings.TrimSpace(header.Get("Authorization"))
	if authHeader == "" {
		return "", false
	}

	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok {
		// The whole header may be a bare credential.
		log.Debug().Str("header", Redact(authHeader)).Msg("Authorization header has no scheme")
		return "", false
	}
	if !strings.EqualFold(scheme, bearerScheme) {
		log.Debug().Str("scheme", loggableScheme(scheme)).Msg("Authorization header is not a bearer token")
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		log.Debug().Msg("Authorization header has an empty bearer token")
		return "", false
	}

	return token, true
}

// Fingerprint returns the Base58-encoded SHA256 of the token. It is used as
// the cache key so raw tokens never leave the process.
func Fingerprint(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base58.Encode(hash[:])
}

// Redact returns a short, stable identifier for a token that is safe to log.
func Redact(token string) string {
	if token == "" {
		return "<empty>"
	}
	return "fp:" + Fingerprint(token)[:redactedLength]
}

// loggableScheme returns scheme when it looks like an auth scheme name, and a
// redacted form otherwise, since a malformed header may carry a credential
// where the scheme should be.
func loggableScheme(scheme string) string {
	if len(scheme) > maxLoggedSchemeLength {
		return Redact(scheme)
	}
	for _, c := range scheme {
		if (c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && c != '-' {
			return Redact(scheme)
		}
	}
	return scheme
}
