package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// sigLen is the number of base64url characters of the HMAC kept in a QR
// payload.  22 characters carry 132 bits, which keeps the QR code small.
const sigLen = 22

// ErrBadTicketPayload is returned for payloads that are malformed or whose
// signature does not match.
var ErrBadTicketPayload = errors.New("invalid ticket payload")

// NewTicketCode returns a fresh random ticket code.
func NewTicketCode() string { return uuid.NewString() }

// SignTicketCode builds the QR payload "<code>.<sig>" for code.
func SignTicketCode(secret, code string) string {
	return code + "." + ticketSig(secret, code)
}

// VerifyTicketPayload checks the signature of a scanned payload and
// returns the embedded code.
func VerifyTicketPayload(secret, payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	code, sig, ok := strings.Cut(payload, ".")
	if !ok || sig == "" {
		return "", ErrBadTicketPayload
	}
	if _, err := uuid.Parse(code); err != nil {
		return "", ErrBadTicketPayload
	}
	if !hmac.Equal([]byte(sig), []byte(ticketSig(secret, code))) {
		return "", ErrBadTicketPayload
	}
	return code, nil
}

func ticketSig(secret, code string) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write([]byte(code))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))[:sigLen]
}
