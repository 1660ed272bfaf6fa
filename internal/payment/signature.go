package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignHubSignature returns the X-Hub-Signature value ("sha256=<hex>") for
// body under secret.
func SignHubSignature(secret string, body []byte) string {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return "sha256=" + hex.EncodeToString(m.Sum(nil))
}

// VerifyHubSignature checks an X-Hub-Signature header against body.  The
// "sha256=" prefix is optional and hex case is ignored.  An empty secret
// never verifies.
func VerifyHubSignature(secret, header string, body []byte) bool {
	if secret == "" || header == "" {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(strings.TrimPrefix(strings.TrimSpace(header), "sha256=")))
	if err != nil {
		return false
	}
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(body)
	return hmac.Equal(got, m.Sum(nil))
}

// PagSeguroAuthenticityToken computes the x-authenticity-token value:
// the hex SHA-256 of "<token>-<body>".
func PagSeguroAuthenticityToken(token string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(token))
	h.Write([]byte("-"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyPagSeguroSignature compares header with the expected token in
// constant time.
func VerifyPagSeguroSignature(token, header string, body []byte) bool {
	if token == "" || header == "" {
		return false
	}
	want := PagSeguroAuthenticityToken(token, body)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(strings.TrimSpace(header))), []byte(want)) == 1
}
