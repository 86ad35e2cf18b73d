package venue

// auth.go — ed25519 request signing.
//
// Every authenticated call carries a detached signature over
// timestamp + METHOD + path (+ canonical body for writes). The body is
// canonicalized only here, at the signing boundary: sorted keys,
// compact separators. Nothing else in the codebase depends on the
// serialization order.

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// Signer layers authenticated requests over the base client.
type Signer struct {
	*Client
	keyID string
	key   ed25519.PrivateKey
	now   func() time.Time
}

// NewSigner builds the authenticated client. secretKey is the
// base64-encoded ed25519 seed or full private key.
func NewSigner(c *Client, keyID, secretKey string) (*Signer, error) {
	raw, err := base64.StdEncoding.DecodeString(secretKey)
	if err != nil {
		return nil, fmt.Errorf("venue.NewSigner: decode secret: %w", err)
	}
	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("venue.NewSigner: secret key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
	return &Signer{Client: c, keyID: keyID, key: key, now: time.Now}, nil
}

// signedHeaders produces the auth headers for one attempt. The caller
// regenerates them per retry so the timestamp stays inside the venue's
// acceptance window.
func (s *Signer) signedHeaders(method, path string, body []byte) (map[string]string, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)

	msg := make([]byte, 0, len(ts)+len(method)+len(path)+len(body))
	msg = append(msg, ts...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	msg = append(msg, body...)

	sig := ed25519.Sign(s.key, msg)
	return map[string]string{
		"X-Key-Id":    s.keyID,
		"X-Timestamp": ts,
		"X-Signature": base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// doAuth executes an authenticated request. Write bodies are
// canonicalized once; that exact byte sequence is both signed and sent.
func (s *Signer) doAuth(ctx context.Context, lim *rate.Limiter, method, path string, reqBody, out any) error {
	var body []byte
	if reqBody != nil {
		b, err := CanonicalJSON(reqBody)
		if err != nil {
			return err
		}
		body = b
	}
	return s.do(ctx, lim, method, path, body, func() (map[string]string, error) {
		return s.signedHeaders(method, path, body)
	}, out)
}

// CanonicalJSON encodes v deterministically: object keys sorted,
// compact separators, no trailing newline. Used only at the signing
// boundary.
func CanonicalJSON(v any) ([]byte, error) {
	loose, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("venue.CanonicalJSON: %w", err)
	}
	// Round-trip through any: encoding/json emits map keys sorted.
	var generic any
	if err := json.Unmarshal(loose, &generic); err != nil {
		return nil, fmt.Errorf("venue.CanonicalJSON: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("venue.CanonicalJSON: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
