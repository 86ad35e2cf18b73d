package venue

import (
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeysCompact(t *testing.T) {
	type payload struct {
		Zeta  string  `json:"zeta"`
		Alpha float64 `json:"alpha"`
		Mid   int     `json:"mid"`
	}

	out, err := CanonicalJSON(payload{Zeta: "z", Alpha: 1.5, Mid: 2})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":1.5,"mid":2,"zeta":"z"}`, string(out))
}

func TestCanonicalJSONIsStableAcrossMapOrder(t *testing.T) {
	a := map[string]any{"b": 1.0, "a": 2.0, "c": map[string]any{"y": 1.0, "x": 2.0}}
	b := map[string]any{"c": map[string]any{"x": 2.0, "y": 1.0}, "a": 2.0, "b": 1.0}

	outA, err := CanonicalJSON(a)
	require.NoError(t, err)
	outB, err := CanonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(outA), string(outB))
}

func TestSignedHeadersVerify(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	s := &Signer{
		keyID: "key-1",
		key:   priv,
		now:   func() time.Time { return time.UnixMilli(1771234567890) },
	}

	body := []byte(`{"marketId":"m1","price":0.42}`)
	headers, err := s.signedHeaders("POST", "/v1/orders", body)
	require.NoError(t, err)

	assert.Equal(t, "key-1", headers["X-Key-Id"])
	assert.Equal(t, "1771234567890", headers["X-Timestamp"])

	sig, err := base64.StdEncoding.DecodeString(headers["X-Signature"])
	require.NoError(t, err)

	msg := append([]byte("1771234567890POST/v1/orders"), body...)
	assert.True(t, ed25519.Verify(pub, msg, sig))
}

func TestNewSignerKeyFormats(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}

	fromSeed, err := NewSigner(&Client{}, "k", base64.StdEncoding.EncodeToString(seed))
	require.NoError(t, err)

	full := ed25519.NewKeyFromSeed(seed)
	fromFull, err := NewSigner(&Client{}, "k", base64.StdEncoding.EncodeToString(full))
	require.NoError(t, err)

	assert.Equal(t, fromSeed.key, fromFull.key)

	_, err = NewSigner(&Client{}, "k", base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)

	_, err = NewSigner(&Client{}, "k", "not-base64!!!")
	assert.Error(t, err)
}
