package crypto

import (
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"

	"messenger/errors"
)

// testKeyBits keeps key generation fast. OAEP with SHA-256 needs a modulus
// of at least 98 bytes, so 1024 bits is plenty for a 32-byte session key.
const testKeyBits = 1024

func testKeyPair(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := GenerateKeyPair(testKeyBits)
	require.NoError(t, err)
	return key
}

func Test_Seal_Open_Round_Trip(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()
	key := testKeyPair(t)

	plaintext := []byte("this message will self destruct in 5 seconds")
	env, err := engine.Seal(plaintext, map[string]*rsa.PublicKey{"alice": &key.PublicKey})
	req.NoError(err)
	req.NotEmpty(env.Ciphertext)
	req.NotEmpty(env.Nonce)
	req.Len(env.WrappedKeys, 1)

	opened, err := engine.Open(env, "alice", key)
	req.NoError(err)
	req.Equal(plaintext, opened)
}

func Test_Seal_Requires_Recipients(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()

	_, err := engine.Seal([]byte("hello"), nil)
	req.Error(err)
}

func Test_Multi_Recipient_Fan_Out(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()
	alice := testKeyPair(t)
	bob := testKeyPair(t)
	clara := testKeyPair(t)

	plaintext := []byte("group announcement")
	env, err := engine.Seal(plaintext, map[string]*rsa.PublicKey{
		"alice": &alice.PublicKey,
		"bob":   &bob.PublicKey,
		"clara": &clara.PublicKey,
	})
	req.NoError(err)
	req.Len(env.WrappedKeys, 3)

	for id, key := range map[string]*rsa.PrivateKey{"alice": alice, "bob": bob, "clara": clara} {
		opened, err := engine.Open(env, id, key)
		req.NoError(err, id)
		req.Equal(plaintext, opened, id)
	}
}

func Test_Open_Fails_For_Foreign_Key(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()
	alice := testKeyPair(t)
	mallory := testKeyPair(t)

	env, err := engine.Seal([]byte("for alice only"), map[string]*rsa.PublicKey{"alice": &alice.PublicKey})
	req.NoError(err)

	// Mallory has no wrap entry at all.
	_, err = engine.Open(env, "mallory", mallory)
	req.ErrorIs(err, errors.ErrDecryptionFailed)

	// Mallory trying to unwrap alice's entry with her own key fails too.
	_, err = engine.Open(env, "alice", mallory)
	req.ErrorIs(err, errors.ErrDecryptionFailed)
}

func Test_Open_Detects_Tampering(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()
	key := testKeyPair(t)

	env, err := engine.Seal([]byte("integrity matters"), map[string]*rsa.PublicKey{"alice": &key.PublicKey})
	req.NoError(err)

	flipHex := func(s string) string {
		raw, err := Decode(s)
		req.NoError(err)
		raw[len(raw)/2] ^= 0x01
		return Encode(raw)
	}

	tests := []struct {
		description string
		mutate      func(e *Envelope)
	}{
		{"flipped ciphertext bit", func(e *Envelope) { e.Ciphertext = flipHex(e.Ciphertext) }},
		{"flipped nonce bit", func(e *Envelope) { e.Nonce = flipHex(e.Nonce) }},
		{"flipped wrapped key bit", func(e *Envelope) {
			e.WrappedKeys["alice"] = flipHex(e.WrappedKeys["alice"])
		}},
		{"malformed ciphertext hex", func(e *Envelope) { e.Ciphertext = "not-hex" }},
		{"malformed nonce hex", func(e *Envelope) { e.Nonce = "zz" }},
		{"truncated ciphertext", func(e *Envelope) { e.Ciphertext = e.Ciphertext[:8] }},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			tampered := Envelope{
				Ciphertext:  env.Ciphertext,
				Nonce:       env.Nonce,
				WrappedKeys: map[string]string{"alice": env.WrappedKeys["alice"]},
			}
			tt.mutate(&tampered)
			_, err := engine.Open(tampered, "alice", key)
			require.ErrorIs(t, err, errors.ErrDecryptionFailed, tt.description)
		})
	}
}

func Test_Fresh_Key_And_Nonce_Per_Message(t *testing.T) {
	req := require.New(t)
	engine := NewEngine()
	key := testKeyPair(t)
	recipients := map[string]*rsa.PublicKey{"alice": &key.PublicKey}

	plaintext := []byte("same words every time")
	nonces := make(map[string]struct{})
	ciphertexts := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		env, err := engine.Seal(plaintext, recipients)
		req.NoError(err)
		nonces[env.Nonce] = struct{}{}
		ciphertexts[env.Ciphertext] = struct{}{}
	}
	req.Len(nonces, 500)
	req.Len(ciphertexts, 500)
}
