package crypto

import "encoding/hex"

// Cryptographic byte blobs are stored and transported as lowercase hex.
// The encoding is fixed and reversible: Decode(Encode(x)) == x for all x.

func Encode(b []byte) string { return hex.EncodeToString(b) }

func Decode(s string) ([]byte, error) { return hex.DecodeString(s) }
