package rfb

import (
	"crypto/des"
	"fmt"
)

// desKeyFromPassword derives the 8-byte DES key used for VncAuthentication:
// the password is truncated or NUL-padded to exactly 8 bytes, then each
// byte's bits are reversed (LSB<->MSB). The bit reversal is not documented
// by the RFC but is required by every real VNC server and client.
func desKeyFromPassword(password string) [8]byte {
	var key [8]byte
	copy(key[:], password)
	for i, b := range key {
		key[i] = reverseBits(b)
	}
	return key
}

func reverseBits(b byte) byte {
	var out byte
	for i := 0; i < 8; i++ {
		out <<= 1
		out |= b & 1
		b >>= 1
	}
	return out
}

// EncryptChallenge computes the 16-byte VncAuthentication response: the
// 16-byte challenge encrypted as two independent 8-byte DES-ECB blocks under
// the password-derived key.
func EncryptChallenge(password string, challenge [16]byte) ([16]byte, error) {
	key := desKeyFromPassword(password)
	block, err := des.NewCipher(key[:])
	if err != nil {
		return [16]byte{}, fmt.Errorf("create DES cipher: %v", err)
	}
	var response [16]byte
	block.Encrypt(response[0:8], challenge[0:8])
	block.Encrypt(response[8:16], challenge[8:16])
	return response, nil
}
