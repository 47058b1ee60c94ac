// Package crypto provides the signing and sealing primitives consumed by
// the listing and chunk models: Ed25519 signatures over structured
// records, NaCl box/secretbox sealing of listing payloads and file
// chunks, and deterministic nonce derivation for unversioned private
// listings.
//
// It plays the role that upspin.io/pack/ee and upspin.io/factotum play
// together in the teacher tree, scaled down from full ECDH key-wrapping
// (every reader gets their own wrapped key) to the single-owner sealing
// this specification actually calls for: every listing and file in this
// system has exactly one owner, never a set of shared readers, so
// listing payloads are box-sealed to the owner's own key pair, and file
// chunks are secretbox-sealed under random keys that are themselves
// box-sealed to that pair. DESIGN.md records this as the deliberate
// scope cut.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"safenfs.io/errors"
)

// Sizes of the keys and nonces used throughout this package.
const (
	KeySize   = 32
	NonceSize = 24
)

// PublicKey and SecretKey are a Curve25519 box key pair, generated once
// per session and held for the session's lifetime.
type PublicKey [KeySize]byte
type SecretKey [KeySize]byte

// SigningKey and VerifyingKey are an Ed25519 signing key pair used to
// sign and verify StructuredRecord payloads.
type SigningKey ed25519.PrivateKey
type VerifyingKey ed25519.PublicKey

// Nonce is a NaCl box/secretbox nonce.
type Nonce [NonceSize]byte

// GenerateBoxKeyPair creates a new Curve25519 key pair for sealing.
func GenerateBoxKeyPair() (PublicKey, SecretKey, error) {
	const op = "crypto.GenerateBoxKeyPair"
	pub, sec, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, SecretKey{}, errors.E(op, errors.IO, err)
	}
	return PublicKey(*pub), SecretKey(*sec), nil
}

// GenerateSigningKeyPair creates a new Ed25519 signing key pair.
func GenerateSigningKeyPair() (SigningKey, VerifyingKey, error) {
	const op = "crypto.GenerateSigningKeyPair"
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.E(op, errors.IO, err)
	}
	return SigningKey(priv), VerifyingKey(pub), nil
}

// DeriveNonce deterministically derives a sealing nonce from a name, so
// that an unversioned private listing's envelope can be re-opened across
// sessions without any extra state (§3.2): same name, same nonce, same
// ciphertext for the same cleartext.
func DeriveNonce(name []byte) Nonce {
	h := hkdf.New(sha256.New, name, nil, []byte("safenfs.io listing nonce"))
	var n Nonce
	io.ReadFull(h, n[:]) // hkdf.Reader never errors for a bounded read.
	return n
}

// Seal encrypts message for the holder of (publicKey, secretKey) under
// nonce, self-addressed: every listing and file in this system has
// exactly one owner, so the sender and intended reader are the same
// key pair.
func Seal(message []byte, nonce Nonce, publicKey PublicKey, secretKey SecretKey) []byte {
	n := [NonceSize]byte(nonce)
	pub := [KeySize]byte(publicKey)
	sec := [KeySize]byte(secretKey)
	return box.Seal(nil, message, &n, &pub, &sec)
}

// Open reverses Seal.
func Open(op string, sealed []byte, nonce Nonce, publicKey PublicKey, secretKey SecretKey) ([]byte, error) {
	n := [NonceSize]byte(nonce)
	pub := [KeySize]byte(publicKey)
	sec := [KeySize]byte(secretKey)
	clear, ok := box.Open(nil, sealed, &n, &pub, &sec)
	if !ok {
		return nil, errors.E(op, errors.IO, errors.Str("could not open sealed data"))
	}
	return clear, nil
}

// ChunkKey is the random symmetric key used to seal a single self-
// encryption chunk (§4.7). It is itself wrapped (sealed) under the
// owning listing's box key pair, so that only the listing's owner can
// recover it, mirroring the per-reader wrapped-key field of
// upspin.io/pack/ee's Packdata without the multi-reader machinery.
type ChunkKey [KeySize]byte

// GenerateChunkKey creates a new random per-chunk symmetric key.
func GenerateChunkKey() (ChunkKey, error) {
	var k ChunkKey
	if _, err := io.ReadFull(rand.Reader, k[:]); err != nil {
		return ChunkKey{}, errors.E("crypto.GenerateChunkKey", errors.IO, err)
	}
	return k, nil
}

// SealChunk seals plaintext under key and a fresh random nonce, and
// returns the ciphertext with the nonce prepended, ready to be stored
// as the body of an ImmutableBlob.
func SealChunk(plaintext []byte, key ChunkKey) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.E("crypto.SealChunk", errors.IO, err)
	}
	k := [KeySize]byte(key)
	sealed := secretbox.Seal(nonce[:], plaintext, &nonce, &k)
	return sealed, nil
}

// OpenChunk reverses SealChunk.
func OpenChunk(sealed []byte, key ChunkKey) ([]byte, error) {
	const op = "crypto.OpenChunk"
	if len(sealed) < NonceSize {
		return nil, errors.E(op, errors.Invalid, errors.Str("sealed chunk too short"))
	}
	var nonce [NonceSize]byte
	copy(nonce[:], sealed[:NonceSize])
	k := [KeySize]byte(key)
	clear, ok := secretbox.Open(nil, sealed[NonceSize:], &nonce, &k)
	if !ok {
		return nil, errors.E(op, errors.IO, errors.Str("could not open sealed chunk"))
	}
	return clear, nil
}

// WrapChunkKey seals a ChunkKey under the listing owner's box key pair,
// using a nonce derived from the chunk's pre-encryption hash so the
// wrapping is itself deterministic and needs no extra storage.
func WrapChunkKey(key ChunkKey, preEncryptionHash [sha256.Size]byte, publicKey PublicKey, secretKey SecretKey) []byte {
	nonce := DeriveNonce(preEncryptionHash[:])
	return Seal(key[:], nonce, publicKey, secretKey)
}

// UnwrapChunkKey reverses WrapChunkKey.
func UnwrapChunkKey(wrapped []byte, preEncryptionHash [sha256.Size]byte, publicKey PublicKey, secretKey SecretKey) (ChunkKey, error) {
	nonce := DeriveNonce(preEncryptionHash[:])
	clear, err := Open("crypto.UnwrapChunkKey", wrapped, nonce, publicKey, secretKey)
	if err != nil {
		return ChunkKey{}, err
	}
	if len(clear) != KeySize {
		return ChunkKey{}, errors.E("crypto.UnwrapChunkKey", errors.Invalid, errors.Str("bad unwrapped chunk key length"))
	}
	var k ChunkKey
	copy(k[:], clear)
	return k, nil
}

// Sign signs message with the owner's signing key, producing the
// signature carried by a StructuredRecord.
func Sign(key SigningKey, message []byte) []byte {
	return ed25519.Sign(ed25519.PrivateKey(key), message)
}

// Verify verifies a signature produced by Sign.
func Verify(key VerifyingKey, message, signature []byte) bool {
	return ed25519.Verify(ed25519.PublicKey(key), message, signature)
}
