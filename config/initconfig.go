// Package config bootstraps a session's identity keys from a YAML
// file and constructs a store.Client from them, playing the role
// upspin.io/config/initconfig.go plays for a full upspin.Config: one
// FromFile entry point that reads (or, on first run, creates) a
// session file, falling back to freshly generated keys when asked for
// an ephemeral session.
package config

import (
	"encoding/hex"
	"io/ioutil"
	"os"
	osuser "os/user"
	"path/filepath"

	yaml "gopkg.in/yaml.v2"

	"golang.org/x/crypto/ed25519"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/store"
)

// sessionFile is the on-disk YAML shape of a session's identity keys
// (§6's "configuration" layer): an Ed25519 signing key and a NaCl box
// key pair, hex-encoded. The two well-known root identifiers are
// deliberately not part of this file — store.Client is in-process and
// does not survive a restart anyway, so persisting them here would be
// misleading.
type sessionFile struct {
	SigningKey    string `yaml:"signing_key"`
	EncryptionPub string `yaml:"encryption_public_key"`
	EncryptionSec string `yaml:"encryption_secret_key"`
}

// FromFile loads the session identity at path, generating and saving
// a fresh one if the file does not yet exist, and returns a
// store.Client seeded with it. An empty path resolves to
// $HOME/.safenfs/config.
func FromFile(path string) (*store.Client, error) {
	const op = "config.FromFile"
	if path == "" {
		home, err := Homedir()
		if err != nil {
			return nil, errors.E(op, err)
		}
		path = filepath.Join(home, ".safenfs", "config")
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, errors.E(op, errors.IO, err)
		}
		return generateAndSave(op, path)
	}
	var sf sessionFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, errors.E(op, errors.Invalid, errors.Errorf("parsing YAML file: %v", err))
	}
	return clientFromSessionFile(op, sf)
}

// Generate returns a store.Client seeded with a freshly generated,
// unsaved session identity, for ephemeral or test sessions.
func Generate() (*store.Client, error) {
	const op = "config.Generate"
	signingKey, verifyingKey, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, errors.E(op, err)
	}
	pub, sec, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, errors.E(op, err)
	}
	return store.New(signingKey, verifyingKey, pub, sec), nil
}

func generateAndSave(op, path string) (*store.Client, error) {
	signingKey, verifyingKey, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		return nil, errors.E(op, err)
	}
	pub, sec, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		return nil, errors.E(op, err)
	}

	sf := sessionFile{
		SigningKey:    hex.EncodeToString(signingKey),
		EncryptionPub: hex.EncodeToString(pub[:]),
		EncryptionSec: hex.EncodeToString(sec[:]),
	}
	data, err := yaml.Marshal(sf)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
	}
	if err := ioutil.WriteFile(path, data, 0600); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	return store.New(signingKey, verifyingKey, pub, sec), nil
}

func clientFromSessionFile(op string, sf sessionFile) (*store.Client, error) {
	signingBytes, err := hex.DecodeString(sf.SigningKey)
	if err != nil || len(signingBytes) != ed25519.PrivateKeySize {
		return nil, errors.E(op, errors.Invalid, errors.Str("malformed signing_key"))
	}
	signingKey := crypto.SigningKey(signingBytes)
	verifyingKey := crypto.VerifyingKey(ed25519.PrivateKey(signingBytes).Public().(ed25519.PublicKey))

	pubBytes, err := hex.DecodeString(sf.EncryptionPub)
	if err != nil || len(pubBytes) != crypto.KeySize {
		return nil, errors.E(op, errors.Invalid, errors.Str("malformed encryption_public_key"))
	}
	secBytes, err := hex.DecodeString(sf.EncryptionSec)
	if err != nil || len(secBytes) != crypto.KeySize {
		return nil, errors.E(op, errors.Invalid, errors.Str("malformed encryption_secret_key"))
	}
	var pub crypto.PublicKey
	var sec crypto.SecretKey
	copy(pub[:], pubBytes)
	copy(sec[:], secBytes)

	return store.New(signingKey, verifyingKey, pub, sec), nil
}

// Homedir returns the home directory of the OS' logged-in user.
func Homedir() (string, error) {
	u, err := osuser.Current()
	// user.Current may return an error, but we should only handle it if it
	// returns a nil user. This is because os/user is wonky without cgo,
	// but it should work well enough for our purposes.
	if u == nil {
		e := errors.Str("lookup of current user failed")
		if err != nil {
			e = errors.Errorf("%v: %v", e, err)
		}
		return "", e
	}
	h := u.HomeDir
	if h == "" {
		return "", errors.E(errors.Invalid, errors.Str("user home directory not found"))
	}
	return h, nil
}

// Home returns the home directory of the user, or panics if it cannot find one.
func Home() string {
	home, err := Homedir()
	if err != nil {
		panic(err)
	}
	return home
}
