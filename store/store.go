// Package store implements the in-process reference Client used by the
// rest of this module, standing in for the external storage substrate
// (real network RPC, routing, and replication are out of scope; see
// SPEC_FULL.md §1, §6). It is grounded on upspin.io/store/inprocess
// (a mutex-guarded, content-addressed blob map) crossed with
// upspin.io/dir/inprocess's identity-keyed record map, collapsed into
// the single safenfs.Client capability this module actually needs.
package store

import (
	"sync"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/safenfs"
)

// recordKey identifies a structured record slot: (tag, owner name).
type recordKey struct {
	tag  safenfs.Tag
	name safenfs.NetworkName
}

// record is the server-side bookkeeping for a StructuredRecord: the
// current value plus the full history of every post, whatever the tag,
// so RecordVersions/GetRecordVersion can serve past snapshots.
type record struct {
	current  safenfs.StructuredRecord
	versions []safenfs.StructuredRecord // indexed by version-1
}

// Client is an in-process, in-memory implementation of safenfs.Client.
// One mutex guards both maps; it is held only for the duration of the
// map access itself, never across a caller's multi-step operation
// (§5): every exported method here is a single substrate "call".
type Client struct {
	mu      sync.Mutex
	blobs   map[safenfs.NetworkName][]byte
	records map[recordKey]*record

	signingKey    crypto.SigningKey
	verifyingKey  crypto.VerifyingKey
	encryptionKey crypto.PublicKey
	secretKey     crypto.SecretKey

	userRootID           safenfs.NetworkName
	userRootSet          bool
	configurationRootID  safenfs.NetworkName
	configurationRootSet bool
}

var _ safenfs.Client = (*Client)(nil)

// New creates a Client holding the given session keys.
func New(signingKey crypto.SigningKey, verifyingKey crypto.VerifyingKey, encryptionKey crypto.PublicKey, secretKey crypto.SecretKey) *Client {
	return &Client{
		blobs:         make(map[safenfs.NetworkName][]byte),
		records:       make(map[recordKey]*record),
		signingKey:    signingKey,
		verifyingKey:  verifyingKey,
		encryptionKey: encryptionKey,
		secretKey:     secretKey,
	}
}

// PutBlob implements safenfs.Client.
func (c *Client) PutBlob(data []byte) (safenfs.NetworkName, error) {
	name := safenfs.NetworkNameOf(data)
	c.mu.Lock()
	c.blobs[name] = append([]byte(nil), data...)
	c.mu.Unlock()
	return name, nil
}

// GetBlob implements safenfs.Client.
func (c *Client) GetBlob(name safenfs.NetworkName) ([]byte, error) {
	const op = "store.Client.GetBlob"
	c.mu.Lock()
	data, ok := c.blobs[name]
	c.mu.Unlock()
	if !ok {
		return nil, errors.E(op, errors.NotFound, errors.Errorf("no such blob %s", name))
	}
	return append([]byte(nil), data...), nil
}

// PostRecord implements safenfs.Client: it writes or updates the
// StructuredRecord addressed by key, assigning it the next version
// number and keeping the prior version retrievable by number.
func (c *Client) PostRecord(key safenfs.DirectoryKey, rec safenfs.StructuredRecord) error {
	rk := recordKey{tag: key.Tag, name: key.Name}
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.records[rk]
	if !ok {
		r = &record{}
		c.records[rk] = r
	}
	rec.Version = uint64(len(r.versions)) + 1
	r.current = rec
	r.versions = append(r.versions, rec)
	return nil
}

// GetRecord implements safenfs.Client. The returned record's signature
// is verified against the session's own verifying key before it is
// handed back, so a corrupted or forged record is never silently
// treated as genuine (§3.1).
func (c *Client) GetRecord(key safenfs.DirectoryKey) (safenfs.StructuredRecord, error) {
	const op = "store.Client.GetRecord"
	rk := recordKey{tag: key.Tag, name: key.Name}
	c.mu.Lock()
	r, ok := c.records[rk]
	c.mu.Unlock()
	if !ok {
		return safenfs.StructuredRecord{}, errors.E(op, errors.NotFound, errors.Errorf("no such record %s", key.Name))
	}
	if !crypto.Verify(c.verifyingKey, r.current.Payload, r.current.Signature) {
		return safenfs.StructuredRecord{}, errors.E(op, errors.Invalid, errors.Str("record signature verification failed"))
	}
	return r.current, nil
}

// GetRecordVersion implements safenfs.Client, verifying the signature
// of the returned version the same way GetRecord does.
func (c *Client) GetRecordVersion(key safenfs.DirectoryKey, version uint64) (safenfs.StructuredRecord, error) {
	const op = "store.Client.GetRecordVersion"
	rk := recordKey{tag: key.Tag, name: key.Name}
	c.mu.Lock()
	r, ok := c.records[rk]
	c.mu.Unlock()
	if !ok || version < 1 || version > uint64(len(r.versions)) {
		return safenfs.StructuredRecord{}, errors.E(op, errors.NotFound, errors.Errorf("no such version %d of %s", version, key.Name))
	}
	rec := r.versions[version-1]
	if !crypto.Verify(c.verifyingKey, rec.Payload, rec.Signature) {
		return safenfs.StructuredRecord{}, errors.E(op, errors.Invalid, errors.Str("record signature verification failed"))
	}
	return rec, nil
}

// RecordVersions implements safenfs.Client, returning version numbers
// oldest-to-newest.
func (c *Client) RecordVersions(key safenfs.DirectoryKey) ([]uint64, error) {
	rk := recordKey{tag: key.Tag, name: key.Name}
	c.mu.Lock()
	r, ok := c.records[rk]
	c.mu.Unlock()
	if !ok {
		return nil, nil
	}
	versions := make([]uint64, len(r.versions))
	for i := range r.versions {
		versions[i] = uint64(i + 1)
	}
	return versions, nil
}

// ComputeName implements safenfs.Client: the deterministic network
// name for a structured record is the hash of its tag and
// discriminator, mirroring upspin.io/key/sha256key's content-address
// convention.
func (c *Client) ComputeName(tag safenfs.Tag, discriminator []byte) safenfs.NetworkName {
	buf := make([]byte, 0, len(discriminator)+8)
	for i := 0; i < 8; i++ {
		buf = append(buf, byte(tag>>(8*uint(i))))
	}
	buf = append(buf, discriminator...)
	return safenfs.NetworkNameOf(buf)
}

// SigningKey implements safenfs.Client.
func (c *Client) SigningKey() crypto.SigningKey { return c.signingKey }

// VerifyingKey implements safenfs.Client.
func (c *Client) VerifyingKey() crypto.VerifyingKey { return c.verifyingKey }

// EncryptionKey implements safenfs.Client.
func (c *Client) EncryptionKey() crypto.PublicKey { return c.encryptionKey }

// SecretEncryptionKey implements safenfs.Client.
func (c *Client) SecretEncryptionKey() crypto.SecretKey { return c.secretKey }

// UserRootDirectoryID implements safenfs.Client.
func (c *Client) UserRootDirectoryID() (safenfs.NetworkName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userRootID, c.userRootSet
}

// SetUserRootDirectoryID implements safenfs.Client.
func (c *Client) SetUserRootDirectoryID(name safenfs.NetworkName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userRootID = name
	c.userRootSet = true
	return nil
}

// ConfigurationRootDirectoryID implements safenfs.Client.
func (c *Client) ConfigurationRootDirectoryID() (safenfs.NetworkName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configurationRootID, c.configurationRootSet
}

// SetConfigurationRootDirectoryID implements safenfs.Client.
func (c *Client) SetConfigurationRootDirectoryID(name safenfs.NetworkName) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configurationRootID = name
	c.configurationRootSet = true
	return nil
}
