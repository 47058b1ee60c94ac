// Package listing implements the directory listing model: the
// in-memory DirectoryListing/DirectoryInfo representation, its
// invariant-preserving mutation methods, its canonical serialization,
// and its encryption envelope. It corresponds to the struct-plus-
// Marshal-methods half of upspin.io/upspin/upspin.go and code.go,
// generalized from a flat DirEntry to a listing that owns both
// sub-directories and files.
package listing

import (
	"time"

	"golang.org/x/text/unicode/norm"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/safenfs"
)

// DirectoryInfo describes a directory: either the listing's own
// identity (DirectoryListing.Info) or a sub-directory entry held by a
// parent listing.
type DirectoryInfo struct {
	Key          safenfs.DirectoryKey
	Name         string
	AccessLevel  safenfs.AccessLevel
	Versioned    bool
	Created      time.Time
	Modified     time.Time
	UserMetadata []byte
	// ParentDirKey is nil iff this is one of the well-known roots
	// (§3.2): never a back-pointer to a parent listing object, only
	// an identifier resolved by fetching on demand (§9).
	ParentDirKey *safenfs.DirectoryKey
}

// DirectoryListing is the full in-memory representation of a
// directory: its own identity plus its ordered children and files.
type DirectoryListing struct {
	Info           DirectoryInfo
	SubDirectories []DirectoryInfo
	Files          []safenfs.File
}

// New fabricates a new listing with the given identity. The caller is
// responsible for persisting it through the directory helper.
func New(key safenfs.DirectoryKey, name string, access safenfs.AccessLevel, versioned bool, parent *safenfs.DirectoryKey, userMetadata []byte) *DirectoryListing {
	now := time.Now()
	return &DirectoryListing{
		Info: DirectoryInfo{
			Key:          key,
			Name:         name,
			AccessLevel:  access,
			Versioned:    versioned,
			Created:      now,
			Modified:     now,
			UserMetadata: userMetadata,
			ParentDirKey: parent,
		},
	}
}

func sameName(a, b string) bool {
	return norm.NFC.String(a) == norm.NFC.String(b)
}

// UpsertSubDirectory replaces the sub-directory entry whose Key.Name
// matches info's, or appends info if none matches, and bumps the
// listing's modified timestamp (§4.5).
func (l *DirectoryListing) UpsertSubDirectory(info DirectoryInfo) {
	for i := range l.SubDirectories {
		if l.SubDirectories[i].Key.Name == info.Key.Name {
			l.SubDirectories[i] = info
			l.Info.Modified = time.Now()
			return
		}
	}
	l.SubDirectories = append(l.SubDirectories, info)
	l.Info.Modified = time.Now()
}

// UpsertFile replaces the file whose name matches file's, or appends
// file if none matches, and bumps the listing's modified timestamp.
// Fails with errors.Invalid if the file's name is empty.
func (l *DirectoryListing) UpsertFile(file safenfs.File) error {
	const op = "listing.DirectoryListing.UpsertFile"
	if file.Metadata.Name == "" {
		return errors.E(op, errors.Invalid, errors.Str("name is empty"))
	}
	for i := range l.Files {
		if sameName(l.Files[i].Metadata.Name, file.Metadata.Name) {
			l.Files[i] = file
			l.Info.Modified = time.Now()
			return nil
		}
	}
	l.Files = append(l.Files, file)
	l.Info.Modified = time.Now()
	return nil
}

// FindFile returns the file with the given name, scanning in order
// and returning the first match.
func (l *DirectoryListing) FindFile(name string) (*safenfs.File, bool) {
	for i := range l.Files {
		if sameName(l.Files[i].Metadata.Name, name) {
			return &l.Files[i], true
		}
	}
	return nil, false
}

// FindSubDirectory returns the sub-directory with the given name,
// scanning in order and returning the first match.
func (l *DirectoryListing) FindSubDirectory(name string) (*DirectoryInfo, bool) {
	for i := range l.SubDirectories {
		if sameName(l.SubDirectories[i].Name, name) {
			return &l.SubDirectories[i], true
		}
	}
	return nil, false
}

// RemoveSubDirectory deletes the sub-directory entry with the given
// name, returning false if none matched.
func (l *DirectoryListing) RemoveSubDirectory(name string) bool {
	for i := range l.SubDirectories {
		if sameName(l.SubDirectories[i].Name, name) {
			l.SubDirectories = append(l.SubDirectories[:i], l.SubDirectories[i+1:]...)
			l.Info.Modified = time.Now()
			return true
		}
	}
	return false
}

// RemoveFile deletes the file entry with the given name, returning
// false if none matched.
func (l *DirectoryListing) RemoveFile(name string) bool {
	for i := range l.Files {
		if sameName(l.Files[i].Metadata.Name, name) {
			l.Files = append(l.Files[:i], l.Files[i+1:]...)
			l.Info.Modified = time.Now()
			return true
		}
	}
	return false
}

// sealNonce derives the deterministic nonce used for the listing's
// encryption envelope (§3.2). Unversioned listings derive it from
// their network name alone, so the same listing always re-encrypts to
// decryptable bytes across sessions; versioned listings fold the
// version number in, since each version's plaintext differs and must
// not share a nonce.
func sealNonce(key safenfs.DirectoryKey, version uint64) crypto.Nonce {
	if !versionedTag(key.Tag) {
		return crypto.DeriveNonce(key.Name[:])
	}
	buf := append([]byte(nil), key.Name[:]...)
	var v [8]byte
	for i := range v {
		v[i] = byte(version >> (8 * uint(i)))
	}
	return crypto.DeriveNonce(append(buf, v[:]...))
}

func versionedTag(tag safenfs.Tag) bool {
	return tag == safenfs.TagVersionedDirectoryListing
}

// Seal serializes l and, if its access level is Private, encrypts the
// result under client's keypair with the listing's deterministic
// nonce. version is the record version this payload is destined for
// (0 for unversioned listings, where the concept is meaningless, or
// the version number for a versioned snapshot blob).
func Seal(l *DirectoryListing, client safenfs.Client, version uint64) ([]byte, error) {
	plain := l.Marshal()
	if l.Info.AccessLevel == safenfs.Public {
		return plain, nil
	}
	nonce := sealNonce(l.Info.Key, version)
	return crypto.Seal(plain, nonce, client.EncryptionKey(), client.SecretEncryptionKey()), nil
}

// Open reverses Seal: it decrypts sealed (if access is Private) and
// deserializes the result into a DirectoryListing.
func Open(sealed []byte, key safenfs.DirectoryKey, access safenfs.AccessLevel, client safenfs.Client, version uint64) (*DirectoryListing, error) {
	const op = "listing.Open"
	plain := sealed
	if access == safenfs.Private {
		nonce := sealNonce(key, version)
		var err error
		plain, err = crypto.Open(op, sealed, nonce, client.EncryptionKey(), client.SecretEncryptionKey())
		if err != nil {
			return nil, err
		}
	}
	l := &DirectoryListing{}
	if err := l.Unmarshal(plain); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	return l, nil
}
