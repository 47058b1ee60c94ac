// Package directory implements the Directory Helper: CRUD and version
// navigation for listings, parent-child link maintenance, and
// bootstrap of the well-known user-root and configuration-root
// listings. It is grounded on the directory_helper.rs reference
// implementation's operation set, ported into the Go idiom
// upspin.io/dir/inprocess uses for its own CRUD surface.
package directory

import (
	"strconv"
	"sync/atomic"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/listing"
	"safenfs.io/log"
	"safenfs.io/safenfs"
)

// Helper is the Directory Helper. It owns no persistent state of its
// own; every operation reads or writes through client.
type Helper struct {
	client safenfs.Client
}

// New creates a Helper bound to client.
func New(client safenfs.Client) *Helper {
	return &Helper{client: client}
}

func tagFor(versioned bool) safenfs.Tag {
	if versioned {
		return safenfs.TagVersionedDirectoryListing
	}
	return safenfs.TagUnversionedDirectoryListing
}

// Create fabricates a new listing named name, persists it, and, if
// parent is non-nil, upserts its DirectoryInfo into parent and
// persists parent too (§4.1).
func (h *Helper) Create(name string, userMetadata []byte, versioned bool, access safenfs.AccessLevel, parent *listing.DirectoryListing) (*listing.DirectoryListing, error) {
	const op = "directory.Helper.Create"
	log.Debug.Printf("%s: name=%q versioned=%v", op, name, versioned)

	var parentKey *safenfs.DirectoryKey
	if parent != nil {
		if _, ok := parent.FindSubDirectory(name); ok {
			return nil, errors.E(op, errors.Exist, errors.Errorf("%q already exists", name))
		}
		k := parent.Info.Key
		parentKey = &k
	}

	identity := h.client.ComputeName(tagFor(versioned), []byte(name+randSalt()))
	key := safenfs.DirectoryKey{Name: identity, Tag: tagFor(versioned)}
	l := listing.New(key, name, access, versioned, parentKey, userMetadata)

	if err := h.persist(op, l, 0); err != nil {
		return nil, errors.E(op, errors.UpdateFailed, err)
	}

	if parent != nil {
		parent.UpsertSubDirectory(listing.DirectoryInfo{
			Key:          l.Info.Key,
			Name:         l.Info.Name,
			AccessLevel:  l.Info.AccessLevel,
			Versioned:    l.Info.Versioned,
			Created:      l.Info.Created,
			Modified:     l.Info.Modified,
			UserMetadata: l.Info.UserMetadata,
			ParentDirKey: l.Info.ParentDirKey,
		})
		if _, err := h.Update(parent); err != nil {
			return nil, errors.E(op, errors.UpdateFailed, err)
		}
	}

	return l, nil
}

// randSalt distinguishes otherwise-identical creation requests so two
// directories created with the same name under different parents (or
// the same parent, sequentially) get distinct identities. It is not a
// security primitive; ComputeName's namespace is only required to
// avoid accidental collisions between sibling creates.
var saltCounter uint64

func randSalt() string {
	return strconv.FormatUint(atomic.AddUint64(&saltCounter, 1), 10)
}

// Get fetches and decodes the listing addressed by key (§4.1): for a
// versioned listing, the latest snapshot; for an unversioned listing,
// the in-place payload.
func (h *Helper) Get(key safenfs.DirectoryKey, access safenfs.AccessLevel) (*listing.DirectoryListing, error) {
	const op = "directory.Helper.Get"
	rec, err := h.client.GetRecord(key)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if key.Tag == safenfs.TagVersionedDirectoryListing {
		return h.getVersionedPayload(op, key, access, rec)
	}
	l, err := listing.Open(rec.Payload, key, access, h.client, rec.Version)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return l, nil
}

func (h *Helper) getVersionedPayload(op string, key safenfs.DirectoryKey, access safenfs.AccessLevel, rec safenfs.StructuredRecord) (*listing.DirectoryListing, error) {
	var blobName safenfs.NetworkName
	copy(blobName[:], rec.Payload)
	sealed, err := h.client.GetBlob(blobName)
	if err != nil {
		return nil, errors.E(op, err)
	}
	l, err := listing.Open(sealed, key, access, h.client, rec.Version)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return l, nil
}

// GetByVersion fetches and decodes the listing at a specific past
// version. Fails errors.NotFound if version is absent.
func (h *Helper) GetByVersion(key safenfs.DirectoryKey, access safenfs.AccessLevel, version uint64) (*listing.DirectoryListing, error) {
	const op = "directory.Helper.GetByVersion"
	if key.Tag != safenfs.TagVersionedDirectoryListing {
		return nil, errors.E(op, errors.Invalid, errors.Str("not a versioned listing"))
	}
	rec, err := h.client.GetRecordVersion(key, version)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return h.getVersionedPayload(op, key, access, rec)
}

// GetVersions returns the full version chain, oldest to newest. Fails
// errors.Invalid for an unversioned key (§9 Open Question 1).
func (h *Helper) GetVersions(key safenfs.DirectoryKey) ([]uint64, error) {
	const op = "directory.Helper.GetVersions"
	if key.Tag != safenfs.TagVersionedDirectoryListing {
		return nil, errors.E(op, errors.Invalid, errors.Str("not a versioned listing"))
	}
	versions, err := h.client.RecordVersions(key)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return versions, nil
}

// Update re-persists l and returns the canonical, re-fetched copy
// (§4.1).
func (h *Helper) Update(l *listing.DirectoryListing) (*listing.DirectoryListing, error) {
	const op = "directory.Helper.Update"
	rec, err := h.client.GetRecord(l.Info.Key)
	if err != nil && !errors.Is(errors.NotFound, err) {
		return nil, errors.E(op, errors.UpdateFailed, err)
	}
	if err := h.persist(op, l, rec.Version); err != nil {
		return nil, errors.E(op, errors.UpdateFailed, err)
	}
	return h.Get(l.Info.Key, l.Info.AccessLevel)
}

// persist seals and writes l's payload per its tag (§4.1's create/
// update persistence disciplines): versioned listings append a new
// ImmutableBlob and reference it from the structured record; unversioned
// listings replace the structured record's payload in place. Every
// record is signed with the session's signing key before being posted,
// so the substrate can authenticate it as the owner's on read (§3.1).
func (h *Helper) persist(op string, l *listing.DirectoryListing, currentVersion uint64) error {
	if l.Info.Key.Tag == safenfs.TagVersionedDirectoryListing {
		sealed, err := listing.Seal(l, h.client, currentVersion+1)
		if err != nil {
			return err
		}
		blobName, err := h.client.PutBlob(sealed)
		if err != nil {
			return err
		}
		payload := blobName[:]
		return h.client.PostRecord(l.Info.Key, safenfs.StructuredRecord{
			Payload:   payload,
			Signature: crypto.Sign(h.client.SigningKey(), payload),
		})
	}
	sealed, err := listing.Seal(l, h.client, 0)
	if err != nil {
		return err
	}
	return h.client.PostRecord(l.Info.Key, safenfs.StructuredRecord{
		Payload:   sealed,
		Signature: crypto.Sign(h.client.SigningKey(), sealed),
	})
}

// UpdateDirectoryListingAndParent persists l, then, if l has a parent,
// re-fetches the parent, upserts l's DirectoryInfo into it, and
// persists the parent. The parent re-fetch is not additionally locked
// (§9 Open Question 4): concurrent mutation of the parent races, and
// last-writer-wins is accepted.
func (h *Helper) UpdateDirectoryListingAndParent(l *listing.DirectoryListing) (*listing.DirectoryListing, *listing.DirectoryListing, error) {
	const op = "directory.Helper.UpdateDirectoryListingAndParent"
	updated, err := h.Update(l)
	if err != nil {
		return nil, nil, errors.E(op, err)
	}
	if updated.Info.ParentDirKey == nil {
		return updated, nil, nil
	}
	parent, err := h.Get(*updated.Info.ParentDirKey, updated.Info.AccessLevel)
	if err != nil {
		return updated, nil, errors.E(op, err)
	}
	parent.UpsertSubDirectory(listing.DirectoryInfo{
		Key:          updated.Info.Key,
		Name:         updated.Info.Name,
		AccessLevel:  updated.Info.AccessLevel,
		Versioned:    updated.Info.Versioned,
		Created:      updated.Info.Created,
		Modified:     updated.Info.Modified,
		UserMetadata: updated.Info.UserMetadata,
		ParentDirKey: updated.Info.ParentDirKey,
	})
	newParent, err := h.Update(parent)
	if err != nil {
		return updated, nil, errors.E(op, err)
	}
	return updated, newParent, nil
}

// Delete removes the sub-directory entry named childName from parent
// and persists parent. It does not garbage-collect the child's own
// structured record or blobs (§9 Open Question 3: immutability and
// potential sharing).
func (h *Helper) Delete(parent *listing.DirectoryListing, childName string) error {
	const op = "directory.Helper.Delete"
	if !parent.RemoveSubDirectory(childName) {
		return errors.E(op, errors.DirectoryNotFound, errors.Errorf("%q not found", childName))
	}
	if _, err := h.Update(parent); err != nil {
		return errors.E(op, errors.UpdateFailed, err)
	}
	return nil
}

// GetUserRootDirectoryListing returns the session's user-root listing,
// creating it (unversioned, private, no parent, named
// safenfs.RootDirectoryName) on first call (§4.1, S2).
func (h *Helper) GetUserRootDirectoryListing() (*listing.DirectoryListing, error) {
	const op = "directory.Helper.GetUserRootDirectoryListing"
	if id, ok := h.client.UserRootDirectoryID(); ok {
		key := safenfs.DirectoryKey{Name: id, Tag: safenfs.TagUnversionedDirectoryListing}
		return h.Get(key, safenfs.Private)
	}
	l, err := h.Create(safenfs.RootDirectoryName, nil, false, safenfs.Private, nil)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if err := h.client.SetUserRootDirectoryID(l.Info.Key.Name); err != nil {
		return nil, errors.E(op, err)
	}
	return l, nil
}

// GetConfigurationDirectoryListing returns the named sub-directory of
// the configuration root, creating the root and/or the sub-directory
// as needed (§4.1, S3). Both are always unversioned and private.
func (h *Helper) GetConfigurationDirectoryListing(name string) (*listing.DirectoryListing, error) {
	const op = "directory.Helper.GetConfigurationDirectoryListing"
	root, err := h.configurationRoot()
	if err != nil {
		return nil, errors.E(op, err)
	}
	if info, ok := root.FindSubDirectory(name); ok {
		return h.Get(info.Key, safenfs.Private)
	}
	l, err := h.Create(name, nil, false, safenfs.Private, root)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return l, nil
}

func (h *Helper) configurationRoot() (*listing.DirectoryListing, error) {
	if id, ok := h.client.ConfigurationRootDirectoryID(); ok {
		key := safenfs.DirectoryKey{Name: id, Tag: safenfs.TagUnversionedDirectoryListing}
		return h.Get(key, safenfs.Private)
	}
	l, err := h.Create(safenfs.ConfigurationDirectoryName, nil, false, safenfs.Private, nil)
	if err != nil {
		return nil, err
	}
	if err := h.client.SetConfigurationRootDirectoryID(l.Info.Key.Name); err != nil {
		return nil, err
	}
	return l, nil
}
