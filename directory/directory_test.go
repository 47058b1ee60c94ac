package directory

import (
	"testing"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/listing"
	"safenfs.io/safenfs"
	"safenfs.io/store"
)

func newTestHelper(t *testing.T) *Helper {
	signingKey, verifyingKey, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pub, sec, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return New(store.New(signingKey, verifyingKey, pub, sec))
}

// S1: create a directory, fetch it back, create a child under it.
func TestCreateFetchChild(t *testing.T) {
	h := newTestHelper(t)

	root, err := h.Create("top", []byte("meta"), false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}

	got, err := h.Get(root.Info.Key, safenfs.Private)
	if err != nil {
		t.Fatal(err)
	}
	if got.Info.Name != "top" {
		t.Errorf("Get().Info.Name = %q, want %q", got.Info.Name, "top")
	}

	child, err := h.Create("child", nil, false, safenfs.Private, root)
	if err != nil {
		t.Fatal(err)
	}

	refetchedRoot, err := h.Get(root.Info.Key, safenfs.Private)
	if err != nil {
		t.Fatal(err)
	}
	info, ok := refetchedRoot.FindSubDirectory("child")
	if !ok {
		t.Fatalf("parent does not list child after Create")
	}
	if info.Key != child.Info.Key {
		t.Errorf("child info key mismatch: got %v, want %v", info.Key, child.Info.Key)
	}
}

func TestCreateDuplicateNameUnderParentFails(t *testing.T) {
	h := newTestHelper(t)
	root, err := h.Create("top", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Create("child", nil, false, safenfs.Private, root); err != nil {
		t.Fatal(err)
	}
	if _, err := h.Create("child", nil, false, safenfs.Private, root); !errors.Is(errors.Exist, err) {
		t.Errorf("second Create(child) = %v, want errors.Exist", err)
	}
}

// S2: user-root bootstrap is idempotent across calls.
func TestUserRootBootstrapIdempotent(t *testing.T) {
	h := newTestHelper(t)
	first, err := h.GetUserRootDirectoryListing()
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.GetUserRootDirectoryListing()
	if err != nil {
		t.Fatal(err)
	}
	if first.Info.Key != second.Info.Key {
		t.Errorf("GetUserRootDirectoryListing() not idempotent: %v != %v", first.Info.Key, second.Info.Key)
	}
	if second.Info.Name != safenfs.RootDirectoryName {
		t.Errorf("root Name = %q, want %q", second.Info.Name, safenfs.RootDirectoryName)
	}
}

// S3: configuration sub-directory bootstrap is idempotent and nests
// under a shared configuration root.
func TestConfigurationDirectoryBootstrapIdempotent(t *testing.T) {
	h := newTestHelper(t)
	first, err := h.GetConfigurationDirectoryListing("shares")
	if err != nil {
		t.Fatal(err)
	}
	second, err := h.GetConfigurationDirectoryListing("shares")
	if err != nil {
		t.Fatal(err)
	}
	if first.Info.Key != second.Info.Key {
		t.Errorf("GetConfigurationDirectoryListing() not idempotent: %v != %v", first.Info.Key, second.Info.Key)
	}

	other, err := h.GetConfigurationDirectoryListing("contacts")
	if err != nil {
		t.Fatal(err)
	}
	if other.Info.Key == first.Info.Key {
		t.Errorf("distinct configuration sub-directories got the same key")
	}
}

// S4: updating a listing persists the change and bumps its version
// history for versioned listings.
func TestUpdateVersionedIncrementsVersions(t *testing.T) {
	h := newTestHelper(t)
	l, err := h.Create("versioned-dir", nil, true, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}

	l.UpsertSubDirectory(listing.DirectoryInfo{
		Key:  safenfs.DirectoryKey{Name: safenfs.NetworkNameOf([]byte("unrelated-sub")), Tag: safenfs.TagUnversionedDirectoryListing},
		Name: "unrelated-sub",
	})
	updated, err := h.Update(l)
	if err != nil {
		t.Fatal(err)
	}

	versions, err := h.GetVersions(updated.Info.Key)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Errorf("len(GetVersions()) = %d, want 2 (create + update)", len(versions))
	}
}

func TestGetVersionsRejectsUnversioned(t *testing.T) {
	h := newTestHelper(t)
	l, err := h.Create("plain-dir", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.GetVersions(l.Info.Key); !errors.Is(errors.Invalid, err) {
		t.Errorf("GetVersions(unversioned) = %v, want errors.Invalid", err)
	}
}

func TestUpdateDirectoryListingAndParentPropagates(t *testing.T) {
	h := newTestHelper(t)
	parent, err := h.Create("parent", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	child, err := h.Create("child", nil, false, safenfs.Private, parent)
	if err != nil {
		t.Fatal(err)
	}

	child.Info.UserMetadata = []byte("renamed-meta")
	_, newParent, err := h.UpdateDirectoryListingAndParent(child)
	if err != nil {
		t.Fatal(err)
	}
	if newParent == nil {
		t.Fatalf("expected a non-nil updated parent")
	}
	info, ok := newParent.FindSubDirectory("child")
	if !ok {
		t.Fatalf("updated parent no longer lists child")
	}
	if info.Key != child.Info.Key {
		t.Errorf("propagated child info key mismatch")
	}
}

func TestDeleteRemovesSubDirectoryNotChildRecord(t *testing.T) {
	h := newTestHelper(t)
	parent, err := h.Create("parent", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	child, err := h.Create("child", nil, false, safenfs.Private, parent)
	if err != nil {
		t.Fatal(err)
	}

	refetchedParent, err := h.Get(parent.Info.Key, safenfs.Private)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Delete(refetchedParent, "child"); err != nil {
		t.Fatal(err)
	}

	again, err := h.Get(parent.Info.Key, safenfs.Private)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := again.FindSubDirectory("child"); ok {
		t.Errorf("child still listed after Delete")
	}

	// The child's own record is untouched.
	if _, err := h.Get(child.Info.Key, safenfs.Private); err != nil {
		t.Errorf("Get(child) after parent Delete = %v, want nil (child record preserved)", err)
	}
}

func TestDeleteMissingChildFails(t *testing.T) {
	h := newTestHelper(t)
	parent, err := h.Create("parent", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Delete(parent, "nonexistent"); !errors.Is(errors.DirectoryNotFound, err) {
		t.Errorf("Delete(missing) = %v, want errors.DirectoryNotFound", err)
	}
}
