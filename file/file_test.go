package file

import (
	"bytes"
	"testing"

	"safenfs.io/chunk"
	"safenfs.io/crypto"
	"safenfs.io/directory"
	"safenfs.io/errors"
	"safenfs.io/safenfs"
	"safenfs.io/store"
)

func newTestFixture(t *testing.T) (*Helper, *directory.Helper) {
	signingKey, verifyingKey, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	pub, sec, err := crypto.GenerateBoxKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	client := store.New(signingKey, verifyingKey, pub, sec)
	return New(client), directory.New(client)
}

// S5: write, read back, overwrite, and inspect history.
func TestCreateWriteReadOverwriteHistory(t *testing.T) {
	files, dirs := newTestFixture(t)

	l, err := dirs.Create("docs", nil, true, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := files.Create("a.txt", []byte("v1-meta"), l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	r, err := files.Read("a.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf, []byte("hello")) {
		t.Fatalf("read back %q, want %q", buf, "hello")
	}

	w2, err := files.Update("a.txt", chunk.Overwrite, l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w2.Write([]byte("goodbye!")); err != nil {
		t.Fatal(err)
	}
	l, err = w2.Close()
	if err != nil {
		t.Fatal(err)
	}

	r2, err := files.Read("a.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	buf2 := make([]byte, r2.Size())
	if _, err := r2.ReadAt(buf2, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf2, []byte("goodbye!")) {
		t.Fatalf("read back %q, want %q", buf2, "goodbye!")
	}

	versions, err := files.GetVersions("a.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 2 {
		t.Fatalf("len(GetVersions()) = %d, want 2", len(versions))
	}
	if string(versions[0].DataMap.Content) == string(versions[1].DataMap.Content) {
		t.Errorf("both snapshots have identical sealed content")
	}
}

func TestUpdateModifyPreservesUntouchedRange(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}

	w, err := files.Create("a.txt", nil, l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("0123456789")); err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	w2, err := files.Update("a.txt", chunk.Modify, l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w2.WriteAt([]byte("XYZ"), 3); err != nil {
		t.Fatal(err)
	}
	l, err = w2.Close()
	if err != nil {
		t.Fatal(err)
	}

	r, err := files.Read("a.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "012XYZ6789" {
		t.Fatalf("read back %q, want %q", buf, "012XYZ6789")
	}
}

func TestCreateDuplicateNameFails(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Create("a.txt", nil, l)
	if err != nil {
		t.Fatal(err)
	}
	if l, err = w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := files.Create("a.txt", nil, l); !errors.Is(errors.Exist, err) {
		t.Errorf("second Create(a.txt) = %v, want errors.Exist", err)
	}
}

func TestUpdateMetadataLeavesContentUntouched(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Create("a.txt", []byte("old"), l)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	l, err = files.UpdateMetadata("a.txt", []byte("new"), l)
	if err != nil {
		t.Fatal(err)
	}
	f, ok := l.FindFile("a.txt")
	if !ok {
		t.Fatalf("file missing after UpdateMetadata")
	}
	if string(f.Metadata.UserMetadata) != "new" {
		t.Errorf("UserMetadata = %q, want %q", f.Metadata.UserMetadata, "new")
	}

	r, err := files.Read("a.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, r.Size())
	if _, err := r.ReadAt(buf, 0); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "payload" {
		t.Errorf("content changed by UpdateMetadata: got %q", buf)
	}
}

// S6: delete a file and confirm it is gone from the listing.
func TestDeleteRemovesFileFromListing(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Create("a.txt", nil, l)
	if err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}

	if err := files.Delete("a.txt", l); err != nil {
		t.Fatal(err)
	}
	if _, ok := l.FindFile("a.txt"); ok {
		t.Errorf("file still present after Delete")
	}
	if _, err := files.Read("a.txt", l); !errors.Is(errors.FileNotFound, err) {
		t.Errorf("Read(deleted) = %v, want errors.FileNotFound", err)
	}
}

func TestDeleteMissingFileFails(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := files.Delete("missing.txt", l); !errors.Is(errors.FileNotFound, err) {
		t.Errorf("Delete(missing) = %v, want errors.FileNotFound", err)
	}
}

func TestGetVersionsRejectsUnversionedListing(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Create("a.txt", nil, l)
	if err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := files.GetVersions("a.txt", l); !errors.Is(errors.Invalid, err) {
		t.Errorf("GetVersions(unversioned listing) = %v, want errors.Invalid", err)
	}
}

func TestCreateEmptyFileRoundTrip(t *testing.T) {
	files, dirs := newTestFixture(t)
	l, err := dirs.Create("docs", nil, false, safenfs.Private, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := files.Create("empty.txt", nil, l)
	if err != nil {
		t.Fatal(err)
	}
	l, err = w.Close()
	if err != nil {
		t.Fatal(err)
	}
	r, err := files.Read("empty.txt", l)
	if err != nil {
		t.Fatal(err)
	}
	if r.Size() != 0 {
		t.Errorf("Size() = %d, want 0", r.Size())
	}
}
