// Package file implements the File Helper: create, update, read,
// rename-free metadata edits, deletion, and version history lookup
// for files living inside a listing. It sits directly on top of
// chunk (the self-encrypting data path) and directory (listing
// persistence), mirroring the layering file_helper.rs has over its
// self_encryption wrapper and directory_helper in the reference
// implementation this module's data model is drawn from.
package file

import (
	"time"

	"safenfs.io/chunk"
	"safenfs.io/directory"
	"safenfs.io/errors"
	"safenfs.io/listing"
	"safenfs.io/safenfs"
)

// Helper is the File Helper. Like directory.Helper it owns no state
// of its own beyond the substrate client and the directory.Helper it
// delegates listing persistence to.
type Helper struct {
	client safenfs.Client
	dirs   *directory.Helper
}

// New creates a Helper bound to client.
func New(client safenfs.Client) *Helper {
	return &Helper{client: client, dirs: directory.New(client)}
}

// Writer accumulates a file's content and, on Close, finalizes its
// DataMap and persists the owning listing (§4.3).
type Writer struct {
	helper       *Helper
	listing      *listing.DirectoryListing
	name         string
	userMetadata []byte
	created      time.Time
	chunkWriter  *chunk.Writer
}

// Create begins writing a new file named name into l. It fails
// errors.Exist if l already has a file by that name.
func (h *Helper) Create(name string, userMetadata []byte, l *listing.DirectoryListing) (*Writer, error) {
	const op = "file.Helper.Create"
	if name == "" {
		return nil, errors.E(op, errors.Invalid, errors.Str("name is empty"))
	}
	if _, ok := l.FindFile(name); ok {
		return nil, errors.E(op, errors.Exist, errors.Errorf("%q already exists", name))
	}
	cw, err := chunk.NewWriter(h.client, chunk.Overwrite, safenfs.DataMap{})
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &Writer{
		helper:       h,
		listing:      l,
		name:         name,
		userMetadata: userMetadata,
		created:      time.Now(),
		chunkWriter:  cw,
	}, nil
}

// Update begins rewriting the content of a file already present in l.
// In chunk.Overwrite mode the Writer starts empty; in chunk.Modify
// mode it is pre-loaded with existing's current plaintext so partial
// WriteAt calls can edit in place (§4.3).
func (h *Helper) Update(name string, mode chunk.Mode, l *listing.DirectoryListing) (*Writer, error) {
	const op = "file.Helper.Update"
	existing, ok := l.FindFile(name)
	if !ok {
		return nil, errors.E(op, errors.FileNotFound, errors.Errorf("%q not found", name))
	}
	cw, err := chunk.NewWriter(h.client, mode, existing.DataMap)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &Writer{
		helper:       h,
		listing:      l,
		name:         name,
		userMetadata: existing.Metadata.UserMetadata,
		created:      existing.Metadata.Created,
		chunkWriter:  cw,
	}, nil
}

// WriteAt writes b at offset off within the file being written.
func (w *Writer) WriteAt(b []byte, off int64) (int, error) {
	return w.chunkWriter.WriteAt(b, off)
}

// Write appends b to the file being written.
func (w *Writer) Write(b []byte) (int, error) {
	return w.chunkWriter.Write(b)
}

// Close finalizes the file's DataMap, upserts its FileMetadata into
// the owning listing, persists the listing and its parent, and
// returns the persisted listing (§4.3).
func (w *Writer) Close() (*listing.DirectoryListing, error) {
	const op = "file.Writer.Close"
	dataMap, err := w.chunkWriter.Close()
	if err != nil {
		return nil, errors.E(op, err)
	}
	now := time.Now()
	f := safenfs.File{
		Metadata: safenfs.FileMetadata{
			Name:         w.name,
			UserMetadata: w.userMetadata,
			Size:         dataMap.Size,
			Created:      w.created,
			Modified:     now,
		},
		DataMap: dataMap,
	}
	if err := w.listing.UpsertFile(f); err != nil {
		return nil, errors.E(op, err)
	}
	updated, _, err := w.helper.dirs.UpdateDirectoryListingAndParent(w.listing)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return updated, nil
}

// UpdateMetadata replaces the UserMetadata of the named file, without
// touching its content, and persists the owning listing.
func (h *Helper) UpdateMetadata(name string, userMetadata []byte, l *listing.DirectoryListing) (*listing.DirectoryListing, error) {
	const op = "file.Helper.UpdateMetadata"
	f, ok := l.FindFile(name)
	if !ok {
		return nil, errors.E(op, errors.FileNotFound, errors.Errorf("%q not found", name))
	}
	updatedFile := *f
	updatedFile.Metadata.UserMetadata = userMetadata
	updatedFile.Metadata.Modified = time.Now()
	if err := l.UpsertFile(updatedFile); err != nil {
		return nil, errors.E(op, err)
	}
	updated, _, err := h.dirs.UpdateDirectoryListingAndParent(l)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return updated, nil
}

// Delete removes the named file from l and persists l and its parent.
// Like directory.Helper.Delete, it does not reclaim the file's
// content blobs.
func (h *Helper) Delete(name string, l *listing.DirectoryListing) error {
	const op = "file.Helper.Delete"
	if !l.RemoveFile(name) {
		return errors.E(op, errors.FileNotFound, errors.Errorf("%q not found", name))
	}
	if _, _, err := h.dirs.UpdateDirectoryListingAndParent(l); err != nil {
		return errors.E(op, err)
	}
	return nil
}

// Reader provides random access over a file's plaintext content.
type Reader = chunk.Reader

// Read returns a Reader over the content of the named file in l.
func (h *Helper) Read(name string, l *listing.DirectoryListing) (*Reader, error) {
	const op = "file.Helper.Read"
	f, ok := l.FindFile(name)
	if !ok {
		return nil, errors.E(op, errors.FileNotFound, errors.Errorf("%q not found", name))
	}
	r, err := chunk.NewReader(h.client, f.DataMap)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return r, nil
}

// GetVersions returns every distinct snapshot of the named file found
// across l's version history, oldest to newest, detected by a change
// in FileMetadata.Modified between consecutive listing versions.
// Fails errors.Invalid if l's listing is not versioned.
func (h *Helper) GetVersions(name string, l *listing.DirectoryListing) ([]safenfs.File, error) {
	const op = "file.Helper.GetVersions"
	versions, err := h.dirs.GetVersions(l.Info.Key)
	if err != nil {
		return nil, errors.E(op, err)
	}

	var result []safenfs.File
	var lastModified time.Time
	for _, v := range versions {
		snap, err := h.dirs.GetByVersion(l.Info.Key, l.Info.AccessLevel, v)
		if err != nil {
			return nil, errors.E(op, err)
		}
		f, ok := snap.FindFile(name)
		if !ok {
			continue
		}
		if len(result) == 0 || !f.Metadata.Modified.Equal(lastModified) {
			result = append(result, *f)
			lastModified = f.Metadata.Modified
		}
	}
	return result, nil
}
