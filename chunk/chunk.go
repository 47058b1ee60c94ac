// Package chunk implements the self-encrypting chunker: a streaming
// Writer that turns an arbitrary byte stream into a safenfs.DataMap,
// and a random-access Reader that turns a DataMap back into bytes. It
// plays the role upspin.io/client/file.File plays for the teacher's
// single in-memory-buffer model, generalized to split large content
// into independently addressable, independently fetchable chunks the
// way a real self-encrypting store would.
package chunk

import (
	"crypto/sha256"

	"golang.org/x/sync/errgroup"

	"safenfs.io/crypto"
	"safenfs.io/errors"
	"safenfs.io/safenfs"
)

// Size is the plaintext size of a single self-encryption chunk, chosen
// to match typical self-encryption chunk sizing (large enough to
// amortize per-chunk overhead, small enough to keep random-access
// reads from pulling in unrelated data).
const Size = 1 << 20 // 1MiB

// InlineThreshold is the largest plaintext that is stored inline in a
// DataMap's Content field instead of being split into chunks (the
// "tiny file" case of §3.1).
const InlineThreshold = 4096

// maxInt is the largest value an int can hold on this platform, used
// to bound growth the same way client/file.File does.
var maxInt = int64(^uint(0) >> 1)

// Mode selects how a Writer treats content already on file.
type Mode int

const (
	// Overwrite discards any existing content; the Writer starts from
	// an empty buffer.
	Overwrite Mode = iota
	// Modify loads the existing DataMap's plaintext into the buffer
	// before any writes are applied, so partial WriteAt calls can edit
	// in place without clobbering untouched ranges.
	Modify
)

// Writer accumulates writes into an in-memory buffer and produces a
// safenfs.DataMap on Close, sealing and storing chunks as needed. It
// keeps the whole file in memory under the same assumption
// client/file.File does: content must be sealed and named atomically,
// so there is no benefit to partial flushing before Close.
type Writer struct {
	client safenfs.Client
	data   []byte
	closed bool
}

// NewWriter creates a Writer. In Modify mode, existing is read in full
// (via a Reader) before any writes are accepted.
func NewWriter(client safenfs.Client, mode Mode, existing safenfs.DataMap) (*Writer, error) {
	w := &Writer{client: client}
	if mode == Modify && existing.Size > 0 {
		r, err := NewReader(client, existing)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, existing.Size)
		if _, err := r.ReadAt(buf, 0); err != nil {
			return nil, err
		}
		w.data = buf
	}
	return w, nil
}

// WriteAt writes b at offset off, growing the buffer as needed.
func (w *Writer) WriteAt(b []byte, off int64) (n int, err error) {
	const op = "chunk.Writer.WriteAt"
	if w.closed {
		return 0, errors.E(op, errors.Invalid, errors.Str("writer is closed"))
	}
	if off < 0 {
		return 0, errors.E(op, errors.Invalid, errors.Str("negative offset"))
	}
	end := off + int64(len(b))
	if end > maxInt {
		return 0, errors.E(op, errors.Invalid, errors.Str("content too long"))
	}
	if end > int64(cap(w.data)) {
		nLen := end * 3 / 2
		if nLen > maxInt {
			nLen = maxInt
		}
		ndata := make([]byte, len(w.data), nLen)
		copy(ndata, w.data)
		w.data = ndata
	}
	if end > int64(len(w.data)) {
		w.data = w.data[:end]
	}
	copy(w.data[off:], b)
	return len(b), nil
}

// Write appends b to the end of the buffer.
func (w *Writer) Write(b []byte) (n int, err error) {
	return w.WriteAt(b, int64(len(w.data)))
}

// Close seals the accumulated content and returns the resulting
// DataMap. The Writer must not be used again afterward.
func (w *Writer) Close() (safenfs.DataMap, error) {
	const op = "chunk.Writer.Close"
	if w.closed {
		return safenfs.DataMap{}, errors.E(op, errors.Invalid, errors.Str("already closed"))
	}
	w.closed = true

	size := int64(len(w.data))
	if size == 0 {
		return safenfs.DataMap{Kind: safenfs.DataMapNone}, nil
	}

	pub := w.client.EncryptionKey()
	sec := w.client.SecretEncryptionKey()

	if size <= InlineThreshold {
		key, err := crypto.GenerateChunkKey()
		if err != nil {
			return safenfs.DataMap{}, errors.E(op, err)
		}
		sealed, err := crypto.SealChunk(w.data, key)
		if err != nil {
			return safenfs.DataMap{}, errors.E(op, err)
		}
		hash := sha256.Sum256(w.data)
		wrapped := crypto.WrapChunkKey(key, hash, pub, sec)
		return safenfs.DataMap{
			Kind:              safenfs.DataMapContent,
			Content:           sealed,
			WrappedContentKey: wrapped,
			PreEncryptionHash: hash,
			Size:              size,
		}, nil
	}

	var chunks []safenfs.ChunkInfo
	for off := int64(0); off < size; off += Size {
		end := off + Size
		if end > size {
			end = size
		}
		plain := w.data[off:end]

		key, err := crypto.GenerateChunkKey()
		if err != nil {
			return safenfs.DataMap{}, errors.E(op, err)
		}
		sealed, err := crypto.SealChunk(plain, key)
		if err != nil {
			return safenfs.DataMap{}, errors.E(op, err)
		}
		hash := sha256.Sum256(plain)
		wrapped := crypto.WrapChunkKey(key, hash, pub, sec)

		name, err := w.client.PutBlob(sealed)
		if err != nil {
			return safenfs.DataMap{}, errors.E(op, errors.IO, err)
		}
		chunks = append(chunks, safenfs.ChunkInfo{
			Name:              name,
			Offset:            off,
			Size:              end - off,
			PreEncryptionHash: hash,
			WrappedKey:        wrapped,
		})
	}

	return safenfs.DataMap{Kind: safenfs.DataMapChunks, Chunks: chunks, Size: size}, nil
}

// Reader provides random access over the plaintext described by a
// safenfs.DataMap, fetching and opening only the chunks a given read
// actually needs.
type Reader struct {
	client  safenfs.Client
	dataMap safenfs.DataMap
}

// NewReader creates a Reader over dataMap.
func NewReader(client safenfs.Client, dataMap safenfs.DataMap) (*Reader, error) {
	return &Reader{client: client, dataMap: dataMap}, nil
}

// Size returns the total plaintext length described by the DataMap.
func (r *Reader) Size() int64 {
	return r.dataMap.Size
}

// ReadAt fills dst from the plaintext starting at off, returning the
// number of bytes read. Chunks that intersect the requested range are
// fetched and opened concurrently (§5).
func (r *Reader) ReadAt(dst []byte, off int64) (n int, err error) {
	const op = "chunk.Reader.ReadAt"
	if off < 0 {
		return 0, errors.E(op, errors.Invalid, errors.Str("negative offset"))
	}
	length := int64(len(dst))
	if off+length > r.dataMap.Size {
		if off == 0 && length == 0 {
			return 0, nil
		}
		return 0, errors.E(op, errors.Invalid, errors.Errorf("range [%d,%d) beyond end of content (%d)", off, off+length, r.dataMap.Size))
	}

	switch r.dataMap.Kind {
	case safenfs.DataMapNone:
		return 0, nil
	case safenfs.DataMapContent:
		pub := r.client.EncryptionKey()
		sec := r.client.SecretEncryptionKey()
		key, err := crypto.UnwrapChunkKey(r.dataMap.WrappedContentKey, r.dataMap.PreEncryptionHash, pub, sec)
		if err != nil {
			return 0, errors.E(op, err)
		}
		clear, err := crypto.OpenChunk(r.dataMap.Content, key)
		if err != nil {
			return 0, errors.E(op, err)
		}
		return copy(dst, clear[off:off+length]), nil
	case safenfs.DataMapChunks:
		return r.readChunks(op, dst, off)
	default:
		return 0, errors.E(op, errors.Invalid, errors.Str("unrecognized data map kind"))
	}
}

func (r *Reader) readChunks(op string, dst []byte, off int64) (int, error) {
	pub := r.client.EncryptionKey()
	sec := r.client.SecretEncryptionKey()
	end := off + int64(len(dst))

	var relevant []int
	for i := range r.dataMap.Chunks {
		c := &r.dataMap.Chunks[i]
		if c.Offset+c.Size <= off || c.Offset >= end {
			continue
		}
		relevant = append(relevant, i)
	}

	plains := make([][]byte, len(relevant))
	g := new(errgroup.Group)
	for idx, chunkIdx := range relevant {
		idx, chunkIdx := idx, chunkIdx
		g.Go(func() error {
			c := &r.dataMap.Chunks[chunkIdx]
			sealed, err := r.client.GetBlob(c.Name)
			if err != nil {
				return errors.E(op, errors.IO, err)
			}
			key, err := crypto.UnwrapChunkKey(c.WrappedKey, c.PreEncryptionHash, pub, sec)
			if err != nil {
				return err
			}
			clear, err := crypto.OpenChunk(sealed, key)
			if err != nil {
				return err
			}
			plains[idx] = clear
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	n := 0
	for idx, chunkIdx := range relevant {
		c := &r.dataMap.Chunks[chunkIdx]
		clear := plains[idx]
		loStart := int64(0)
		if off > c.Offset {
			loStart = off - c.Offset
		}
		hiEnd := c.Size
		if end < c.Offset+c.Size {
			hiEnd = end - c.Offset
		}
		dstStart := c.Offset + loStart - off
		n += copy(dst[dstStart:], clear[loStart:hiEnd])
	}
	return n, nil
}
