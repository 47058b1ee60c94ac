package safenfs

import (
	"encoding/binary"
	"time"
)

// This file implements canonical, deterministic binary marshaling for
// the types in this package, following the accumulator/consumer
// pattern of upspin.io/upspin/code.go: bit-exact round trips matter
// here because a StructuredRecord's sealed Payload is hashed into the
// network name of versioned snapshot blobs (§3.2), so the encoding of
// a given value must never vary between two runs of this code. A
// general-purpose serialization library does not make that guarantee
// (field order, struct tags, optional-field defaulting are all free to
// change between versions); a small hand-rolled encoder does, which is
// exactly why the teacher itself reaches for one here instead of its
// own protobuf machinery.
//
// Encoder/Decoder are exported so the listing package, whose
// DirectoryListing/DirectoryInfo also need bit-exact serialization,
// can compose them instead of duplicating the varint plumbing.

// Encoder buffers a marshaled value. Appending to it cannot fail, so
// none of its methods return an error.
type Encoder struct {
	buf []byte
	tmp [binary.MaxVarintLen64]byte
}

func (acc *Encoder) Byte(b byte) {
	acc.buf = append(acc.buf, b)
}

func (acc *Encoder) Uint64(v uint64) {
	n := binary.PutUvarint(acc.tmp[:], v)
	acc.buf = append(acc.buf, acc.tmp[:n]...)
}

func (acc *Encoder) Int64(v int64) {
	n := binary.PutVarint(acc.tmp[:], v)
	acc.buf = append(acc.buf, acc.tmp[:n]...)
}

func (acc *Encoder) Bytes(b []byte) {
	acc.Uint64(uint64(len(b)))
	acc.buf = append(acc.buf, b...)
}

func (acc *Encoder) String(s string) {
	acc.Bytes([]byte(s))
}

func (acc *Encoder) Fixed32(b [32]byte) {
	acc.buf = append(acc.buf, b[:]...)
}

func (acc *Encoder) Time(t time.Time) {
	acc.Int64(t.UTC().UnixNano())
}

func (acc *Encoder) Result() []byte {
	return acc.buf
}

// Decoder unmarshals a value produced by Encoder, tracking the first
// error encountered rather than returning one from every call.
type Decoder struct {
	buf []byte
	err error
}

// NewDecoder creates a Decoder over b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

func (c *Decoder) Byte() byte {
	if c.err != nil || len(c.buf) == 0 {
		if c.err == nil {
			c.err = ErrTooShort
		}
		return 0
	}
	b := c.buf[0]
	c.buf = c.buf[1:]
	return b
}

func (c *Decoder) Uint64() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.buf)
	if n <= 0 {
		c.err = ErrTooShort
		return 0
	}
	c.buf = c.buf[n:]
	return v
}

func (c *Decoder) Int64() int64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Varint(c.buf)
	if n <= 0 {
		c.err = ErrTooShort
		return 0
	}
	c.buf = c.buf[n:]
	return v
}

func (c *Decoder) Bytes() []byte {
	if c.err != nil {
		return nil
	}
	n := c.Uint64()
	if c.err != nil {
		return nil
	}
	if uint64(len(c.buf)) < n {
		c.err = ErrTooShort
		return nil
	}
	b := append([]byte(nil), c.buf[:n]...)
	c.buf = c.buf[n:]
	return b
}

func (c *Decoder) String() string {
	return string(c.Bytes())
}

func (c *Decoder) Fixed32() (b [32]byte) {
	if c.err != nil {
		return
	}
	if len(c.buf) < 32 {
		c.err = ErrTooShort
		return
	}
	copy(b[:], c.buf[:32])
	c.buf = c.buf[32:]
	return
}

func (c *Decoder) Remainder() ([]byte, error) {
	return c.buf, c.err
}

func (c *Decoder) Err() error {
	return c.err
}

func (c *Decoder) Time() time.Time {
	return time.Unix(0, c.Int64()).UTC()
}

// ErrTooShort is returned when unmarshaling runs out of input bytes.
var ErrTooShort = marshalError("safenfs: buffer too short while unmarshaling")

type marshalError string

func (e marshalError) Error() string { return string(e) }

// Marshal returns the canonical binary encoding of a FileMetadata.
func (m *FileMetadata) Marshal() []byte {
	acc := &Encoder{}
	acc.String(m.Name)
	acc.Bytes(m.UserMetadata)
	acc.Int64(m.Size)
	acc.Time(m.Created)
	acc.Time(m.Modified)
	return acc.Result()
}

// Unmarshal decodes a FileMetadata produced by Marshal.
func (m *FileMetadata) Unmarshal(b []byte) error {
	c := NewDecoder(b)
	m.Name = c.String()
	m.UserMetadata = c.Bytes()
	m.Size = c.Int64()
	m.Created = c.Time()
	m.Modified = c.Time()
	_, err := c.Remainder()
	return err
}

// marshalTo appends the canonical binary encoding of a ChunkInfo to acc.
func (ci *ChunkInfo) marshalTo(acc *Encoder) {
	acc.Fixed32(ci.Name)
	acc.Int64(ci.Offset)
	acc.Int64(ci.Size)
	acc.Fixed32(ci.PreEncryptionHash)
	acc.Bytes(ci.WrappedKey)
}

func (ci *ChunkInfo) unmarshalFrom(c *Decoder) {
	ci.Name = c.Fixed32()
	ci.Offset = c.Int64()
	ci.Size = c.Int64()
	ci.PreEncryptionHash = c.Fixed32()
	ci.WrappedKey = c.Bytes()
}

// Marshal returns the canonical binary encoding of a DataMap.
func (d *DataMap) Marshal() []byte {
	acc := &Encoder{}
	acc.Byte(byte(d.Kind))
	acc.Int64(d.Size)
	switch d.Kind {
	case DataMapContent:
		acc.Bytes(d.Content)
		acc.Bytes(d.WrappedContentKey)
		acc.Fixed32(d.PreEncryptionHash)
	case DataMapChunks:
		acc.Uint64(uint64(len(d.Chunks)))
		for i := range d.Chunks {
			d.Chunks[i].marshalTo(acc)
		}
	}
	return acc.Result()
}

// Unmarshal decodes a DataMap produced by Marshal.
func (d *DataMap) Unmarshal(b []byte) error {
	c := NewDecoder(b)
	d.Kind = DataMapKind(c.Byte())
	d.Size = c.Int64()
	switch d.Kind {
	case DataMapContent:
		d.Content = c.Bytes()
		d.WrappedContentKey = c.Bytes()
		d.PreEncryptionHash = c.Fixed32()
	case DataMapChunks:
		n := c.Uint64()
		d.Chunks = make([]ChunkInfo, n)
		for i := range d.Chunks {
			d.Chunks[i].unmarshalFrom(c)
		}
	}
	_, err := c.Remainder()
	return err
}

// Marshal returns the canonical binary encoding of a File.
func (f *File) Marshal() []byte {
	acc := &Encoder{}
	acc.Bytes(f.Metadata.Marshal())
	acc.Bytes(f.DataMap.Marshal())
	return acc.Result()
}

// Unmarshal decodes a File produced by Marshal.
func (f *File) Unmarshal(b []byte) error {
	c := NewDecoder(b)
	metaBytes := c.Bytes()
	dataMapBytes := c.Bytes()
	if _, err := c.Remainder(); err != nil {
		return err
	}
	if err := f.Metadata.Unmarshal(metaBytes); err != nil {
		return err
	}
	return f.DataMap.Unmarshal(dataMapBytes)
}

// MarshalTo appends the canonical binary encoding of a DirectoryKey to acc.
func (k *DirectoryKey) MarshalTo(acc *Encoder) {
	acc.Fixed32(k.Name)
	acc.Uint64(uint64(k.Tag))
}

// UnmarshalFrom decodes a DirectoryKey from c.
func (k *DirectoryKey) UnmarshalFrom(c *Decoder) {
	k.Name = c.Fixed32()
	k.Tag = Tag(c.Uint64())
}

// Marshal returns the canonical binary encoding of a DirectoryKey.
func (k *DirectoryKey) Marshal() []byte {
	acc := &Encoder{}
	k.MarshalTo(acc)
	return acc.Result()
}

// Unmarshal decodes a DirectoryKey produced by Marshal.
func (k *DirectoryKey) Unmarshal(b []byte) error {
	c := NewDecoder(b)
	k.UnmarshalFrom(c)
	_, err := c.Remainder()
	return err
}
