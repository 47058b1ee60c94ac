// Package safenfs defines the types shared by every other package in
// this module: network names, directory keys, the self-encryption data
// map, structured records and immutable blobs, file metadata, and the
// Client capability interface that the directory and file helpers are
// built on. It plays the role upspin.io/upspin.go plays in the teacher
// tree: the central shared vocabulary that every other package imports
// and nothing in this package imports back.
package safenfs

import (
	"crypto/sha256"
	"fmt"
	"time"

	"safenfs.io/crypto"
)

// NetworkName is the content/identity key used to address both
// immutable blobs and structured records on the storage substrate. It
// is always the SHA-256 hash of some canonical representation of the
// thing it names, following the convention of upspin.io/key/sha256key.
type NetworkName [sha256.Size]byte

// ZeroNetworkName is the zero-valued NetworkName.
var ZeroNetworkName NetworkName

// String returns a hexadecimal representation of the name.
func (n NetworkName) String() string {
	return fmt.Sprintf("%x", [sha256.Size]byte(n))
}

// NetworkNameOf returns the NetworkName of data, i.e. its content address.
func NetworkNameOf(data []byte) NetworkName {
	return sha256.Sum256(data)
}

// Tag distinguishes the kind of structured record a DirectoryKey
// refers to, so that the same (owner, type) pair can address a
// directory listing, file metadata record, or any future structured
// record kind without collision.
type Tag uint64

// The well-known structured record tags used throughout this module.
const (
	TagUnversionedDirectoryListing Tag = iota
	TagVersionedDirectoryListing
	TagUnversionedFile
	TagVersionedFile
)

// DirectoryKey identifies a structured record: the tag distinguishes
// its kind, and Name is the network name the record is stored and
// retrieved under. A DirectoryKey is itself small enough to store
// inline inside a DirectoryListing entry.
type DirectoryKey struct {
	Name NetworkName
	Tag  Tag
}

// RootDirectoryName and ConfigurationDirectoryName are the two
// well-known names that every session's store bootstraps: the user's
// root directory listing and the hidden configuration directory
// listing, corresponding to the original's ROOT_DIRECTORY_NAME and
// CONFIGURATION_DIRECTORY_NAME constants.
const (
	RootDirectoryName          = "root"
	ConfigurationDirectoryName = "configuration"
)

// DataMapKind distinguishes the three shapes a DataMap can take.
type DataMapKind int

const (
	// DataMapNone is the DataMap of a zero-length file.
	DataMapNone DataMapKind = iota
	// DataMapContent holds small content inline, sealed but not chunked.
	DataMapContent
	// DataMapChunks holds a list of ChunkInfo records describing the
	// file's content split across self-encryption chunks.
	DataMapChunks
)

// ChunkInfo describes a single self-encryption chunk: where its sealed
// bytes live, the byte range of the plaintext it represents, and the
// wrapped key needed to open it.
type ChunkInfo struct {
	// Name is the content address of the chunk's sealed bytes.
	Name NetworkName
	// Offset and Size describe the plaintext range this chunk covers.
	Offset int64
	Size   int64
	// PreEncryptionHash is the SHA-256 of the chunk's plaintext,
	// recorded so WrapChunkKey/UnwrapChunkKey can derive the same
	// nonce deterministically when sealing and opening the chunk key.
	PreEncryptionHash [sha256.Size]byte
	// WrappedKey is the chunk's symmetric key, sealed under the
	// owning listing's box key pair.
	WrappedKey []byte
}

// DataMap is the self-encryption manifest produced by chunk.Writer and
// consumed by chunk.Reader. It is a tagged union: exactly one of
// Content or Chunks is meaningful, selected by Kind.
type DataMap struct {
	Kind DataMapKind

	// Content holds the sealed bytes of a tiny file (Kind ==
	// DataMapContent), along with its key, wrapped under the owning
	// listing's box key pair the same way a chunk's key is (§4.6).
	Content           []byte
	WrappedContentKey []byte
	PreEncryptionHash [sha256.Size]byte

	// Chunks describes a file split across one or more self-encryption
	// chunks (Kind == DataMapChunks).
	Chunks []ChunkInfo

	// Size is the total plaintext length represented by this map,
	// valid for every Kind.
	Size int64
}

// StructuredRecord is a mutable, signed, versioned record: the unit of
// storage for directory listings and file metadata. Unlike an
// ImmutableBlob, posting a new StructuredRecord under the same
// DirectoryKey updates what that key resolves to rather than creating
// a new name.
type StructuredRecord struct {
	// Payload is, for an unversioned listing, the canonical-encoded
	// listing itself (sealed if Private); for a versioned listing, the
	// NetworkName of the ImmutableBlob holding that version's snapshot.
	Payload []byte
	// Signature authenticates Payload under the owner's verifying key.
	Signature []byte
	// Version increases by one on every successful update; the zero
	// value means "never written".
	Version uint64
}

// ImmutableBlob is a content-addressed, write-once byte blob: the unit
// of storage for self-encryption chunks. Its NetworkName is always
// NetworkNameOf(its own bytes), so two identical blobs always collide
// to the same name and writing it twice is a no-op.
type ImmutableBlob struct {
	Data []byte
}

// AccessLevel controls whether a listing's serialized payload is
// sealed under the session's keypair (Private) or stored as plain
// bytes (Public). It is fixed at creation and never changes (§3.2).
type AccessLevel int

const (
	Private AccessLevel = iota
	Public
)

// FileMetadata carries the application-visible attributes of a file,
// distinct from the DataMap that describes where its bytes live.
type FileMetadata struct {
	Name string
	// UserMetadata is an opaque blob the caller may attach and later
	// read back verbatim; never interpreted by this module.
	UserMetadata []byte
	Size         int64
	Created      time.Time
	Modified     time.Time
}

// File is the structured-record payload referenced by a file entry in
// a DirectoryListing: its metadata plus the DataMap describing its
// content.
type File struct {
	Metadata FileMetadata
	DataMap  DataMap
}

// DataKind names the two kinds of addressable data on the substrate:
// immutable blobs and structured records. They live in disjoint
// namespaces even though both are addressed by NetworkName; Client
// reaches them through separate methods (PutBlob/GetBlob and
// PostRecord/GetRecord) rather than by taking a DataKind.
type DataKind int

const (
	// KindImmutableBlob addresses an ImmutableBlob.
	KindImmutableBlob DataKind = iota
	// KindStructuredRecord addresses a StructuredRecord.
	KindStructuredRecord
)

// Client is the capability set this module needs from the storage
// substrate: content-addressed immutable blobs, mutable signed
// structured records, the session's own keys, and the two well-known
// root directory identifiers. It corresponds to upspin.io's split
// between upspin.Client and upspin.StoreServer, collapsed into one
// interface because this module treats "the substrate" as a single
// collaborator rather than a federation of dir/store/key servers.
//
// The only implementation in this module is store.Client, an
// in-process reference implementation; real network RPC, routing, and
// replication are out of scope (see SPEC_FULL.md §1, §6).
type Client interface {
	// PutBlob stores data as an ImmutableBlob and returns its content
	// address. Putting the same bytes twice is idempotent.
	PutBlob(data []byte) (NetworkName, error)
	// GetBlob retrieves a previously stored ImmutableBlob by name.
	GetBlob(name NetworkName) ([]byte, error)

	// PostRecord writes (or updates) the StructuredRecord addressed by
	// key, incrementing its Version.
	PostRecord(key DirectoryKey, record StructuredRecord) error
	// GetRecord retrieves the current StructuredRecord addressed by key.
	GetRecord(key DirectoryKey) (StructuredRecord, error)
	// GetRecordVersion retrieves a specific past version of the
	// StructuredRecord addressed by key.
	GetRecordVersion(key DirectoryKey, version uint64) (StructuredRecord, error)
	// RecordVersions returns the version numbers on file for key, in
	// ascending order.
	RecordVersions(key DirectoryKey) ([]uint64, error)

	// ComputeName derives the NetworkName a DirectoryKey with the
	// given tag and owner-relative discriminator resolves to. Helpers
	// use this to compute child keys without a round trip.
	ComputeName(tag Tag, discriminator []byte) NetworkName

	// SigningKey and VerifyingKey are the session's Ed25519 key pair,
	// used to sign and verify StructuredRecord payloads.
	SigningKey() crypto.SigningKey
	VerifyingKey() crypto.VerifyingKey
	// EncryptionKey and SecretEncryptionKey are the session's box key
	// pair, used to seal and open private listing and file payloads.
	EncryptionKey() crypto.PublicKey
	SecretEncryptionKey() crypto.SecretKey

	// UserRootDirectoryID and ConfigurationRootDirectoryID return the
	// well-known root identifiers once they have been created, and ok
	// == false before that.
	UserRootDirectoryID() (NetworkName, bool)
	SetUserRootDirectoryID(NetworkName) error
	ConfigurationRootDirectoryID() (NetworkName, bool)
	SetConfigurationRootDirectoryID(NetworkName) error
}
