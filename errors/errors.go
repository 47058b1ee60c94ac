// Package errors defines the error handling used throughout safenfs.io.
package errors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"runtime"

	"safenfs.io/log"
)

// Error is the type that implements the error interface.
// It contains a number of fields, each of different type.
// An Error value may leave some values unset.
type Error struct {
	// Path is the name of the item being accessed: a directory name,
	// a file name, or a NetworkName's string form, whichever is most
	// relevant to the call that failed.
	Path string
	// Op is the operation being performed, usually the name of the
	// method being invoked (Create, Get, Put, ...).
	Op string
	// Kind is the class of error, such as not-found or conflict,
	// or Other if its class is unknown or irrelevant.
	Kind Kind
	// The underlying error that triggered this one, if any.
	Err error

	stack
}

var (
	_       error = (*Error)(nil)
	zeroErr Error
)

// Separator is the string used to separate nested errors. By default,
// to make errors easier on the eye, nested errors are indented on a new
// line. A server may instead choose to keep each error on a single line
// by modifying the separator string, perhaps to ":: ".
var Separator = ":\n\t"

// Kind defines the kind of error this is, matching the taxonomy of §7:
// not-found family, conflict family, invariant violation, persistence
// failure, and substrate pass-through.
type Kind uint8

// Kinds of errors.
const (
	Other Kind = iota // Unclassified error; not printed in the message.

	// Not-found family.
	NotFound          // A lookup in a listing or in the substrate found nothing.
	DirectoryNotFound // A named sub-directory does not exist in its parent.
	FileNotFound      // A named file does not exist in its listing.

	// Conflict family.
	Exist                   // An upsert or create was refused because the name already exists.
	SourceEqualsDestination // A move/rename targeted its own source name.

	// Invariant violation.
	Invalid // Caller-supplied data violates a model invariant (empty name, bad range, corrupt metadata).

	// Persistence failure.
	UpdateFailed // The substrate rejected an update, typically a version-conflict post.

	// Substrate pass-through.
	IO // Opaque wrapper around the storage client's own error (network, serialization, crypto, unexpected data).
)

func (k Kind) String() string {
	switch k {
	case Other:
		return "other error"
	case NotFound:
		return "not found"
	case DirectoryNotFound:
		return "directory not found"
	case FileNotFound:
		return "file not found"
	case Exist:
		return "already exists"
	case SourceEqualsDestination:
		return "destination and source are the same"
	case Invalid:
		return "invalid operation"
	case UpdateFailed:
		return "failed to persist update"
	case IO:
		return "storage client error"
	}
	return "unknown error kind"
}

// E builds an error value from its arguments.
// The type of each argument determines its meaning.
// If more than one argument of a given type is presented,
// only the last one is recorded.
//
// The types are:
//	string
//		Interpreted as the Op the first time it's seen, and as the
//		Path every subsequent time (this mirrors the common call
//		shape errors.E(op, name, kind, err)).
//	errors.Kind
//		The class of error, such as NotFound or Exist.
//	error
//		The underlying error that triggered this one.
//
// If the error is printed, only those items that have been set to
// non-zero values will appear in the result.
//
// If Kind is not specified or Other, we set it to the Kind of the
// underlying error.
func E(args ...interface{}) error {
	if len(args) == 0 {
		return nil
	}
	e := &Error{}
	e.populateStack()
	sawOp := false
	for _, arg := range args {
		switch arg := arg.(type) {
		case string:
			if !sawOp {
				e.Op = arg
				sawOp = true
			} else {
				e.Path = arg
			}
		case Kind:
			e.Kind = arg
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			_, file, line, _ := runtime.Caller(1)
			log.Printf("errors.E: bad call from %s:%d: %v", file, line, args)
			return Errorf("unknown type %T, value %v in error call", arg, arg)
		}
	}
	prev, ok := e.Err.(*Error)
	if !ok {
		return e
	}

	// The previous error was also one of ours. Suppress duplication so
	// the message won't contain the same kind or path twice.
	if prev.Path == e.Path {
		prev.Path = ""
	}
	if prev.Kind == e.Kind {
		prev.Kind = Other
	}
	if e.Kind == Other {
		e.Kind = prev.Kind
		prev.Kind = Other
	}
	return e
}

// Is reports whether err is an *Error of the given Kind, unwrapping
// nested *Error values until it finds one (or runs out).
func Is(kind Kind, err error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	if e.Kind != Other {
		return e.Kind == kind
	}
	if e.Err != nil {
		return Is(kind, e.Err)
	}
	return false
}

// pad appends str to the buffer if the buffer already has some data.
func pad(b *bytes.Buffer, str string) {
	if b.Len() == 0 {
		return
	}
	b.WriteString(str)
}

func (e *Error) Error() string {
	b := new(bytes.Buffer)
	if e.Path != "" {
		b.WriteString(e.Path)
	}
	if e.Op != "" {
		pad(b, ": ")
		b.WriteString(e.Op)
	}
	if e.Kind != 0 {
		pad(b, ": ")
		b.WriteString(e.Kind.String())
	}
	if e.Err != nil {
		if prevErr, ok := e.Err.(*Error); ok {
			if prevErr.Path != "" || prevErr.Op != "" || prevErr.Kind != 0 || prevErr.Err != nil {
				pad(b, Separator)
				b.WriteString(e.Err.Error())
			}
		} else {
			pad(b, ": ")
			b.WriteString(e.Err.Error())
		}
	}
	e.printStack(b)
	if b.Len() == 0 {
		return "no error"
	}
	return b.String()
}

// Str returns an error that formats as the given text. It is intended
// to be used as the error-typed argument to the E function.
func Str(text string) error {
	return &errorString{text}
}

// errorString is a trivial implementation of error.
type errorString struct {
	s string
}

func (e *errorString) Error() string {
	return e.s
}

// Errorf is equivalent to fmt.Errorf, but allows clients to import only
// this package for all error handling.
func Errorf(format string, args ...interface{}) error {
	return &errorString{fmt.Sprintf(format, args...)}
}

// appendString and getBytes retain the wire-compatible varint-length
// encoding used elsewhere in this module's canonical binary formats, kept
// here only for MarshalError/UnmarshalError below.
func appendString(b []byte, str string) []byte {
	var tmp [16]byte
	n := binary.PutUvarint(tmp[:], uint64(len(str)))
	b = append(b, tmp[:n]...)
	b = append(b, str...)
	return b
}

func getBytes(b []byte) (data, remaining []byte) {
	u, n := binary.Uvarint(b)
	if n <= 0 || len(b) < n+int(u) {
		return nil, nil
	}
	return b[n : n+int(u)], b[n+int(u):]
}

// MarshalError marshals an arbitrary error into a byte slice, so that it
// can travel inside a StructuredRecord's payload (e.g. a failed Put's
// response) the same way upspin.io/errors ships errors across its RPC
// boundary. If err is nil, it returns nil.
func MarshalError(err error) []byte {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		b := []byte{'E'}
		b = appendString(b, e.Path)
		b = appendString(b, e.Op)
		var tmp [16]byte
		n := binary.PutVarint(tmp[:], int64(e.Kind))
		b = append(b, tmp[:n]...)
		return append(b, MarshalError(e.Err)...)
	}
	b := []byte{'e'}
	return appendString(b, err.Error())
}

// UnmarshalError is the inverse of MarshalError.
func UnmarshalError(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	code := b[0]
	b = b[1:]
	switch code {
	case 'e':
		data, _ := getBytes(b)
		return Str(string(data))
	case 'E':
		var e Error
		var data []byte
		data, b = getBytes(b)
		e.Path = string(data)
		data, b = getBytes(b)
		e.Op = string(data)
		k, n := binary.Varint(b)
		e.Kind = Kind(k)
		b = b[n:]
		e.Err = UnmarshalError(b)
		return &e
	default:
		return Str(string(b))
	}
}
