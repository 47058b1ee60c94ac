// +build !debug

package errors_test

import (
	"fmt"

	"safenfs.io/errors"
)

func ExampleError() {
	name := "alice@example.com/DirName"

	// Single error.
	e1 := errors.E("directory.Get", name, errors.IO, errors.Str("network unreachable"))
	fmt.Println("\nSimple error:")
	fmt.Println(e1)

	// Nested error.
	fmt.Println("\nNested error:")
	e2 := errors.E("directory.Lookup", name, errors.Other, e1)
	fmt.Println(e2)

	// Output:
	//
	// Simple error:
	// alice@example.com/DirName: directory.Get: storage client error: network unreachable
	//
	// Nested error:
	// alice@example.com/DirName: directory.Lookup: storage client error:
	//	directory.Get: network unreachable
}
