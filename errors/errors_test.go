// +build !debug

package errors

import (
	"os"
	"os/exec"
	"testing"
)

func TestDebug(t *testing.T) {
	// Test with -tags debug to run the tests in debug_test.go
	cmd := exec.Command("go", "test", "-tags", "debug")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("external go test failed: %v", err)
	}
}

func TestMarshal(t *testing.T) {
	name := "alice@example.com/DirName"

	e1 := E("directory.Get", name, IO, Str("network unreachable"))
	e2 := E("directory.Lookup", name, Other, e1)

	b := MarshalError(e2)
	e3 := UnmarshalError(b)

	if got, want := e3.Error(), e2.Error(); got != want {
		t.Errorf("e3.Error()=%q; want %q", got, want)
	}
}

func TestIs(t *testing.T) {
	err := E("directory.Get", "x", NotFound, Str("nope"))
	if !Is(NotFound, err) {
		t.Errorf("Is(NotFound, err) = false, want true")
	}
	if Is(Exist, err) {
		t.Errorf("Is(Exist, err) = true, want false")
	}
	if Is(NotFound, Str("plain error")) {
		t.Errorf("Is(NotFound, plain error) = true, want false")
	}
}

func TestKindPullUp(t *testing.T) {
	inner := E("store.Get", "x", IO, Str("timeout"))
	outer := E("directory.Lookup", "x", inner)
	if !Is(IO, outer) {
		t.Errorf("Is(IO, outer) = false, want true; outer.Kind should be pulled up from inner")
	}
}

func TestNoDuplicatePathOrKind(t *testing.T) {
	inner := E("store.Get", "x", IO, Str("timeout"))
	outer := E("directory.Lookup", "x", IO, inner)
	msg := outer.Error()
	if got := countOccurrences(msg, "x"); got != 1 {
		t.Errorf("path %q appears %d times in %q; want 1", "x", got, msg)
	}
}

func countOccurrences(s, substr string) int {
	n := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			n++
		}
	}
	return n
}
