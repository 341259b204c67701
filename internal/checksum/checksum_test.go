package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSum_Stable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Fatalf("same bytes produced different hashes: %s vs %s", a, b)
	}
	if len(a) != Size {
		t.Errorf("len = %d, want %d", len(a), Size)
	}
	if a != strings.ToLower(a) {
		t.Errorf("hash should be lowercase hex: %s", a)
	}
}

func TestSum_KnownVector(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != want {
		t.Errorf("Sum(empty) = %s, want %s", got, want)
	}
}

func TestSum_SingleByteDifference(t *testing.T) {
	if Sum([]byte("abc")) == Sum([]byte("abd")) {
		t.Error("different content should hash differently")
	}
	if Sum([]byte("line\n")) == Sum([]byte("line\r\n")) {
		t.Error("line endings must not be normalized")
	}
}

func TestSumFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.md")
	data := []byte("# Doc\n\nbody\n")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := SumFile(p)
	if err != nil {
		t.Fatalf("SumFile: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("SumFile = %s, want %s", got, Sum(data))
	}
	if _, err := SumFile(filepath.Join(t.TempDir(), "missing.md")); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestEqual(t *testing.T) {
	h := Sum([]byte("x"))
	if !Equal(h, strings.ToUpper(h)) {
		t.Error("Equal should ignore case")
	}
	if Equal(h, Sum([]byte("y"))) {
		t.Error("different digests compared equal")
	}
	if Equal(h, h[:10]) {
		t.Error("prefix compared equal")
	}
}
