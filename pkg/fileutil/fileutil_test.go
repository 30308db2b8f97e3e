package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	if Exists(filepath.Join(tmpDir, "nonexistent")) {
		t.Error("Exists returned true for non-existent file")
	}

	path := filepath.Join(tmpDir, "exists.txt")
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatal(err)
	}
	if !Exists(path) {
		t.Error("Exists returned false for existing file")
	}
}

func TestSwapExt(t *testing.T) {
	tests := []struct {
		path, from, to, want string
	}{
		{"/db/pcr.sas7bdat", ".sas7bdat", ".parquet", "/db/pcr.parquet"},
		{"/db/pcr.parquet", ".parquet", ".sas7bdat", "/db/pcr.sas7bdat"},
		{"pcr.sas7bdat", ".sas7bdat", ".parquet", "pcr.parquet"},
		{"/db/a.b.sas7bdat", ".sas7bdat", ".parquet", "/db/a.b.parquet"},
		{"/db/noext", ".sas7bdat", ".parquet", "/db/noext.parquet"},
		{"/db/.sas7bdat", ".sas7bdat", ".parquet", "/db/.parquet"},
	}
	for _, tt := range tests {
		if got := SwapExt(tt.path, tt.from, tt.to); got != tt.want {
			t.Errorf("SwapExt(%q, %q, %q) = %q, want %q", tt.path, tt.from, tt.to, got, tt.want)
		}
	}
}

func TestListExt(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.sas7bdat", "a.sas7bdat", "c.parquet", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.sas7bdat"), 0755); err != nil {
		t.Fatal(err)
	}

	got, err := ListExt(dir, ".sas7bdat")
	if err != nil {
		t.Fatalf("ListExt: %v", err)
	}
	want := []string{filepath.Join(dir, "a.sas7bdat"), filepath.Join(dir, "b.sas7bdat")}
	if len(got) != len(want) {
		t.Fatalf("ListExt = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListExt[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if _, err := ListExt(filepath.Join(dir, "missing"), ".sas7bdat"); err == nil {
		t.Error("ListExt should fail for a missing directory")
	}
}

func TestShred(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "src.sas7bdat")
	if err := os.WriteFile(path, []byte("sensitive"), 0644); err != nil {
		t.Fatal(err)
	}

	// A handle opened before shredding sees the truncated content.
	held, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer held.Close()

	if err := Shred(path); err != nil {
		t.Fatalf("Shred: %v", err)
	}
	if Exists(path) {
		t.Error("file still exists after Shred")
	}

	info, err := held.Stat()
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Errorf("held handle sees %d bytes, want 0", info.Size())
	}
}

func TestShredMissing(t *testing.T) {
	if err := Shred(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Shred should fail for a missing file")
	}
}

func TestWriteTmpThenMove(t *testing.T) {
	tmpDir := t.TempDir()
	outDir := t.TempDir()
	outPath := filepath.Join(outDir, "output.txt")

	content := []byte("test content")
	err := WriteTmpThenMove(tmpDir, outPath, func(tmpPath string) error {
		return os.WriteFile(tmpPath, content, 0644)
	})
	if err != nil {
		t.Fatalf("WriteTmpThenMove failed: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("Content mismatch: got %q, want %q", got, content)
	}

	if Exists(filepath.Join(tmpDir, "output.txt.tmp")) {
		t.Error("Tmp file still exists after successful write")
	}
}

func TestWriteTmpThenMoveError(t *testing.T) {
	tmpDir := t.TempDir()
	outPath := filepath.Join(t.TempDir(), "output.txt")

	err := WriteTmpThenMove(tmpDir, outPath, func(tmpPath string) error {
		return os.ErrPermission
	})
	if err == nil {
		t.Error("WriteTmpThenMove should have failed")
	}
	if Exists(filepath.Join(tmpDir, "output.txt.tmp")) {
		t.Error("Tmp file exists after failed write")
	}
	if Exists(outPath) {
		t.Error("Output file exists after failed write")
	}
}
