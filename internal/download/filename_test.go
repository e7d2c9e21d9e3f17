package download

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/tidal-downloader/tidal/internal/engine/types"
)

func TestUniqueFilePath(t *testing.T) {
	tmpDir := t.TempDir()

	// Helper to create a dummy file
	createFile := func(name string) {
		path := filepath.Join(tmpDir, name)
		_ = os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
			t.Fatalf("Failed to create file %s: %v", path, err)
		}
	}

	tests := []struct {
		name     string
		existing []string
		input    string
		want     string
	}{
		{
			name:     "No conflict",
			existing: []string{},
			input:    filepath.Join(tmpDir, "file.txt"),
			want:     filepath.Join(tmpDir, "file.txt"),
		},
		{
			name:     "One conflict",
			existing: []string{"file.txt"},
			input:    filepath.Join(tmpDir, "file.txt"),
			want:     filepath.Join(tmpDir, "file(1).txt"),
		},
		{
			name:     "Two conflicts",
			existing: []string{"file.txt", "file(1).txt"},
			input:    filepath.Join(tmpDir, "file.txt"),
			want:     filepath.Join(tmpDir, "file(2).txt"),
		},
		{
			name:     "Numbered name gets its own counter",
			existing: []string{"image(2).png"},
			input:    filepath.Join(tmpDir, "image(2).png"),
			want:     filepath.Join(tmpDir, "image(2)(1).png"),
		},
		{
			name:     "No extension",
			existing: []string{"README"},
			input:    filepath.Join(tmpDir, "README"),
			want:     filepath.Join(tmpDir, "README(1)"),
		},
		{
			name:     "Only last extension is kept aside",
			existing: []string{"archive.tar.gz"},
			input:    filepath.Join(tmpDir, "archive.tar.gz"),
			want:     filepath.Join(tmpDir, "archive.tar(1).gz"),
		},
		{
			name:     "Hidden file",
			existing: []string{".gitignore"},
			input:    filepath.Join(tmpDir, ".gitignore"),
			want:     filepath.Join(tmpDir, ".gitignore(1)"),
		},
		{
			name:     "Special characters",
			existing: []string{"file [2024].txt"},
			input:    filepath.Join(tmpDir, "file [2024].txt"),
			want:     filepath.Join(tmpDir, "file [2024](1).txt"),
		},
		{
			name:     "Parentheses in the middle",
			existing: []string{"file (copy).txt"},
			input:    filepath.Join(tmpDir, "file (copy).txt"),
			want:     filepath.Join(tmpDir, "file (copy)(1).txt"),
		},
		{
			name:     "Nested directory retention",
			existing: []string{"subdir/notes.txt"},
			input:    filepath.Join(tmpDir, "subdir", "notes.txt"),
			want:     filepath.Join(tmpDir, "subdir", "notes(1).txt"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, f := range tt.existing {
				createFile(f)
			}
			defer func() {
				for _, f := range tt.existing {
					_ = os.Remove(filepath.Join(tmpDir, f))
				}
			}()

			got := uniqueFilePath(tt.input, nil)
			if got != tt.want {
				t.Errorf("uniqueFilePath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUniqueFilePath_IgnoresLeftoverTempFile(t *testing.T) {
	tmpDir := t.TempDir()

	target := filepath.Join(tmpDir, "download.bin")
	if err := os.WriteFile(target+types.IncompleteSuffix, []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if result := uniqueFilePath(target, nil); result != target {
		t.Errorf("uniqueFilePath() = %v, want %v so the partial file is resumed", result, target)
	}

	// A finished file still forces a new name
	if err := os.WriteFile(target, []byte("done"), 0o644); err != nil {
		t.Fatal(err)
	}
	expected := filepath.Join(tmpDir, "download(1).bin")
	if result := uniqueFilePath(target, nil); result != expected {
		t.Errorf("uniqueFilePath() = %v, want %v", result, expected)
	}
}

func TestUniqueFilePath_TakenByLiveTask(t *testing.T) {
	tmpDir := t.TempDir()
	claimed := map[string]bool{
		filepath.Join(tmpDir, "a.txt"):    true,
		filepath.Join(tmpDir, "a(1).txt"): true,
	}

	result := uniqueFilePath(filepath.Join(tmpDir, "a.txt"), func(p string) bool { return claimed[p] })
	expected := filepath.Join(tmpDir, "a(2).txt")
	if result != expected {
		t.Errorf("uniqueFilePath() = %v, want %v", result, expected)
	}
}

func TestUniqueFilePath_ManyConflicts(t *testing.T) {
	tmpDir := t.TempDir()

	for i := 0; i <= 10; i++ {
		name := filepath.Join(tmpDir, "doc.pdf")
		if i > 0 {
			name = filepath.Join(tmpDir, fmt.Sprintf("doc(%d).pdf", i))
		}
		if err := os.WriteFile(name, []byte("test"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	result := uniqueFilePath(filepath.Join(tmpDir, "doc.pdf"), nil)
	expected := filepath.Join(tmpDir, "doc(11).pdf")
	if result != expected {
		t.Errorf("uniqueFilePath() = %v, want %v", result, expected)
	}
}

func TestSplitExt(t *testing.T) {
	tests := []struct {
		in, base, ext string
	}{
		{"a.txt", "a", ".txt"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".bashrc", ".bashrc", ""},
		{"trailing.", "trailing", "."},
	}
	for _, tt := range tests {
		base, ext := splitExt(tt.in)
		if base != tt.base || ext != tt.ext {
			t.Errorf("splitExt(%q) = (%q, %q), want (%q, %q)", tt.in, base, ext, tt.base, tt.ext)
		}
	}
}

func BenchmarkUniqueFilePath_WithConflict(b *testing.B) {
	tmpDir := b.TempDir()

	path := filepath.Join(tmpDir, "file.txt")
	for i := 0; i <= 5; i++ {
		name := path
		if i > 0 {
			name = filepath.Join(tmpDir, fmt.Sprintf("file(%d).txt", i))
		}
		_ = os.WriteFile(name, []byte("test"), 0o644)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		uniqueFilePath(path, nil)
	}
}
