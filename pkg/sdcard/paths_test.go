package sdcard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty means root", "", "/"},
		{"dot means root", ".", "/"},
		{"root", "/", "/"},
		{"already canonical", "/data/logs.txt", "/data/logs.txt"},
		{"missing leading slash", "data/logs.txt", "/data/logs.txt"},
		{"trailing slash stripped", "/a/b/", "/a/b"},
		{"duplicate separators collapse", "/a//b", "/a/b"},
		{"many duplicates collapse", "//a///b////c", "/a/b/c"},
		{"bare name", "readme.md", "/readme.md"},
		{"root with trailing runs", "///", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizePath(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, NormalizePath(got), "normalization must be idempotent")
		})
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		leaf string
		want string
	}{
		{"plain", "/data", "file.txt", "/data/file.txt"},
		{"dir with trailing slash", "/data/", "file.txt", "/data/file.txt"},
		{"root dir", "/", "file.txt", "/file.txt"},
		{"empty dir", "", "file.txt", "/file.txt"},
		{"empty leaf", "/data", "", "/data"},
		{"relative dir", "data", "file.txt", "/data/file.txt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinPath(tt.dir, tt.leaf))
		})
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantParent string
		wantLeaf   string
	}{
		{"nested", "/data/logs/boot.log", "/data/logs", "boot.log"},
		{"under root", "/file.txt", "/", "file.txt"},
		{"relative input", "data/file.txt", "/data", "file.txt"},
		{"root", "/", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parent, leaf := SplitPath(tt.in)
			assert.Equal(t, tt.wantParent, parent)
			assert.Equal(t, tt.wantLeaf, leaf)
		})
	}
}

func TestSplitJoinRoundTrip(t *testing.T) {
	for _, path := range []string{"/a/b/c", "/top.txt", "/deep/er/still.bin"} {
		parent, leaf := SplitPath(path)
		assert.Equal(t, path, JoinPath(parent, leaf))
	}
}
