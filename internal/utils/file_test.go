package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileKinds(t *testing.T) {
	tests := []struct {
		name  string
		image bool
		video bool
	}{
		{"frame.JPG", true, false},
		{"frame.webp", true, false},
		{"DJI_0365.MP4", false, true},
		{"clip.mov", false, true},
		{"notes.txt", false, false},
		{"noext", false, false},
	}
	for _, tt := range tests {
		if got := IsImageFile(tt.name); got != tt.image {
			t.Errorf("IsImageFile(%q) = %v", tt.name, got)
		}
		if got := IsVideoFile(tt.name); got != tt.video {
			t.Errorf("IsVideoFile(%q) = %v", tt.name, got)
		}
	}
}

func TestGenerateOutputFilename(t *testing.T) {
	got := GenerateOutputFilename("/videos/DJI_0365_frame_0010.jpg", "out", "_grid", "png")
	if want := filepath.Join("out", "DJI_0365_frame_0010_grid.png"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := GenerateOutputFilename("frame", "", "_x", ""); got != "frame_x.jpg" {
		t.Errorf("default format: got %q", got)
	}
}

func TestEnsureDirAndFileExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatal(err)
	}
	if FileExists(dir) {
		t.Error("a directory is not a file")
	}
	f := filepath.Join(dir, "x.jpg")
	if err := os.WriteFile(f, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(f) {
		t.Error("expected file to exist")
	}
}
