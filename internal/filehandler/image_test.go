package filehandler

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x += 7 {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestCaptureTime_NoEXIF(t *testing.T) {
	if got := CaptureTime(encodePNG(t, 4, 4)); got != 0 {
		t.Errorf("CaptureTime(png without EXIF) = %d, want 0", got)
	}
	if got := CaptureTime([]byte("not an image")); got != 0 {
		t.Errorf("CaptureTime(garbage) = %d, want 0", got)
	}
}

func TestDownscaler_PassesThroughSmallImages(t *testing.T) {
	data := encodePNG(t, 64, 32)
	in := Image{Name: "cat.png", MIMEType: "image/png", Data: data}

	out, err := NewDownscaler().Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.Name != "cat.png" || out.MIMEType != "image/png" || !bytes.Equal(out.Data, data) {
		t.Errorf("Transform() changed an image within limits: %s %s", out.Name, out.MIMEType)
	}
}

func TestDownscaler_ResizesLargeImages(t *testing.T) {
	d := &Downscaler{MaxDimension: 100, MaxBytes: DefaultMaxBytes, Qualities: DefaultQualities}
	in := Image{Name: "wide.shot.png", MIMEType: "image/png", Data: encodePNG(t, 400, 200)}

	out, err := d.Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.Name != "wide.shot.jpg" {
		t.Errorf("Name = %q, want %q", out.Name, "wide.shot.jpg")
	}
	if out.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", out.MIMEType)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("output dimensions = %dx%d, want 100x50", cfg.Width, cfg.Height)
	}
}

func TestDownscaler_RecompressesOversizedBytes(t *testing.T) {
	data := encodePNG(t, 50, 50)
	d := &Downscaler{MaxDimension: 2000, MaxBytes: len(data), Qualities: []int{90, 60}}

	out, err := d.Transform(context.Background(), Image{Name: "heavy.png", MIMEType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.MIMEType != "image/jpeg" || out.Name != "heavy.jpg" {
		t.Errorf("Transform() = %s %s, want recompressed heavy.jpg", out.Name, out.MIMEType)
	}
}

func TestDownscaler_UndecodablePassesThrough(t *testing.T) {
	in := Image{Name: "IMG_0001.HEIC", MIMEType: "image/heic", Data: []byte("ftypheic-not-really")}
	out, err := NewDownscaler().Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.Name != in.Name || !bytes.Equal(out.Data, in.Data) {
		t.Error("Transform() altered an undecodable image")
	}
}

// withDeclaredSize rewrites the IHDR dimensions of a PNG, leaving the pixel
// data as it was.
func withDeclaredSize(t *testing.T, data []byte, w, h uint32) []byte {
	t.Helper()
	out := bytes.Clone(data)
	if string(out[12:16]) != "IHDR" {
		t.Fatalf("unexpected PNG layout: %q", out[12:16])
	}
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDownscaler_HugeDeclaredSizePassesThrough(t *testing.T) {
	data := withDeclaredSize(t, encodePNG(t, 8, 8), 60000, 60000)
	if cfg, err := png.DecodeConfig(bytes.NewReader(data)); err != nil || cfg.Width != 60000 {
		t.Fatalf("png.DecodeConfig() = %+v, %v; want 60000 wide", cfg, err)
	}

	in := Image{Name: "bomb.png", MIMEType: "image/png", Data: data}
	out, err := NewDownscaler().Transform(context.Background(), in)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.Name != "bomb.png" || !bytes.Equal(out.Data, data) {
		t.Errorf("Transform() = %s (%d bytes), want original passed through", out.Name, len(out.Data))
	}
}

func TestDownscaler_MaxPixels(t *testing.T) {
	data := encodePNG(t, 400, 200)
	d := &Downscaler{MaxDimension: 100, MaxBytes: DefaultMaxBytes, MaxPixels: 400*200 - 1, Qualities: DefaultQualities}

	out, err := d.Transform(context.Background(), Image{Name: "wide.png", MIMEType: "image/png", Data: data})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if out.Name != "wide.png" || !bytes.Equal(out.Data, data) {
		t.Errorf("Transform() resized an image over MaxPixels: %s", out.Name)
	}
}

func TestScaledDimensions(t *testing.T) {
	tests := []struct {
		w, h, max    int
		wantW, wantH int
	}{
		{4000, 3000, 2000, 2000, 1500},
		{3000, 4000, 2000, 1500, 2000},
		{1000, 800, 2000, 1000, 800},
		{2000, 2000, 2000, 2000, 2000},
		{10000, 1, 2000, 2000, 1},
	}
	for _, tt := range tests {
		gotW, gotH := scaledDimensions(tt.w, tt.h, tt.max)
		if gotW != tt.wantW || gotH != tt.wantH {
			t.Errorf("scaledDimensions(%d, %d, %d) = (%d, %d), want (%d, %d)",
				tt.w, tt.h, tt.max, gotW, gotH, tt.wantW, tt.wantH)
		}
	}
}

func TestJPEGName(t *testing.T) {
	tests := map[string]string{
		"cat.png":         "cat.jpg",
		"cat.JPEG":        "cat.jpg",
		"archive.tar.gif": "archive.tar.jpg",
		"noext":           "noext.jpg",
	}
	for in, want := range tests {
		if got := jpegName(in); got != want {
			t.Errorf("jpegName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScanDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"b.jpg":            "img",
		"a.txt":            "caption for a",
		"a.PNG":            "img",
		"notes.md":         "ignored",
		".hidden.jpg":      "ignored",
		"sub/c.jpeg":       "img",
		"sub/c.txt":        "caption for c",
		".git/objects.jpg": "ignored",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ScanDirectory(dir)
	if err != nil {
		t.Fatalf("ScanDirectory() error = %v", err)
	}

	var names []string
	for _, f := range got {
		rel, _ := filepath.Rel(dir, f.Path)
		names = append(names, filepath.ToSlash(rel))
	}
	want := []string{"a.txt", "sub/c.txt", "a.PNG", "b.jpg", "sub/c.jpeg"}
	if len(names) != len(want) {
		t.Fatalf("ScanDirectory() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("ScanDirectory()[%d] = %s, want %s", i, names[i], want[i])
		}
	}

	imagesOnly, err := ScanDirectoryWithOptions(dir, ScanOptions{MaxDepth: 1})
	if err != nil {
		t.Fatalf("ScanDirectoryWithOptions() error = %v", err)
	}
	if len(imagesOnly) != 2 {
		t.Errorf("top-level images = %d, want 2", len(imagesOnly))
	}
}

func TestScanDirectory_Missing(t *testing.T) {
	if _, err := ScanDirectory(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("ScanDirectory(missing) succeeded")
	}
}
