package ingest

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cat.JPG")
	if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	it, err := FromFile(path)
	if err != nil {
		t.Fatalf("FromFile() error = %v", err)
	}
	if it.Filename != "Cat.JPG" || it.MIMEType != "image/jpeg" || it.Size != 4 {
		t.Errorf("FromFile() = %+v", it)
	}

	// Open is repeatable.
	for i := 0; i < 2; i++ {
		data, err := it.readAll(0)
		if err != nil || string(data) != "jpeg" {
			t.Errorf("readAll() #%d = (%q, %v)", i, data, err)
		}
	}

	if _, err := FromFile(filepath.Dir(path)); err == nil {
		t.Error("FromFile(directory) succeeded")
	}
}

func TestReadAll_Limit(t *testing.T) {
	it := FromBytes("a.jpg", "", bytes.Repeat([]byte("x"), 100))
	data, err := it.readAll(10)
	if err != nil {
		t.Fatalf("readAll() error = %v", err)
	}
	if len(data) != 11 {
		t.Errorf("readAll(10) read %d bytes, want 11 to flag oversize", len(data))
	}
}

func TestFromMultipart(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("files", "dir/dog.txt")
	io.WriteString(part, "good boy")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := req.ParseMultipartForm(1 << 20); err != nil {
		t.Fatalf("ParseMultipartForm() error = %v", err)
	}

	it := FromMultipart(req.MultipartForm.File["files"][0])
	if it.Filename != "dog.txt" {
		t.Errorf("Filename = %q, want base name dog.txt", it.Filename)
	}
	data, err := it.readAll(0)
	if err != nil || string(data) != "good boy" {
		t.Errorf("readAll() = (%q, %v)", data, err)
	}
}
