package ingest

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"

	"github.com/fpang/caption-studio/internal/filehandler"
)

// UploadItem is one file offered for ingestion. Open returns a fresh reader
// over the content each time it is called.
type UploadItem struct {
	Filename string
	MIMEType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FromBytes wraps in-memory content.
func FromBytes(filename, mimeType string, data []byte) UploadItem {
	return UploadItem{
		Filename: filename,
		MIMEType: filehandler.ResolveMIMEType(filename, mimeType),
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// FromFile wraps a file on disk. The file is opened lazily.
func FromFile(path string) (UploadItem, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadItem{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return UploadItem{}, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	return UploadItem{
		Filename: name,
		MIMEType: filehandler.ResolveMIMEType(name, ""),
		Size:     info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// FromMultipart wraps one part of a parsed multipart form.
func FromMultipart(fh *multipart.FileHeader) UploadItem {
	return UploadItem{
		Filename: filepath.Base(fh.Filename),
		MIMEType: filehandler.ResolveMIMEType(fh.Filename, fh.Header.Get("Content-Type")),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// readAll opens the item and reads at most limit+1 bytes, so callers can
// detect oversize content without buffering all of it. limit <= 0 disables
// the check.
func (it UploadItem) readAll(limit int64) ([]byte, error) {
	if it.Open == nil {
		return nil, fmt.Errorf("no content")
	}
	rc, err := it.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	return io.ReadAll(r)
}
