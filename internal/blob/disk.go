// Package blob stores uploaded files on disk and describes them with the
// metadata tuple shared in file messages.
package blob

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/vovakirdan/famchat/internal/store"
)

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("file too large")

const (
	sniffLen        = 512
	octetStream     = "application/octet-stream"
	maxBaseNameSize = 128
)

// Stored describes a saved blob.
type Stored struct {
	StoredName   string
	OriginalName string
	MimeType     string
	SizeBytes    int64
	URL          string
}

// Attachment converts the blob into message attachment metadata.
func (s *Stored) Attachment() *store.Attachment {
	return &store.Attachment{
		StoredName:   s.StoredName,
		OriginalName: s.OriginalName,
		URL:          s.URL,
		MimeType:     s.MimeType,
		SizeBytes:    s.SizeBytes,
	}
}

// Disk saves blobs under a single directory.
type Disk struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

// NewDisk creates dir if needed. Saved blobs are addressed as urlPrefix/<name>.
func NewDisk(dir, urlPrefix string, maxBytes int64) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Disk{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/"), maxBytes: maxBytes}, nil
}

// Dir returns the storage directory.
func (d *Disk) Dir() string {
	return d.dir
}

// MaxBytes returns the upload cap; zero means unlimited.
func (d *Disk) MaxBytes() int64 {
	return d.maxBytes
}

// Save writes r to disk. The MIME type is sniffed from content; declaredType
// is used only when sniffing cannot tell.
func (d *Disk) Save(originalName, declaredType string, r io.Reader) (*Stored, error) {
	base := cleanBaseName(originalName)
	name := uuid.NewString() + "-" + base

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	mimeType := mimetype.Detect(head).String()
	if strings.HasPrefix(mimeType, octetStream) && declaredType != "" {
		mimeType = declaredType
	}

	dst := filepath.Join(d.dir, name)
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create blob: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if d.maxBytes > 0 {
		src = io.LimitReader(src, d.maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && d.maxBytes > 0 && size > d.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write blob: %w", err)
	}

	return &Stored{
		StoredName:   name,
		OriginalName: base,
		MimeType:     mimeType,
		SizeBytes:    size,
		URL:          d.urlPrefix + "/" + name,
	}, nil
}

// Remove deletes a stored blob by name.
func (d *Disk) Remove(storedName string) error {
	if storedName != path.Base(storedName) || storedName == "." || storedName == "/" {
		return fmt.Errorf("invalid blob name %q", storedName)
	}
	if err := os.Remove(filepath.Join(d.dir, storedName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

func cleanBaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	base = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' {
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." || base == "/" {
		base = "file"
	}
	if len(base) > maxBaseNameSize {
		ext := filepath.Ext(base)
		if len(ext) > 16 {
			ext = ""
		}
		base = base[:maxBaseNameSize-len(ext)] + ext
	}
	return base
}
