package packaging

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// ASiC-E container constants
const (
	asicMimeType     = "application/vnd.etsi.asic-e+zip"
	mimetypeFilename = "mimetype"
)

// buildContainer assembles the ZIP archive. Entry order is fixed: mimetype
// first (stored, per the ASiC profile), then the manifest, the signature,
// then the payload files in submission order.
func buildContainer(manifest, signature []byte, files []File) ([]byte, error) {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	// The mimetype entry must be stored uncompressed so readers can sniff
	// the container type from the first bytes.
	mt, err := w.CreateHeader(&zip.FileHeader{Name: mimetypeFilename, Method: zip.Store})
	if err != nil {
		return nil, fmt.Errorf("creating mimetype entry: %w", err)
	}
	if _, err := mt.Write([]byte(asicMimeType)); err != nil {
		return nil, fmt.Errorf("writing mimetype entry: %w", err)
	}

	if err := addEntry(w, manifestFilename, manifest, true); err != nil {
		return nil, err
	}
	if err := addEntry(w, signatureFilename, signature, true); err != nil {
		return nil, err
	}
	for _, f := range files {
		if err := addEntry(w, f.Name, f.Content, shouldCompress(f.MimeType)); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

func addEntry(w *zip.Writer, name string, content []byte, compress bool) error {
	method := zip.Store
	if compress {
		method = zip.Deflate
	}
	entry, err := w.CreateHeader(&zip.FileHeader{Name: name, Method: method})
	if err != nil {
		return fmt.Errorf("creating archive entry %q: %w", name, err)
	}
	if _, err := entry.Write(content); err != nil {
		return fmt.Errorf("writing archive entry %q: %w", name, err)
	}
	return nil
}

// Container is a parsed archive, as seen by the receiving side
type Container struct {
	Manifest  []byte
	Signature []byte
	Files     []File
}

// OpenContainer parses an archive back into its parts. File order is
// preserved from the archive, which matches submission order.
func OpenContainer(data []byte) (*Container, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	c := &Container{}
	for _, zf := range r.File {
		content, err := readZipFile(zf)
		if err != nil {
			return nil, fmt.Errorf("reading archive entry %q: %w", zf.Name, err)
		}
		switch zf.Name {
		case mimetypeFilename:
			if string(content) != asicMimeType {
				return nil, fmt.Errorf("unexpected container mimetype %q", content)
			}
		case manifestFilename:
			c.Manifest = content
		case signatureFilename:
			c.Signature = content
		default:
			c.Files = append(c.Files, File{Name: zf.Name, Content: content})
		}
	}
	if c.Manifest == nil {
		return nil, fmt.Errorf("container has no manifest")
	}
	if c.Signature == nil {
		return nil, fmt.Errorf("container has no signature")
	}
	return c, nil
}

func readZipFile(zf *zip.File) ([]byte, error) {
	rc, err := zf.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// alreadyCompressed lists media type prefixes that gain nothing from deflate
var alreadyCompressed = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"video/",
	"audio/",
	"application/zip",
	"application/gzip",
	"application/x-7z-compressed",
	"application/pdf",
}

// shouldCompress reports whether content of the given media type should be
// deflated inside the archive. Unknown types default to compressible.
func shouldCompress(contentType string) bool {
	ct := strings.ToLower(contentType)
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	for _, prefix := range alreadyCompressed {
		if strings.HasPrefix(ct, prefix) {
			return false
		}
	}
	return true
}
