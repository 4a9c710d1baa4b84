package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"mwork_attachments/pkg/apperrors"
)

// StorableFile is an upload that has been turned into something the
// Attachment can store. Open may be called more than once.
type StorableFile interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// Upload is an in-memory file payload.
type Upload struct {
	Name string
	Data []byte
}

// FileFactory converts arbitrary upload input into a StorableFile.
type FileFactory interface {
	MakeFromAny(ctx context.Context, value any) (StorableFile, error)
}

// DefaultMaxDownloadSize caps remote uploads fetched by URL.
const DefaultMaxDownloadSize = 25 << 20

// DefaultFileFactory accepts StorableFile, Upload, *multipart.FileHeader,
// *os.File, local path strings and http(s) URL strings.
type DefaultFileFactory struct {
	client      *http.Client
	maxDownload int64
}

func NewFileFactory(client *http.Client, maxDownload int64) *DefaultFileFactory {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxDownload <= 0 {
		maxDownload = DefaultMaxDownloadSize
	}
	return &DefaultFileFactory{client: client, maxDownload: maxDownload}
}

func (f *DefaultFileFactory) MakeFromAny(ctx context.Context, value any) (StorableFile, error) {
	switch v := value.(type) {
	case StorableFile:
		return v, nil
	case Upload:
		return newBytesFile(v.Name, v.Data), nil
	case *Upload:
		if v == nil {
			return nil, apperrors.ErrConversion(value, errors.New("nil upload"))
		}
		return newBytesFile(v.Name, v.Data), nil
	case *multipart.FileHeader:
		return newMultipartFile(v)
	case *os.File:
		return newLocalFile(v.Name(), value)
	case string:
		if isRemote(v) {
			return f.download(ctx, v)
		}
		return newLocalFile(v, value)
	default:
		return nil, apperrors.ErrConversion(value, fmt.Errorf("cannot store a %T", value))
	}
}

func isRemote(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (f *DefaultFileFactory) download(ctx context.Context, rawURL string) (StorableFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, apperrors.ErrConversion(rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperrors.ErrConversion(rawURL, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.ErrConversion(rawURL, fmt.Errorf("download failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.ErrConversion(rawURL, fmt.Errorf("download failed: %s", resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxDownload+1))
	if err != nil {
		return nil, apperrors.ErrConversion(rawURL, fmt.Errorf("download failed: %w", err))
	}
	if int64(len(data)) > f.maxDownload {
		return nil, apperrors.ErrConversion(rawURL, fmt.Errorf("remote file exceeds %d bytes", f.maxDownload))
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "download"
	}
	return newBytesFile(name, data), nil
}

type bytesFile struct {
	name        string
	data        []byte
	contentType string
}

func newBytesFile(name string, data []byte) *bytesFile {
	return &bytesFile{name: name, data: data, contentType: mimetype.Detect(data).String()}
}

func (b *bytesFile) Name() string        { return b.name }
func (b *bytesFile) Size() int64         { return int64(len(b.data)) }
func (b *bytesFile) ContentType() string { return b.contentType }
func (b *bytesFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

type localFile struct {
	path        string
	size        int64
	contentType string
}

func newLocalFile(p string, original any) (*localFile, error) {
	info, err := os.Stat(p)
	if err != nil {
		return nil, apperrors.ErrConversion(original, err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.ErrConversion(original, fmt.Errorf("%s is not a regular file", p))
	}
	mt, err := mimetype.DetectFile(p)
	if err != nil {
		return nil, apperrors.ErrConversion(original, err)
	}
	return &localFile{path: p, size: info.Size(), contentType: mt.String()}, nil
}

func (l *localFile) Name() string        { return filepath.Base(l.path) }
func (l *localFile) Size() int64         { return l.size }
func (l *localFile) ContentType() string { return l.contentType }
func (l *localFile) Open() (io.ReadCloser, error) {
	return os.Open(l.path)
}

type multipartFile struct {
	header      *multipart.FileHeader
	contentType string
}

func newMultipartFile(h *multipart.FileHeader) (*multipartFile, error) {
	if h == nil {
		return nil, apperrors.ErrConversion(h, errors.New("nil file header"))
	}
	src, err := h.Open()
	if err != nil {
		return nil, apperrors.ErrConversion(h, err)
	}
	defer src.Close()

	mt, err := mimetype.DetectReader(src)
	if err != nil {
		return nil, apperrors.ErrConversion(h, err)
	}
	return &multipartFile{header: h, contentType: mt.String()}, nil
}

func (m *multipartFile) Name() string        { return m.header.Filename }
func (m *multipartFile) Size() int64         { return m.header.Size }
func (m *multipartFile) ContentType() string { return m.contentType }
func (m *multipartFile) Open() (io.ReadCloser, error) {
	return m.header.Open()
}
