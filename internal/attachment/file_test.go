package attachment

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwork_attachments/pkg/apperrors"
)

func readAll(t *testing.T, f StorableFile) []byte {
	t.Helper()
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return data
}

func TestMakeFromAny_Upload(t *testing.T) {
	files := NewFileFactory(nil, 0)
	data := pngBytes(t, 2, 2)

	f, err := files.MakeFromAny(context.Background(), Upload{Name: "a.png", Data: data})
	require.NoError(t, err)
	assert.Equal(t, "a.png", f.Name())
	assert.Equal(t, int64(len(data)), f.Size())
	assert.Equal(t, "image/png", f.ContentType())
	assert.Equal(t, data, readAll(t, f))
	assert.Equal(t, data, readAll(t, f), "Open can be called twice")

	same, err := files.MakeFromAny(context.Background(), f)
	require.NoError(t, err)
	assert.Same(t, f, same)
}

func TestMakeFromAny_LocalPathAndFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(p, []byte("hello world"), 0o644))
	files := NewFileFactory(nil, 0)

	f, err := files.MakeFromAny(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", f.Name())
	assert.Equal(t, int64(11), f.Size())
	assert.Equal(t, "text/plain; charset=utf-8", f.ContentType())

	osFile, err := os.Open(p)
	require.NoError(t, err)
	defer osFile.Close()
	f, err = files.MakeFromAny(context.Background(), osFile)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), readAll(t, f))

	_, err = files.MakeFromAny(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.True(t, errors.Is(err, apperrors.ErrConversionFailed))

	_, err = files.MakeFromAny(context.Background(), dir)
	assert.True(t, errors.Is(err, apperrors.ErrConversionFailed))
}

func TestMakeFromAny_Multipart(t *testing.T) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	data := pngBytes(t, 3, 3)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	header := form.File["avatar"][0]

	f, err := NewFileFactory(nil, 0).MakeFromAny(context.Background(), header)
	require.NoError(t, err)
	assert.Equal(t, "me.png", f.Name())
	assert.Equal(t, "image/png", f.ContentType())
	assert.Equal(t, data, readAll(t, f))
}

func TestMakeFromAny_RemoteURL(t *testing.T) {
	data := pngBytes(t, 2, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img/logo.png":
			w.Write(data)
		case "/big":
			w.Write(bytes.Repeat([]byte("x"), 4096))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	files := NewFileFactory(srv.Client(), 1024)

	f, err := files.MakeFromAny(context.Background(), srv.URL+"/img/logo.png")
	require.NoError(t, err)
	assert.Equal(t, "logo.png", f.Name())
	assert.Equal(t, "image/png", f.ContentType())
	assert.Equal(t, data, readAll(t, f))

	_, err = files.MakeFromAny(context.Background(), srv.URL+"/nope")
	assert.True(t, errors.Is(err, apperrors.ErrConversionFailed))

	_, err = files.MakeFromAny(context.Background(), srv.URL+"/big")
	assert.True(t, errors.Is(err, apperrors.ErrConversionFailed))
}

func TestMakeFromAny_Unsupported(t *testing.T) {
	files := NewFileFactory(nil, 0)
	for _, v := range []any{42, 3.14, map[string]string{}, (*Upload)(nil)} {
		_, err := files.MakeFromAny(context.Background(), v)
		require.Error(t, err)
		assert.True(t, errors.Is(err, apperrors.ErrConversionFailed), "%T", v)
	}
}
