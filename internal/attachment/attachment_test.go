package attachment

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mwork_attachments/internal/imageprocessor"
)

func TestIDPartition(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"42", "000/000/042"},
		{"123456789", "123/456/789"},
		{"1234567890", "123/456/789"},
		{"3f2a9c1e-77aa-4b0e", "3f2/a9c/1e7"},
		{"ab", "ab"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, idPartition(tt.id))
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "me.png", sanitizeFilename("me.png"))
	assert.Equal(t, "my_photo_1_.jpg", sanitizeFilename("my photo(1).jpg"))
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "evil.exe", sanitizeFilename(`C:\tmp\evil.exe`))
	assert.Equal(t, "file", sanitizeFilename(""))
}

func TestToInt64(t *testing.T) {
	assert.Equal(t, int64(7), toInt64(7))
	assert.Equal(t, int64(7), toInt64(float64(7)))
	assert.Equal(t, int64(7), toInt64("7"))
	assert.Equal(t, int64(0), toInt64(nil))
	assert.Equal(t, int64(0), toInt64(struct{}{}))
}

func TestInterpolate_AllTokens(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.coord.NewEntity("post", "1234")
	a, err := f.coord.Declare(e, "photo", Options{
		Path: ":kind/:attachment/:id/:style/:basename.:extension",
		URL:  "https://cdn.example.com/:id_partition/:fingerprint-:updated_at/:filename",
	})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Unix(1700000000, 0) }

	require.NoError(t, e.Set(ctx, "photo", Upload{Name: "Holiday Pic.PNG", Data: pngBytes(t, 3, 3)}))
	require.NoError(t, f.coord.Handle(ctx, EventSaved, e))

	assert.Equal(t, "post/photo/1234/original/Holiday_Pic.PNG", a.VariantPath(Original))
	assert.Equal(t, "https://cdn.example.com/000/001/234/"+a.Fingerprint()+"-1700000000/Holiday_Pic.PNG", a.URL(""))
	assert.Len(t, a.Fingerprint(), 32)
	assert.True(t, f.store.has("post/photo/1234/original/Holiday_Pic.PNG"))
}

func TestAttachment_UndeclaredVariant(t *testing.T) {
	f := newFixture(t)
	e := f.engine.newEntity(t, "user", "1")
	a, _ := e.Attachment("avatar")

	assert.Equal(t, []string{"original", "thumb"}, a.Variants(true))
	assert.Equal(t, []string{"thumb"}, a.Variants(false))
	assert.Equal(t, "", a.URL("huge"))
	assert.Equal(t, "", a.VariantPath("huge"))
	assert.Equal(t, "/avatar/original/missing.png", a.URL(""))
	assert.False(t, a.Present())
}

func TestFactory_RejectsBadOptions(t *testing.T) {
	f := newFixture(t)
	e := f.coord.NewEntity("user", "1")

	_, err := f.coord.Declare(e, "avatar", Options{Styles: []imageprocessor.ImageSize{{Name: "a", Width: 1, Height: 1}, {Name: "a", Width: 2, Height: 2}}})
	assert.Error(t, err)

	_, err = f.coord.Declare(e, "avatar", Options{Styles: []imageprocessor.ImageSize{{Name: "original", Width: 1, Height: 1}}})
	assert.Error(t, err)

	_, err = f.coord.Declare(e, "avatar", Options{DefaultStyle: "medium"})
	assert.Error(t, err)

	_, err = f.coord.Declare(e, "", Options{})
	assert.Error(t, err)

	assert.Equal(t, 0, e.Attachments().Len())
}

func TestAttachment_KeepOldFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.engine.kinds = map[string][]declaration{}
	f.engine.declare("doc", "scan", Options{KeepOldFiles: true})
	e := f.engine.newEntity(t, "doc", "9")

	require.NoError(t, e.Set(ctx, "scan", Upload{Name: "v1.txt", Data: []byte("one")}))
	require.NoError(t, f.engine.save(ctx, e))
	require.NoError(t, e.Set(ctx, "scan", Upload{Name: "v2.txt", Data: []byte("two")}))
	require.NoError(t, f.engine.save(ctx, e))

	assert.True(t, f.store.has("doc/scan/000/000/009/original/v1.txt"))
	assert.True(t, f.store.has("doc/scan/000/000/009/original/v2.txt"))
	assert.Empty(t, f.store.deletes)
}

func TestAttachment_PreserveFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.engine.kinds = map[string][]declaration{}
	f.engine.declare("doc", "scan", Options{PreserveFiles: true})
	e := f.engine.newEntity(t, "doc", "9")

	require.NoError(t, e.Set(ctx, "scan", Upload{Name: "v1.txt", Data: []byte("one")}))
	require.NoError(t, f.engine.save(ctx, e))
	require.NoError(t, f.engine.delete(ctx, e))

	assert.True(t, f.store.has("doc/scan/000/000/009/original/v1.txt"))
	assert.Empty(t, f.store.deletes)
}

func TestAttachment_NonImageSkipsStyles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.engine.newEntity(t, "user", "42")

	require.NoError(t, e.Set(ctx, "avatar", Upload{Name: "notes.txt", Data: []byte("plain text")}))
	require.NoError(t, f.engine.save(ctx, e))

	assert.Equal(t, []string{"user/avatar/000/000/042/original/notes.txt"}, f.store.saves)
	assert.Equal(t, "text/plain; charset=utf-8", e.Get("avatar_content_type"))
}

func TestAttachment_StyleGeometry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.engine.newEntity(t, "user", "42")

	require.NoError(t, e.Set(ctx, "avatar", Upload{Name: "me.png", Data: pngBytes(t, 64, 32)}))
	require.NoError(t, f.engine.save(ctx, e))

	img, err := png.Decode(bytes.NewReader(f.store.files[avatarThumb]))
	require.NoError(t, err)
	assert.Equal(t, 16, img.Bounds().Dx())
	assert.Equal(t, 16, img.Bounds().Dy())
}

func TestAttachment_Reprocess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.engine.newEntity(t, "user", "42")

	require.NoError(t, e.Set(ctx, "avatar", Upload{Name: "me.png", Data: pngBytes(t, 20, 20)}))
	require.NoError(t, f.engine.save(ctx, e))

	delete(f.store.files, avatarThumb)
	a, _ := e.Attachment("avatar")
	require.NoError(t, a.Reprocess(ctx))

	assert.True(t, f.store.has(avatarThumb))
	assert.Equal(t, avatarThumb, f.store.saves[len(f.store.saves)-1])
}

func TestAttachment_ReprocessWithoutFile(t *testing.T) {
	f := newFixture(t)
	e := f.engine.newEntity(t, "user", "42")
	a, _ := e.Attachment("avatar")

	assert.NoError(t, a.Reprocess(context.Background()))
	assert.Empty(t, f.store.saves)
}
