package repositories

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mwork_attachments/database"
	"mwork_attachments/internal/attachment"
	"mwork_attachments/internal/imageprocessor"
	"mwork_attachments/internal/models"
	"mwork_attachments/internal/storage"
)

type countingStorage struct {
	storage.Storage
	saves int
}

func (c *countingStorage) Save(ctx context.Context, path string, r io.Reader, contentType string) error {
	c.saves++
	return c.Storage.Save(ctx, path, r, contentType)
}

type env struct {
	db    *gorm.DB
	repo  EntityRepository
	coord *attachment.Coordinator
	store *countingStorage
	root  string
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := database.Open("sqlite", ":memory:", false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	root := t.TempDir()
	local, err := storage.NewLocalStorage(storage.Config{BasePath: root})
	require.NoError(t, err)
	store := &countingStorage{Storage: local}

	coord, err := attachment.NewCoordinator(attachment.Config{
		Factory: attachment.NewStorageFactory(store, imageprocessor.NewProcessor(80)),
		Files:   attachment.NewFileFactory(nil, 0),
	})
	require.NoError(t, err)

	return &env{db: db, repo: NewEntityRepository(), coord: coord, store: store, root: root}
}

func (e *env) entity(t *testing.T, id string) *attachment.Entity {
	t.Helper()
	ent := e.coord.NewEntity("user", id)
	_, err := e.coord.Declare(ent, "avatar", attachment.Options{
		Styles: []imageprocessor.ImageSize{{Name: "thumb", Width: 8, Height: 8, Mode: imageprocessor.ModeCrop}},
	})
	require.NoError(t, err)
	return ent
}

func (e *env) exists(key string) bool {
	_, err := os.Stat(filepath.Join(e.root, filepath.FromSlash(key)))
	return err == nil
}

func pngUpload(t *testing.T, name string) attachment.Upload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 20, 10))))
	return attachment.Upload{Name: name, Data: buf.Bytes()}
}

func TestEntityRepository_CreateProcessesAttachments(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	ent := e.entity(t, "")
	require.NoError(t, ent.Set(ctx, "name", "Ada"))
	require.NoError(t, ent.Set(ctx, "avatar", pngUpload(t, "me.png")))

	rec := models.NewRecord(e.coord, ent)
	require.NoError(t, e.repo.Create(e.db.WithContext(ctx), rec))

	require.NotEmpty(t, ent.ID())
	assert.True(t, ent.Persisted())
	assert.Equal(t, 2, e.store.saves)

	paths := ent.PathsForAttachment("avatar")
	assert.True(t, e.exists(paths["original"]))
	assert.True(t, e.exists(paths["thumb"]))

	loaded := e.entity(t, "")
	require.NoError(t, e.repo.FindByID(e.db, models.NewRecord(e.coord, loaded), "user", ent.ID()))

	assert.Equal(t, "Ada", loaded.Get("name"))
	assert.Equal(t, "me.png", loaded.Get("avatar_file_name"))
	a, ok := loaded.Get("avatar").(*attachment.Attachment)
	require.True(t, ok)
	assert.Equal(t, "image/png", a.ContentType())
	assert.Positive(t, a.Size())
	assert.Equal(t, paths, loaded.PathsForAttachment("avatar"))
}

func TestEntityRepository_UpdateDoesNotReprocess(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	ent := e.entity(t, "")
	require.NoError(t, ent.Set(ctx, "avatar", pngUpload(t, "me.png")))
	rec := models.NewRecord(e.coord, ent)
	require.NoError(t, e.repo.Create(e.db, rec))
	require.Equal(t, 2, e.store.saves)

	loaded := e.entity(t, "")
	loadedRec := models.NewRecord(e.coord, loaded)
	require.NoError(t, e.repo.FindByID(e.db, loadedRec, "user", ent.ID()))
	require.NoError(t, loaded.Set(ctx, "name", "Grace"))
	require.NoError(t, e.repo.Update(e.db, loadedRec))

	assert.Equal(t, 2, e.store.saves)

	var stored models.Record
	require.NoError(t, e.db.Session(&gorm.Session{SkipHooks: true}).First(&stored, "id = ?", ent.ID()).Error)
	assert.Equal(t, "Grace", stored.Attributes["name"])
	assert.Equal(t, "me.png", stored.Attributes["avatar_file_name"])
	assert.NotContains(t, stored.Attributes, "avatar")
}

func TestEntityRepository_SentinelRemovesFiles(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	ent := e.entity(t, "")
	require.NoError(t, ent.Set(ctx, "avatar", pngUpload(t, "me.png")))
	rec := models.NewRecord(e.coord, ent)
	require.NoError(t, e.repo.Create(e.db, rec))
	paths := ent.PathsForAttachment("avatar")

	require.NoError(t, ent.Set(ctx, "avatar", e.coord.DeleteSentinel()))
	require.NoError(t, e.repo.Update(e.db, rec))

	assert.False(t, e.exists(paths["original"]))
	assert.False(t, e.exists(paths["thumb"]))

	var stored models.Record
	require.NoError(t, e.db.Session(&gorm.Session{SkipHooks: true}).First(&stored, "id = ?", ent.ID()).Error)
	assert.NotContains(t, stored.Attributes, "avatar_file_name")
}

func TestEntityRepository_Delete(t *testing.T) {
	e := setup(t)
	ctx := context.Background()

	ent := e.entity(t, "")
	require.NoError(t, ent.Set(ctx, "avatar", pngUpload(t, "me.png")))
	require.NoError(t, e.repo.Create(e.db, models.NewRecord(e.coord, ent)))
	paths := ent.PathsForAttachment("avatar")

	loaded := e.entity(t, "")
	rec := models.NewRecord(e.coord, loaded)
	require.NoError(t, e.repo.FindByID(e.db, rec, "user", ent.ID()))
	require.NoError(t, e.repo.Delete(e.db, rec))

	assert.False(t, e.exists(paths["original"]))
	assert.False(t, e.exists(paths["thumb"]))
	assert.False(t, loaded.Persisted())

	err := e.repo.FindByID(e.db, models.NewRecord(e.coord, e.entity(t, "")), "user", ent.ID())
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEntityRepository_FindByIDChecksKind(t *testing.T) {
	e := setup(t)
	ent := e.entity(t, "")
	require.NoError(t, e.repo.Create(e.db, models.NewRecord(e.coord, ent)))

	other := e.coord.NewEntity("post", "")
	err := e.repo.FindByID(e.db, models.NewRecord(e.coord, other), "post", ent.ID())
	assert.ErrorIs(t, err, ErrEntityNotFound)
}

func TestEntityRepository_Guards(t *testing.T) {
	e := setup(t)

	ent := e.entity(t, "")
	assert.ErrorIs(t, e.repo.Update(e.db, models.NewRecord(e.coord, ent)), ErrEntityNotStored)
	assert.ErrorIs(t, e.repo.Delete(e.db, models.NewRecord(e.coord, ent)), ErrEntityNotStored)

	rec := models.NewRecord(e.coord, ent)
	require.NoError(t, e.repo.Create(e.db, rec))
	assert.ErrorIs(t, e.repo.Create(e.db, rec), ErrEntityAlreadySet)

	err := e.db.Create(&models.Record{Kind: "user"}).Error
	assert.ErrorIs(t, err, models.ErrUnbound)
}

func TestEntityRepository_ListIDs(t *testing.T) {
	e := setup(t)
	var ids []string
	for i := 0; i < 3; i++ {
		ent := e.entity(t, "")
		require.NoError(t, e.repo.Create(e.db, models.NewRecord(e.coord, ent)))
		ids = append(ids, ent.ID())
	}
	require.NoError(t, e.repo.Create(e.db, models.NewRecord(e.coord, e.coord.NewEntity("post", ""))))

	got, err := e.repo.ListIDs(e.db, "user", 10, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got)

	got, err = e.repo.ListIDs(e.db, "user", 2, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
