package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/require"

	"mwork_attachments/internal/imageprocessor"
	"mwork_attachments/internal/storage"
)

// testingT is satisfied by *testing.T and *rapid.T.
type testingT interface {
	require.TestingT
	Helper()
}

// memStorage is an in-memory storage.Storage that records every call.
type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	saves   []string
	deletes []string
	failOn  string
}

func newMemStorage() *memStorage {
	return &memStorage{files: make(map[string][]byte)}
}

var _ storage.Storage = (*memStorage)(nil)

func (m *memStorage) Save(ctx context.Context, path string, r io.Reader, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && strings.Contains(path, m.failOn) {
		return errors.New("disk full")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.files[path] = data
	m.saves = append(m.saves, path)
	return nil
}

func (m *memStorage) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	m.deletes = append(m.deletes, path)
	return nil
}

func (m *memStorage) Exists(ctx context.Context, path string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[path]
	return ok, nil
}

func (m *memStorage) GetURL(ctx context.Context, path string) (string, error) {
	return "/files/" + path, nil
}

func (m *memStorage) GetSignedURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	return m.GetURL(ctx, path)
}

func (m *memStorage) GetSize(ctx context.Context, path string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[path]
	if !ok {
		return 0, os.ErrNotExist
	}
	return int64(len(data)), nil
}

func (m *memStorage) has(path string) bool {
	ok, _ := m.Exists(context.Background(), path)
	return ok
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// memoryEngine is a minimal persistence engine: rows are plain maps and the
// lifecycle events are fired in the same places a real ORM fires them.
type memoryEngine struct {
	c      *Coordinator
	rows   map[string]map[string]any
	writes int
	// declared attachments per kind
	kinds map[string][]declaration
}

type declaration struct {
	name string
	opts Options
}

func newMemoryEngine(c *Coordinator) *memoryEngine {
	return &memoryEngine{c: c, rows: map[string]map[string]any{}, kinds: map[string][]declaration{}}
}

func (m *memoryEngine) declare(kind, name string, opts Options) {
	m.kinds[kind] = append(m.kinds[kind], declaration{name: name, opts: opts})
}

func (m *memoryEngine) newEntity(t testingT, kind, id string) *Entity {
	t.Helper()
	e := m.c.NewEntity(kind, id)
	for _, d := range m.kinds[kind] {
		_, err := m.c.Declare(e, d.name, d.opts)
		require.NoError(t, err)
	}
	return e
}

func (m *memoryEngine) save(ctx context.Context, e *Entity) error {
	if err := m.c.Handle(ctx, EventSaving, e); err != nil {
		return err
	}
	if e.Persisted() {
		if err := m.c.Handle(ctx, EventUpdating, e); err != nil {
			return err
		}
	}

	row := make(map[string]any)
	for key, v := range e.Attributes().Map() {
		if _, isAttachment := v.(*Attachment); isAttachment {
			return fmt.Errorf("cannot serialize attribute %q: attachment object", key)
		}
		row[key] = v
	}
	m.rows[e.ID()] = row
	m.writes++
	e.MarkPersisted(true)

	e.SetPersister(func(ctx context.Context) error { return m.save(ctx, e) })
	return m.c.Handle(ctx, EventSaved, e)
}

func (m *memoryEngine) load(ctx context.Context, t testingT, kind, id string) *Entity {
	t.Helper()
	row, ok := m.rows[id]
	require.True(t, ok, "row %s missing", id)

	e := m.newEntity(t, kind, id)
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.Attributes().Set(k, row[k])
	}
	e.MarkPersisted(true)
	e.SetPersister(func(ctx context.Context) error { return m.save(ctx, e) })
	require.NoError(t, m.c.Handle(ctx, EventRetrieved, e))
	return e
}

func (m *memoryEngine) delete(ctx context.Context, e *Entity) error {
	if err := m.c.Handle(ctx, EventDeleting, e); err != nil {
		return err
	}
	delete(m.rows, e.ID())
	e.MarkPersisted(false)
	return m.c.Handle(ctx, EventDeleted, e)
}

type fixture struct {
	store  *memStorage
	coord  *Coordinator
	engine *memoryEngine
}

const testSentinel = "__DELETE__"

func newFixture(t testingT) *fixture {
	t.Helper()
	st := newMemStorage()
	c, err := NewCoordinator(Config{
		Factory:        NewStorageFactory(st, imageprocessor.NewProcessor(80)),
		Files:          NewFileFactory(nil, 0),
		DeleteSentinel: testSentinel,
	})
	require.NoError(t, err)

	engine := newMemoryEngine(c)
	engine.declare("user", "avatar", Options{Styles: []imageprocessor.ImageSize{
		{Name: "thumb", Width: 16, Height: 16, Mode: imageprocessor.ModeCrop},
	}})
	engine.declare("user", "cover", Options{})

	return &fixture{store: st, coord: c, engine: engine}
}

func pngBytes(t testingT, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 3), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
