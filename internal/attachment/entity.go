package attachment

import (
	"context"
	"reflect"
)

// HasAttachments is implemented by anything that carries an attribute store
// and an attachment registry.
type HasAttachments interface {
	Attributes() *Attributes
	Attachments() *Registry
}

// Persister writes the entity through the persistence engine again. It is
// installed by the engine adapter and used by attachments that need to record
// metadata after processing.
type Persister func(ctx context.Context) error

// Entity is the host object attachments are bound to. Create it with
// Coordinator.NewEntity.
type Entity struct {
	id        string
	kind      string
	persisted bool

	attrs    *Attributes
	original map[string]any
	registry *Registry

	interceptor *Interceptor
	persister   Persister
}

var _ HasAttachments = (*Entity)(nil)

func (e *Entity) ID() string {
	return e.id
}

func (e *Entity) SetID(id string) {
	e.id = id
}

func (e *Entity) Kind() string {
	return e.kind
}

// Persisted reports whether the entity has a stored row.
func (e *Entity) Persisted() bool {
	return e.persisted
}

func (e *Entity) MarkPersisted(persisted bool) {
	e.persisted = persisted
}

func (e *Entity) Attributes() *Attributes {
	return e.attrs
}

func (e *Entity) Attachments() *Registry {
	return e.registry
}

// Attachment returns the registered attachment called name.
func (e *Entity) Attachment(name string) (*Attachment, bool) {
	return e.registry.Get(name)
}

// Get reads an attribute; attachment names with loaded metadata yield *Attachment.
func (e *Entity) Get(key string) any {
	return e.interceptor.Get(e, key)
}

// Set writes an attribute; attachment names are routed to the Attachment.
func (e *Entity) Set(ctx context.Context, key string, value any) error {
	return e.interceptor.Set(ctx, e, key, value)
}

// IsDirty reports whether a plain attribute changed since the last load or
// save. Attachment names are always clean.
func (e *Entity) IsDirty(key string) bool {
	if e.interceptor.IsClean(e, key) {
		return false
	}
	cur, has := e.attrs.Get(key)
	orig, had := e.original[key]
	if has != had {
		return true
	}
	return !reflect.DeepEqual(cur, orig)
}

// DirtyKeys lists changed plain attributes in attribute order.
func (e *Entity) DirtyKeys() []string {
	var out []string
	seen := make(map[string]bool)
	for _, key := range e.attrs.Keys() {
		seen[key] = true
		if e.IsDirty(key) {
			out = append(out, key)
		}
	}
	for key := range e.original {
		if !seen[key] && e.IsDirty(key) {
			out = append(out, key)
		}
	}
	return out
}

// syncOriginal snapshots the plain attributes as the clean baseline.
func (e *Entity) syncOriginal() {
	e.original = make(map[string]any, e.attrs.Len())
	for _, key := range e.attrs.Keys() {
		if e.registry.Has(key) {
			continue
		}
		v, _ := e.attrs.Get(key)
		e.original[key] = v
	}
}

// Scalars returns the attribute store without attachment-named entries.
func (e *Entity) Scalars() map[string]any {
	out := e.attrs.Map()
	for _, name := range e.registry.Names() {
		delete(out, name)
	}
	return out
}

func (e *Entity) SetPersister(p Persister) {
	e.persister = p
}

// Persist re-writes the entity through the installed Persister. Without one
// it is a no-op.
func (e *Entity) Persist(ctx context.Context) error {
	if e.persister == nil {
		return nil
	}
	return e.persister(ctx)
}

// PathsForAttachment maps each variant to its storage key. Unregistered names
// yield an empty map.
func (e *Entity) PathsForAttachment(name string) map[string]string {
	out := make(map[string]string)
	a, ok := e.registry.Get(name)
	if !ok {
		return out
	}
	for _, v := range a.Variants(true) {
		out[v] = a.VariantPath(v)
	}
	return out
}

// URLsForAttachment maps each variant to its URL. Unregistered names yield
// an empty map.
func (e *Entity) URLsForAttachment(name string) map[string]string {
	out := make(map[string]string)
	a, ok := e.registry.Get(name)
	if !ok {
		return out
	}
	for _, v := range a.Variants(true) {
		out[v] = a.URL(v)
	}
	return out
}
