package attachment

// Registry maps attachment names to Attachments for a single Entity and
// carries the entity-wide dirty flag.
type Registry struct {
	names []string
	items map[string]*Attachment
	dirty bool
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Attachment)}
}

// Register adds a. Re-registering a name replaces the previous Attachment
// and keeps its original position.
func (r *Registry) Register(name string, a *Attachment) {
	if _, ok := r.items[name]; !ok {
		r.names = append(r.names, name)
	}
	r.items[name] = a
}

func (r *Registry) Get(name string) (*Attachment, bool) {
	a, ok := r.items[name]
	return a, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.items[name]
	return ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// All returns the attachments in registration order.
func (r *Registry) All() []*Attachment {
	out := make([]*Attachment, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.items[name])
	}
	return out
}

func (r *Registry) Len() int {
	return len(r.names)
}

func (r *Registry) MarkDirty() {
	r.dirty = true
}

func (r *Registry) ClearDirty() {
	r.dirty = false
}

func (r *Registry) IsDirty() bool {
	return r.dirty
}

// MergeMetadata exposes every attachment whose metadata is fully loaded as
// attrs[name] = *Attachment.
func (r *Registry) MergeMetadata(attrs *Attributes) {
	for _, name := range r.names {
		a := r.items[name]
		if a.metadataLoaded(attrs, true) {
			attrs.Set(name, a)
		}
	}
}

// StripMetadata removes every attachment-named entry from attrs so the
// persistence engine never sees an Attachment value.
func (r *Registry) StripMetadata(attrs *Attributes) {
	for _, name := range r.names {
		attrs.Delete(name)
	}
}
