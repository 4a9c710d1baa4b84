package attachment

import (
	"context"
)

// DefaultDeleteSentinel is the attribute value that requests deletion of an attachment.
const DefaultDeleteSentinel = "__!__null__!__"

// Interceptor routes attribute reads and writes either to the attribute
// store or to the entity's attachments.
type Interceptor struct {
	files    FileFactory
	sentinel string
}

func NewInterceptor(files FileFactory, sentinel string) *Interceptor {
	if sentinel == "" {
		sentinel = DefaultDeleteSentinel
	}
	return &Interceptor{files: files, sentinel: sentinel}
}

func (i *Interceptor) DeleteSentinel() string {
	return i.sentinel
}

// Get returns the Attachment for an attachment name whose metadata is at
// least partly loaded, and the plain attribute otherwise.
func (i *Interceptor) Get(e *Entity, key string) any {
	if a, ok := e.registry.Get(key); ok && a.metadataLoaded(e.attrs, false) {
		return a
	}
	v, _ := e.attrs.Get(key)
	return v
}

// Set writes key. Attachment-named writes never reach the attribute store:
// the sentinel marks the attachment for deletion, any other non-empty value
// becomes a pending upload. A conversion failure aborts the write.
func (i *Interceptor) Set(ctx context.Context, e *Entity, key string, value any) error {
	a, ok := e.registry.Get(key)
	if !ok {
		e.attrs.Set(key, value)
		return nil
	}

	if s, isString := value.(string); isString && s == i.sentinel {
		a.SetToBeDeleted()
		e.registry.MarkDirty()
		return nil
	}

	if !isEmpty(value) {
		file, err := i.files.MakeFromAny(ctx, value)
		if err != nil {
			return err
		}
		a.SetUploadedFile(file)
	}
	e.registry.MarkDirty()
	return nil
}

// IsClean reports attachment-named keys as unchanged to attribute dirty
// tracking; their state lives on the Attachment.
func (i *Interceptor) IsClean(e *Entity, key string) bool {
	return e.registry.Has(key)
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []byte:
		return len(v) == 0
	}
	return false
}
