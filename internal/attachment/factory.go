package attachment

import (
	"errors"
	"fmt"

	"mwork_attachments/internal/imageprocessor"
	"mwork_attachments/internal/storage"
)

// Original is the variant identifier of the untransformed upload.
const Original = "original"

const (
	DefaultPath       = ":kind/:attachment/:id_partition/:style/:filename"
	DefaultURL        = "/system/:kind/:attachment/:id_partition/:style/:filename"
	DefaultMissingURL = "/:attachment/:style/missing.png"
)

// Options declares one attachment on an entity kind.
type Options struct {
	// Styles are the derived variants, in declaration order.
	Styles []imageprocessor.ImageSize
	// Path is the storage key template, URL the public URL template.
	Path string
	URL  string
	// DefaultURL is served for any variant while nothing is stored.
	DefaultURL string
	// DefaultStyle is used by URL("") and Path("").
	DefaultStyle string
	// KeepOldFiles leaves previous variants in storage when a new file replaces them.
	KeepOldFiles bool
	// PreserveFiles leaves variants in storage when the entity is deleted.
	PreserveFiles bool
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultPath
	}
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.DefaultURL == "" {
		o.DefaultURL = DefaultMissingURL
	}
	if o.DefaultStyle == "" {
		o.DefaultStyle = Original
	}
	return o
}

func (o Options) validate() error {
	seen := map[string]bool{Original: true}
	for _, s := range o.Styles {
		if s.Name == "" {
			return errors.New("style without a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate style %q", s.Name)
		}
		seen[s.Name] = true
	}
	if !seen[o.DefaultStyle] {
		return fmt.Errorf("default style %q is not declared", o.DefaultStyle)
	}
	return nil
}

// Factory creates the Attachment for one named slot on an entity.
type Factory interface {
	Create(entity *Entity, name string, opts Options) (*Attachment, error)
}

// StorageFactory builds attachments that keep their variants in a storage.Storage
// and derive image styles with an imageprocessor.Processor.
type StorageFactory struct {
	storage   storage.Storage
	processor *imageprocessor.Processor
}

func NewStorageFactory(st storage.Storage, processor *imageprocessor.Processor) *StorageFactory {
	if processor == nil {
		processor = imageprocessor.NewProcessor(0)
	}
	return &StorageFactory{storage: st, processor: processor}
}

func (f *StorageFactory) Create(entity *Entity, name string, opts Options) (*Attachment, error) {
	if entity == nil {
		return nil, errors.New("attachment needs an entity")
	}
	if name == "" {
		return nil, errors.New("attachment needs a name")
	}
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("attachment %q: %w", name, err)
	}

	return &Attachment{
		name:      name,
		entity:    entity,
		opts:      opts,
		storage:   f.storage,
		processor: f.processor,
	}, nil
}
