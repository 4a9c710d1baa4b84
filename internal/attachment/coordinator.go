package attachment

import (
	"context"
	"errors"
	"fmt"

	"mwork_attachments/internal/logger"
)

// Event is a persistence-engine lifecycle event.
type Event string

const (
	EventRetrieved Event = "retrieved"
	EventSaving    Event = "saving"
	EventUpdating  Event = "updating"
	EventSaved     Event = "saved"
	EventDeleting  Event = "deleting"
	EventDeleted   Event = "deleted"
)

// Config wires a Coordinator. Factory and Files are required.
type Config struct {
	Factory        Factory
	Files          FileFactory
	DeleteSentinel string
}

// Coordinator drives attachment callbacks from lifecycle events.
// It holds no per-entity state and may be shared; each Entity is
// single-threaded.
type Coordinator struct {
	factory     Factory
	interceptor *Interceptor
}

func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Factory == nil {
		return nil, errors.New("attachment coordinator needs a Factory")
	}
	if cfg.Files == nil {
		return nil, errors.New("attachment coordinator needs a FileFactory")
	}
	return &Coordinator{
		factory:     cfg.Factory,
		interceptor: NewInterceptor(cfg.Files, cfg.DeleteSentinel),
	}, nil
}

func (c *Coordinator) DeleteSentinel() string {
	return c.interceptor.DeleteSentinel()
}

// NewEntity creates an empty entity with no attachments declared.
func (c *Coordinator) NewEntity(kind, id string) *Entity {
	return &Entity{
		id:          id,
		kind:        kind,
		attrs:       NewAttributes(),
		original:    map[string]any{},
		registry:    NewRegistry(),
		interceptor: c.interceptor,
	}
}

// Declare creates the attachment called name on e and registers it.
func (c *Coordinator) Declare(e *Entity, name string, opts Options) (*Attachment, error) {
	a, err := c.factory.Create(e, name, opts)
	if err != nil {
		return nil, err
	}
	e.registry.Register(name, a)
	return a, nil
}

// Handle applies one lifecycle event to e.
func (c *Coordinator) Handle(ctx context.Context, event Event, e *Entity) error {
	ctx = logger.WithEntityID(ctx, e.ID())

	switch event {
	case EventRetrieved:
		e.registry.MergeMetadata(e.attrs)
		e.syncOriginal()
		return nil

	case EventSaving, EventUpdating:
		e.registry.StripMetadata(e.attrs)
		return nil

	case EventSaved:
		if !e.registry.IsDirty() {
			e.syncOriginal()
			return nil
		}
		// cleared first: attachments may persist the entity again from AfterSave
		e.registry.ClearDirty()
		err := c.each(ctx, e, event, (*Attachment).AfterSave)
		e.registry.MergeMetadata(e.attrs)
		e.syncOriginal()
		return err

	case EventDeleting:
		return c.each(ctx, e, event, (*Attachment).BeforeDelete)

	case EventDeleted:
		return c.each(ctx, e, event, (*Attachment).AfterDelete)
	}

	return fmt.Errorf("unknown lifecycle event %q", event)
}

// each runs fn on every attachment in registration order. A failing
// attachment does not stop the others; the errors are joined.
func (c *Coordinator) each(ctx context.Context, e *Entity, event Event, fn func(*Attachment, context.Context, *Entity) error) error {
	var errs []error
	for _, a := range e.registry.All() {
		if err := fn(a, ctx, e); err != nil {
			logger.CtxWithError(ctx, "attachment callback failed", err, "event", string(event), "attachment", a.Name())
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		logger.CtxDebug(ctx, "attachment lifecycle event handled", "event", string(event), "attachments", e.registry.Len())
	}
	return errors.Join(errs...)
}
