package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"gorm.io/gorm"

	"mwork_attachments/internal/attachment"
	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/models"
	"mwork_attachments/internal/repositories"
	"mwork_attachments/internal/services/dto"
	"mwork_attachments/pkg/apperrors"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

type EntityService interface {
	Create(ctx context.Context, db *gorm.DB, kind string, fields []dto.Field) (*dto.EntityResponse, error)
	Get(ctx context.Context, db *gorm.DB, kind, id string) (*dto.EntityResponse, error)
	List(ctx context.Context, db *gorm.DB, kind string, limit, offset int) (*dto.EntityListResponse, error)
	Update(ctx context.Context, db *gorm.DB, kind, id string, fields []dto.Field) (*dto.EntityResponse, error)
	Delete(ctx context.Context, db *gorm.DB, kind, id string) error
	// Reprocess regenerates the styles of one attachment from its stored original.
	Reprocess(ctx context.Context, db *gorm.DB, kind, id, name string) (*dto.EntityResponse, error)

	Kinds() []string
	// AttachmentNames lists the attachments declared for kind, in declaration order.
	AttachmentNames(kind string) ([]string, error)
	DeleteSentinel() string
}

type entityService struct {
	repo  repositories.EntityRepository
	coord *attachment.Coordinator
	kinds map[string][]AttachmentDeclaration
}

func NewEntityService(
	repo repositories.EntityRepository,
	coord *attachment.Coordinator,
	kinds map[string][]AttachmentDeclaration,
) EntityService {
	return &entityService{
		repo:  repo,
		coord: coord,
		kinds: kinds,
	}
}

func (s *entityService) Kinds() []string {
	out := make([]string, 0, len(s.kinds))
	for kind := range s.kinds {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

func (s *entityService) AttachmentNames(kind string) ([]string, error) {
	decls, ok := s.kinds[kind]
	if !ok {
		return nil, apperrors.ErrUnknownKind(kind)
	}
	names := make([]string, 0, len(decls))
	for _, d := range decls {
		names = append(names, d.Name)
	}
	return names, nil
}

func (s *entityService) DeleteSentinel() string {
	return s.coord.DeleteSentinel()
}

// newEntity builds an entity of kind with its declared attachments.
func (s *entityService) newEntity(kind, id string) (*attachment.Entity, error) {
	decls, ok := s.kinds[kind]
	if !ok {
		return nil, apperrors.ErrUnknownKind(kind)
	}
	e := s.coord.NewEntity(kind, id)
	for _, d := range decls {
		if _, err := s.coord.Declare(e, d.Name, d.Options); err != nil {
			return nil, apperrors.InternalError(err)
		}
	}
	return e, nil
}

func (s *entityService) load(db *gorm.DB, kind, id string) (*models.Record, error) {
	e, err := s.newEntity(kind, id)
	if err != nil {
		return nil, err
	}
	rec := models.NewRecord(s.coord, e)
	if err := s.repo.FindByID(db, rec, kind, id); err != nil {
		return nil, mapRepoError(err)
	}
	return rec, nil
}

// apply writes fields in order. Keys owned by an attachment's metadata are
// rejected.
func (s *entityService) apply(ctx context.Context, e *attachment.Entity, fields []dto.Field) error {
	for _, f := range fields {
		if owner := metadataOwner(e, f.Key); owner != "" {
			return apperrors.ErrInvalidOperation("entity",
				fmt.Sprintf("attribute %q is managed by attachment %q", f.Key, owner))
		}
		if err := e.Set(ctx, f.Key, f.Value); err != nil {
			return err
		}
	}
	return nil
}

func metadataOwner(e *attachment.Entity, key string) string {
	for _, a := range e.Attachments().All() {
		for _, mk := range a.MetadataKeys() {
			if mk == key {
				return a.Name()
			}
		}
	}
	return ""
}

func (s *entityService) Create(ctx context.Context, db *gorm.DB, kind string, fields []dto.Field) (*dto.EntityResponse, error) {
	e, err := s.newEntity(kind, "")
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, e, fields); err != nil {
		return nil, err
	}

	rec := models.NewRecord(s.coord, e)
	if err := s.repo.Create(db.WithContext(ctx), rec); err != nil {
		logger.CtxWithError(ctx, "failed to create entity", err, "kind", kind)
		return nil, mapRepoError(err)
	}

	logger.CtxInfo(ctx, "entity created", "kind", kind, "entity_id", e.ID())
	return toEntityResponse(e), nil
}

func (s *entityService) Get(ctx context.Context, db *gorm.DB, kind, id string) (*dto.EntityResponse, error) {
	rec, err := s.load(db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	return toEntityResponse(rec.Entity()), nil
}

func (s *entityService) List(ctx context.Context, db *gorm.DB, kind string, limit, offset int) (*dto.EntityListResponse, error) {
	if _, ok := s.kinds[kind]; !ok {
		return nil, apperrors.ErrUnknownKind(kind)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	db = db.WithContext(ctx)
	ids, err := s.repo.ListIDs(db, kind, limit, offset)
	if err != nil {
		return nil, apperrors.ErrDatabase(err)
	}

	items := make([]*dto.EntityResponse, 0, len(ids))
	for _, id := range ids {
		rec, err := s.load(db, kind, id)
		if err != nil {
			return nil, err
		}
		items = append(items, toEntityResponse(rec.Entity()))
	}
	return &dto.EntityListResponse{Items: items, Limit: limit, Offset: offset}, nil
}

func (s *entityService) Update(ctx context.Context, db *gorm.DB, kind, id string, fields []dto.Field) (*dto.EntityResponse, error) {
	db = db.WithContext(ctx)
	rec, err := s.load(db, kind, id)
	if err != nil {
		return nil, err
	}
	e := rec.Entity()
	if err := s.apply(ctx, e, fields); err != nil {
		return nil, err
	}

	if err := s.repo.Update(db, rec); err != nil {
		logger.CtxWithError(ctx, "failed to update entity", err, "kind", kind, "entity_id", id)
		return nil, mapRepoError(err)
	}
	return toEntityResponse(e), nil
}

func (s *entityService) Delete(ctx context.Context, db *gorm.DB, kind, id string) error {
	db = db.WithContext(ctx)
	rec, err := s.load(db, kind, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(db, rec); err != nil {
		logger.CtxWithError(ctx, "failed to delete entity", err, "kind", kind, "entity_id", id)
		return mapRepoError(err)
	}
	logger.CtxInfo(ctx, "entity deleted", "kind", kind, "entity_id", id)
	return nil
}

func (s *entityService) Reprocess(ctx context.Context, db *gorm.DB, kind, id, name string) (*dto.EntityResponse, error) {
	rec, err := s.load(db.WithContext(ctx), kind, id)
	if err != nil {
		return nil, err
	}
	e := rec.Entity()
	a, ok := e.Attachment(name)
	if !ok {
		return nil, apperrors.ErrUnknownAttachment(name)
	}
	if err := a.Reprocess(ctx); err != nil {
		return nil, err
	}
	logger.CtxInfo(ctx, "attachment reprocessed", "kind", kind, "entity_id", id, "attachment", name)
	return toEntityResponse(e), nil
}

func mapRepoError(err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, repositories.ErrEntityNotFound):
		return apperrors.ErrNotFound(err)
	case apperrors.As(err, &appErr):
		return err
	default:
		return apperrors.ErrDatabase(err)
	}
}

func toEntityResponse(e *attachment.Entity) *dto.EntityResponse {
	resp := &dto.EntityResponse{
		ID:          e.ID(),
		Kind:        e.Kind(),
		Attributes:  e.Scalars(),
		Attachments: make(map[string]dto.AttachmentResponse, e.Attachments().Len()),
	}
	for _, a := range e.Attachments().All() {
		ar := dto.AttachmentResponse{
			Present: a.Present(),
			Paths:   e.PathsForAttachment(a.Name()),
			URLs:    e.URLsForAttachment(a.Name()),
		}
		if a.Present() {
			ar.FileName = a.OriginalFilename()
			ar.ContentType = a.ContentType()
			ar.Size = a.Size()
			ar.Fingerprint = a.Fingerprint()
			if t := a.UpdatedAt(); !t.IsZero() {
				ar.UpdatedAt = &t
			}
		}
		resp.Attachments[a.Name()] = ar
	}
	return resp
}
