package attachment

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"mwork_attachments/internal/imageprocessor"
	"mwork_attachments/internal/logger"
	"mwork_attachments/internal/storage"
	"mwork_attachments/pkg/apperrors"
)

// Metadata key suffixes. The attribute-store key is "<name>_<suffix>".
const (
	metaFileName    = "file_name"
	metaFileSize    = "file_size"
	metaContentType = "content_type"
	metaUpdatedAt   = "updated_at"
	metaFingerprint = "fingerprint"
)

var metadataSuffixes = []string{metaFileName, metaFileSize, metaContentType, metaUpdatedAt, metaFingerprint}

// Attachment is one named file slot on one Entity.
type Attachment struct {
	name      string
	entity    *Entity
	opts      Options
	storage   storage.Storage
	processor *imageprocessor.Processor

	uploaded          StorableFile
	deletionRequested bool
	// paths released by BeforeDelete, removed by AfterDelete
	queued []string

	now func() time.Time
}

func (a *Attachment) Name() string {
	return a.name
}

func (a *Attachment) Options() Options {
	return a.opts
}

// PendingUpload returns the upload waiting for the next processed save, if any.
func (a *Attachment) PendingUpload() StorableFile {
	return a.uploaded
}

func (a *Attachment) DeletionRequested() bool {
	return a.deletionRequested
}

// SetUploadedFile replaces any pending upload and cancels a pending deletion.
func (a *Attachment) SetUploadedFile(f StorableFile) {
	a.uploaded = f
	a.deletionRequested = false
}

// SetToBeDeleted marks the stored file for removal on the next processed save.
// A pending upload is kept but deletion takes precedence in AfterSave.
func (a *Attachment) SetToBeDeleted() {
	a.deletionRequested = true
}

func (a *Attachment) metaKey(suffix string) string {
	return a.name + "_" + suffix
}

// MetadataKeys lists the attribute-store keys this attachment owns.
func (a *Attachment) MetadataKeys() []string {
	keys := make([]string, len(metadataSuffixes))
	for i, s := range metadataSuffixes {
		keys[i] = a.metaKey(s)
	}
	return keys
}

// metadataLoaded reports whether any (all == false) or every (all == true)
// metadata key is present in attrs.
func (a *Attachment) metadataLoaded(attrs *Attributes, all bool) bool {
	for _, key := range a.MetadataKeys() {
		has := attrs.Has(key)
		if has && !all {
			return true
		}
		if !has && all {
			return false
		}
	}
	return all
}

func (a *Attachment) attr(suffix string) any {
	v, _ := a.entity.attrs.Get(a.metaKey(suffix))
	return v
}

// OriginalFilename is the sanitized name of the stored file, empty when nothing is stored.
func (a *Attachment) OriginalFilename() string {
	return toString(a.attr(metaFileName))
}

func (a *Attachment) Size() int64 {
	return toInt64(a.attr(metaFileSize))
}

func (a *Attachment) ContentType() string {
	return toString(a.attr(metaContentType))
}

func (a *Attachment) Fingerprint() string {
	return toString(a.attr(metaFingerprint))
}

func (a *Attachment) UpdatedAt() time.Time {
	sec := toInt64(a.attr(metaUpdatedAt))
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

// Present reports whether a file is currently stored.
func (a *Attachment) Present() bool {
	return a.OriginalFilename() != ""
}

// Variants returns the variant identifiers in declaration order, original first.
func (a *Attachment) Variants(includeOriginal bool) []string {
	out := make([]string, 0, len(a.opts.Styles)+1)
	if includeOriginal {
		out = append(out, Original)
	}
	for _, s := range a.opts.Styles {
		out = append(out, s.Name)
	}
	return out
}

func (a *Attachment) hasVariant(variant string) bool {
	if variant == Original {
		return true
	}
	for _, s := range a.opts.Styles {
		if s.Name == variant {
			return true
		}
	}
	return false
}

func (a *Attachment) resolveVariant(variant string) (string, bool) {
	if variant == "" {
		variant = a.opts.DefaultStyle
	}
	return variant, a.hasVariant(variant)
}

// VariantPath is the storage key of a variant, empty when nothing is stored
// or the variant is not declared.
func (a *Attachment) VariantPath(variant string) string {
	variant, ok := a.resolveVariant(variant)
	if !ok || !a.Present() {
		return ""
	}
	return a.interpolate(a.opts.Path, variant)
}

// URL is the public URL of a variant. While nothing is stored it is the
// interpolated DefaultURL.
func (a *Attachment) URL(variant string) string {
	variant, ok := a.resolveVariant(variant)
	if !ok {
		return ""
	}
	if !a.Present() {
		return a.interpolate(a.opts.DefaultURL, variant)
	}
	return a.interpolate(a.opts.URL, variant)
}

func (a *Attachment) storedPaths() []string {
	if !a.Present() {
		return nil
	}
	variants := a.Variants(true)
	paths := make([]string, 0, len(variants))
	for _, v := range variants {
		paths = append(paths, a.interpolate(a.opts.Path, v))
	}
	return paths
}

// AfterSave applies the pending deletion or upload. Deletion wins when both
// are pending.
func (a *Attachment) AfterSave(ctx context.Context, e *Entity) error {
	switch {
	case a.deletionRequested:
		return a.applyDeletion(ctx, e)
	case a.uploaded != nil:
		return a.applyUpload(ctx, e)
	}
	return nil
}

func (a *Attachment) applyDeletion(ctx context.Context, e *Entity) error {
	removeErr := a.removePaths(ctx, a.storedPaths())

	a.deletionRequested = false
	a.uploaded = nil
	for _, key := range a.MetadataKeys() {
		e.attrs.Delete(key)
	}

	logger.CtxDebug(ctx, "attachment deleted", "attachment", a.name, "entity_id", e.ID())

	if err := e.Persist(ctx); err != nil {
		return errors.Join(err, wrapProcessing(a.name, removeErr))
	}
	return wrapProcessing(a.name, removeErr)
}

func (a *Attachment) applyUpload(ctx context.Context, e *Entity) error {
	file := a.uploaded
	a.uploaded = nil

	fingerprint, err := fingerprintOf(file)
	if err != nil {
		return apperrors.ErrProcessing(a.name, err)
	}

	if !a.opts.KeepOldFiles {
		if err := a.removePaths(ctx, a.storedPaths()); err != nil {
			return apperrors.ErrProcessing(a.name, err)
		}
	}

	e.attrs.Set(a.metaKey(metaFileName), sanitizeFilename(file.Name()))
	e.attrs.Set(a.metaKey(metaFileSize), file.Size())
	e.attrs.Set(a.metaKey(metaContentType), file.ContentType())
	e.attrs.Set(a.metaKey(metaUpdatedAt), a.clock().Unix())
	e.attrs.Set(a.metaKey(metaFingerprint), fingerprint)

	if err := a.storeVariants(ctx, file); err != nil {
		return apperrors.ErrProcessing(a.name, err)
	}

	logger.CtxDebug(ctx, "attachment processed",
		"attachment", a.name,
		"entity_id", e.ID(),
		"file_name", a.OriginalFilename(),
		"content_type", file.ContentType(),
	)

	return e.Persist(ctx)
}

func (a *Attachment) storeVariants(ctx context.Context, file StorableFile) error {
	contentType := file.ContentType()

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	err = a.save(ctx, a.interpolate(a.opts.Path, Original), src, contentType)
	src.Close()
	if err != nil {
		return err
	}

	if len(a.opts.Styles) == 0 {
		return nil
	}
	if !a.processor.Supports(mediaType(contentType)) {
		logger.CtxDebug(ctx, "skipping styles for unsupported content type", "attachment", a.name, "content_type", contentType)
		return nil
	}

	for _, style := range a.opts.Styles {
		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open upload: %w", err)
		}
		err = a.storeStyle(ctx, src, style, contentType)
		src.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *Attachment) storeStyle(ctx context.Context, src io.Reader, style imageprocessor.ImageSize, contentType string) error {
	out, err := a.processor.ProcessImage(src, style, "")
	if err != nil {
		return fmt.Errorf("style %s: %w", style.Name, err)
	}
	return a.save(ctx, a.interpolate(a.opts.Path, style.Name), out, contentType)
}

func (a *Attachment) save(ctx context.Context, path string, r io.Reader, contentType string) error {
	err := a.storage.Save(ctx, path, r, contentType)
	logger.StorageLog("save", path, err)
	if err != nil {
		return apperrors.ErrStorage("save", path, err)
	}
	return nil
}

func (a *Attachment) removePaths(ctx context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		err := a.storage.Delete(ctx, p)
		logger.StorageLog("delete", p, err)
		if err != nil {
			errs = append(errs, apperrors.ErrStorage("delete", p, err))
		}
	}
	return errors.Join(errs...)
}

// BeforeDelete releases the stored variants of an entity about to be removed.
// Pending uploads and deletions are dropped.
func (a *Attachment) BeforeDelete(ctx context.Context, e *Entity) error {
	a.uploaded = nil
	a.deletionRequested = false
	a.queued = nil
	if a.opts.PreserveFiles {
		return nil
	}
	a.queued = a.storedPaths()
	return nil
}

// AfterDelete removes the variants released by BeforeDelete.
func (a *Attachment) AfterDelete(ctx context.Context, e *Entity) error {
	paths := a.queued
	a.queued = nil
	if len(paths) == 0 {
		return nil
	}

	logger.CtxDebug(ctx, "removing attachment of deleted entity", "attachment", a.name, "entity_id", e.ID(), "files", len(paths))
	return wrapProcessing(a.name, a.removePaths(ctx, paths))
}

// Reprocess regenerates every derived style from the stored original.
func (a *Attachment) Reprocess(ctx context.Context) error {
	if !a.Present() || len(a.opts.Styles) == 0 {
		return nil
	}
	contentType := a.ContentType()
	if !a.processor.Supports(mediaType(contentType)) {
		return nil
	}

	originalPath := a.interpolate(a.opts.Path, Original)
	rc, err := a.storage.Get(ctx, originalPath)
	if err != nil {
		return apperrors.ErrProcessing(a.name, apperrors.ErrStorage("get", originalPath, err))
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return apperrors.ErrProcessing(a.name, err)
	}

	for _, style := range a.opts.Styles {
		if err := a.storeStyle(ctx, bytes.NewReader(data), style, contentType); err != nil {
			return apperrors.ErrProcessing(a.name, err)
		}
	}
	return nil
}

func (a *Attachment) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func wrapProcessing(name string, err error) error {
	if err == nil {
		return nil
	}
	return apperrors.ErrProcessing(name, err)
}

func fingerprintOf(file StorableFile) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	h := md5.New()
	if _, err := io.Copy(h, src); err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
