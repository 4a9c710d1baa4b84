package apperrors

import (
	"fmt"
	"net/http"
)

// ErrNotFound wraps a repository miss (gorm.ErrRecordNotFound) into a 404.
func ErrNotFound(err error) *AppError {
	return Wrap(err, CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
}

// ErrDatabase wraps a failed query or write.
func ErrDatabase(err error) *AppError {
	return Wrap(err, CodeDatabaseError, "database", "Database operation failed", http.StatusInternalServerError)
}

// ErrConversion is returned by the storable-file factory when an upload value
// cannot be turned into a file handle. The offending Go type goes into Details.
func ErrConversion(value interface{}, err error) *AppError {
	return Wrap(err, CodeConversionFailed, "attachment", "Unsupported upload value", http.StatusUnprocessableEntity).
		WithDetails(map[string]string{"type": fmt.Sprintf("%T", value)})
}

// ErrProcessing reports a variant processing failure for one attachment.
func ErrProcessing(name string, err error) *AppError {
	return Wrap(err, CodeProcessingFailed, "attachment", "Attachment processing failed", http.StatusInternalServerError).
		WithDetails(map[string]string{"attachment": name})
}

// ErrStorage reports a storage backend failure.
func ErrStorage(op, path string, err error) *AppError {
	return Wrap(err, CodeStorageError, "storage", "Storage operation failed", http.StatusBadGateway).
		WithDetails(map[string]string{"op": op, "path": path})
}

// ErrUnknownKind is returned when no attachments are declared for an entity kind.
func ErrUnknownKind(kind string) *AppError {
	return New(CodeUnknownKind, "entity", "Unknown entity kind", http.StatusBadRequest).
		WithDetails(map[string]string{"kind": kind})
}

// ErrUnknownAttachment is returned when an operation names an attachment the kind does not declare.
func ErrUnknownAttachment(name string) *AppError {
	return New(CodeUnknownField, "attachment", "Unknown attachment", http.StatusNotFound).
		WithDetails(map[string]string{"attachment": name})
}

// ErrInvalidOperation - generic 400 for operations that make no sense in the current state
func ErrInvalidOperation(domain, message string) *AppError {
	return New(CodeInvalidOperation, domain, message, http.StatusBadRequest)
}

// Predefined values for errors.Is checks.
var (
	ErrConversionFailed = New(CodeConversionFailed, "attachment", "Unsupported upload value", http.StatusUnprocessableEntity)
	ErrProcessingFailed = New(CodeProcessingFailed, "attachment", "Attachment processing failed", http.StatusInternalServerError)
	ErrResourceNotFound = New(CodeNotFound, "resource", "Resource not found", http.StatusNotFound)
)
