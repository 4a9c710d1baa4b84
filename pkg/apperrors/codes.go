package apperrors

// ErrorCode is the machine-readable error identifier sent to clients
type ErrorCode string

const (
	// System
	CodeInternalError        ErrorCode = "INTERNAL_ERROR"
	CodeDatabaseError        ErrorCode = "DATABASE_ERROR"
	CodeExternalServiceError ErrorCode = "EXTERNAL_SERVICE_ERROR"

	// Generic business logic
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	CodeInvalidOperation ErrorCode = "INVALID_OPERATION"

	// Attachments
	CodeConversionFailed ErrorCode = "CONVERSION_FAILED"
	CodeProcessingFailed ErrorCode = "PROCESSING_FAILED"
	CodeStorageError     ErrorCode = "STORAGE_ERROR"
	CodeUnknownKind      ErrorCode = "UNKNOWN_KIND"
	CodeUnknownField     ErrorCode = "UNKNOWN_ATTACHMENT"
)
