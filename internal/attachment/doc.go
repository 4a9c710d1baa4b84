// Package attachment binds named file slots to the lifecycle of a persisted entity.
//
// An Entity owns an ordered attribute store and a Registry of Attachments.
// Writes to an attachment-named key go through the Interceptor to the
// Attachment instead of the attribute store; the Coordinator turns the
// persistence engine's lifecycle events (retrieved, saving, updating, saved,
// deleting, deleted) into Attachment callbacks so that variant processing
// happens only after the row is durably written, and at most once per save.
package attachment
