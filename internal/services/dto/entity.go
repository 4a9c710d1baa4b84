package dto

import "time"

// Field is one attribute write. Order matters: a later write to the same
// key wins, so the sentinel and an upload resolve by position.
type Field struct {
	Key   string
	Value interface{}
}

type AttachmentResponse struct {
	Present     bool              `json:"present"`
	FileName    string            `json:"fileName,omitempty" example:"me.png"`
	ContentType string            `json:"contentType,omitempty" example:"image/png"`
	Size        int64             `json:"size,omitempty" example:"204800"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
	Paths       map[string]string `json:"paths"`
	URLs        map[string]string `json:"urls"`
}

type EntityResponse struct {
	ID          string                        `json:"id"`
	Kind        string                        `json:"kind" example:"user"`
	Attributes  map[string]interface{}        `json:"attributes"`
	Attachments map[string]AttachmentResponse `json:"attachments"`
}

type EntityListResponse struct {
	Items  []*EntityResponse `json:"items"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}
