package services

import (
	"fmt"

	"mwork_attachments/internal/attachment"
	"mwork_attachments/internal/config"
	"mwork_attachments/internal/imageprocessor"
)

// AttachmentDeclaration is one attachment every entity of a kind carries.
type AttachmentDeclaration struct {
	Name    string
	Options attachment.Options
}

// DeclarationsFromConfig turns the attachments.kinds config section into
// per-kind declarations, keeping the configured order.
func DeclarationsFromConfig(kinds map[string][]config.AttachmentConfig) (map[string][]AttachmentDeclaration, error) {
	out := make(map[string][]AttachmentDeclaration, len(kinds))
	for kind, decls := range kinds {
		list := make([]AttachmentDeclaration, 0, len(decls))
		for _, d := range decls {
			styles := make([]imageprocessor.ImageSize, 0, len(d.Styles))
			for _, s := range d.Styles {
				size, err := imageprocessor.ParseSize(s.Name, s.Geometry)
				if err != nil {
					return nil, fmt.Errorf("%s.%s: %w", kind, d.Name, err)
				}
				styles = append(styles, size)
			}
			list = append(list, AttachmentDeclaration{
				Name: d.Name,
				Options: attachment.Options{
					Styles:        styles,
					Path:          d.Path,
					URL:           d.URL,
					DefaultURL:    d.DefaultURL,
					DefaultStyle:  d.DefaultStyle,
					KeepOldFiles:  d.KeepOldFiles,
					PreserveFiles: d.PreserveFiles,
				},
			})
		}
		out[kind] = list
	}
	return out, nil
}
