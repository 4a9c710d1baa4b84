package attachment

import (
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// interpolate expands a path or URL template for one variant. Longer tokens
// sharing a prefix are listed first so ":id_partition" wins over ":id".
func (a *Attachment) interpolate(template, variant string) string {
	fileName := a.OriginalFilename()
	ext := filepath.Ext(fileName)

	updatedAt := ""
	if t := a.UpdatedAt(); !t.IsZero() {
		updatedAt = strconv.FormatInt(t.Unix(), 10)
	}

	r := strings.NewReplacer(
		":id_partition", idPartition(a.entity.ID()),
		":id", a.entity.ID(),
		":kind", a.entity.Kind(),
		":attachment", a.name,
		":style", variant,
		":filename", fileName,
		":basename", strings.TrimSuffix(fileName, ext),
		":extension", strings.TrimPrefix(ext, "."),
		":fingerprint", a.Fingerprint(),
		":updated_at", updatedAt,
	)
	return r.Replace(template)
}

// idPartition spreads ids over nested directories: numeric ids become
// "000/001/234", other ids use their first nine characters in groups of three.
func idPartition(id string) string {
	if id == "" {
		return ""
	}
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		padded := fmt.Sprintf("%09d", n)
		return padded[0:3] + "/" + padded[3:6] + "/" + padded[6:9]
	}

	compact := strings.ReplaceAll(id, "-", "")
	if len(compact) > 9 {
		compact = compact[:9]
	}
	var parts []string
	for len(compact) > 3 {
		parts = append(parts, compact[:3])
		compact = compact[3:]
	}
	parts = append(parts, compact)
	return strings.Join(parts, "/")
}

var unsafeFilenameChars = regexp.MustCompile(`[^\w.\-]`)

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// mediaType strips parameters such as "; charset=utf-8".
func mediaType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return contentType
	}
	return mt
}

// toString and toInt64 read metadata that may have been through a JSON round
// trip, where integers come back as float64.
func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}
