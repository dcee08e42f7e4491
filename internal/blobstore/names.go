package blobstore

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"shivuk/internal/dataurl"
)

// UniqueName builds a collision-resistant path hint under dir from the
// upload time and a random suffix. label, when set, is slugged into the name.
func UniqueName(dir, label, encoded string, now time.Time) string {
	ext := ".png"
	if _, mediaType, err := dataurl.Decode(encoded); err == nil {
		ext = dataurl.Extension(mediaType)
	}
	parts := []string{strconv.FormatInt(now.UnixMilli(), 10)}
	if slug := dataurl.Slug(label); slug != "" {
		parts = append(parts, slug)
	}
	parts = append(parts, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return strings.Trim(dir, "/") + "/" + strings.Join(parts, "-") + ext
}
