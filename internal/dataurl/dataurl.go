// Package dataurl handles locally-encoded images carried inline as
// "data:<mime>;base64,<payload>" strings before they are promoted to durable
// blob URLs.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	prefix = "data:"
	marker = ";base64,"
)

// DefaultMIME is assumed when a data URL omits its media type.
const DefaultMIME = "image/png"

// IsEncoded reports whether value is an inline data URL rather than a durable URL.
func IsEncoded(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), prefix)
}

// Decode returns the raw bytes and media type of a base64 data URL.
func Decode(value string) ([]byte, string, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, prefix) {
		return nil, "", errors.New("invalid data URL prefix")
	}
	idx := strings.Index(value, marker)
	if idx < 0 {
		return nil, "", errors.New("data URL missing base64 marker")
	}
	mediaType := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(value[:idx], prefix)))
	if mediaType == "" {
		mediaType = DefaultMIME
	}
	raw, err := base64.StdEncoding.DecodeString(value[idx+len(marker):])
	if err != nil {
		return nil, "", fmt.Errorf("decode base64 payload: %w", err)
	}
	return raw, mediaType, nil
}

// Encode builds a data URL from raw bytes.
func Encode(mediaType string, data []byte) string {
	if strings.TrimSpace(mediaType) == "" {
		mediaType = DefaultMIME
	}
	return prefix + mediaType + marker + base64.StdEncoding.EncodeToString(data)
}

// ReadFile loads an image from disk as a data URL. The media type comes from
// the extension, falling back to content sniffing.
func ReadFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mediaType := MediaType(filepath.Ext(path))
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image (%s)", path, mediaType)
	}
	return Encode(mediaType, raw), nil
}

// WriteFile decodes value into dir/<base><ext> and returns the written path.
func WriteFile(dir, base, value string) (string, error) {
	raw, mediaType, err := Decode(value)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure output directory: %w", err)
	}
	path := filepath.Join(dir, base+Extension(mediaType))
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

// Extension maps an image media type to a file extension including the dot.
func Extension(mediaType string) string {
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "image/png", "":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ".bin"
	}
	return exts[0]
}

// MediaType maps a file extension back to a media type.
func MediaType(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	case ".mp4":
		return "video/mp4"
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

// Slug folds accents and reduces value to lowercase ASCII words joined by
// dashes, for use inside blob path hints.
func Slug(value string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
