package pipeline

import (
	"path"
	"strings"
)

const fallbackName = "upload"

// SanitizeFilename reduces a client-supplied filename to a safe storage key
// component: directories are dropped, anything outside [A-Za-z0-9._-] becomes
// '_', and leading dots are removed.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" || strings.Trim(out, "_") == "" {
		return fallbackName
	}
	return out
}

// Keys returns the object keys for the original and the normalized image.
// Both live under the upload id so equal filenames never collide.
func Keys(id, filename string) (original, normalized string) {
	safe := SanitizeFilename(filename)
	stem := strings.TrimSuffix(safe, path.Ext(safe))
	if stem == "" {
		stem = fallbackName
	}
	return id + "/" + safe, id + "/" + stem + "_bw.jpg"
}
