package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	scriptTagPattern = regexp.MustCompile(`(?is)<\s*script[^>]*>.*?<\s*/\s*script\s*>`)
	eventAttrPattern = regexp.MustCompile(`(?is)\son[a-z]+\s*=\s*("[^"]*"|'[^']*'|[^\s>]*)`)
	unsafeNameChars  = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// SanitizeOutput strips script blocks and inline event handlers, then
// HTML-escapes what is left.
func SanitizeOutput(s string) string {
	clean := scriptTagPattern.ReplaceAllString(s, "")
	clean = eventAttrPattern.ReplaceAllString(clean, "")
	return html.EscapeString(clean)
}

// SafeFilename turns a client-supplied name into a storage-safe one with a
// unique suffix, keeping the extension.
func SafeFilename(name string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	stem = unsafeNameChars.ReplaceAllString(stem, "_")
	if len(stem) > 50 {
		stem = stem[:50]
	}
	if stem == "" || stem == "." || stem == ".." {
		stem = "file"
	}
	ext = unsafeNameChars.ReplaceAllString(ext, "_")

	suffix := make([]byte, 2)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s_%d_%s%s", stem, now.Unix(), hex.EncodeToString(suffix), ext)
}
