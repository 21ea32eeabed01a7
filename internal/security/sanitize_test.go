package security

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeOutput(t *testing.T) {
	in := `<b onclick="steal()">hi</b><script>alert(1)</script>`
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt;", SanitizeOutput(in))
	assert.Equal(t, "a &amp; b", SanitizeOutput("a & b"))
}

func TestSafeFilename(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	pattern := regexp.MustCompile(`^[A-Za-z0-9._-]+_1700000000_[0-9a-f]{4}\.xlsx$`)

	got := SafeFilename("../../etc/报表 2024 (final).XLSX", now)
	assert.Regexp(t, pattern, got)
	assert.NotContains(t, got, "/")

	long := SafeFilename("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.xlsx", now)
	assert.Regexp(t, `^a{50}_1700000000_[0-9a-f]{4}\.xlsx$`, long)

	assert.Regexp(t, `^file_1700000000_[0-9a-f]{4}\.csv$`, SafeFilename(`C:\tmp\.csv`, now))
}
