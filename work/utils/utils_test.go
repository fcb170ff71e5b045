package utils

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestObfuscateURL(t *testing.T) {
	assert.Equal(t, "", ObfuscateURL(""))
	assert.Equal(t, "https://streamlabs.com/***", ObfuscateURL("https://streamlabs.com/api/v5/slobs/tiktok/stream/start"))
	assert.Equal(t, "https://example.com/***?***", ObfuscateURL("https://example.com/x?token=abc"))
	assert.Equal(t, "https://example.com", ObfuscateURL("https://example.com/"))
	assert.Equal(t, "***OBFUSCATED***", ObfuscateURL("://bad url"))

	assert.Equal(t, "https://a.b/c", LogURL(false, "https://a.b/c"))
	assert.Equal(t, "https://a.b/***", LogURL(true, "https://a.b/c"))
}

func TestMaskToken(t *testing.T) {
	assert.Equal(t, "", MaskToken("  "))
	assert.Equal(t, "****", MaskToken("abc"))
	assert.Equal(t, "****wxyz", MaskToken("abcdefwxyz"))
}

func TestRedactSecrets(t *testing.T) {
	in := `Authorization: Bearer abc.DEF-123 body={"rtmp":"rtmp://x","key":"live_123?abc","other":"ok"}`
	out := RedactSecrets(in)

	assert.Contains(t, out, "Bearer ****")
	assert.Contains(t, out, `"key":"****"`)
	assert.Contains(t, out, `"rtmp":"rtmp://x"`)
	assert.Contains(t, out, `"other":"ok"`)
	assert.NotContains(t, out, "abc.DEF-123")
	assert.NotContains(t, out, "live_123")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "ab...(truncated)", Truncate("abcdef", 2))

	// "é" is two bytes and "€" three; a cut inside either backs off to its start.
	assert.Equal(t, "a...(truncated)", Truncate("aéb", 2))
	assert.Equal(t, "aé...(truncated)", Truncate("aéb", 3))
	assert.Equal(t, "...(truncated)", Truncate("€uro", 2))

	out := Truncate(strings.Repeat("ключ", 100), 51)
	assert.True(t, utf8.ValidString(out))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0s", FormatDuration(-time.Second))
	assert.Equal(t, "42s", FormatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", FormatDuration(time.Hour+time.Second))
	assert.Equal(t, "1d 2h 3m 4s", FormatDuration(26*time.Hour+3*time.Minute+4*time.Second))
}
