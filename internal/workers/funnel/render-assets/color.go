package renderassets

import (
	"strconv"
	"strings"
)

const DefaultPrimaryColor = "#1e293b"

const (
	darkForeground  = "text-slate-900"
	lightForeground = "text-white"
)

// parseHex reads #rgb or #rrggbb (the '#' is optional).
func parseHex(s string) (r, g, b uint8, ok bool) {
	c := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(c) == 3 {
		c = string([]byte{c[0], c[0], c[1], c[1], c[2], c[2]})
	}
	if len(c) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(c, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

// IsLight reports whether the weighted luminance of hex exceeds 0.6. Malformed input is dark.
func IsLight(hex string) bool {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return false
	}
	luminance := (0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)) / 255
	return luminance > 0.6
}

// resolveColor returns hex in canonical #rrggbb form, or the default for anything unparseable.
func resolveColor(hex string) string {
	r, g, b, ok := parseHex(hex)
	if !ok {
		return DefaultPrimaryColor
	}
	const digits = "0123456789abcdef"
	return string([]byte{'#',
		digits[r>>4], digits[r&0xf],
		digits[g>>4], digits[g&0xf],
		digits[b>>4], digits[b&0xf],
	})
}

// foreground picks the text class for content drawn on top of the primary color.
func foreground(hex string) string {
	if IsLight(hex) {
		return darkForeground
	}
	return lightForeground
}
