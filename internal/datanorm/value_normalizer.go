package datanorm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ParsePrice turns a supplier amount into a non-negative float. Numbers are
// taken as-is; strings are stripped of everything except digits and dots
// first ("SAR 23.80" -> 23.80). Anything unparsable is 0.
func ParsePrice(v any) float64 {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, t)
		if cleaned == "" {
			return 0
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if f < 0 || f != f {
		return 0
	}
	return f
}

// parseDiscount is stricter than ParsePrice: a discount that is present but
// not a number is an error, which drops the SKU entry carrying it.
func parseDiscount(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case json.Number:
		return t.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("discount %q: %w", t, err)
		}
		return f, nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("discount has unsupported type %T", v)
}

// NormalizeImageURL makes an image URL absolute: "//host/x" and "host/x"
// both become "https://host/x"; http(s) URLs are returned unchanged.
func NormalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	switch {
	case u == "":
		return ""
	case strings.HasPrefix(u, "https://"), strings.HasPrefix(u, "http://"):
		return u
	case strings.HasPrefix(u, "//"):
		return "https:" + u
	default:
		return "https://" + u
	}
}

var (
	slugStrip    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSeparate = regexp.MustCompile(`[-\s]+`)
	lowerCaser   = cases.Lower(language.Und)
)

// Slugify produces a URL-safe slug. Accents are folded ("Café" -> "cafe");
// letters from other scripts are kept.
func Slugify(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	slug := strings.TrimSpace(lowerCaser.String(folded))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugSeparate.ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// IsArabic reports whether s contains a character in U+0600–U+06FF.
func IsArabic(s string) bool {
	for _, r := range s {
		if r >= 0x0600 && r <= 0x06FF {
			return true
		}
	}
	return false
}

var (
	brandPattern = regexp.MustCompile(`^([A-Z][A-Za-z0-9]+)\s`)
	asciiWord    = regexp.MustCompile(`[A-Za-z0-9]+`)
)

// leadingBrand returns a capitalized first word followed by whitespace.
func leadingBrand(name string) string {
	m := brandPattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return m[1]
}

// asciiTokens returns up to max alphanumeric ASCII tokens of s.
func asciiTokens(s string, max int) []string {
	return asciiWord.FindAllString(s, max)
}

// parseStock accepts an integer or a string of digits. Anything else,
// including negatives, is 0.
func parseStock(v any) int {
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return 0
	}
	n, ok := toInt(v)
	if !ok || n < 0 {
		return 0
	}
	return n
}

// isLeafFlag accepts "1", 1 and true.
func isLeafFlag(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.TrimSpace(t) == "1" || strings.EqualFold(strings.TrimSpace(t), "true")
	}
	n, ok := toInt(v)
	return ok && n == 1
}
