package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dshills/memograph/pkg/types"
)

const frontmatterDelimiter = "---"

// splitFrontmatter separates a leading delimited metadata block from the
// document body. Returns the raw block (without delimiters) and the body.
// A document without a valid block returns an empty block and the full text.
func splitFrontmatter(text string) (string, string) {
	if !strings.HasPrefix(text, frontmatterDelimiter+"\n") &&
		text != frontmatterDelimiter &&
		!strings.HasPrefix(text, frontmatterDelimiter+"\r\n") {
		return "", text
	}

	rest := text[len(frontmatterDelimiter):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	// Closing delimiter must start a line
	for _, marker := range []string{"\n" + frontmatterDelimiter + "\n", "\n" + frontmatterDelimiter + "\r\n"} {
		if idx := strings.Index(rest, marker); idx >= 0 {
			return rest[:idx], rest[idx+len(marker):]
		}
	}
	if strings.HasSuffix(rest, "\n"+frontmatterDelimiter) {
		return rest[:len(rest)-len(frontmatterDelimiter)-1], ""
	}

	// Unterminated block: treat the whole document as body
	return "", text
}

// parseFrontmatter decodes the metadata block. Malformed YAML degrades to
// empty metadata; parsing is total.
func parseFrontmatter(block string) types.Metadata {
	meta := types.Metadata{Extra: map[string]string{}}
	if block == "" {
		return meta
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(block), &raw); err != nil {
		return meta
	}

	for key, value := range raw {
		switch strings.ToLower(key) {
		case "title":
			meta.Title = normalizeScalar(value)
		case "kind", "type":
			meta.Kind = normalizeScalar(value)
		case "slug":
			meta.Slug = normalizeScalar(value)
		case "schema":
			meta.Schema = normalizeScalar(value)
		case "tags":
			meta.Tags = normalizeStringList(value)
		default:
			meta.Extra[key] = normalizeValue(value)
		}
	}
	return meta
}

// normalizeScalar coerces any scalar metadata value to a string. Dates keep
// a canonical form; numbers and booleans become their literal text.
func normalizeScalar(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		if v.Hour() == 0 && v.Minute() == 0 && v.Second() == 0 && v.Nanosecond() == 0 {
			return v.Format("2006-01-02")
		}
		return v.Format(time.RFC3339)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// normalizeValue renders any metadata value, including collections, as a
// single string. Lists join with commas; maps flatten to key=value pairs in
// key order.
func normalizeValue(value interface{}) string {
	switch v := value.(type) {
	case []interface{}:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, normalizeValue(item))
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+"="+normalizeValue(v[key]))
		}
		return strings.Join(parts, ", ")
	default:
		return normalizeScalar(value)
	}
}

// normalizeStringList flattens a tags value to a string slice. Accepts a
// YAML list or a single comma-separated scalar.
func normalizeStringList(value interface{}) []string {
	var items []string
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if s := normalizeScalar(item); s != "" {
				items = append(items, s)
			}
		}
	default:
		for _, part := range strings.Split(normalizeScalar(value), ",") {
			if s := strings.TrimSpace(part); s != "" {
				items = append(items, s)
			}
		}
	}
	return items
}
