// Package props rewrites attribute and style keys from the word_separated
// convention used by component authors to the camelCase convention of the
// retained tree, and back to HTML names for serialization.
package props

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// irregular maps source keys whose target spelling is not plain camelCase
// of the source, or that authors commonly write as one word.
var irregular = map[string]string{
	"class":            "className",
	"class_name":       "className",
	"for":              "htmlFor",
	"html_for":         "htmlFor",
	"max_length":       "maxLength",
	"maxlength":        "maxLength",
	"min_length":       "minLength",
	"minlength":        "minLength",
	"read_only":        "readOnly",
	"readonly":         "readOnly",
	"tab_index":        "tabIndex",
	"tabindex":         "tabIndex",
	"auto_focus":       "autoFocus",
	"autofocus":        "autoFocus",
	"auto_complete":    "autoComplete",
	"autocomplete":     "autoComplete",
	"content_editable": "contentEditable",
	"contenteditable":  "contentEditable",
	"spell_check":      "spellCheck",
	"spellcheck":       "spellCheck",
	"accept_charset":   "acceptCharset",
	"http_equiv":       "httpEquiv",
	"col_span":         "colSpan",
	"colspan":          "colSpan",
	"row_span":         "rowSpan",
	"rowspan":          "rowSpan",
}

// htmlIrregular maps target names back to HTML attribute names where
// lower-casing is not enough.
var htmlIrregular = map[string]string{
	"className":     "class",
	"htmlFor":       "for",
	"acceptCharset": "accept-charset",
	"httpEquiv":     "http-equiv",
}

// AttributeName rewrites one attribute key.
func AttributeName(key string) string {
	if name, ok := irregular[key]; ok {
		return name
	}
	if strings.HasPrefix(key, "aria_") || strings.HasPrefix(key, "data_") {
		return strings.ReplaceAll(key, "_", "-")
	}
	return camel(key, '_')
}

// StyleName rewrites one style key. Both font_size and font-size become
// fontSize; custom properties (--name) are kept.
func StyleName(key string) string {
	if strings.HasPrefix(key, "--") {
		return key
	}
	return camel(strings.ReplaceAll(key, "-", "_"), '_')
}

// Style rewrites every key of a style map. Values are kept as they are.
func Style(style map[string]any) map[string]any {
	out := make(map[string]any, len(style))
	for k, v := range style {
		out[StyleName(k)] = v
	}
	return out
}

// Attributes rewrites a map of plain attributes. A nested map under the
// style key is rewritten with Style.
func Attributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		name := AttributeName(k)
		if name == "style" {
			if m, ok := v.(map[string]any); ok {
				v = Style(m)
			}
		}
		out[name] = v
	}
	return out
}

// HTMLName maps a camelCase attribute name to its HTML spelling.
func HTMLName(name string) string {
	if html, ok := htmlIrregular[name]; ok {
		return html
	}
	return strings.ToLower(name)
}

// CSSName maps a camelCase style name to its CSS property name.
func CSSName(name string) string {
	if strings.HasPrefix(name, "--") {
		return name
	}
	var b strings.Builder
	for _, r := range name {
		if unicode.IsUpper(r) {
			b.WriteByte('-')
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// camel joins sep-separated words in camelCase. Leading separators are
// kept so private keys such as __sequence stay untouched.
func camel(key string, sep byte) string {
	if key == "" || key[0] == sep || strings.IndexByte(key, sep) < 0 {
		return key
	}
	parts := strings.Split(key, string(sep))
	var b strings.Builder
	b.Grow(len(key))
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(p)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(p[size:])
	}
	return b.String()
}
