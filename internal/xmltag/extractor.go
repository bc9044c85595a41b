// Package xmltag pulls element text out of SOAP responses by plain string
// scanning.
//
// It is not an XML parser. Tags are matched literally, so nested elements
// with the same name, CDATA sections and tag literals appearing inside values
// all confuse it. That is acceptable here: it must also read fault bodies
// whose structure is not guaranteed by any schema, and WSAA sometimes returns
// the ticket as entity-escaped XML inside another element.
package xmltag

import "strings"

// FindAll returns the inner text of every <tag>...</tag> in document, in order.
//
// When the literal start tag is absent, the entity-escaped form
// &lt;tag&gt;...&lt;/tag&gt; is searched instead. A start tag with no
// matching end tag yields the rest of the document.
func FindAll(document, tag string) []string {
	start, end := "<"+tag+">", "</"+tag+">"
	if !strings.Contains(document, start) {
		start, end = "&lt;"+tag+"&gt;", "&lt;/"+tag+"&gt;"
	}

	parts := strings.Split(document, start)
	if len(parts) < 2 {
		return []string{}
	}

	values := make([]string, 0, len(parts)-1)
	for _, part := range parts[1:] {
		if idx := strings.Index(part, end); idx >= 0 {
			part = part[:idx]
		}
		values = append(values, part)
	}
	return values
}

// FindFirst returns the first value FindAll would return
func FindFirst(document, tag string) (string, bool) {
	values := FindAll(document, tag)
	if len(values) == 0 {
		return "", false
	}
	return values[0], true
}

// FindFirstOr returns the first value or fallback when the tag is absent
func FindFirstOr(document, tag, fallback string) string {
	if v, ok := FindFirst(document, tag); ok {
		return v
	}
	return fallback
}

// Contains reports whether document opens tag, escaped or not. Attributes are
// allowed, so "<faultcode" and "<faultcode xmlns=...>" both match.
func Contains(document, tag string) bool {
	return strings.Contains(document, "<"+tag) || strings.Contains(document, "&lt;"+tag)
}
