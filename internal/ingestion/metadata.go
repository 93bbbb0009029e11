package ingestion

import (
	"net/url"
	"path"
	"strings"
)

// sourceTypeByExt maps a lowercase file extension to the source_type label
// stored in the index payload.
var sourceTypeByExt = map[string]string{
	".pdf":      "pdf",
	".docx":     "docx",
	".doc":      "docx",
	".html":     "html",
	".htm":      "html",
	".txt":      "txt",
	".text":     "txt",
	".md":       "md",
	".markdown": "md",
}

// InferSourceType guesses a document's source type from its name. The name
// may be a bare file name, a path, or a URL; for URLs only the path is
// considered, so query strings and fragments do not confuse the extension.
// Returns "" when nothing matches, which leaves the record unfiltered by type.
//
// Supported patterns:
//
//	report.pdf                         -> pdf
//	docs/Guide.DOCX                    -> docx
//	https://example.com/intro.html?x=1 -> html
//	notes.markdown                     -> md
func InferSourceType(documentName string) string {
	name := strings.TrimSpace(documentName)
	if name == "" {
		return ""
	}

	if parsed, err := url.Parse(name); err == nil && parsed.Scheme != "" && parsed.Host != "" {
		name = parsed.Path
	}

	return sourceTypeByExt[strings.ToLower(path.Ext(name))]
}

// NormaliseSourceType lowercases an explicit source type and maps common
// aliases onto the canonical labels. Unknown values pass through lowercased.
func NormaliseSourceType(sourceType string) string {
	st := strings.ToLower(strings.TrimSpace(sourceType))
	if canonical, ok := sourceTypeByExt["."+st]; ok {
		return canonical
	}
	return st
}
