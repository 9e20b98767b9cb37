package main

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

// blockedDragSentinel is what WebView2 hands out instead of the real payload
// when a drag source is blocked by policy.
const blockedDragSentinel = "about:blank#blocked"

// editorResourcePrefixes are editor-internal URI schemes that wrap a file URI.
var editorResourcePrefixes = []string{
	"vscode-file://",
	"vscode-resource://",
	"vscode-webview-resource://",
}

var (
	reSlashDrive     = regexp.MustCompile(`^/[A-Za-z]:/`)
	reEncodedDrive   = regexp.MustCompile(`(?i)^/[a-z]%3A/`)
	rePercentEscape  = regexp.MustCompile(`%[0-9A-Fa-f]{2}`)
	reLowerDrive     = regexp.MustCompile(`^[a-z]:/`)
	reCanonicalDrive = regexp.MustCompile(`^[A-Z]:/`)
	reCanonicalUNC   = regexp.MustCompile(`^//[^/]+/[^/]+`)
	reCanonicalMount = regexp.MustCompile(`^/mnt/`)
)

// normalizeDropPath converts one raw drop/paste string into a canonical
// absolute path (forward slashes, uppercase drive letter) or reports that the
// string is not a usable path. Every stage that fails to decode leaves the
// string as it was. Results are stable under a second pass, so anything still
// escaped or quoted after decoding is rejected.
func normalizeDropPath(raw string) (string, bool) {
	s := unquote(raw)
	if s == "" {
		return "", false
	}

	// Editors serialise their drag payload as JSON.
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		if p, ok := decodeEditorPayload(s); ok {
			s = p
		}
	}

	s = rewriteEditorResourceURI(s)
	s = stripFileScheme(s)

	// /c%3A/x → c:/x
	if reEncodedDrive.MatchString(s) {
		if dec, err := url.PathUnescape(s); err == nil {
			s = strings.TrimPrefix(dec, "/")
		}
	}
	if reSlashDrive.MatchString(s) {
		s = s[1:]
	}

	s = unquote(s)
	if rePercentEscape.MatchString(s) {
		if dec, err := url.PathUnescape(s); err == nil {
			s = unquote(dec)
		}
	}
	// Double-encoded input would still carry an escape and change again on
	// the next pass.
	if rePercentEscape.MatchString(s) || strings.Contains(s, `"`) {
		return "", false
	}

	s = strings.ReplaceAll(s, `\`, "/")
	if reLowerDrive.MatchString(s) {
		s = strings.ToUpper(s[:1]) + s[1:]
	}

	if isCanonicalPath(s) {
		return s, true
	}
	return "", false
}

// unquote drops carriage returns, surrounding whitespace and quotes.
func unquote(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// isCanonicalPath reports whether s has one of the accepted absolute shapes.
func isCanonicalPath(s string) bool {
	return reCanonicalDrive.MatchString(s) ||
		reCanonicalUNC.MatchString(s) ||
		reCanonicalMount.MatchString(s)
}

// normalizeDropPaths normalizes every line, drops rejections and
// de-duplicates while keeping first-arrival order.
func normalizeDropPaths(lines []string) []string {
	seen := make(map[string]bool, len(lines))
	var out []string
	for _, l := range lines {
		p, ok := normalizeDropPath(l)
		if !ok || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// editorResource is the URI object editors attach to dragged items.
type editorResource struct {
	FsPath   string `json:"fsPath"`
	External string `json:"external"`
	Path     string `json:"path"`
}

// editorDragItem is one element of an editor drag payload. Either a bare
// JSON string or an object carrying a resource.
type editorDragItem struct {
	Resource *editorResource `json:"resource"`
	FsPath   string          `json:"fsPath"`
}

// decodeEditorPayload extracts the filesystem path of the first element of
// a JSON drag payload. Malformed JSON or a missing field yields ok=false.
func decodeEditorPayload(s string) (string, bool) {
	var first json.RawMessage
	var list []json.RawMessage
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		if len(list) == 0 {
			return "", false
		}
		first = list[0]
	} else {
		first = json.RawMessage(s)
	}

	var str string
	if err := json.Unmarshal(first, &str); err == nil {
		str = strings.TrimSpace(str)
		return str, str != ""
	}

	var item editorDragItem
	if err := json.Unmarshal(first, &item); err != nil {
		return "", false
	}
	var candidates []string
	if item.Resource != nil {
		candidates = append(candidates, item.Resource.FsPath)
	}
	candidates = append(candidates, item.FsPath)
	if item.Resource != nil {
		candidates = append(candidates, item.Resource.External, item.Resource.Path)
	}
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			return c, true
		}
	}
	return "", false
}

// rewriteEditorResourceURI turns vscode-file://vscode-app/C:/x into
// file:///C:/x by re-prefixing from the first separator after the authority.
func rewriteEditorResourceURI(s string) string {
	for _, prefix := range editorResourcePrefixes {
		if !hasPrefixFold(s, prefix) {
			continue
		}
		rest := s[len(prefix):]
		if idx := strings.Index(rest, "/"); idx >= 0 {
			return "file://" + rest[idx:]
		}
		return "file://" + rest
	}
	return s
}

// stripFileScheme converts a file:// URI into a plain path.
func stripFileScheme(s string) string {
	if !hasPrefixFold(s, "file://") {
		return s
	}
	rest := s[len("file://"):]
	if hasPrefixFold(rest, "localhost/") {
		rest = rest[len("localhost"):]
	}

	if rest != "" && !strings.HasPrefix(rest, "/") {
		// file://server/share/x names a UNC location.
		rest = "//" + rest
	} else {
		// ///C:/x → /C:/x
		rest = "/" + strings.TrimLeft(rest, "/")
	}

	if dec, err := url.PathUnescape(rest); err == nil {
		rest = dec
	}
	if reSlashDrive.MatchString(rest) {
		rest = rest[1:]
	}
	return rest
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
