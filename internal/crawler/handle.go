package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultHandleMarker precedes the handle in profile links.
const DefaultHandleMarker = "/@"

// HandleFromHref extracts the candidate handle from a profile link: the text after
// the last marker, cut at the first '?', '#' or '/'. ok is false when the link
// carries no handle.
func HandleFromHref(href, marker string) (Candidate, bool) {
	if marker == "" {
		marker = DefaultHandleMarker
	}
	idx := strings.LastIndex(href, marker)
	if idx < 0 {
		return "", false
	}
	handle := href[idx+len(marker):]
	if cut := strings.IndexAny(handle, "?#/"); cut >= 0 {
		handle = handle[:cut]
	}
	if unescaped, err := url.PathUnescape(handle); err == nil {
		handle = unescaped
	}
	handle = strings.TrimSpace(handle)
	if handle == "" || strings.ContainsAny(handle, "\r\n") {
		return "", false
	}
	return Candidate(handle), true
}

// FillTemplate substitutes value into the first placeholder of template.
func FillTemplate(template, placeholder, value string) (string, error) {
	if !strings.Contains(template, placeholder) {
		return "", fmt.Errorf("template %q has no %s placeholder", template, placeholder)
	}
	return strings.Replace(template, placeholder, value, 1), nil
}

// SearchURL builds a search feed URL, escaping spaces as %20.
func SearchURL(template, term string) (string, error) {
	escaped := strings.ReplaceAll(url.QueryEscape(term), "+", "%20")
	return FillTemplate(template, "{query}", escaped)
}

// ProfileURL builds the profile URL for a candidate.
func ProfileURL(template string, candidate Candidate) (string, error) {
	return FillTemplate(template, "{handle}", url.PathEscape(candidate.String()))
}
