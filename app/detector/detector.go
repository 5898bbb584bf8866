package detector

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// ReferenceType classifies a detected companion resource.
type ReferenceType string

const (
	ReferenceFile         ReferenceType = "file"
	ReferenceDocument     ReferenceType = "document"
	ReferenceSpreadsheet  ReferenceType = "spreadsheet"
	ReferencePresentation ReferenceType = "presentation"
	ReferenceFolder       ReferenceType = "folder"
)

// Reference is a single companion-file reference extracted from free text.
type Reference struct {
	Type            ReferenceType
	ID              string
	OriginalLocator string
}

// DirectDownloadURL returns the direct download locator for plain files.
// Other reference kinds have no direct download form and return "".
func (r Reference) DirectDownloadURL() string {
	if r.Type != ReferenceFile {
		return ""
	}
	return "https://drive.google.com/uc?export=download&id=" + r.ID
}

var locatorPatterns = []*regexp.Regexp{
	// Standard file share links, with optional /view, /edit suffixes
	regexp.MustCompile(`(?i)https?://drive\.google\.com/file/d/([a-zA-Z0-9_-]+)(?:/[a-zA-Z]*)?(?:\?[^&\s]*)?`),
	// Legacy open links
	regexp.MustCompile(`(?i)https?://drive\.google\.com/open\?id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)https?://docs\.google\.com/document/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)https?://docs\.google\.com/spreadsheets/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)https?://docs\.google\.com/presentation/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`(?i)https?://drive\.google\.com/drive/folders/([a-zA-Z0-9_-]+)`),
	// Direct download links
	regexp.MustCompile(`(?i)https?://drive\.google\.com/uc\?id=([a-zA-Z0-9_-]+)`),
	// Domain-scoped file links
	regexp.MustCompile(`(?i)https?://drive\.google\.com/(?:a/[^/]+/)?file/d/([a-zA-Z0-9_-]+)`),
}

var bareURLPattern = regexp.MustCompile(`(?i)https?://[^\s<>"']+drive\.google\.com[^\s<>"']*`)

var validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Detect extracts companion-file references from a free-text description.
// References are deduplicated by (type, id) and returned in first-seen order.
// The function is pure: no I/O, no side effects.
func Detect(text string) []Reference {
	if text == "" {
		return nil
	}

	type candidate struct {
		pos     int
		typ     ReferenceType
		id      string
		locator string
	}

	var candidates []candidate

	for _, pattern := range locatorPatterns {
		for _, idx := range pattern.FindAllStringSubmatchIndex(text, -1) {
			locator := text[idx[0]:idx[1]]
			id := text[idx[2]:idx[3]]
			candidates = append(candidates, candidate{
				pos:     idx[0],
				typ:     classifyLocator(locator),
				id:      id,
				locator: locator,
			})
		}
	}

	// drive.google.com URLs carrying the file id in a query parameter
	for _, idx := range bareURLPattern.FindAllStringIndex(text, -1) {
		raw := text[idx[0]:idx[1]]
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		for _, id := range parsed.Query()["id"] {
			if id != "" {
				candidates = append(candidates, candidate{pos: idx[0], typ: ReferenceFile, id: id, locator: raw})
			}
		}
	}

	// First-seen order means text position, regardless of which pattern
	// recognized the locator.
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].pos < candidates[j].pos })

	type key struct {
		typ ReferenceType
		id  string
	}

	var refs []Reference
	seen := make(map[key]struct{})
	for _, c := range candidates {
		k := key{c.typ, c.id}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		refs = append(refs, Reference{Type: c.typ, ID: c.id, OriginalLocator: c.locator})
	}

	return refs
}

func classifyLocator(locator string) ReferenceType {
	lower := strings.ToLower(locator)
	switch {
	case strings.Contains(lower, "docs.google.com/document"):
		return ReferenceDocument
	case strings.Contains(lower, "docs.google.com/spreadsheets"):
		return ReferenceSpreadsheet
	case strings.Contains(lower, "docs.google.com/presentation"):
		return ReferencePresentation
	case strings.Contains(lower, "drive.google.com/drive/folders"):
		return ReferenceFolder
	default:
		return ReferenceFile
	}
}

// IsValidReferenceID reports whether id has the shape of a Drive file id.
func IsValidReferenceID(id string) bool {
	if len(id) < 10 {
		return false
	}
	return validIDPattern.MatchString(id)
}
