package contentapi

import (
	"fmt"
	"strings"
	"time"
)

// Location is a named partition of a user's remote library. Each location is
// synced independently with its own cursor.
type Location string

const (
	// LocationInbox holds newly saved documents.
	LocationInbox Location = "inbox"
	// LocationLibrary holds documents saved for later.
	LocationLibrary Location = "library"
	// LocationArchive holds archived documents.
	LocationArchive Location = "archive"
	// LocationShortlist holds shortlisted documents.
	LocationShortlist Location = "shortlist"
	// LocationFeed holds feed items.
	LocationFeed Location = "feed"
)

// DefaultLocations is the backfill priority order.
var DefaultLocations = []Location{
	LocationInbox,
	LocationLibrary,
	LocationArchive,
	LocationShortlist,
	LocationFeed,
}

// remoteNames maps locations to the value the remote API expects.
var remoteNames = map[Location]string{
	LocationInbox:     "new",
	LocationLibrary:   "later",
	LocationArchive:   "archive",
	LocationShortlist: "shortlist",
	LocationFeed:      "feed",
}

// RemoteName returns the location identifier used by the remote API.
func (l Location) RemoteName() string {
	if name, ok := remoteNames[l]; ok {
		return name
	}
	return string(l)
}

// Valid reports whether l is a known location.
func (l Location) Valid() bool {
	_, ok := remoteNames[l]
	return ok
}

// ParseLocations parses a comma separated location list, preserving the
// order of DefaultLocations and dropping duplicates.
func ParseLocations(s string) ([]Location, error) {
	requested := make(map[Location]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		loc := Location(part)
		if !loc.Valid() {
			return nil, fmt.Errorf("unknown location %q", part)
		}
		requested[loc] = true
	}
	if len(requested) == 0 {
		return nil, fmt.Errorf("no locations given")
	}

	result := make([]Location, 0, len(requested))
	for _, loc := range DefaultLocations {
		if requested[loc] {
			result = append(result, loc)
		}
	}
	return result, nil
}

// Document is a remote library document as returned by the list endpoint.
type Document struct {
	ID          string         `json:"id"`
	URL         string         `json:"url"`
	SourceURL   string         `json:"source_url"`
	Title       string         `json:"title"`
	Author      string         `json:"author"`
	Category    string         `json:"category"`
	Location    string         `json:"location"`
	Summary     string         `json:"summary"`
	WordCount   int            `json:"word_count"`
	Tags        map[string]any `json:"tags"`
	HTMLContent *string        `json:"html_content,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	LastMovedAt *time.Time     `json:"last_moved_at"`
}

// HasInlineContent reports whether the list response already carried the
// document content.
func (d *Document) HasInlineContent() bool {
	return d.HTMLContent != nil
}

// ListParams selects one page of documents.
type ListParams struct {
	Location     Location
	UpdatedAfter *time.Time
	PageCursor   string
	PageSize     int
	WithContent  bool
}

// ListResponse is one page of documents.
type ListResponse struct {
	Count          int        `json:"count"`
	NextPageCursor *string    `json:"nextPageCursor"`
	Results        []Document `json:"results"`
}

// NextPage returns the cursor of the next page, or "" on the last page.
func (r *ListResponse) NextPage() string {
	if r == nil || r.NextPageCursor == nil {
		return ""
	}
	return strings.TrimSpace(*r.NextPageCursor)
}
