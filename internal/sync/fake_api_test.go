package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/readlist/readlist-sync/internal/contentapi"
)

type apiCall struct {
	list     bool
	location contentapi.Location
	params   contentapi.ListParams
	docID    string
}

// fakeAPI serves fixed pages per location. Page tokens are "p<index>".
// Documents listed without content are served in full by GetDocument.
type fakeAPI struct {
	pages map[contentapi.Location][][]contentapi.Document
	// failOn returns an error for the n-th request (1-based), if set
	failOn  map[int]error
	missing map[string]bool
	calls   []apiCall
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		pages:   make(map[contentapi.Location][][]contentapi.Document),
		failOn:  make(map[int]error),
		missing: make(map[string]bool),
	}
}

func (f *fakeAPI) ListDocuments(_ context.Context, _ string, p contentapi.ListParams) (*contentapi.ListResponse, error) {
	f.calls = append(f.calls, apiCall{list: true, location: p.Location, params: p})
	if err := f.failOn[len(f.calls)]; err != nil {
		return nil, err
	}

	pages := f.pages[p.Location]
	idx := 0
	if p.PageCursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(p.PageCursor, "p"))
		if err != nil {
			return nil, fmt.Errorf("bad page cursor %q", p.PageCursor)
		}
		idx = n
	}

	resp := &contentapi.ListResponse{}
	if idx < len(pages) {
		for _, d := range pages[idx] {
			if p.UpdatedAfter != nil && !d.UpdatedAt.After(*p.UpdatedAfter) {
				continue
			}
			listed := d
			if !p.WithContent {
				listed.HTMLContent = nil
			}
			resp.Results = append(resp.Results, listed)
		}
	}
	if idx+1 < len(pages) {
		next := fmt.Sprintf("p%d", idx+1)
		resp.NextPageCursor = &next
	}
	resp.Count = len(resp.Results)
	return resp, nil
}

func (f *fakeAPI) GetDocument(_ context.Context, _ string, id string) (*contentapi.Document, error) {
	f.calls = append(f.calls, apiCall{docID: id})
	if err := f.failOn[len(f.calls)]; err != nil {
		return nil, err
	}
	if f.missing[id] {
		return nil, contentapi.ErrDocumentNotFound
	}
	body := "<p>" + id + "</p>"
	return &contentapi.Document{ID: id, HTMLContent: &body}, nil
}

// listedLocations returns the locations listed, in order, without repeats
// of consecutive calls.
func (f *fakeAPI) listedLocations(from int) []contentapi.Location {
	var out []contentapi.Location
	for _, c := range f.calls[from:] {
		if !c.list {
			continue
		}
		if len(out) == 0 || out[len(out)-1] != c.location {
			out = append(out, c.location)
		}
	}
	return out
}

// makePages builds pages of size perPage, numbering documents from base.
// Inline content is left out of every document whose index is divisible by
// fetchEvery, when fetchEvery > 0.
func makePages(prefix string, pages, perPage, fetchEvery int, base time.Time) [][]contentapi.Document {
	out := make([][]contentapi.Document, pages)
	n := 0
	for p := range pages {
		for range perPage {
			id := fmt.Sprintf("%s-%d", prefix, n)
			doc := contentapi.Document{
				ID:        id,
				Title:     id,
				UpdatedAt: base.Add(time.Duration(n) * time.Minute),
			}
			if fetchEvery == 0 || n%fetchEvery != 0 {
				body := "<p>" + id + "</p>"
				doc.HTMLContent = &body
			}
			out[p] = append(out[p], doc)
			n++
		}
	}
	return out
}
