// Package cursor encodes and decodes the per-location progress marker that is
// persisted between sync invocations.
//
// A cursor is stored as a single nullable text column and has one of three
// shapes on the wire:
//
//	<RFC3339 timestamp>                     completed pass, watermark for the next one
//	page:<token>                            in-flight pass without a watermark
//	page:<token>|updated:<RFC3339 timestamp> in-flight pass resuming an incremental watermark
//
// The wire format must stay stable across releases so that stored cursors
// keep resuming.
package cursor

import (
	"errors"
	"strings"
	"time"
)

const (
	pagePrefix      = "page:"
	watermarkMarker = "|updated:"
)

// ErrInvalidCursor is returned when a plain (non page) cursor value is not a
// parseable timestamp.
var ErrInvalidCursor = errors.New("invalid cursor")

// Kind identifies which variant a Cursor holds.
type Kind int

const (
	// KindNone means the location has never been synced.
	KindNone Kind = iota
	// KindCompleted means the last pass for the location completed.
	KindCompleted
	// KindPage means a pass was interrupted and can resume from a page token.
	KindPage
)

// String returns a readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCompleted:
		return "completed"
	case KindPage:
		return "page"
	default:
		return "unknown"
	}
}

// Cursor is the decoded progress marker for one location. The zero value is
// a KindNone cursor.
type Cursor struct {
	kind      Kind
	at        time.Time
	token     string
	watermark *time.Time
}

// None returns the cursor of a location that was never synced.
func None() Cursor {
	return Cursor{}
}

// Completed returns a completed cursor whose watermark is at.
func Completed(at time.Time) Cursor {
	return Cursor{kind: KindCompleted, at: normalize(at)}
}

// Page returns an in-flight cursor resuming from token. watermark is the
// "updated after" boundary the interrupted pass started with, or nil.
func Page(token string, watermark *time.Time) Cursor {
	c := Cursor{kind: KindPage, token: token}
	if watermark != nil {
		wm := normalize(*watermark)
		c.watermark = &wm
	}
	return c
}

// Kind returns the cursor variant.
func (c Cursor) Kind() Kind {
	return c.kind
}

// CompletedAt returns the watermark of a completed cursor.
func (c Cursor) CompletedAt() (time.Time, bool) {
	if c.kind != KindCompleted {
		return time.Time{}, false
	}
	return c.at, true
}

// Token returns the page token of an in-flight cursor, or "" for other kinds.
func (c Cursor) Token() string {
	if c.kind != KindPage {
		return ""
	}
	return c.token
}

// Watermark returns the watermark carried by an in-flight cursor.
func (c Cursor) Watermark() *time.Time {
	if c.kind != KindPage || c.watermark == nil {
		return nil
	}
	wm := *c.watermark
	return &wm
}

// UpdatedAfter returns the "fetch documents updated after" boundary a pass
// starting from this cursor must use. A completed cursor only provides one
// for incremental passes; an in-flight cursor always keeps the boundary its
// pass started with.
func (c Cursor) UpdatedAfter(incremental bool) *time.Time {
	switch c.kind {
	case KindCompleted:
		if !incremental {
			return nil
		}
		at := c.at
		return &at
	case KindPage:
		return c.Watermark()
	default:
		return nil
	}
}

// Equal reports whether two cursors hold the same variant and values.
func (c Cursor) Equal(other Cursor) bool {
	if c.kind != other.kind {
		return false
	}
	switch c.kind {
	case KindCompleted:
		return c.at.Equal(other.at)
	case KindPage:
		if c.token != other.token {
			return false
		}
		if c.watermark == nil || other.watermark == nil {
			return c.watermark == nil && other.watermark == nil
		}
		return c.watermark.Equal(*other.watermark)
	default:
		return true
	}
}

// String returns the wire form, or "" for KindNone.
func (c Cursor) String() string {
	if enc := Encode(c); enc != nil {
		return *enc
	}
	return ""
}

// Encode returns the wire form of c. KindNone encodes to nil (a NULL column).
func Encode(c Cursor) *string {
	var s string
	switch c.kind {
	case KindCompleted:
		s = formatTime(c.at)
	case KindPage:
		s = pagePrefix + c.token
		if c.watermark != nil {
			s += watermarkMarker + formatTime(*c.watermark)
		}
	default:
		return nil
	}
	return &s
}

// Decode parses a stored cursor.
//
// In-flight cursors are decoded leniently: a missing or unparseable
// "|updated:" suffix yields a cursor without watermark, and an empty page
// token decodes to KindNone so the pass restarts. A plain value that is not
// a timestamp decodes to KindNone together with ErrInvalidCursor so callers
// can log it; the returned cursor is always usable.
func Decode(raw *string) (Cursor, error) {
	if raw == nil {
		return None(), nil
	}
	value := strings.TrimSpace(*raw)
	if value == "" {
		return None(), nil
	}

	if strings.HasPrefix(value, pagePrefix) {
		return decodePage(strings.TrimPrefix(value, pagePrefix)), nil
	}

	at, err := parseTime(value)
	if err != nil {
		return None(), ErrInvalidCursor
	}
	return Completed(at), nil
}

func decodePage(rest string) Cursor {
	token := rest
	var watermark *time.Time

	if idx := strings.LastIndex(rest, watermarkMarker); idx >= 0 {
		token = rest[:idx]
		if wm, err := parseTime(rest[idx+len(watermarkMarker):]); err == nil {
			watermark = &wm
		}
	}

	if token == "" {
		return None()
	}
	return Page(token, watermark)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano accepts values with or without fractional seconds.
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func normalize(t time.Time) time.Time {
	return t.UTC().Round(0)
}
