package orders

import (
	"context"
	"strings"
)

// Cursor marks the last record of the previous page.
type Cursor struct {
	Date string
	ID   string
}

// String serializes the cursor as "date|id".
func (c Cursor) String() string {
	if c.ID == "" {
		return c.Date
	}
	return c.Date + "|" + c.ID
}

// ParseCursor reads a "date|id" token. A token without '|' is a bare date,
// which pages strictly before that date. Empty input means no cursor.
func ParseCursor(s string) *Cursor {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	date, id, _ := strings.Cut(s, "|")
	return &Cursor{Date: date, ID: id}
}

const (
	defaultMaxWindow = 200
	// How far past MaxWindow a page may widen when many records share the
	// boundary date.
	widenFactor = 8
)

// KeysetPaginator walks (date desc, id desc) windows of the orders table.
type KeysetPaginator struct {
	Keys      KeyLister
	MaxWindow int
}

// Next returns up to size keys strictly after cursor and the cursor for the
// following page, which is nil once the table is exhausted.
func (p *KeysetPaginator) Next(ctx context.Context, after *Cursor, size int) ([]Key, *Cursor, error) {
	if size <= 0 {
		return nil, nil, nil
	}
	maxWindow := p.MaxWindow
	if maxWindow <= 0 {
		maxWindow = defaultMaxWindow
	}
	window := min(2*size, maxWindow)
	if window < size {
		window = size
	}
	ceiling := max(maxWindow*widenFactor, window)

	for {
		raw, err := p.Keys.ListKeys(ctx, after, window)
		if err != nil {
			return nil, nil, err
		}
		keys := dropBoundary(raw, after)
		// A full window that the boundary filter shrank below size may be
		// hiding more records behind the boundary date.
		if len(keys) >= size || len(raw) < window {
			return truncatePage(keys, size)
		}
		if window >= ceiling {
			// More rows may follow; hand back a short page that can continue.
			if len(keys) == 0 {
				return keys, nil, nil
			}
			last := keys[len(keys)-1]
			return keys, &Cursor{Date: last.Date, ID: last.ID}, nil
		}
		window = min(window*2, ceiling)
	}
}

// dropBoundary removes keys the previous page already returned. The store
// filter is date <= cursor date, so ties on the date are resolved on id.
func dropBoundary(raw []Key, c *Cursor) []Key {
	if c == nil {
		return raw
	}
	out := make([]Key, 0, len(raw))
	for _, k := range raw {
		if k.Date > c.Date {
			continue
		}
		if k.Date == c.Date && (c.ID == "" || k.ID >= c.ID) {
			continue
		}
		out = append(out, k)
	}
	return out
}

func truncatePage(keys []Key, size int) ([]Key, *Cursor, error) {
	if len(keys) < size {
		return keys, nil, nil
	}
	keys = keys[:size]
	last := keys[size-1]
	return keys, &Cursor{Date: last.Date, ID: last.ID}, nil
}
