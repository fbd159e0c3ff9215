package orders

import (
	"context"
	"fmt"
	"log"
)

const defaultChunkSize = 50

// ChunkedFetcher loads full rows for a list of ids in bounded batches. A
// batch the store times out on is split in half and each half retried, down
// to single ids.
type ChunkedFetcher struct {
	Rows      RowFetcher
	ChunkSize int
	// OnSplit, when set, is told the size of every chunk that was bisected.
	OnSplit func(size int)
}

func (f *ChunkedFetcher) Fetch(ctx context.Context, ids []string, cols []string) ([]Row, error) {
	size := f.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	out := make([]Row, 0, len(ids))
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		rows, err := f.fetchChunk(ctx, ids[start:end], cols)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func (f *ChunkedFetcher) fetchChunk(ctx context.Context, ids []string, cols []string) ([]Row, error) {
	rows, err := f.Rows.FetchByIDs(ctx, ids, cols)
	if err == nil {
		return rows, nil
	}
	if !IsTransient(err) || len(ids) <= 1 {
		return nil, fmt.Errorf("fetch %d ids: %w", len(ids), err)
	}

	log.Printf("fetch chunk of %d timed out, splitting", len(ids))
	if f.OnSplit != nil {
		f.OnSplit(len(ids))
	}
	mid := len(ids) / 2
	left, err := f.fetchChunk(ctx, ids[:mid], cols)
	if err != nil {
		return nil, err
	}
	right, err := f.fetchChunk(ctx, ids[mid:], cols)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}

// SortByIDs orders rows by their position in ids. Rows whose id is not in
// ids are dropped.
func SortByIDs(rows []Row, ids []string) []Row {
	byID := make(map[string]Row, len(rows))
	for _, r := range rows {
		byID[asString(pick(r, "id"))] = r
	}
	out := make([]Row, 0, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}
