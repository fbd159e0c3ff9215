package orders

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ariefcatur/go-orders-readpath/internal/readcache"
)

const (
	defaultLimit      = 20
	defaultItemsLimit = 40
	minLimit          = 10
	maxLimit          = 60

	byIDFallbackLimit  = 100
	plainFallbackLimit = 60

	// Upper bound on keys the in-process search crawl inspects.
	scanMaxKeys = 2000
)

// Read strategies, in the order the chains try them.
const (
	SourceByDateIDs  = "by_date_ids"
	SourceByDate     = "by_date"
	SourceByID       = "by_id"
	SourcePlain      = "plain"
	SourceSearch     = "search"
	SourceSearchScan = "search_scan"
	SourceAll        = "all"
)

type Query struct {
	ID           string
	Limit        int
	All          bool
	Cursor       string
	IncludeItems bool
	Search       string
}

// Normalize applies the limit defaults and bounds.
func (q Query) Normalize() Query {
	q.ID = strings.TrimSpace(q.ID)
	q.Search = strings.TrimSpace(q.Search)
	q.Cursor = strings.TrimSpace(q.Cursor)
	if q.Limit <= 0 {
		q.Limit = defaultLimit
		if q.IncludeItems {
			q.Limit = defaultItemsLimit
		}
	}
	q.Limit = min(max(q.Limit, minLimit), maxLimit)
	return q
}

// Signature is the cache key of a normalized query.
func (q Query) Signature() string {
	items := "0"
	if q.IncludeItems {
		items = "1"
	}
	switch {
	case q.ID != "":
		return fmt.Sprintf("id:%s:items:%s", q.ID, items)
	case q.All:
		return "all:items:" + items
	case q.Search != "":
		return fmt.Sprintf("search:%s:%d:items:%s", strings.ToLower(q.Search), q.Limit, items)
	default:
		return fmt.Sprintf("list:%d:%s:items:%s", q.Limit, q.Cursor, items)
	}
}

type Page struct {
	Orders     []Order
	Cursor     string
	NextCursor string
	TotalCount int
}

type ReaderOptions struct {
	ChunkSize int
	MaxWindow int
	OnSplit   func(size int)
}

// Reader serves order reads through a read cache and a chain of
// progressively cheaper store queries.
type Reader struct {
	store     Store
	detector  *StyleDetector
	cache     *readcache.Cache[Page]
	paginator *KeysetPaginator
	fetcher   *ChunkedFetcher
}

func NewReader(store Store, detector *StyleDetector, cache *readcache.Cache[Page], opts ReaderOptions) *Reader {
	return &Reader{
		store:     store,
		detector:  detector,
		cache:     cache,
		paginator: &KeysetPaginator{Keys: store, MaxWindow: opts.MaxWindow},
		fetcher:   &ChunkedFetcher{Rows: store, ChunkSize: opts.ChunkSize, OnSplit: opts.OnSplit},
	}
}

func (r *Reader) Read(ctx context.Context, q Query) (readcache.Result[Page], error) {
	q = q.Normalize()
	return r.cache.Get(ctx, q.Signature(), func(ctx context.Context) (Page, string, error) {
		return r.load(ctx, q)
	})
}

// Invalidate drops every hot page so the next read goes to the store.
func (r *Reader) Invalidate() { r.cache.Purge() }

type strategy struct {
	source string
	run    func(ctx context.Context) (Page, error)
}

func (r *Reader) load(ctx context.Context, q Query) (Page, string, error) {
	style, err := r.detector.Detect(ctx)
	if err != nil {
		return Page{}, "", fmt.Errorf("detect schema: %w", err)
	}
	cols := r.projection(style, q.IncludeItems)

	var chain []strategy
	switch {
	case q.ID != "":
		chain = []strategy{{SourceByID, func(ctx context.Context) (Page, error) { return r.byPrimaryKey(ctx, q.ID, cols) }}}
	case q.All:
		chain = []strategy{{SourceAll, func(ctx context.Context) (Page, error) { return r.crawl(ctx, cols) }}}
	case q.Search != "":
		chain = []strategy{
			{SourceSearch, func(ctx context.Context) (Page, error) { return r.search(ctx, q, cols) }},
			{SourceSearchScan, func(ctx context.Context) (Page, error) { return r.searchScan(ctx, q, cols) }},
		}
	default:
		cursor := ParseCursor(q.Cursor)
		chain = []strategy{
			{SourceByDateIDs, func(ctx context.Context) (Page, error) { return r.byDateIDs(ctx, cursor, q.Limit, cols) }},
			{SourceByDate, func(ctx context.Context) (Page, error) { return r.byDate(ctx, cursor, q.Limit, cols) }},
			{SourceByID, func(ctx context.Context) (Page, error) { return r.byID(ctx, q.Limit, cols) }},
			{SourcePlain, func(ctx context.Context) (Page, error) { return r.plain(ctx, q.Limit, cols) }},
		}
	}

	page, source, err := runChain(ctx, chain)
	if err != nil {
		return Page{}, "", err
	}
	page.Cursor = q.Cursor
	return page, source, nil
}

// runChain stops at the first strategy that succeeds. Only statement timeouts
// move on to the next one.
func runChain(ctx context.Context, chain []strategy) (Page, string, error) {
	var lastErr error
	for _, s := range chain {
		page, err := s.run(ctx)
		if err == nil {
			return page, s.source, nil
		}
		if !IsTransient(err) {
			return Page{}, s.source, fmt.Errorf("%s: %w", s.source, err)
		}
		log.Printf("read strategy %s timed out, falling back", s.source)
		lastErr = fmt.Errorf("%s: %w", s.source, err)
	}
	return Page{}, "", lastErr
}

// projection is the select list for a read, narrowed to the columns the
// detection sample saw.
func (r *Reader) projection(style Style, includeItems bool) []string {
	cols := SelectColumns(style, includeItems)
	known := r.detector.KnownColumns()
	if len(known) == 0 {
		return cols
	}
	out := cols[:0:0]
	for _, c := range cols {
		if known.Has(c) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (r *Reader) byPrimaryKey(ctx context.Context, id string, cols []string) (Page, error) {
	row, err := r.store.GetByID(ctx, id, cols)
	if err != nil {
		return Page{}, err
	}
	if row == nil {
		return Page{Orders: []Order{}}, nil
	}
	return Page{Orders: []Order{ToDomain(row)}}, nil
}

func (r *Reader) byDateIDs(ctx context.Context, cursor *Cursor, limit int, cols []string) (Page, error) {
	keys, next, err := r.paginator.Next(ctx, cursor, limit)
	if err != nil {
		return Page{}, err
	}
	ids := keyIDs(keys)
	rows, err := r.fetcher.Fetch(ctx, ids, cols)
	if err != nil {
		return Page{}, err
	}
	page := Page{Orders: toDomainAll(SortByIDs(rows, ids))}
	if next != nil {
		page.NextCursor = next.String()
	}
	return page, nil
}

func (r *Reader) byDate(ctx context.Context, cursor *Cursor, limit int, cols []string) (Page, error) {
	before := ""
	if cursor != nil {
		before = cursor.Date
	}
	rows, err := r.store.ListByDate(ctx, before, limit, cols)
	if err != nil {
		return Page{}, err
	}
	page := Page{Orders: toDomainAll(rows)}
	if len(page.Orders) == limit {
		last := page.Orders[len(page.Orders)-1]
		page.NextCursor = Cursor{Date: last.Date, ID: last.ID}.String()
	}
	return page, nil
}

func (r *Reader) byID(ctx context.Context, limit int, cols []string) (Page, error) {
	rows, err := r.store.ListByID(ctx, min(limit, byIDFallbackLimit), cols)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: toDomainAll(rows)}, nil
}

func (r *Reader) plain(ctx context.Context, limit int, cols []string) (Page, error) {
	rows, err := r.store.ListUnordered(ctx, min(limit, plainFallbackLimit), cols)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: toDomainAll(rows)}, nil
}

func (r *Reader) search(ctx context.Context, q Query, cols []string) (Page, error) {
	rows, err := r.store.Search(ctx, q.Search, q.Limit, cols)
	if err != nil {
		return Page{}, err
	}
	return Page{Orders: toDomainAll(rows)}, nil
}

// searchScan walks the table newest first and matches in process, for when
// the store cannot finish the pattern query in time.
func (r *Reader) searchScan(ctx context.Context, q Query, cols []string) (Page, error) {
	needle := foldSearch(q.Search)
	matched := []Order{}
	var cursor *Cursor
	scanned := 0
	for scanned < scanMaxKeys && len(matched) < q.Limit {
		keys, next, err := r.paginator.Next(ctx, cursor, r.pageSize())
		if err != nil {
			return Page{}, err
		}
		scanned += len(keys)
		ids := keyIDs(keys)
		rows, err := r.fetcher.Fetch(ctx, ids, cols)
		if err != nil {
			return Page{}, err
		}
		for _, row := range SortByIDs(rows, ids) {
			o := ToDomain(row)
			if matchesFolded(o, needle) {
				matched = append(matched, o)
				if len(matched) == q.Limit {
					break
				}
			}
		}
		if next == nil {
			break
		}
		cursor = next
	}
	return Page{Orders: matched}, nil
}

// crawl returns the whole table, newest first.
func (r *Reader) crawl(ctx context.Context, cols []string) (Page, error) {
	all := []Order{}
	var cursor *Cursor
	for {
		keys, next, err := r.paginator.Next(ctx, cursor, r.pageSize())
		if err != nil {
			return Page{}, err
		}
		ids := keyIDs(keys)
		rows, err := r.fetcher.Fetch(ctx, ids, cols)
		if err != nil {
			return Page{}, err
		}
		all = append(all, toDomainAll(SortByIDs(rows, ids))...)
		if next == nil {
			break
		}
		cursor = next
	}
	return Page{Orders: all, TotalCount: len(all)}, nil
}

func (r *Reader) pageSize() int {
	if r.paginator.MaxWindow > 0 {
		return r.paginator.MaxWindow
	}
	return defaultMaxWindow
}

// MatchesSearch reports whether term occurs in the order id or the
// customer's name, cpf or code. Case and accents are ignored, and a cpf
// typed with or without punctuation matches either stored form.
func MatchesSearch(o Order, term string) bool {
	return matchesFolded(o, foldSearch(term))
}

func matchesFolded(o Order, needle string) bool {
	if needle == "" {
		return true
	}
	for _, field := range []string{o.ID, o.Customer.Name, o.Customer.CPF, o.Customer.Code} {
		if strings.Contains(foldSearch(field), needle) {
			return true
		}
	}
	if digits := cpfDigits(needle); digits != "" {
		return strings.Contains(onlyDigits(o.Customer.CPF), digits)
	}
	return false
}

// cpfDigits returns the digits of a term that looks like a (partial) cpf:
// digits with optional '.', '-', '/' or spaces. Other terms give "".
func cpfDigits(term string) string {
	for _, r := range term {
		if (r < '0' || r > '9') && !strings.ContainsRune(".-/ ", r) {
			return ""
		}
	}
	return onlyDigits(term)
}

func foldSearch(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

func onlyDigits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

func keyIDs(keys []Key) []string {
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = k.ID
	}
	return ids
}

func toDomainAll(rows []Row) []Order {
	out := make([]Order, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDomain(row))
	}
	return out
}
