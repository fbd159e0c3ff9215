package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ariefcatur/go-orders-readpath/internal/postgres"
)

// Repo is the Postgres orders table. Column names come from callers, so
// every identifier is quoted. id, date, status and customer are named the
// same under both conventions.
type Repo struct{ DB *pgxpool.Pool }

// ids compare bytewise so the store agrees with Go string ordering.
const keysetOrder = `ORDER BY date DESC, id COLLATE "C" DESC`

func (r *Repo) SampleRow(ctx context.Context) (Row, error) {
	rows, err := r.query(ctx, `SELECT * FROM orders LIMIT 1`)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *Repo) ListKeys(ctx context.Context, before *Cursor, limit int) ([]Key, error) {
	var (
		rows []Row
		err  error
	)
	if before == nil {
		rows, err = r.query(ctx, `SELECT id, date FROM orders `+keysetOrder+` LIMIT $1`, limit)
	} else {
		rows, err = r.query(ctx, `SELECT id, date FROM orders WHERE date <= $1 `+keysetOrder+` LIMIT $2`, before.Date, limit)
	}
	if err != nil {
		return nil, err
	}
	keys := make([]Key, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, Key{ID: asString(row["id"]), Date: asString(row["date"])})
	}
	return keys, nil
}

func (r *Repo) FetchByIDs(ctx context.Context, ids []string, cols []string) ([]Row, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids))
	params := ""
	for i, id := range ids {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders WHERE id IN (`+params+`)`, args...)
}

func (r *Repo) GetByID(ctx context.Context, id string, cols []string) (Row, error) {
	rows, err := r.query(ctx, `SELECT `+selectList(cols)+` FROM orders WHERE id = $1 LIMIT 1`, id)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *Repo) ListByDate(ctx context.Context, before string, limit int, cols []string) ([]Row, error) {
	if before == "" {
		return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders ORDER BY date DESC LIMIT $1`, limit)
	}
	return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders WHERE date < $1 ORDER BY date DESC LIMIT $2`, before, limit)
}

func (r *Repo) ListByID(ctx context.Context, limit int, cols []string) ([]Row, error) {
	return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders ORDER BY id DESC LIMIT $1`, limit)
}

func (r *Repo) ListUnordered(ctx context.Context, limit int, cols []string) ([]Row, error) {
	return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders LIMIT $1`, limit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *Repo) Search(ctx context.Context, term string, limit int, cols []string) ([]Row, error) {
	args := []any{"%" + likeEscaper.Replace(term) + "%", limit}
	where := `id ILIKE $1
		   OR customer::jsonb->>'name' ILIKE $1
		   OR customer::jsonb->>'cpf' ILIKE $1
		   OR customer::jsonb->>'code' ILIKE $1`
	// "123.456" should find a cpf stored as "12345678900" and vice versa.
	if digits := cpfDigits(term); digits != "" {
		where += `
		   OR regexp_replace(coalesce(customer::jsonb->>'cpf', ''), '\D', '', 'g') LIKE $3`
		args = append(args, "%"+digits+"%")
	}
	return r.query(ctx, `SELECT `+selectList(cols)+` FROM orders WHERE `+where+` `+keysetOrder+` LIMIT $2`, args...)
}

func (r *Repo) Update(ctx context.Context, id string, payload Row) error {
	if len(payload) == 0 {
		return nil
	}
	names := make([]string, 0, len(payload))
	for k := range payload {
		names = append(names, k)
	}
	sort.Strings(names)

	sets := make([]string, 0, len(names))
	args := make([]any, 0, len(names)+1)
	for i, n := range names {
		sets = append(sets, fmt.Sprintf("%s = $%d", pgx.Identifier{n}.Sanitize(), i+1))
		args = append(args, encodeValue(payload[n]))
	}
	args = append(args, id)

	ct, err := r.DB.Exec(ctx, `UPDATE orders SET `+strings.Join(sets, ", ")+fmt.Sprintf(` WHERE id = $%d`, len(args)), args...)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) ModifyColumn(ctx context.Context, id, column string, fn func(current any) (any, error)) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	ident := pgx.Identifier{column}.Sanitize()
	rows, err := tx.Query(ctx, `SELECT `+ident+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return classify(err)
	}
	locked, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return classify(err)
	}
	if len(locked) == 0 {
		return ErrNotFound
	}

	next, err := fn(normalizeValue(locked[0][column]))
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `UPDATE orders SET `+ident+` = $1 WHERE id = $2`, encodeValue(next), id); err != nil {
		return classify(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return classify(err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	rows, err := r.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]Row, 0, len(maps))
	for _, m := range maps {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = normalizeValue(v)
		}
		out = append(out, row)
	}
	return out, nil
}

func selectList(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

// classify turns a statement timeout into ErrStatementTimeout, keeping the
// driver error in the message.
func classify(err error) error {
	if postgres.IsStatementTimeout(err) {
		return fmt.Errorf("%w: %v", ErrStatementTimeout, err)
	}
	return err
}

// Fixed width UTC timestamps sort the same as strings and as times, which
// the keyset boundary comparison relies on.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// normalizeValue maps driver types onto the plain values the mapper reads.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(timestampLayout)
	case pgtype.Numeric:
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(t).String()
	default:
		return v
	}
}

// encodeValue prepares a payload value for a json, jsonb or scalar column.
func encodeValue(v any) any {
	switch t := v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64:
		return t
	case json.RawMessage:
		return string(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	}
}
