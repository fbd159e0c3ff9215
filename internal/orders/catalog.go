package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/go-orders-readpath/internal/redisx"
)

// CatalogRepo reads products and users straight from Postgres.
type CatalogRepo struct{ DB *pgxpool.Pool }

// ProductCommissions selects * because the products table carries either
// commission_type/commission_value or commissionType/commissionValue.
func (r *CatalogRepo) ProductCommissions(ctx context.Context, productIDs []string) (map[string]CommissionConfig, error) {
	out := make(map[string]CommissionConfig, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(productIDs))
	params := ""
	for i, id := range productIDs {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("$%d", i+1)
		args = append(args, id)
	}
	rows, err := r.DB.Query(ctx, `SELECT * FROM products WHERE id::text IN (`+params+`)`, args...)
	if err != nil {
		return nil, classify(err)
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(err)
	}
	for _, m := range maps {
		row := make(Row, len(m))
		for k, v := range m {
			row[k] = normalizeValue(v)
		}
		out[asString(row["id"])] = CommissionConfig{
			Type:  CommissionType(asString(pick(row, "commissionType"))),
			Value: asDecimal(pick(row, "commissionValue")),
		}
	}
	return out, nil
}

func (r *CatalogRepo) FindSellerByName(ctx context.Context, name string) (Seller, bool, error) {
	var s Seller
	err := r.DB.QueryRow(ctx, `SELECT id::text, name FROM users WHERE name = $1 LIMIT 1`, name).Scan(&s.ID, &s.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return Seller{}, false, nil
	}
	if err != nil {
		return Seller{}, false, classify(err)
	}
	return s, true, nil
}

func asDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case nil:
		return decimal.Zero
	case string:
		if d, err := decimal.NewFromString(strings.TrimSpace(t)); err == nil {
			return d
		}
		return ParseAmount(t)
	default:
		return decimal.NewFromFloat(asFloat(v))
	}
}

// CachedCatalog reads through Redis in front of another Catalog. Redis
// failures are logged and fall through to Next.
type CachedCatalog struct {
	Next  Catalog
	Redis *redis.Client
	TTL   time.Duration
}

type cachedCommission struct {
	Type  CommissionType  `json:"type"`
	Value decimal.Decimal `json:"value"`
}

type cachedSeller struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (c *CachedCatalog) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return redisx.TTLCatalog
}

func (c *CachedCatalog) ProductCommissions(ctx context.Context, productIDs []string) (map[string]CommissionConfig, error) {
	out := make(map[string]CommissionConfig, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(productIDs))
	for i, id := range productIDs {
		keys[i] = fmt.Sprintf(redisx.KeyProductCommission, id)
	}

	missing := productIDs
	vals, err := c.Redis.MGet(ctx, keys...).Result()
	if err != nil {
		log.Printf("catalog cache mget: %v", err)
	} else {
		missing = missing[:0:0]
		for i, v := range vals {
			s, ok := v.(string)
			var cc cachedCommission
			if !ok || json.Unmarshal([]byte(s), &cc) != nil {
				missing = append(missing, productIDs[i])
				continue
			}
			if cc.Value.IsPositive() {
				out[productIDs[i]] = CommissionConfig{Type: cc.Type, Value: cc.Value}
			}
		}
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.Next.ProductCommissions(ctx, missing)
	if err != nil {
		return nil, err
	}
	pipe := c.Redis.Pipeline()
	for _, id := range missing {
		cfg := fresh[id]
		if cfg.Value.IsPositive() {
			out[id] = cfg
		}
		// Products without a setting are cached too, as a zero value.
		b, _ := json.Marshal(cachedCommission{Type: cfg.Type, Value: cfg.Value})
		pipe.Set(ctx, fmt.Sprintf(redisx.KeyProductCommission, id), b, c.ttl())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("catalog cache store: %v", err)
	}
	return out, nil
}

func (c *CachedCatalog) FindSellerByName(ctx context.Context, name string) (Seller, bool, error) {
	key := fmt.Sprintf(redisx.KeySellerByName, name)
	s, err := c.Redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var cs cachedSeller
		if json.Unmarshal([]byte(s), &cs) == nil {
			return Seller{ID: cs.ID, Name: cs.Name}, cs.ID != "", nil
		}
	case !errors.Is(err, redis.Nil):
		log.Printf("catalog cache get %s: %v", key, err)
	}

	seller, ok, err := c.Next.FindSellerByName(ctx, name)
	if err != nil {
		return Seller{}, false, err
	}
	b, _ := json.Marshal(cachedSeller{ID: seller.ID, Name: seller.Name})
	if err := c.Redis.Set(ctx, key, b, c.ttl()).Err(); err != nil {
		log.Printf("catalog cache set %s: %v", key, err)
	}
	return seller, ok, nil
}
