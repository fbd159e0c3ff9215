package redisx

import "time"

const (
	// Product commission setting: catalog:product_commission:{product_id} -> {"type":"...","value":"..."}
	KeyProductCommission = "catalog:product_commission:%s"

	// Seller lookup by display name: catalog:seller_by_name:{name} -> {"id":"...","name":"..."} or {} when unknown
	KeySellerByName = "catalog:seller_by_name:%s"
)

var (
	TTLCatalog = 5 * time.Minute
)
