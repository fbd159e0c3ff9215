package orders

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Patch is a partial order. Nil fields are left untouched by a write.
type Patch struct {
	ID       *string   `json:"id,omitempty"`
	Customer *Customer `json:"customer,omitempty"`
	Items    *[]Item   `json:"items,omitempty"`

	Total       *float64 `json:"total,omitempty"`
	Subtotal    *float64 `json:"subtotal,omitempty"`
	Discount    *float64 `json:"discount,omitempty"`
	DownPayment *float64 `json:"downPayment,omitempty"`
	DeliveryFee *float64 `json:"deliveryFee,omitempty"`

	Installments           *int            `json:"installments,omitempty"`
	InstallmentValue       *float64        `json:"installmentValue,omitempty"`
	FirstDueDate           *string         `json:"firstDueDate,omitempty"`
	InstallmentDetails     *[]Installment  `json:"installmentDetails,omitempty"`
	InstallmentCardDetails json.RawMessage `json:"installmentCardDetails,omitempty"`
	PaymentMethod          *string         `json:"paymentMethod,omitempty"`

	Date   *string `json:"date,omitempty"`
	Status *Status `json:"status,omitempty"`

	TrackingCode *string        `json:"trackingCode,omitempty"`
	Attachments  json.RawMessage `json:"attachments,omitempty"`

	SellerID           *string  `json:"sellerId,omitempty"`
	SellerName         *string  `json:"sellerName,omitempty"`
	Commission         *float64 `json:"commission,omitempty"`
	CommissionDate     *string  `json:"commissionDate,omitempty"`
	CommissionPaid     *bool    `json:"commissionPaid,omitempty"`
	IsCommissionManual *bool    `json:"isCommissionManual,omitempty"`

	Observations  *string `json:"observations,omitempty"`
	Source        *string `json:"source,omitempty"`
	CreatedAt     *string `json:"createdAt,omitempty"`
	UpdatedAt     *string `json:"updatedAt,omitempty"`
	CreatedByID   *string `json:"createdById,omitempty"`
	CreatedByName *string `json:"createdByName,omitempty"`
	CreatedByRole *string `json:"createdByRole,omitempty"`
	CreatedIP     *string `json:"createdIp,omitempty"`

	Asaas json.RawMessage `json:"asaas,omitempty"`
}

// ToDomain maps a row in either naming convention. Missing or malformed
// columns come back as zero values.
func ToDomain(row Row) Order {
	o := Order{
		ID:                     asString(pick(row, "id")),
		Total:                  asFloat(pick(row, "total")),
		Subtotal:               asFloat(pick(row, "subtotal")),
		Discount:               asFloat(pick(row, "discount")),
		DownPayment:            asFloat(pick(row, "downPayment")),
		DeliveryFee:            asFloat(pick(row, "deliveryFee")),
		Installments:           asInt(pick(row, "installments")),
		InstallmentValue:       asFloat(pick(row, "installmentValue")),
		FirstDueDate:           asString(pick(row, "firstDueDate")),
		InstallmentCardDetails: asRaw(pick(row, "installmentCardDetails")),
		PaymentMethod:          asString(pick(row, "paymentMethod")),
		Date:                   asString(pick(row, "date")),
		Status:                 Status(asString(pick(row, "status"))),
		TrackingCode:           asString(pick(row, "trackingCode")),
		Attachments:            asRaw(pick(row, "attachments")),
		SellerID:               asString(pick(row, "sellerId")),
		SellerName:             asString(pick(row, "sellerName")),
		Commission:             asFloat(pick(row, "commission")),
		CommissionDate:         asString(pick(row, "commissionDate")),
		CommissionPaid:         asBool(pick(row, "commissionPaid")),
		IsCommissionManual:     asBool(pick(row, "isCommissionManual")),
		Observations:           asString(pick(row, "observations")),
		Source:                 asString(pick(row, "source")),
		CreatedAt:              asString(pick(row, "createdAt")),
		UpdatedAt:              asString(pick(row, "updatedAt")),
		CreatedByID:            asString(pick(row, "createdById")),
		CreatedByName:          asString(pick(row, "createdByName")),
		CreatedByRole:          asString(pick(row, "createdByRole")),
		CreatedIP:              asString(pick(row, "createdIp")),
		Asaas:                  asRaw(pick(row, "asaas")),
	}
	decodeInto(pick(row, "customer"), &o.Customer)
	decodeInto(pick(row, "items"), &o.Items)
	decodeInto(pick(row, "installmentDetails"), &o.InstallmentDetails)
	if o.Items == nil {
		o.Items = []Item{}
	}
	if o.InstallmentDetails == nil {
		o.InstallmentDetails = []Installment{}
	}
	return o
}

// ToRow emits only the keys set in p, named for style.
func ToRow(p Patch, style Style) Row {
	out := Row{}
	put := func(compact string, v any) { out[style.Column(compact)] = v }

	if p.ID != nil {
		put("id", *p.ID)
	}
	if p.Status != nil {
		put("status", string(*p.Status))
	}
	if p.Customer != nil {
		put("customer", *p.Customer)
	}
	if p.Items != nil {
		put("items", *p.Items)
	}
	if p.Total != nil {
		put("total", *p.Total)
	}
	if p.Subtotal != nil {
		put("subtotal", *p.Subtotal)
	}
	if p.Discount != nil {
		put("discount", *p.Discount)
	}
	if p.DownPayment != nil {
		put("downPayment", *p.DownPayment)
	}
	if p.DeliveryFee != nil {
		put("deliveryFee", *p.DeliveryFee)
	}
	if p.Installments != nil {
		put("installments", *p.Installments)
	}
	if p.InstallmentValue != nil {
		put("installmentValue", *p.InstallmentValue)
	}
	if p.Date != nil {
		put("date", *p.Date)
	}
	if p.FirstDueDate != nil {
		put("firstDueDate", *p.FirstDueDate)
	}
	if p.PaymentMethod != nil {
		put("paymentMethod", *p.PaymentMethod)
	}
	if p.InstallmentDetails != nil {
		put("installmentDetails", *p.InstallmentDetails)
	}
	if p.InstallmentCardDetails != nil {
		put("installmentCardDetails", p.InstallmentCardDetails)
	}
	if p.TrackingCode != nil {
		put("trackingCode", *p.TrackingCode)
	}
	if p.Attachments != nil {
		put("attachments", p.Attachments)
	}
	if p.SellerID != nil {
		put("sellerId", *p.SellerID)
	}
	if p.SellerName != nil {
		put("sellerName", *p.SellerName)
	}
	if p.Commission != nil {
		put("commission", *p.Commission)
	}
	if p.CommissionDate != nil {
		put("commissionDate", *p.CommissionDate)
	}
	if p.CommissionPaid != nil {
		put("commissionPaid", *p.CommissionPaid)
	}
	if p.IsCommissionManual != nil {
		put("isCommissionManual", *p.IsCommissionManual)
	}
	if p.Observations != nil {
		put("observations", *p.Observations)
	}
	if p.Source != nil {
		put("source", *p.Source)
	}
	if p.CreatedAt != nil {
		put("createdAt", *p.CreatedAt)
	}
	if p.UpdatedAt != nil {
		put("updatedAt", *p.UpdatedAt)
	}
	if p.CreatedByID != nil {
		put("createdById", *p.CreatedByID)
	}
	if p.CreatedByName != nil {
		put("createdByName", *p.CreatedByName)
	}
	if p.CreatedByRole != nil {
		put("createdByRole", *p.CreatedByRole)
	}
	if p.CreatedIP != nil {
		put("createdIp", *p.CreatedIP)
	}
	if p.Asaas != nil {
		put("asaas", p.Asaas)
	}
	return out
}

// FilterColumns drops keys the live schema does not have. An unknown schema
// (nil or empty cols) leaves the payload as is.
func FilterColumns(row Row, cols Columns) Row {
	if len(cols) == 0 {
		return row
	}
	out := make(Row, len(row))
	for k, v := range row {
		if cols.Has(k) {
			out[k] = v
		}
	}
	return out
}

// PatchFromOrder sets every field of o.
func PatchFromOrder(o Order) Patch {
	status := o.Status
	items := o.Items
	details := o.InstallmentDetails
	customer := o.Customer
	return Patch{
		ID:                     &o.ID,
		Customer:               &customer,
		Items:                  &items,
		Total:                  &o.Total,
		Subtotal:               &o.Subtotal,
		Discount:               &o.Discount,
		DownPayment:            &o.DownPayment,
		DeliveryFee:            &o.DeliveryFee,
		Installments:           &o.Installments,
		InstallmentValue:       &o.InstallmentValue,
		FirstDueDate:           &o.FirstDueDate,
		InstallmentDetails:     &details,
		InstallmentCardDetails: o.InstallmentCardDetails,
		PaymentMethod:          &o.PaymentMethod,
		Date:                   &o.Date,
		Status:                 &status,
		TrackingCode:           &o.TrackingCode,
		Attachments:            o.Attachments,
		SellerID:               &o.SellerID,
		SellerName:             &o.SellerName,
		Commission:             &o.Commission,
		CommissionDate:         &o.CommissionDate,
		CommissionPaid:         &o.CommissionPaid,
		IsCommissionManual:     &o.IsCommissionManual,
		Observations:           &o.Observations,
		Source:                 &o.Source,
		CreatedAt:              &o.CreatedAt,
		UpdatedAt:              &o.UpdatedAt,
		CreatedByID:            &o.CreatedByID,
		CreatedByName:          &o.CreatedByName,
		CreatedByRole:          &o.CreatedByRole,
		CreatedIP:              &o.CreatedIP,
		Asaas:                  o.Asaas,
	}
}

var (
	lightColumns = []string{
		"id", "customer", "total", "discount", "downPayment", "installments", "installmentValue",
		"date", "firstDueDate", "status", "paymentMethod", "sellerId", "sellerName", "source",
		"createdAt", "updatedAt",
	}
	heavyColumns = []string{
		"items", "installmentDetails", "commission", "commissionPaid", "isCommissionManual", "observations",
	}
)

// SelectColumns is the projection used by list reads. Line items and
// installment details are only selected with includeItems.
func SelectColumns(style Style, includeItems bool) []string {
	names := lightColumns
	if includeItems {
		names = append(append([]string{}, lightColumns...), heavyColumns...)
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, style.Column(n))
	}
	return out
}

// pick reads the segmented variant first, then the compact one.
func pick(row Row, compact string) any {
	if v, ok := row[segmentedName(compact)]; ok && v != nil {
		return v
	}
	if n, ok := neutralColumns[compact]; ok {
		if v, ok := row[n]; ok && v != nil {
			return v
		}
	}
	if v, ok := row[compact]; ok && v != nil {
		return v
	}
	return nil
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return finite(f)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return finite(f)
		}
		return ParseAmount(t).InexactFloat64()
	default:
		return 0
	}
}

func asInt(v any) int {
	return int(math.Round(asFloat(v)))
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(t)
		return b
	default:
		return false
	}
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// asRaw keeps a JSON column verbatim.
func asRaw(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return t
	case []byte:
		if json.Valid(t) {
			return json.RawMessage(t)
		}
	case string:
		if json.Valid([]byte(t)) {
			return json.RawMessage(t)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return b
}

// decodeInto converts a JSON column, decoded or not, into dst. Decode errors
// are ignored; whatever fit is kept.
func decodeInto(v any, dst any) {
	raw := asRaw(v)
	if raw == nil {
		return
	}
	_ = json.Unmarshal(raw, dst)
}
