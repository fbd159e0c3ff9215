package orders

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one record of the orders table keyed by its live column names.
type Row map[string]any

type Customer struct {
	Name         string `json:"name,omitempty"`
	CPF          string `json:"cpf,omitempty"`
	Code         string `json:"code,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Phone2       string `json:"phone2,omitempty"`
	Phone3       string `json:"phone3,omitempty"`
	Email        string `json:"email,omitempty"`
	Address      string `json:"address,omitempty"`
	Number       string `json:"number,omitempty"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood,omitempty"`
	City         string `json:"city,omitempty"`
	State        string `json:"state,omitempty"`
	Zip          string `json:"zip,omitempty"`
}

type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Quantity Amount `json:"quantity"`
	Price    Amount `json:"price"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type Payment struct {
	ID         string  `json:"id,omitempty"`
	Amount     float64 `json:"amount"`
	Date       string  `json:"date,omitempty"`
	Method     string  `json:"method,omitempty"`
	ReceivedBy string  `json:"receivedBy,omitempty"`
}

type Installment struct {
	InstallmentNumber int               `json:"installmentNumber"`
	DueDate           string            `json:"dueDate,omitempty"`
	Amount            float64           `json:"amount"`
	PaidAmount        float64           `json:"paidAmount"`
	Status            InstallmentStatus `json:"status"`
	Payments          []Payment         `json:"payments"`
}

type Order struct {
	ID       string   `json:"id"`
	Customer Customer `json:"customer"`
	Items    []Item   `json:"items"`

	Total       float64 `json:"total"`
	Subtotal    float64 `json:"subtotal,omitempty"`
	Discount    float64 `json:"discount,omitempty"`
	DownPayment float64 `json:"downPayment,omitempty"`
	DeliveryFee float64 `json:"deliveryFee,omitempty"`

	Installments           int             `json:"installments"`
	InstallmentValue       float64         `json:"installmentValue"`
	FirstDueDate           string          `json:"firstDueDate,omitempty"`
	InstallmentDetails     []Installment   `json:"installmentDetails"`
	InstallmentCardDetails json.RawMessage `json:"installmentCardDetails,omitempty"`
	PaymentMethod          string          `json:"paymentMethod,omitempty"`

	Date   string `json:"date"`
	Status Status `json:"status"`

	TrackingCode string          `json:"trackingCode,omitempty"`
	Attachments  json.RawMessage `json:"attachments,omitempty"`

	SellerID           string  `json:"sellerId,omitempty"`
	SellerName         string  `json:"sellerName,omitempty"`
	Commission         float64 `json:"commission,omitempty"`
	CommissionDate     string  `json:"commissionDate,omitempty"`
	CommissionPaid     bool    `json:"commissionPaid,omitempty"`
	IsCommissionManual bool    `json:"isCommissionManual,omitempty"`

	Observations  string `json:"observations,omitempty"`
	Source        string `json:"source,omitempty"`
	CreatedAt     string `json:"createdAt,omitempty"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
	CreatedByID   string `json:"createdById,omitempty"`
	CreatedByName string `json:"createdByName,omitempty"`
	CreatedByRole string `json:"createdByRole,omitempty"`
	CreatedIP     string `json:"createdIp,omitempty"`

	// Payment gateway metadata, kept verbatim.
	Asaas json.RawMessage `json:"asaas,omitempty"`
}

// Amount is a price or quantity in the representation it was stored with:
// a JSON number or a locale formatted string like "R$ 1.234,56".
type Amount struct {
	text   string
	quoted bool
}

func NumberAmount(v float64) Amount {
	return Amount{text: strconv.FormatFloat(v, 'f', -1, 64)}
}

func TextAmount(s string) Amount { return Amount{text: s, quoted: true} }

func (a Amount) String() string { return a.text }

func (a Amount) IsZero() bool { return a.text == "" }

// Decimal parses the amount; unparseable input yields zero.
func (a Amount) Decimal() decimal.Decimal {
	if a.quoted {
		return ParseAmount(a.text)
	}
	d, err := decimal.NewFromString(a.text)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if a.quoted {
		return json.Marshal(a.text)
	}
	if a.text == "" {
		return []byte("null"), nil
	}
	return []byte(a.text), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	switch {
	case s == "null":
		*a = Amount{}
	case strings.HasPrefix(s, `"`):
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			*a = Amount{}
			return nil
		}
		*a = TextAmount(str)
	default:
		// Booleans, objects and arrays are not amounts; they read as zero
		// so the rest of the document still decodes.
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			*a = Amount{}
			return nil
		}
		*a = Amount{text: n.String()}
	}
	return nil
}
