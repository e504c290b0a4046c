package btcpay

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Payment method identifiers used in checkout options and payment-method entries.
const (
	MethodLightning = "BTC-LightningNetwork"
	MethodOnchain   = "BTC-Onchain"
)

// IsLightning reports whether a provider payment method id denotes Lightning.
func IsLightning(method string) bool {
	switch strings.ToUpper(method) {
	case "BTC-LIGHTNINGNETWORK", "BTC-LN", "BTC_LIGHTNINGLIKE":
		return true
	}
	return false
}

// IsOnchain reports whether a provider payment method id denotes an on-chain address.
func IsOnchain(method string) bool {
	switch strings.ToUpper(method) {
	case "BTC-ONCHAIN", "BTC", "BTC-CHAIN":
		return true
	}
	return false
}

// Amount is a decimal the provider may encode as either a JSON string or number.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*a = Amount(n.String())
	return nil
}

// CheckoutOptions restricts which payment methods the invoice offers.
type CheckoutOptions struct {
	PaymentMethods []string `json:"paymentMethods,omitempty"`
	RedirectURL    string   `json:"redirectURL,omitempty"`
}

// CreateInvoiceRequest is the body of POST /invoices.
type CreateInvoiceRequest struct {
	Amount   string            `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Checkout CheckoutOptions   `json:"checkout"`
}

// Invoice is the provider-side invoice record.
type Invoice struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	CheckoutLink   string         `json:"checkoutLink"`
	ExpirationTime int64          `json:"expirationTime"`
	CreatedTime    int64          `json:"createdTime,omitempty"`
	Amount         Amount         `json:"amount"`
	Currency       string         `json:"currency"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// ExpiresAt converts the provider's unix-seconds expiration to a time.
func (i *Invoice) ExpiresAt() time.Time {
	if i.ExpirationTime == 0 {
		return time.Time{}
	}
	return time.Unix(i.ExpirationTime, 0).UTC()
}

// OrderID returns the orderId metadata value, if any.
func (i *Invoice) OrderID() string {
	if v, ok := i.Metadata["orderId"].(string); ok {
		return v
	}
	return ""
}

// PaymentMethod is one settlement option populated asynchronously after creation.
type PaymentMethod struct {
	PaymentMethod   string `json:"paymentMethod"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`
	Destination     string `json:"destination"`
	Amount          Amount `json:"amount"`
	Due             Amount `json:"due,omitempty"`
	PaymentLink     string `json:"paymentLink,omitempty"`
}

// Method returns the method id regardless of which field the provider version used.
func (p PaymentMethod) Method() string {
	if p.PaymentMethod != "" {
		return p.PaymentMethod
	}
	return p.PaymentMethodID
}
