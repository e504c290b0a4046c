package payments

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidRequest wraps every validation failure of an InvoiceRequest.
var ErrInvalidRequest = errors.New("invalid invoice request")

// Method is the settlement method the buyer asked for.
type Method string

const (
	MethodUnspecified Method = ""
	MethodLightning   Method = "lightning"
	MethodOnchain     Method = "onchain"
)

// Decimal is a positive decimal amount that may arrive as a JSON string or number.
type Decimal string

func (d *Decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*d = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Decimal(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a number or numeric string")
	}
	*d = Decimal(n.String())
	return nil
}

// InvoiceRequest is what the checkout submits to create an invoice.
type InvoiceRequest struct {
	Amount        Decimal `json:"amount"`
	Currency      string  `json:"currency"`
	Description   string  `json:"description,omitempty"`
	PaymentMethod Method  `json:"paymentMethod,omitempty"`
}

var (
	amountPattern     = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)
	currencyPattern   = regexp.MustCompile(`^[A-Z]{3}$`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	disallowedPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// Normalize validates the request in place: the amount must be a positive plain
// decimal, the currency a three-letter code and the method one of the known values.
func (r *InvoiceRequest) Normalize() error {
	amount := strings.TrimSpace(string(r.Amount))
	if !amountPattern.MatchString(amount) {
		return fmt.Errorf("%w: amount must be a positive number", ErrInvalidRequest)
	}
	if v, err := strconv.ParseFloat(amount, 64); err != nil || v <= 0 {
		return fmt.Errorf("%w: amount must be a positive number", ErrInvalidRequest)
	}
	r.Amount = Decimal(amount)

	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if !currencyPattern.MatchString(r.Currency) {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code", ErrInvalidRequest)
	}

	switch m := Method(strings.ToLower(strings.TrimSpace(string(r.PaymentMethod)))); m {
	case MethodUnspecified, MethodLightning, MethodOnchain:
		r.PaymentMethod = m
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, r.PaymentMethod)
	}
	return nil
}

// SanitizeDescription collapses whitespace runs to "_" and strips every character
// outside [A-Za-z0-9_-], since provider metadata rejects anything else.
func SanitizeDescription(desc string) string {
	desc = whitespacePattern.ReplaceAllString(strings.TrimSpace(desc), "_")
	return disallowedPattern.ReplaceAllString(desc, "")
}
