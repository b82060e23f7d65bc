package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// FlexString accepts a JSON string or number. Browsers send card expiry
// fields either way.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*f = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
	case bytes.Equal(data, []byte("false")):
		*f = ""
	case bytes.Equal(data, []byte("true")):
		*f = "true"
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if v, err := n.Float64(); err == nil && v == 0 {
			*f = ""
			return nil
		}
		*f = FlexString(n.String())
	}
	return nil
}

// Missing reports a value the browser would treat as falsy. Numeric zero is
// decoded as empty.
func (f FlexString) Missing() bool {
	return strings.TrimSpace(string(f)) == ""
}

func (f FlexString) String() string {
	return string(f)
}

type JWTRequest struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

type GenerateJWTRequest struct {
	EntityID string `json:"entityId"`
	Role     string `json:"role"`
}

type DecodeJWTRequest struct {
	JWT string `json:"jwt"`
}

type CreatePaymentMethodRequest struct {
	CardNumber      FlexString `json:"cardNumber"`
	ExpirationMonth FlexString `json:"expirationMonth"`
	ExpirationYear  FlexString `json:"expirationYear"`
	CVC             FlexString `json:"cvc"`
}

type CreatePurchaseIntentRequest struct {
	PaymentMethodID string    `json:"paymentMethodId"`
	EntityID        string    `json:"entityId"`
	Mandates        []Mandate `json:"mandates"`
}

// Mandate is a purchase intent constraint. Its meaning belongs to the payments API.
type Mandate struct {
	Type    string         `json:"type"`
	Value   string         `json:"value"`
	Details map[string]any `json:"details,omitempty"`
}
