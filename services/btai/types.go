package btai

import (
	"encoding/json"

	"payments-playground-api/models"
	"payments-playground-api/utils"
)

const (
	CredentialVirtualCard  = "virtual-card"
	CredentialNetworkToken = "network-token"
)

type Card struct {
	Number          string `json:"number"`
	ExpirationMonth string `json:"expirationMonth"`
	ExpirationYear  string `json:"expirationYear"`
	CVC             string `json:"cvc"`
}

type PaymentMethodRequest struct {
	EntityID string `json:"entityId"`
	Card     Card   `json:"card"`
}

// PaymentMethod is the slice of the upstream payment method this service reads.
type PaymentMethod struct {
	ID   string `json:"id"`
	Card *struct {
		Brand string `json:"brand"`
	} `json:"card,omitempty"`
}

type PurchaseIntentRequest struct {
	EntityID        string           `json:"entityId"`
	PaymentMethodID string           `json:"paymentMethodId"`
	CredentialType  string           `json:"credentialType"`
	Mandates        []models.Mandate `json:"mandates"`
}

// ListResult is a page of upstream records plus the pagination read from its headers.
type ListResult struct {
	Data       json.RawMessage
	Pagination utils.Pagination
}
