package btai

import (
	"strconv"
	"strings"
	"time"

	"payments-playground-api/models"
)

// CredentialTypeForBrand picks the credential the payments API should issue.
// Amex and Discover only support network tokens.
func CredentialTypeForBrand(brand string) string {
	switch strings.ToLower(strings.TrimSpace(brand)) {
	case "amex", "american-express", "discover":
		return CredentialNetworkToken
	default:
		return CredentialVirtualCard
	}
}

// DefaultMandates is the demo mandate set attached to purchase intents created
// without explicit mandates. The expiration is the end of now's UTC day.
func DefaultMandates(now time.Time) []models.Mandate {
	y, m, d := now.UTC().Date()
	endOfDay := time.Date(y, m, d, 23, 59, 0, 0, time.UTC)

	return []models.Mandate{
		{
			Type:    "maxAmount",
			Value:   "500",
			Details: map[string]any{"currency": "840"},
		},
		{
			Type:  "merchant",
			Value: "Apple Store",
			Details: map[string]any{
				"category":     "electronics",
				"categoryCode": "5732",
			},
		},
		{
			Type:  "description",
			Value: "Purchase of AirPods Pro and iPhone case",
		},
		{
			Type:  "expirationTime",
			Value: strconv.FormatInt(endOfDay.Unix(), 10),
		},
		{
			Type:  "prompt",
			Value: "The purchase of electronics under US$500 at Apple Store by the end of the day",
		},
		{
			Type:  "consumer",
			Value: "3d50aca6-9d1e-4459-8254-4171a92f5bd0",
			Details: map[string]any{
				"name":  "Demo Consumer",
				"email": "consumer@example.com",
				"address": map[string]any{
					"line1":       "123 Main Street",
					"line2":       "Apt 4B",
					"line3":       "Building 7",
					"city":        "Beverly Hills",
					"postalCode":  "90210",
					"stateCode":   "CA",
					"countryCode": "USA",
				},
			},
		},
	}
}
