package models

import "payments-playground-api/queue"

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
	Status  int    `json:"status,omitempty"`
}

type TokenResponse struct {
	JWT string `json:"jwt"`
}

type HealthResponse struct {
	Status    string       `json:"status"`
	Time      string       `json:"time"`
	Uptime    string       `json:"uptime"`
	GoVersion string       `json:"go_version"`
	Redis     string       `json:"redis"`
	API       string       `json:"api_base_url"`
	Events    *queue.Stats `json:"events,omitempty"`
}
