package models

import "time"

// EmailListResponse is one page of records
type EmailListResponse struct {
	Items []Email `json:"items"`
	Total int64   `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

// TestConfigResponse tells operators where to send test mail
type TestConfigResponse struct {
	TestAddress string `json:"testAddress"`
	Subject     string `json:"subject"`
}

// StatsResponse holds per-provider record counts
type StatsResponse struct {
	Items []ESPCount `json:"items"`
	Total int64      `json:"total"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Mailbox   string            `json:"mailbox"`
	Metrics   map[string]string `json:"metrics"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
