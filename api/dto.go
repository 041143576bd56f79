/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types already
  carry JSON tags and are embedded where the shape matches; these types
  add the request bodies and the response wrappers around them.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

AMOUNTS:
  Decimal amounts serialize as JSON strings ("43000", "1.5"). Formatted
  display strings (thousands separators, 원) are added where a client
  renders them directly.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/types.go: Domain types
*/
package api

import (
	"fmt"
	"strings"

	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// AUTH
// =============================================================================

// LoginRequest is the access gate login body.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the bearer token for the new session.
type LoginResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	ExpiresAt string `json:"expires_at"`
}

// =============================================================================
// TABLES
// =============================================================================

// UploadResponse is returned after a table upload.
type UploadResponse struct {
	ingest.Report
	Counts settlement.Counts `json:"counts"`
}

// TablesResponse is the current state of the session tables.
type TablesResponse struct {
	settlement.Tables
	Counts     settlement.Counts `json:"counts"`
	Categories []string          `json:"categories"`
}

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettlementResponse wraps a result with the operator-facing extras.
type SettlementResponse struct {
	settlement.Result
	GrandTotalDisplay string             `json:"grand_total_display"`
	UnpricedItems     []string           `json:"unpriced_items"`
	Filter            *settlement.Filter `json:"filter,omitempty"`
}

// FilterRequest is a filter as sent in a JSON body. Array elements are
// taken whole. Query-string filters use the same names (store, category,
// item, from, to) and are split on commas first.
type FilterRequest struct {
	Stores      []string `json:"stores,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Items       []string `json:"items,omitempty"`
	From        string   `json:"from,omitempty"`
	To          string   `json:"to,omitempty"`
	StrictDates bool     `json:"strict_dates,omitempty"`
}

// Validate rejects date bounds that do not parse.
func (f FilterRequest) Validate() error {
	for _, bound := range []string{f.From, f.To} {
		if bound = strings.TrimSpace(bound); bound == "" {
			continue
		}
		if _, ok := settlement.ParseDate(bound); !ok {
			return fmt.Errorf("unrecognized date %q", bound)
		}
	}
	return nil
}

// ToFilter converts the request into a settlement filter.
func (f FilterRequest) ToFilter() settlement.Filter {
	return settlement.Filter{
		StoreNames:  cleanValues(f.Stores),
		Categories:  cleanValues(f.Categories),
		Items:       cleanValues(f.Items),
		Dates:       settlement.DateRange{From: strings.TrimSpace(f.From), To: strings.TrimSpace(f.To)},
		StrictDates: f.StrictDates,
	}
}

// EmailRequest asks for the current settlement to be mailed.
type EmailRequest struct {
	To      []string      `json:"to"`
	Subject string        `json:"subject,omitempty"`
	Format  string        `json:"format,omitempty"`
	Filters FilterRequest `json:"filters"`
}

// EmailResponse confirms a sent report.
type EmailResponse struct {
	Status     string `json:"status"`
	Subject    string `json:"subject"`
	Attachment string `json:"attachment"`
}

// =============================================================================
// SAMPLES
// =============================================================================

// SampleDTO describes one downloadable sample file.
type SampleDTO struct {
	Name        string `json:"name"`
	FileName    string `json:"file_name"`
	Table       string `json:"table"`
	Description string `json:"description"`
}

// LoadSamplesRequest picks which usage sample to load. Default "usage-code".
type LoadSamplesRequest struct {
	Usage string `json:"usage,omitempty"`
}

// LoadSamplesResponse lists the ingest reports of a loaded sample bundle.
type LoadSamplesResponse struct {
	Reports []ingest.Report   `json:"reports"`
	Counts  settlement.Counts `json:"counts"`
}

// =============================================================================
// COMMON
// =============================================================================

// StatusResponse is a minimal acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}

// HealthResponse reports liveness and open sessions.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// cleanValues trims values and drops empties.
func cleanValues(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// splitValues splits each value on commas.
func splitValues(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.Split(v, ",")...)
	}
	return out
}
