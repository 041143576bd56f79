/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error and warning types in one place. Ingest, notify and the API
  return these so callers can branch with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Fatal to one ingest call - EncodingError, SchemaError, unsupported format
  2. Non-fatal per-row issues - CoercionWarning, Anomaly
  3. Transport failures - TransportError (outbound mail, no retry)

PROPAGATION:
  Structural ingest errors abort that single ingest and leave the tables
  untouched. Per-row issues are collected and returned beside the data.
  Settlement computation never fails on its own.

SEE ALSO:
  - ingest/ingest.go: Produces EncodingError, SchemaError, CoercionWarning
  - engine.go: Produces Anomaly
  - notify/mailer.go: Produces TransportError
*/
package settlement

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrEncoding is returned when no configured text encoding could decode a source.
	ErrEncoding = errors.New("no supported text encoding")

	// ErrSchema is returned when required columns are missing.
	ErrSchema = errors.New("required columns missing")

	// ErrUnsupportedFormat is returned when a source is neither delimited text nor a workbook.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrEmptySource is returned when a source has no header row.
	ErrEmptySource = errors.New("empty source")

	// ErrTransport is returned when an outbound message could not be delivered.
	ErrTransport = errors.New("transport failed")

	// ErrInvalidRecipient is returned when a message has no valid recipient.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrSessionNotFound is returned for an unknown or dropped session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnauthorized is returned when the access gate rejects a caller.
	ErrUnauthorized = errors.New("unauthorized")
)

// =============================================================================
// TABLE KIND
// =============================================================================

// TableKind names one of the three ingestable tables.
type TableKind string

const (
	TablePrices TableKind = "prices"
	TableStores TableKind = "stores"
	TableUsage  TableKind = "usage"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// EncodingError lists the encodings that were tried.
type EncodingError struct {
	Table TableKind
	Tried []string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: could not decode source (tried %s)", e.Table, strings.Join(e.Tried, ", "))
}

func (e *EncodingError) Unwrap() error {
	return ErrEncoding
}

// SchemaError names the missing required columns and what was found instead.
type SchemaError struct {
	Table   TableKind
	Missing []string
	Present []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: missing required columns: %s (present: %s)",
		e.Table, strings.Join(e.Missing, ", "), strings.Join(e.Present, ", "))
}

func (e *SchemaError) Unwrap() error {
	return ErrSchema
}

// TransportError wraps the underlying delivery failure.
type TransportError struct {
	Op  string // "dial", "send", "render"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// =============================================================================
// NON-FATAL WARNINGS
// =============================================================================

// CoercionWarning records a row dropped from an ingest batch.
// Row is the 1-based data row number (the header is row 0).
type CoercionWarning struct {
	Row    int    `json:"row"`
	Column string `json:"column"`
	Value  string `json:"value"`
	Reason string `json:"reason"`
}

func (w CoercionWarning) String() string {
	return fmt.Sprintf("row %d: %s=%q %s", w.Row, w.Column, w.Value, w.Reason)
}

// AnomalyKind classifies a usage row excluded from totals.
type AnomalyKind string

const (
	// AnomalyUnpricedItem: the usage row's item has no PriceEntry.
	AnomalyUnpricedItem AnomalyKind = "unpriced_item"
	// AnomalyUnknownStore: the usage row's store reference matches no registered store.
	AnomalyUnknownStore AnomalyKind = "unknown_store"
)

// Anomaly is one usage row that could not be settled.
type Anomaly struct {
	Kind     AnomalyKind `json:"kind"`
	Index    int         `json:"index"` // position in the accumulated usage table
	Date     string      `json:"date"`
	StoreRef string      `json:"store_ref"`
	ItemName string      `json:"item_name"`
}

func (a Anomaly) String() string {
	switch a.Kind {
	case AnomalyUnpricedItem:
		return fmt.Sprintf("item %q has no registered unit price", a.ItemName)
	case AnomalyUnknownStore:
		return fmt.Sprintf("store %q is not registered", a.StoreRef)
	default:
		return string(a.Kind)
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to the uploaded input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEncoding) ||
		errors.Is(err, ErrSchema) ||
		errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrEmptySource)
}
