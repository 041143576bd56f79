/*
handlers.go - HTTP API handlers for partner settlement

PURPOSE:
  Exposes the session workspace via REST API. Handles HTTP request and
  response, JSON serialization, multipart uploads and file downloads, and
  delegates to session, settlement and export.

ENDPOINTS:
  Auth:
    POST   /api/login                  Exchange the access password for a token
    POST   /api/logout                 Drop the session

  Tables:
    GET    /api/tables                 Current tables and counts
    POST   /api/tables/{table}         Upload prices | stores | usage (multipart "file")
    POST   /api/tables/reset           Clear all three tables

  Settlement:
    GET    /api/settlement             Result (query filters)
    GET    /api/settlement/options     Selectable filter values
    GET    /api/settlement/pivot       Store x category pivot (query filters)
    GET    /api/settlement/export      csv | xlsx download (query filters)
    POST   /api/settlement/email       Mail the pivot with an attachment

QUERY FILTERS:
  store, category, item    Repeated or comma-separated
  from, to                 Inclusive date bounds
  strict_dates             true excludes lines with unparsable dates

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with status by error kind:
  - 400: Bad request body, format, or recipient
  - 401: Missing/invalid token or dropped session
  - 413: Upload larger than the configured limit
  - 422: Source file not decodable or missing required columns
  - 502: SMTP delivery failed
  - 503: SMTP not configured
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - samples.go: Sample files and bundle loading
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/partner-settlement/auth"
	"github.com/warp/partner-settlement/export"
	"github.com/warp/partner-settlement/ingest"
	"github.com/warp/partner-settlement/notify"
	"github.com/warp/partner-settlement/session"
	"github.com/warp/partner-settlement/settlement"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Registry *session.Registry
	Gate     *auth.Gate
	Mailer   *notify.Mailer
	Logger   *zap.Logger

	// MaxUploadBytes caps one multipart upload.
	MaxUploadBytes int64

	now func() time.Time
}

// NewHandler creates a handler. mailer may be nil, in which case email
// requests answer 503.
func NewHandler(registry *session.Registry, gate *auth.Gate, mailer *notify.Mailer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailer == nil {
		mailer = notify.New(notify.Config{}, logger)
	}
	return &Handler{
		Registry:       registry,
		Gate:           gate,
		Mailer:         mailer,
		Logger:         logger,
		MaxUploadBytes: 10 << 20,
		now:            time.Now,
	}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login verifies the access password and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tok, err := h.Gate.Login(req.Password)
	if err != nil {
		h.fail(w, r, "Invalid password", err)
		return
	}
	if _, err := h.Registry.Create(tok.SessionID); err != nil {
		h.fail(w, r, "Failed to open session", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     tok.AccessToken,
		SessionID: tok.SessionID,
		ExpiresAt: tok.ExpiresAt.Format(time.RFC3339),
	})
}

// Logout drops the session and its tables.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := h.Registry.Drop(r.Context(), s.ID); err != nil {
		h.fail(w, r, "Failed to close session", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "logged_out"})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: h.Registry.Len()})
}

// =============================================================================
// TABLE HANDLERS
// =============================================================================

// UploadTable ingests the multipart "file" field into the named table.
func (h *Handler) UploadTable(w http.ResponseWriter, r *http.Request) {
	kind, ok := tableKind(chi.URLParam(r, "table"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown table", fmt.Errorf("table %q", chi.URLParam(r, "table")))
		return
	}

	src, err := h.readUpload(w, r)
	if err != nil {
		h.fail(w, r, "Invalid upload", err)
		return
	}

	s := sessionFrom(r.Context())
	report, err := s.Ingest(r.Context(), kind, src)
	if err != nil {
		h.fail(w, r, "Failed to ingest file", err)
		return
	}
	tables, err := s.Tables(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to read tables", err)
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{Report: report, Counts: tables.Counts()})
}

// GetTables returns the current tables.
func (h *Handler) GetTables(w http.ResponseWriter, r *http.Request) {
	tables, err := sessionFrom(r.Context()).Tables(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to read tables", err)
		return
	}
	writeJSON(w, http.StatusOK, TablesResponse{
		Tables:     nonNilTables(tables),
		Counts:     tables.Counts(),
		Categories: tables.Categories(),
	})
}

// ResetTables clears all three tables of the session.
func (h *Handler) ResetTables(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).Reset(r.Context()); err != nil {
		h.fail(w, r, "Failed to reset tables", err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{Status: "reset"})
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// GetSettlement returns the (filtered) settlement result.
func (h *Handler) GetSettlement(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	result, err := sessionFrom(r.Context()).Settle(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to compute settlement", err)
		return
	}

	resp := SettlementResponse{
		Result:            nonNilResult(result),
		GrandTotalDisplay: settlement.Won(result.GrandTotal),
		UnpricedItems:     result.UnpricedItems(),
	}
	if resp.UnpricedItems == nil {
		resp.UnpricedItems = []string{}
	}
	if !f.IsZero() {
		resp.Filter = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOptions lists filterable values of the unfiltered result.
func (h *Handler) GetOptions(w http.ResponseWriter, r *http.Request) {
	result, err := sessionFrom(r.Context()).Compute(r.Context())
	if err != nil {
		h.fail(w, r, "Failed to compute settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, settlement.OptionsFor(result))
}

// GetPivot returns the store x category pivot.
func (h *Handler) GetPivot(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	result, err := sessionFrom(r.Context()).Settle(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to compute settlement", err)
		return
	}
	writeJSON(w, http.StatusOK, settlement.PivotByCategory(result))
}

// Export downloads the settlement as csv or xlsx.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, r, "Unsupported export format", err)
		return
	}
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}
	result, err := sessionFrom(r.Context()).Settle(r.Context(), f)
	if err != nil {
		h.fail(w, r, "Failed to compute settlement", err)
		return
	}
	data, err := export.Render(format, result)
	if err != nil {
		h.fail(w, r, "Failed to render export", err)
		return
	}

	name := export.FileName(format, h.now())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// Email mails the category pivot with the settlement attached.
func (h *Handler) Email(w http.ResponseWriter, r *http.Request) {
	var req EmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		h.fail(w, r, "Unsupported export format", err)
		return
	}

	if err := req.Filters.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid filter", err)
		return
	}

	result, err := sessionFrom(r.Context()).Settle(r.Context(), req.Filters.ToFilter())
	if err != nil {
		h.fail(w, r, "Failed to compute settlement", err)
		return
	}

	now := h.now()
	subject := req.Subject
	if subject == "" {
		subject = fmt.Sprintf("파트너 정산 결과 (%s)", now.Format("2006-01-02"))
	}
	body, err := export.HTMLPivot(subject, result)
	if err != nil {
		h.fail(w, r, "Failed to render report", &settlement.TransportError{Op: "render", Err: err})
		return
	}
	data, err := export.Render(format, result)
	if err != nil {
		h.fail(w, r, "Failed to render attachment", err)
		return
	}

	attachment := export.FileName(format, now)
	err = h.Mailer.Send(r.Context(), notify.Message{
		To:         req.To,
		Subject:    subject,
		HTML:       body,
		Attachment: &notify.Attachment{Name: attachment, Data: data},
	})
	if err != nil {
		h.fail(w, r, "Failed to send email", err)
		return
	}

	writeJSON(w, http.StatusOK, EmailResponse{Status: "sent", Subject: subject, Attachment: attachment})
}

// =============================================================================
// REQUEST PARSING
// =============================================================================

func tableKind(s string) (settlement.TableKind, bool) {
	switch k := settlement.TableKind(s); k {
	case settlement.TablePrices, settlement.TableStores, settlement.TableUsage:
		return k, true
	}
	return "", false
}

// errBadUpload wraps every multipart failure other than the size limit.
var errBadUpload = errors.New("invalid upload")

// readUpload reads the multipart "file" field within the upload limit.
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) (ingest.Source, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.MaxUploadBytes); err != nil {
		return ingest.Source{}, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.Source{}, fmt.Errorf("%w: multipart field \"file\": %w", errBadUpload, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ingest.Source{}, fmt.Errorf("%w: %w", errBadUpload, err)
	}
	return ingest.Source{Name: header.Filename, Data: data}, nil
}

// filterFromQuery reads store, category, item, from, to and strict_dates.
func filterFromQuery(r *http.Request) (settlement.Filter, error) {
	q := r.URL.Query()
	req := FilterRequest{
		Stores:     splitValues(q["store"]),
		Categories: splitValues(q["category"]),
		Items:      splitValues(q["item"]),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}
	if v := q.Get("strict_dates"); v != "" {
		strict, err := strconv.ParseBool(v)
		if err != nil {
			return settlement.Filter{}, fmt.Errorf("strict_dates: %w", err)
		}
		req.StrictDates = strict
	}
	if err := req.Validate(); err != nil {
		return settlement.Filter{}, err
	}
	return req.ToFilter(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps err to a status and code and writes it. Server-side failures
// are logged with the request logger.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: message, Code: code, Details: err.Error()}

	var schemaErr *settlement.SchemaError
	if errors.As(err, &schemaErr) {
		resp.Details = map[string]any{
			"table":   schemaErr.Table,
			"missing": schemaErr.Missing,
			"present": schemaErr.Present,
		}
	}
	var encErr *settlement.EncodingError
	if errors.As(err, &encErr) {
		resp.Details = map[string]any{"table": encErr.Table, "tried": encErr.Tried}
	}

	if status >= 500 {
		loggerFrom(r.Context()).Error(message, zap.Error(err))
	}
	writeJSON(w, status, resp)
}

// classify maps an error to its HTTP status and a stable error code.
func classify(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "upload_too_large"
	case errors.Is(err, settlement.ErrSchema):
		return http.StatusUnprocessableEntity, "schema_error"
	case errors.Is(err, settlement.ErrEncoding):
		return http.StatusUnprocessableEntity, "encoding_error"
	case errors.Is(err, settlement.ErrUnsupportedFormat):
		return http.StatusBadRequest, "unsupported_format"
	case settlement.IsClientError(err):
		return http.StatusBadRequest, "invalid_source"
	case errors.Is(err, settlement.ErrUnauthorized), errors.Is(err, settlement.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, settlement.ErrInvalidRecipient):
		return http.StatusBadRequest, "invalid_recipient"
	case errors.Is(err, notify.ErrNotConfigured):
		return http.StatusServiceUnavailable, "mail_not_configured"
	case errors.Is(err, settlement.ErrTransport):
		return http.StatusBadGateway, "transport_error"
	case errors.Is(err, errBadUpload):
		return http.StatusBadRequest, "invalid_upload"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func nonNilTables(t settlement.Tables) settlement.Tables {
	if t.Prices == nil {
		t.Prices = []settlement.PriceEntry{}
	}
	if t.Stores == nil {
		t.Stores = []settlement.Store{}
	}
	if t.Usage == nil {
		t.Usage = []settlement.UsageRecord{}
	}
	return t
}

func nonNilResult(r settlement.Result) settlement.Result {
	if r.Stores == nil {
		r.Stores = []settlement.StoreSettlement{}
	}
	if r.Anomalies == nil {
		r.Anomalies = []settlement.Anomaly{}
	}
	if r.Categories == nil {
		r.Categories = []string{}
	}
	return r
}
