package taxhandler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"hrms/internal/domain/auth"
	"hrms/internal/domain/tax"
	"hrms/internal/platform/metrics"
	"hrms/internal/transport/http/api"
	"hrms/internal/transport/http/middleware"
	"hrms/internal/transport/http/shared"
)

const (
	opPayroll   = "payroll"
	opIncomeTax = "income_tax"
	opAnnual    = "annual_summary"
	opBreakdown = "breakdown"
)

type Handler struct {
	Service *tax.Service
	Perms   middleware.PermissionStore
	Metrics *metrics.Collector
}

func NewHandler(svc *tax.Service, perms middleware.PermissionStore, collector *metrics.Collector) *Handler {
	return &Handler{Service: svc, Perms: perms, Metrics: collector}
}

type settingPayload struct {
	Key           string          `json:"key"`
	Value         decimal.Decimal `json:"value"`
	Kind          string          `json:"kind"`
	EffectiveYear int             `json:"effective_year"`
	Enabled       *bool           `json:"enabled"`
	Description   string          `json:"description"`
}

type bulkSettingsPayload struct {
	Year     int              `json:"year"`
	Settings []settingPayload `json:"settings"`
}

type bracketsPayload struct {
	Brackets []tax.Bracket `json:"brackets"`
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/tax", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermTaxCalculate, h.Perms)).Post("/calculations/payroll", h.handleCalculatePayroll)
		r.With(middleware.RequirePermission(auth.PermTaxCalculate, h.Perms)).Post("/calculations/income-tax", h.handleCalculateIncomeTax)
		r.With(middleware.RequirePermission(auth.PermTaxCalculate, h.Perms)).Post("/calculations/annual-summary", h.handleCalculateAnnualSummary)
		r.With(middleware.RequirePermission(auth.PermTaxCalculate, h.Perms)).Post("/calculations/validate", h.handleValidate)

		r.With(middleware.RequirePermission(auth.PermTaxSettingsRead, h.Perms)).Get("/settings", h.handleListSettings)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsRead, h.Perms)).Get("/settings/allowed-keys", h.handleAllowedKeys)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsWrite, h.Perms)).Post("/settings", h.handleCreateSetting)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsWrite, h.Perms)).Put("/settings/bulk", h.handleBulkUpsertSettings)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsRead, h.Perms)).Get("/settings/{settingID}", h.handleGetSetting)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsWrite, h.Perms)).Put("/settings/{settingID}", h.handleUpdateSetting)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsWrite, h.Perms)).Delete("/settings/{settingID}", h.handleDeleteSetting)
		r.With(middleware.RequirePermission(auth.PermTaxSettingsWrite, h.Perms)).Post("/settings/{settingID}/toggle", h.handleToggleSetting)

		r.With(middleware.RequirePermission(auth.PermTaxSettingsRead, h.Perms)).Get("/brackets/{year}", h.handleListBrackets)
		r.With(middleware.RequirePermission(auth.PermTaxBracketsWrite, h.Perms)).Put("/brackets/{year}", h.handleReplaceBrackets)
		r.With(middleware.RequirePermission(auth.PermTaxCalculate, h.Perms)).Get("/brackets/{year}/breakdown", h.handleBreakdown)
	})
}

func (h *Handler) handleCalculatePayroll(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		h.Metrics.RecordCalculation(opPayroll, metrics.OutcomeInvalid)
		return
	}
	req, issues := h.Service.Validator().ReadPayroll(payload)
	if len(issues) > 0 {
		h.Metrics.RecordCalculation(opPayroll, metrics.OutcomeInvalid)
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}

	res, err := h.Service.CalculatePayroll(r.Context(), req)
	h.Metrics.RecordCalculation(opPayroll, outcome(err))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if wantsPDF(r) {
		h.writePDF(w, r, fmt.Sprintf("payroll-%s-%d.pdf", res.EmployeeID, res.TaxYear), func(out io.Writer) error {
			return tax.RenderPayrollStatement(out, res)
		})
		return
	}
	api.Success(w, res, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalculateIncomeTax(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		h.Metrics.RecordCalculation(opIncomeTax, metrics.OutcomeInvalid)
		return
	}
	req, issues := h.Service.Validator().ReadIncomeTax(payload)
	if len(issues) > 0 {
		h.Metrics.RecordCalculation(opIncomeTax, metrics.OutcomeInvalid)
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}

	res, err := h.Service.CalculateIncomeTax(r.Context(), req)
	h.Metrics.RecordCalculation(opIncomeTax, outcome(err))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, res, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalculateAnnualSummary(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decodePayload(w, r)
	if !ok {
		h.Metrics.RecordCalculation(opAnnual, metrics.OutcomeInvalid)
		return
	}
	req, issues := h.Service.Validator().ReadAnnual(payload)
	if len(issues) > 0 {
		h.Metrics.RecordCalculation(opAnnual, metrics.OutcomeInvalid)
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), issues)
		return
	}

	sum, err := h.Service.CalculateAnnualSummary(r.Context(), req)
	h.Metrics.RecordCalculation(opAnnual, outcome(err))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if wantsPDF(r) {
		h.writePDF(w, r, fmt.Sprintf("annual-%s-%d.pdf", sum.EmployeeID, sum.TaxYear), func(out io.Writer) error {
			return tax.RenderAnnualStatement(out, sum)
		})
		return
	}
	api.Success(w, sum, middleware.GetRequestID(r.Context()))
}

// handleValidate always answers 200; the body says whether the payload
// would be accepted.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	issues := []tax.FieldError{}
	if err := decodeJSON(r, &payload); err != nil || payload == nil {
		issues = append(issues, tax.FieldError{Field: "body", Reason: "must be a JSON object"})
	} else {
		issues = h.Service.ValidateCalculationInputs(payload)
	}
	api.Success(w, map[string]any{
		"valid":  len(issues) == 0,
		"errors": issues,
	}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	year := shared.ParseYear(v, "year", chi.URLParam(r, "year"), h.Service.Validator().MinYear, h.Service.Validator().MaxYear)
	income := decimal.Zero
	raw := strings.TrimSpace(r.URL.Query().Get("income"))
	if raw == "" {
		v.Add("income", "is required")
	} else if d, err := decimal.NewFromString(raw); err != nil {
		v.Add("income", "must be a number")
	} else if reason := tax.CheckAmount(d); reason != "" {
		v.Add("income", reason)
	} else {
		income = d
	}
	if v.Reject(w, reqID) {
		h.Metrics.RecordCalculation(opBreakdown, metrics.OutcomeInvalid)
		return
	}

	breakdown, err := h.Service.Breakdown(r.Context(), year, income)
	h.Metrics.RecordCalculation(opBreakdown, outcome(err))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{
		"tax_year":       year,
		"taxable_income": tax.RoundMoney(income),
		"tax_breakdown":  breakdown,
	}, reqID)
}

func (h *Handler) handleListSettings(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	filter := tax.SettingFilter{}
	if raw := r.URL.Query().Get("year"); raw != "" {
		filter.Year = shared.ParseYear(v, "year", raw, h.Service.Validator().MinYear, h.Service.Validator().MaxYear)
	}
	filter.Enabled = shared.ParseBool(v, "enabled", r.URL.Query().Get("enabled"))
	page := shared.ParsePagination(r, v, 50, 200)
	if v.Reject(w, reqID) {
		return
	}
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	settings, total, err := h.Service.ListSettings(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if settings == nil {
		settings = []tax.Setting{}
	}
	api.Success(w, api.Page{Items: settings, Total: total, Limit: page.Limit, Offset: page.Offset}, reqID)
}

func (h *Handler) handleAllowedKeys(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Service.AllowedKeys(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	setting, err := h.Service.GetSetting(r.Context(), chi.URLParam(r, "settingID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, setting, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateSetting(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload settingPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}
	v := shared.NewValidator()
	setting := payload.toSetting(v, "")
	if v.Reject(w, reqID) {
		return
	}

	created, err := h.Service.CreateSetting(r.Context(), setting)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Created(w, created, reqID)
}

func (h *Handler) handleUpdateSetting(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload settingPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}
	v := shared.NewValidator()
	setting := payload.toSetting(v, "")
	if v.Reject(w, reqID) {
		return
	}
	setting.ID = chi.URLParam(r, "settingID")

	updated, err := h.Service.UpdateSetting(r.Context(), setting)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, updated, reqID)
}

func (h *Handler) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Service.DeleteSetting(r.Context(), chi.URLParam(r, "settingID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, deleted, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleToggleSetting(w http.ResponseWriter, r *http.Request) {
	toggled, err := h.Service.ToggleSetting(r.Context(), chi.URLParam(r, "settingID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, toggled, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleBulkUpsertSettings(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var payload bulkSettingsPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}
	v := shared.NewValidator()
	settings := make([]tax.Setting, 0, len(payload.Settings))
	for i, p := range payload.Settings {
		settings = append(settings, p.toSetting(v, fmt.Sprintf("settings[%d].", i)))
	}
	if v.Reject(w, reqID) {
		return
	}

	saved, err := h.Service.BulkUpsertSettings(r.Context(), payload.Year, settings)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, saved, reqID)
}

func (h *Handler) handleListBrackets(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	year := shared.ParseYear(v, "year", chi.URLParam(r, "year"), h.Service.Validator().MinYear, h.Service.Validator().MaxYear)
	if v.Reject(w, reqID) {
		return
	}
	brackets, err := h.Service.ListBrackets(r.Context(), year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if brackets == nil {
		brackets = []tax.Bracket{}
	}
	api.Success(w, map[string]any{"year": year, "brackets": brackets}, reqID)
}

func (h *Handler) handleReplaceBrackets(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	year := shared.ParseYear(v, "year", chi.URLParam(r, "year"), h.Service.Validator().MinYear, h.Service.Validator().MaxYear)
	if v.Reject(w, reqID) {
		return
	}
	var payload bracketsPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeDecodeError(w, r, err)
		return
	}

	if err := h.Service.ReplaceBrackets(r.Context(), year, payload.Brackets); err != nil {
		h.writeError(w, r, err)
		return
	}
	api.Success(w, map[string]any{"year": year, "brackets": payload.Brackets}, reqID)
}

func (p settingPayload) toSetting(v *shared.Validator, prefix string) tax.Setting {
	setting := tax.Setting{
		Key:           strings.TrimSpace(p.Key),
		Value:         p.Value,
		EffectiveYear: p.EffectiveYear,
		Enabled:       true,
		Description:   strings.TrimSpace(p.Description),
	}
	if p.Enabled != nil {
		setting.Enabled = *p.Enabled
	}
	if strings.TrimSpace(p.Kind) == "" {
		v.Add(prefix+"kind", "is required")
	} else if kind, err := tax.ParseKind(p.Kind); err != nil {
		v.Add(prefix+"kind", "must be one of DEDUCTION, RATE, LIMIT")
	} else {
		setting.Kind = kind
	}
	return setting
}

// decodePayload reads a calculation body as a generic object so every field
// problem can be reported, not just the first one a typed decode hits.
func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var payload map[string]any
	if err := decodeJSON(r, &payload); err != nil {
		h.writeDecodeError(w, r, err)
		return nil, false
	}
	if payload == nil {
		shared.FailValidation(w, middleware.GetRequestID(r.Context()), []shared.ValidationIssue{{Field: "body", Reason: "must be a JSON object"}})
		return nil, false
	}
	return payload, true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if _, ok := dst.(*map[string]any); !ok {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}

func (h *Handler) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		api.Fail(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body too large", reqID)
		return
	}
	reason := "must be valid JSON"
	if msg := err.Error(); strings.HasPrefix(msg, "json: unknown field ") {
		reason = strings.TrimPrefix(msg, "json: ") + " is not recognized"
	} else if errors.Is(err, io.EOF) {
		reason = "is required"
	}
	shared.FailValidation(w, reqID, []shared.ValidationIssue{{Field: "body", Reason: reason}})
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := middleware.GetRequestID(r.Context())
	var (
		vErr   *tax.ValidationError
		cfgErr *tax.ConfigurationError
		nfErr  *tax.NotFoundError
	)
	switch {
	case errors.As(err, &vErr):
		shared.FailValidation(w, reqID, vErr.Fields)
	case errors.As(err, &cfgErr):
		slog.Error("tax configuration error", "year", cfgErr.Year, "key", cfgErr.Key, "err", err, "requestId", reqID)
		details := map[string]any{"year": cfgErr.Year}
		if cfgErr.Key != "" {
			details["key"] = cfgErr.Key
		}
		api.FailWithDetails(w, http.StatusInternalServerError, "tax_configuration_error", cfgErr.Error(), details, reqID)
	case errors.As(err, &nfErr):
		api.Fail(w, http.StatusNotFound, "not_found", nfErr.Error(), reqID)
	case errors.Is(err, tax.ErrInfrastructure):
		slog.Warn("tax store unavailable", "err", err, "requestId", reqID)
		w.Header().Set("Retry-After", strconv.Itoa(1))
		api.Fail(w, http.StatusServiceUnavailable, "store_unavailable", "tax settings store unavailable", reqID)
	default:
		slog.Error("tax request failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", "internal server error", reqID)
	}
}

func wantsPDF(r *http.Request) bool {
	return strings.EqualFold(r.URL.Query().Get("format"), "pdf")
}

func (h *Handler) writePDF(w http.ResponseWriter, r *http.Request, filename string, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error("render statement failed", "err", err, "requestId", middleware.GetRequestID(r.Context()))
		api.Fail(w, http.StatusInternalServerError, "statement_failed", "failed to render statement", middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, tax.ErrValidation):
		return metrics.OutcomeInvalid
	case errors.Is(err, tax.ErrConfiguration):
		return metrics.OutcomeConfiguration
	case errors.Is(err, tax.ErrNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeUnavailable
	}
}
