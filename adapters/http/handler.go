// Package http provides HTTP handlers for the metering service.
package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/westsidetechsolutions/meter/app"
	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/domain/quota"
	"github.com/westsidetechsolutions/meter/domain/usage"
	"github.com/westsidetechsolutions/meter/pkg/jsonapi"
)

// Quota headers set on metered responses.
const (
	HeaderQuotaLimit     = "X-Quota-Limit"
	HeaderQuotaRemaining = "X-Quota-Remaining"
	HeaderUsageWarning   = "X-Usage-Warning"
)

// Handler serves the usage and metering endpoints.
type Handler struct {
	admission *app.Admission
	keys      *app.KeyService
	usage     *app.UsageService
	limits    *app.LimitService
	logger    zerolog.Logger
}

// HandlerDeps contains dependencies for Handler.
type HandlerDeps struct {
	Admission *app.Admission
	Keys      *app.KeyService
	Usage     *app.UsageService
	Limits    *app.LimitService
}

// NewHandler creates a new metering handler.
func NewHandler(deps HandlerDeps, logger zerolog.Logger) *Handler {
	return &Handler{
		admission: deps.Admission,
		keys:      deps.Keys,
		usage:     deps.Usage,
		limits:    deps.Limits,
		logger:    logger,
	}
}

// Usage returns the caller's counters for the current window with a
// decision per field. It is authenticated but not metered.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	principal, denial, err := h.keys.Resolve(ctx, extractAPIKey(r))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	if denial != nil {
		writeDenial(w, denial, quota.Decision{})
		return
	}

	rec, win, err := h.usage.Current(ctx, principal.Subscriber)
	if err != nil {
		h.storeError(w, r, err)
		return
	}

	ent := h.limits.Entitlements(principal.Subscriber.PlanID)
	limits := make(map[string]any, len(usage.Fields))
	for _, d := range h.limits.Summary(principal.Subscriber, rec) {
		limits[string(d.Field)] = decisionAttrs(d)
	}

	res := jsonapi.NewResource("usage", rec.ID).
		Attr("user_id", rec.UserID).
		Attr("plan_id", ent.PlanID).
		Attr("period_start", rec.PeriodStart.Format(time.RFC3339)).
		Attr("period_end", rec.PeriodEnd.Format(time.RFC3339)).
		Attr("api_calls", rec.APICalls).
		Attr("items_created", rec.ItemsCreated).
		Attr("storage_mb", rec.StorageMB).
		Attr("limits", limits).
		Meta("fallback_window", win.Fallback).
		Build()
	jsonapi.WriteResource(w, http.StatusOK, res)
}

// Meter runs a request through admission, consuming cost units of the
// field named in the path. cost defaults to 1.
func (h *Handler) Meter(w http.ResponseWriter, r *http.Request) {
	field := usage.Field(chi.URLParam(r, "field"))

	cost := int64(1)
	if raw := r.URL.Query().Get("cost"); raw != "" {
		// Negative values reach admission so the credential is checked first.
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			jsonapi.WriteError(w, jsonapi.ErrInvalidCost(raw))
			return
		}
		cost = n
	}

	result, err := h.admission.Admit(r.Context(), app.AdmitRequest{
		Token: extractAPIKey(r),
		Field: field,
		Cost:  cost,
	})
	if err != nil {
		if errors.Is(err, usage.ErrNegativeAmount) || errors.Is(err, usage.ErrOverflow) {
			jsonapi.WriteError(w, jsonapi.ErrInvalidCost(strconv.FormatInt(cost, 10)))
			return
		}
		h.storeError(w, r, err)
		return
	}
	if result.Denial != nil {
		writeDenial(w, result.Denial, result.Check)
		return
	}

	setQuotaHeaders(w, result.After)
	res := jsonapi.NewResource("usage", result.Record.ID).
		Attr("field", string(field)).
		Attr("cost", cost).
		Attr("current", result.After.Current).
		Attr("period_end", result.Window.End.Format(time.RFC3339)).
		Attr("decision", decisionAttrs(result.After)).
		Build()
	jsonapi.WriteResource(w, http.StatusOK, res)
}

func (h *Handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error().
		Err(err).
		Str("path", r.URL.Path).
		Str("request_id", middleware.GetReqID(r.Context())).
		Msg("storage unavailable")
	jsonapi.WriteError(w, jsonapi.ErrServiceUnavailable(""))
}

// extractAPIKey reads the bearer token, falling back to X-API-Key.
func extractAPIKey(r *http.Request) string {
	if token := key.ParseBearer(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-API-Key"))
}

func writeDenial(w http.ResponseWriter, d *app.Denial, decision quota.Decision) {
	switch d.Status {
	case http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="meter"`)
		jsonapi.WriteError(w, jsonapi.ErrUnauthorized(d.Message))
	case http.StatusTooManyRequests:
		setQuotaHeaders(w, decision)
		jsonapi.WriteError(w, jsonapi.ErrQuotaExceeded(d.Code, d.Message, decision.Current, decision.Limit))
	case http.StatusBadRequest:
		if d.Code == quota.ReasonUnknownField {
			jsonapi.WriteError(w, jsonapi.ErrUnknownField(string(decision.Field)))
			return
		}
		jsonapi.WriteBadRequest(w, d.Message)
	default:
		jsonapi.WriteError(w, jsonapi.NewError(d.Status, d.Code, http.StatusText(d.Status)).Detail(d.Message).Build())
	}
}

func setQuotaHeaders(w http.ResponseWriter, d quota.Decision) {
	if d.IsUnlimited() {
		w.Header().Set(HeaderQuotaLimit, "unlimited")
		w.Header().Set(HeaderQuotaRemaining, "unlimited")
		return
	}
	w.Header().Set(HeaderQuotaLimit, strconv.FormatInt(d.Limit, 10))
	w.Header().Set(HeaderQuotaRemaining, strconv.FormatInt(d.Remaining, 10))
	if d.Approaching {
		w.Header().Set(HeaderUsageWarning, strconv.FormatFloat(d.PercentUsed, 'f', 1, 64)+"% of "+string(d.Field)+" used")
	}
}

func decisionAttrs(d quota.Decision) map[string]any {
	return map[string]any{
		"allowed":      d.Allowed,
		"limit":        d.Limit,
		"remaining":    d.Remaining,
		"approaching":  d.Approaching,
		"percent_used": d.PercentUsed,
	}
}
