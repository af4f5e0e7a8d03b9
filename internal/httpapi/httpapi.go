package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"salonledger/backend/internal/domain"
	"salonledger/backend/internal/service"
)

const maxJSONBody = 1 << 20

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigin  string
	loginLimiter   *loginLimiter
	metricsEnabled bool
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newLoginLimiter(5),
	}
}

// SetLoginRate changes how many login attempts one client may make per minute.
func (a *API) SetLoginRate(perMinute int) {
	a.loginLimiter = newLoginLimiter(perMinute)
}

// EnableMetrics mounts the Prometheus handler on /metrics.
func (a *API) EnableMetrics() { a.metricsEnabled = true }

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.withMiddleware)

	r.Get("/healthz", a.handleHealth)
	if a.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/salons", a.handleListSalons)
			r.Post("/salons", a.handleCreateSalon)
			r.Route("/salons/{salonID}", func(r chi.Router) {
				r.Get("/staff", a.handleListStaff)
				r.Post("/staff", a.handleAddStaff)
				r.Patch("/staff/{staffID}", a.handleUpdateStaff)
				r.Delete("/staff/{staffID}", a.handleDeleteStaff)
				r.Post("/staff/{staffID}/account", a.handleProvisionAccount)

				r.Get("/receipts", a.handleListReceipts)
				r.Post("/receipts", a.handleCreateReceipt)
				r.Get("/line-items", a.handleLineItems)
				r.Get("/statistics", a.handleStatistics)
				r.Get("/revenue", a.handleRevenue)
			})

			r.Get("/receipts/{receiptID}", a.handleGetReceipt)
			r.Delete("/receipts/{receiptID}", a.handleDeleteReceipt)
			r.Put("/receipts/{receiptID}/line-items", a.handleReconcileReceipt)
			r.Delete("/line-items/{lineItemID}", a.handleDeleteLineItem)

			r.Post("/devices", a.handleRegisterDevice)
			r.Delete("/devices/{deviceID}", a.handleUnregisterDevice)
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) || errors.Is(err, errInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListSalons(w http.ResponseWriter, r *http.Request) {
	salons, err := a.service.ListMySalons(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"salons": salons})
}

func (a *API) handleCreateSalon(w http.ResponseWriter, r *http.Request) {
	var req domain.SalonCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	salon, err := a.service.CreateSalon(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, salon)
}

func (a *API) handleListStaff(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("include_deleted"))
	staff, err := a.service.ListStaff(r.Context(), chi.URLParam(r, "salonID"), includeDeleted)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": staff})
}

func (a *API) handleAddStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	member, err := a.service.AddStaff(r.Context(), chi.URLParam(r, "salonID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (a *API) handleUpdateStaff(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	member, err := a.service.UpdateStaff(r.Context(), chi.URLParam(r, "salonID"), chi.URLParam(r, "staffID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (a *API) handleDeleteStaff(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteStaff(r.Context(), chi.URLParam(r, "salonID"), chi.URLParam(r, "staffID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProvisionAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.StaffAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	account, err := a.service.ProvisionStaffAccount(r.Context(), chi.URLParam(r, "salonID"), chi.URLParam(r, "staffID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (a *API) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	filter := domain.ReceiptFilter{
		ReportFilter:  reportFilterFromQuery(r),
		PaymentStatus: domain.PaymentStatus(strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("payment_status")))),
	}
	receipts, err := a.service.ListReceipts(r.Context(), chi.URLParam(r, "salonID"), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": receipts})
}

func (a *API) handleCreateReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.ReceiptCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.CreateReceipt(r.Context(), chi.URLParam(r, "salonID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (a *API) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := a.service.GetReceipt(r.Context(), chi.URLParam(r, "receiptID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleReconcileReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.ReceiptReconcileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	receipt, err := a.service.ReconcileReceipt(r.Context(), chi.URLParam(r, "receiptID"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (a *API) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteReceipt(r.Context(), chi.URLParam(r, "receiptID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteLineItem(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DeleteLineItem(r.Context(), chi.URLParam(r, "lineItemID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLineItems(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.LineItems(r.Context(), chi.URLParam(r, "salonID"), reportFilterFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleStatistics(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.Statistics(r.Context(), chi.URLParam(r, "salonID"), reportFilterFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRevenue(w http.ResponseWriter, r *http.Request) {
	result, err := a.service.Revenue(r.Context(), chi.URLParam(r, "salonID"), reportFilterFromQuery(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req domain.DeviceRegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	device, err := a.service.RegisterDevice(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func (a *API) handleUnregisterDevice(w http.ResponseWriter, r *http.Request) {
	if err := a.service.UnregisterDevice(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func reportFilterFromQuery(r *http.Request) domain.ReportFilter {
	q := r.URL.Query()
	return domain.ReportFilter{
		Date:    strings.TrimSpace(q.Get("date")),
		From:    strings.TrimSpace(q.Get("from")),
		To:      strings.TrimSpace(q.Get("to")),
		StaffID: strings.TrimSpace(q.Get("staff_id")),
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// writeServiceError maps the domain error taxonomy onto status codes. Anything outside
// it is an internal failure.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  domain.ErrValidation.Error(),
			"fields": verr.Fields,
		})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrReconciliationConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrAggregation):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
