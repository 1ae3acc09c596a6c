package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/partner-settlement/internal/api/middleware"
	"github.com/ayo6706/partner-settlement/internal/api/problem"
	"github.com/ayo6706/partner-settlement/internal/domain"
	"github.com/ayo6706/partner-settlement/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// RespondError writes a problem response. problemType may be a slug or a full URI.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

// respondServiceError maps settlement error kinds onto HTTP statuses. Unclassified errors are
// logged and reported as 500 without detail.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		RespondError(w, r, http.StatusUnauthorized, "webhook/invalid-signature", "Invalid signature")
	case errors.Is(err, domain.ErrValidation):
		RespondError(w, r, http.StatusBadRequest, "request/validation", err.Error())
	case errors.Is(err, domain.ErrForbidden):
		RespondError(w, r, http.StatusForbidden, "auth/insufficient-permissions", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		RespondError(w, r, http.StatusNotFound, "resource/not-found", err.Error())
	case errors.Is(err, domain.ErrAccountInactive):
		RespondError(w, r, http.StatusConflict, "account/inactive", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		RespondError(w, r, http.StatusUnprocessableEntity, "wallet/insufficient-funds", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		RespondError(w, r, http.StatusConflict, "order/invalid-state", err.Error())
	case errors.Is(err, domain.ErrInvalidCode):
		RespondError(w, r, http.StatusUnprocessableEntity, "order/invalid-code", "pickup code does not match")
	case errors.Is(err, domain.ErrTooManyAttempts):
		w.Header().Set("Retry-After", "60")
		RespondError(w, r, http.StatusTooManyRequests, "order/too-many-attempts", err.Error())
	case errors.Is(err, domain.ErrConflict):
		w.Header().Set("Retry-After", "1")
		RespondError(w, r, http.StatusConflict, "request/conflict", "concurrent update, retry the request")
	default:
		if status, problemType, message, ok := mapDBError(err); ok {
			RespondError(w, r, status, problemType, message)
			return
		}
		zap.L().Error(operation+" failed", zap.Error(err), zap.String("trace_id", middleware.TraceIDFromContext(r.Context())))
		RespondError(w, r, http.StatusInternalServerError, "internal-server-error", "unexpected server error")
	}
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}

func requestActor(r *http.Request) (service.Actor, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return service.Actor{}, false
	}
	return service.Actor{ID: p.ID, Role: p.Role}, true
}

// withActor resolves the caller or answers 401.
func withActor(w http.ResponseWriter, r *http.Request) (service.Actor, bool) {
	actor, ok := requestActor(r)
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
	}
	return actor, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		detail := "Invalid request body"
		if errors.Is(err, domain.ErrValidation) {
			detail = err.Error()
		}
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", detail)
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+param, fmt.Sprintf("Invalid %s", param))
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads page and page_size. Missing values are left to the service defaults.
func pageParams(w http.ResponseWriter, r *http.Request) (page, pageSize int, ok bool) {
	for _, p := range []struct {
		name string
		dst  *int
	}{{"page", &page}, {"page_size", &pageSize}} {
		raw := strings.TrimSpace(r.URL.Query().Get(p.name))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			RespondError(w, r, http.StatusBadRequest, "request/invalid-"+strings.ReplaceAll(p.name, "_", "-"), p.name+" must be a positive integer")
			return 0, 0, false
		}
		*p.dst = v
	}
	return page, pageSize, true
}
