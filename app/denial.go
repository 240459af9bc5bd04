package app

import (
	"net/http"

	"github.com/westsidetechsolutions/meter/domain/key"
	"github.com/westsidetechsolutions/meter/domain/quota"
)

// Denial is a terminal refusal of a request.
type Denial struct {
	Status  int
	Code    string
	Message string
}

// Authentication denials.
var (
	DenyMissingCredential = Denial{
		Status:  http.StatusUnauthorized,
		Code:    key.ReasonMissing,
		Message: "API key required",
	}
	DenyInvalidCredential = Denial{
		Status:  http.StatusUnauthorized,
		Code:    key.ReasonInvalid,
		Message: "Invalid or revoked API key",
	}
)

// denialFor maps a failed quota decision to a denial.
func denialFor(d quota.Decision) *Denial {
	switch d.Reason {
	case quota.ReasonUnknownField:
		return &Denial{
			Status:  http.StatusBadRequest,
			Code:    quota.ReasonUnknownField,
			Message: "Unknown usage field: " + string(d.Field),
		}
	case quota.ReasonBadUsage:
		return &Denial{
			Status:  http.StatusTooManyRequests,
			Code:    quota.ReasonBadUsage,
			Message: "Stored usage for " + string(d.Field) + " is invalid",
		}
	default:
		return &Denial{
			Status:  http.StatusTooManyRequests,
			Code:    quota.ReasonLimitReached,
			Message: "Plan limit reached for " + string(d.Field),
		}
	}
}
