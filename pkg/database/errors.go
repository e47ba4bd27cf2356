package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/bimatrack/bimatrack-backend/pkg/errors"
)

// Partial unique indexes enforcing the single-active invariants. Violations
// of these surface as ErrOverlap, not generic conflicts.
const (
	ConstraintOneActivePolicy        = "uq_policies_one_active"
	ConstraintOneActivePermitPerType = "uq_permits_one_active_per_type"
)

// MapPQError converts a PostgreSQL error to an AppError with a stable error
// kind. Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Unique constraint violation (23505)
	case "23505":
		return mapUniqueConstraint(pqErr)

	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

func mapUniqueConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, ConstraintOneActivePolicy):
		return errors.Overlap("vehicle already has an active policy")
	case strings.Contains(constraint, ConstraintOneActivePermitPerType):
		return errors.Overlap("vehicle already has an active permit of this type")
	case strings.Contains(constraint, "registration_plate"):
		return errors.Conflict("a vehicle with this registration plate already exists")
	case strings.Contains(constraint, "policy_number"):
		return errors.Conflict("a policy with this number already exists")
	case strings.Contains(constraint, "ownership_open"):
		return errors.Conflict("vehicle already has a current owner")
	case strings.Contains(constraint, "email"):
		return errors.Conflict("a user with this email already exists")
	case strings.Contains(constraint, "slug"):
		return errors.Conflict("a tenant with this slug already exists")
	case strings.Contains(constraint, "dedupe"):
		return errors.Conflict("notification already enqueued for this cycle")
	default:
		return errors.Conflict("a record with these values already exists")
	}
}

func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "end_after_start"):
		return errors.Validation(map[string]string{
			"end_date": "must be after start date",
		})
	case strings.Contains(constraint, "premium_positive"):
		return errors.Validation(map[string]string{
			"premium_amount": "must be positive",
		})
	case strings.Contains(constraint, "super_admin_no_tenant"):
		return errors.Validation(map[string]string{
			"tenant_id": "super admins must not belong to a tenant; tenant users must",
		})
	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "unknown status value",
		})
	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}
