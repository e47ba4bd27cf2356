package service

import (
	"context"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/pkg/actor"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
)

// Operations gated by the authority layer.
const (
	OpTenantManage        = "tenant.manage"
	OpUserManage          = "user.manage"
	OpPasswordReset       = "user.password_reset"
	OpCustomerWrite       = "customer.write"
	OpVehicleWrite        = "vehicle.write"
	OpRecordDraft         = "record.draft"
	OpPaymentRecord       = "payment.record"
	OpPaymentVerify       = "payment.verify"
	OpRecordActivate      = "record.activate"
	OpRecordCancel        = "record.cancel"
	OpDynamicFieldsManage = "dynamic_fields.manage"
	OpReportsView         = "reports.view"
	OpBusinessRead        = "business.read"
)

// roleRank orders tenant roles by authority. Super admins sit outside this
// ladder: they run the platform and never touch tenant business data.
var roleRank = map[string]int{
	actor.RoleAgent:   1,
	actor.RoleManager: 2,
	actor.RoleAdmin:   3,
}

// minRank is the weakest role allowed to perform each operation.
var minRank = map[string]int{
	OpBusinessRead:        1,
	OpReportsView:         1,
	OpCustomerWrite:       1,
	OpVehicleWrite:        1,
	OpRecordDraft:         1,
	OpPaymentRecord:       1,
	OpPaymentVerify:       2,
	OpRecordActivate:      2,
	OpRecordCancel:        2,
	OpUserManage:          3,
	OpPasswordReset:       3,
	OpDynamicFieldsManage: 3,
}

// Authority decides whether the acting user may perform an operation.
// Denied business writes by super admins are recorded as security events.
type Authority struct {
	recorder *auditsvc.Recorder
	logger   *logger.Logger
}

// NewAuthority creates a new authority
func NewAuthority(recorder *auditsvc.Recorder, log *logger.Logger) *Authority {
	return &Authority{recorder: recorder, logger: log.WithComponent("authority")}
}

// Authorize checks the acting user against the role matrix. entityKind and
// entityID identify what was targeted, for the audit trail on denials.
func (a *Authority) Authorize(ctx context.Context, op, entityKind, entityID string) error {
	act := actor.FromContext(ctx)
	if act == nil {
		return errors.Unauthorized("authentication required")
	}

	if op == OpTenantManage {
		if act.IsSuperAdmin() {
			return nil
		}
		return errors.Forbidden("tenant management requires super admin")
	}

	if act.IsSuperAdmin() {
		// Platform operators are barred from tenant business data. The
		// attempt itself is evidence worth keeping.
		if err := a.recorder.RecordSecurityEvent(ctx, entityKind, entityID, "super admin attempted tenant operation "+op); err != nil {
			a.logger.Error().Err(err).Str("op", op).Msg("failed to record security event")
		}
		return errors.Forbidden("super admins cannot operate on tenant business data")
	}

	required, known := minRank[op]
	if !known {
		return errors.Forbidden("unknown operation")
	}
	if roleRank[act.Role] < required {
		return errors.Forbidden("insufficient role for " + op)
	}
	return nil
}
