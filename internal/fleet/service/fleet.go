package service

import (
	"context"
	"time"

	auditsvc "github.com/bimatrack/bimatrack-backend/internal/audit/service"
	"github.com/bimatrack/bimatrack-backend/internal/fleet/domain"
	"github.com/bimatrack/bimatrack-backend/internal/fleet/repository"
	identitysvc "github.com/bimatrack/bimatrack-backend/internal/identity/service"
	"github.com/bimatrack/bimatrack-backend/pkg/database"
	"github.com/bimatrack/bimatrack-backend/pkg/errors"
	"github.com/bimatrack/bimatrack-backend/pkg/logger"
	"github.com/bimatrack/bimatrack-backend/pkg/messaging"
	"github.com/bimatrack/bimatrack-backend/pkg/tenant"
)

// EventPublisher publishes domain events. Nil-safe via the noop publisher.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// FleetService manages customers, vehicles and ownership.
type FleetService struct {
	customers  *repository.CustomerRepository
	vehicles   *repository.VehicleRepository
	ownerships *repository.OwnershipRepository
	authority  *identitysvc.Authority
	db         *database.DB
	recorder   *auditsvc.Recorder
	publisher  EventPublisher
	logger     *logger.Logger
}

// NewFleetService creates a new fleet service
func NewFleetService(
	customers *repository.CustomerRepository,
	vehicles *repository.VehicleRepository,
	ownerships *repository.OwnershipRepository,
	authority *identitysvc.Authority,
	db *database.DB,
	recorder *auditsvc.Recorder,
	publisher EventPublisher,
	log *logger.Logger,
) *FleetService {
	return &FleetService{
		customers:  customers,
		vehicles:   vehicles,
		ownerships: ownerships,
		authority:  authority,
		db:         db,
		recorder:   recorder,
		publisher:  publisher,
		logger:     log.WithComponent("fleet"),
	}
}

// CustomerInput is the input for creating or updating a customer
type CustomerInput struct {
	Kind        string  `json:"kind" validate:"required,oneof=individual company"`
	DisplayName string  `json:"display_name" validate:"required,min=2,max=200"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// CreateCustomer creates a new customer
func (s *FleetService) CreateCustomer(ctx context.Context, in CustomerInput) (*domain.Customer, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpCustomerWrite, domain.EntityKindCustomer, ""); err != nil {
		return nil, err
	}

	c := &domain.Customer{
		Kind:        in.Kind,
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Phone:       in.Phone,
	}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.customers.Create(ctx, c); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindCustomer, c.ID, "create", nil, c); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindCustomer, c.ID, c)
	})
	if err != nil {
		return nil, err
	}

	return c, nil
}

// UpdateCustomer modifies a customer
func (s *FleetService) UpdateCustomer(ctx context.Context, id string, in CustomerInput) (*domain.Customer, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpCustomerWrite, domain.EntityKindCustomer, id); err != nil {
		return nil, err
	}

	before, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	after := *before
	after.Kind = in.Kind
	after.DisplayName = in.DisplayName
	after.Email = in.Email
	after.Phone = in.Phone

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.customers.Update(ctx, &after); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindCustomer, id, "update", before, &after); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindCustomer, id, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// DeleteCustomer soft-deletes a customer. Customers with a current vehicle
// cannot be removed.
func (s *FleetService) DeleteCustomer(ctx context.Context, id string) error {
	if err := s.authority.Authorize(ctx, identitysvc.OpCustomerWrite, domain.EntityKindCustomer, id); err != nil {
		return err
	}

	before, err := s.customers.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.customers.SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, domain.EntityKindCustomer, id, "soft_delete", before, nil)
	})
}

// GetCustomer returns a customer by ID
func (s *FleetService) GetCustomer(ctx context.Context, id string) (*domain.Customer, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindCustomer, id); err != nil {
		return nil, err
	}
	return s.customers.GetByID(ctx, id)
}

// ListCustomers returns the tenant's customers
func (s *FleetService) ListCustomers(ctx context.Context, limit, offset int) ([]domain.Customer, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindCustomer, ""); err != nil {
		return nil, 0, err
	}
	return s.customers.List(ctx, limit, offset)
}

// VehicleInput is the input for creating or updating a vehicle
type VehicleInput struct {
	RegistrationPlate string  `json:"registration_plate" validate:"required,min=2,max=20"`
	ChassisNumber     *string `json:"chassis_number,omitempty" validate:"omitempty,max=64"`
	EngineNumber      *string `json:"engine_number,omitempty" validate:"omitempty,max=64"`
	VehicleType       string  `json:"vehicle_type" validate:"required,min=2,max=64"`
	UsageCategory     *string `json:"usage_category,omitempty" validate:"omitempty,max=64"`
	OwnerCustomerID   *string `json:"owner_customer_id,omitempty" validate:"omitempty,uuid"`
}

// CreateVehicle registers a new vehicle, optionally opening its first
// ownership segment in the same transaction.
func (s *FleetService) CreateVehicle(ctx context.Context, in VehicleInput) (*domain.Vehicle, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpVehicleWrite, domain.EntityKindVehicle, ""); err != nil {
		return nil, err
	}

	v := &domain.Vehicle{
		RegistrationPlate: in.RegistrationPlate,
		ChassisNumber:     in.ChassisNumber,
		EngineNumber:      in.EngineNumber,
		VehicleType:       in.VehicleType,
		UsageCategory:     in.UsageCategory,
		Status:            domain.VehicleActive,
	}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.vehicles.Create(ctx, v); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindVehicle, v.ID, "create", nil, v); err != nil {
			return err
		}
		if err := s.recorder.Snapshot(ctx, domain.EntityKindVehicle, v.ID, v); err != nil {
			return err
		}

		if in.OwnerCustomerID != nil {
			if _, err := s.customers.GetByID(ctx, *in.OwnerCustomerID); err != nil {
				return err
			}
			o := &domain.Ownership{VehicleID: v.ID, CustomerID: *in.OwnerCustomerID}
			if err := s.ownerships.Open(ctx, o); err != nil {
				return err
			}
			if err := s.recorder.Record(ctx, domain.EntityKindOwnership, o.ID, "create", nil, o); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("vehicle_id", v.ID).Str("plate", v.RegistrationPlate).Msg("vehicle registered")
	return v, nil
}

// UpdateVehicle modifies a vehicle
func (s *FleetService) UpdateVehicle(ctx context.Context, id string, in VehicleInput) (*domain.Vehicle, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpVehicleWrite, domain.EntityKindVehicle, id); err != nil {
		return nil, err
	}

	before, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	after := *before
	after.RegistrationPlate = in.RegistrationPlate
	after.ChassisNumber = in.ChassisNumber
	after.EngineNumber = in.EngineNumber
	after.VehicleType = in.VehicleType
	after.UsageCategory = in.UsageCategory

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.vehicles.Update(ctx, &after); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindVehicle, id, "update", before, &after); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindVehicle, id, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// SetVehicleStatus moves a vehicle between active, suspended and retired.
func (s *FleetService) SetVehicleStatus(ctx context.Context, id, status string) (*domain.Vehicle, error) {
	switch status {
	case domain.VehicleActive, domain.VehicleSuspended, domain.VehicleRetired:
	default:
		return nil, errors.Validation(map[string]string{"status": "unknown vehicle status"})
	}

	if err := s.authority.Authorize(ctx, identitysvc.OpVehicleWrite, domain.EntityKindVehicle, id); err != nil {
		return nil, err
	}

	before, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if before.Status == status {
		return before, nil
	}

	after := *before
	after.Status = status

	err = s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.vehicles.Update(ctx, &after); err != nil {
			return err
		}
		if err := s.recorder.Record(ctx, domain.EntityKindVehicle, id, "update", before, &after); err != nil {
			return err
		}
		return s.recorder.Snapshot(ctx, domain.EntityKindVehicle, id, &after)
	})
	if err != nil {
		return nil, err
	}

	return &after, nil
}

// DeleteVehicle soft-deletes a vehicle
func (s *FleetService) DeleteVehicle(ctx context.Context, id string) error {
	if err := s.authority.Authorize(ctx, identitysvc.OpVehicleWrite, domain.EntityKindVehicle, id); err != nil {
		return err
	}

	before, err := s.vehicles.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return s.db.Transaction(ctx, func(ctx context.Context) error {
		if err := s.vehicles.SoftDelete(ctx, id); err != nil {
			return err
		}
		return s.recorder.Record(ctx, domain.EntityKindVehicle, id, "soft_delete", before, nil)
	})
}

// GetVehicle returns a vehicle by ID
func (s *FleetService) GetVehicle(ctx context.Context, id string) (*domain.Vehicle, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindVehicle, id); err != nil {
		return nil, err
	}
	return s.vehicles.GetByID(ctx, id)
}

// ListVehicles returns the tenant's vehicles
func (s *FleetService) ListVehicles(ctx context.Context, status string, limit, offset int) ([]domain.Vehicle, int64, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindVehicle, ""); err != nil {
		return nil, 0, err
	}
	return s.vehicles.List(ctx, status, limit, offset)
}

// OwnershipTimeline returns a vehicle's ownership history
func (s *FleetService) OwnershipTimeline(ctx context.Context, vehicleID string) ([]domain.Ownership, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpBusinessRead, domain.EntityKindVehicle, vehicleID); err != nil {
		return nil, err
	}
	if _, err := s.vehicles.GetByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	return s.ownerships.Timeline(ctx, vehicleID)
}

// TransferOwnership closes the current ownership segment and opens a new
// one for the target customer, atomically.
func (s *FleetService) TransferOwnership(ctx context.Context, vehicleID, toCustomerID string) (*domain.Ownership, error) {
	if err := s.authority.Authorize(ctx, identitysvc.OpVehicleWrite, domain.EntityKindVehicle, vehicleID); err != nil {
		return nil, err
	}

	if _, err := s.vehicles.GetByID(ctx, vehicleID); err != nil {
		return nil, err
	}
	if _, err := s.customers.GetByID(ctx, toCustomerID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var fromOwnerID string
	opened := &domain.Ownership{VehicleID: vehicleID, CustomerID: toCustomerID, From: now}

	err := s.db.Transaction(ctx, func(ctx context.Context) error {
		closed, err := s.ownerships.Close(ctx, vehicleID, now)
		if err != nil && !errors.Is(err, errors.ErrNotFound) {
			return err
		}
		if closed != nil {
			if closed.CustomerID == toCustomerID {
				return errors.Conflict("customer already owns this vehicle")
			}
			fromOwnerID = closed.CustomerID
			if err := s.recorder.Record(ctx, domain.EntityKindOwnership, closed.ID, "update", nil, closed); err != nil {
				return err
			}
		}

		if err := s.ownerships.Open(ctx, opened); err != nil {
			return err
		}
		return s.recorder.Record(ctx, domain.EntityKindOwnership, opened.ID, "create", nil, opened)
	})
	if err != nil {
		return nil, err
	}

	if tenantID, err := tenant.IDFromContext(ctx); err == nil {
		event := messaging.OwnershipTransferredEvent{
			TenantID:      tenantID,
			VehicleID:     vehicleID,
			FromOwnerID:   fromOwnerID,
			ToOwnerID:     toCustomerID,
			TransferredAt: now,
		}
		if err := s.publisher.Publish(ctx, messaging.EventOwnershipTransferred, event); err != nil {
			// Delivery is best effort; the transfer is already committed.
			s.logger.Warn().Err(err).Str("vehicle_id", vehicleID).Msg("failed to publish ownership event")
		}
	}

	s.logger.Info().Str("vehicle_id", vehicleID).Str("customer_id", toCustomerID).Msg("ownership transferred")
	return opened, nil
}
