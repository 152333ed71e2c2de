package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// LeaveApplication is the input of LeaveService.Apply
type LeaveApplication struct {
	LeaveType string    `json:"leave_type"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// LeaveService manages leave requests, a second consumer of the workflow engine
type LeaveService interface {
	// Apply creates a PENDING request for the actor and starts its approval workflow
	Apply(ctx context.Context, req LeaveApplication, actor authz.Actor) (*entity.LeaveRequest, *entity.WorkflowInstance, error)
	Get(ctx context.Context, id int64) (*entity.LeaveRequest, error)
	Balance(ctx context.Context, employeeID string, year int) (*entity.LeaveBalance, error)

	// Register installs the leave status mapping in the dispatcher
	Register(registry *dispatcher.Registry)
}

type leaveServiceImpl struct {
	leaveRepo port.LeaveRepository
	workflows WorkflowService
	txManager port.TransactionManager
	logger    Logger
}

// NewLeaveService creates a new LeaveService
func NewLeaveService(
	leaveRepo port.LeaveRepository,
	workflows WorkflowService,
	txManager port.TransactionManager,
	logger Logger,
) LeaveService {
	return &leaveServiceImpl{
		leaveRepo: leaveRepo,
		workflows: workflows,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *leaveServiceImpl) Register(registry *dispatcher.Registry) {
	registry.Register(entity.EntityTypeLeave, &dispatcher.StatusHandler{
		Approved: entity.LeaveStatusSanctioned,
		Rejected: entity.LeaveStatusDeclined,
		Write:    s.writeStatus,
		Effects:  []dispatcher.Effect{s.recalculateBalance},
	})
}

func (s *leaveServiceImpl) Apply(ctx context.Context, in LeaveApplication, actor authz.Actor) (*entity.LeaveRequest, *entity.WorkflowInstance, error) {
	leaveType := strings.TrimSpace(in.LeaveType)
	if leaveType == "" {
		return nil, nil, fmt.Errorf("%w: leave type is required", workflow.ErrValidation)
	}
	if in.StartDate.IsZero() || in.EndDate.Before(in.StartDate) {
		return nil, nil, fmt.Errorf("%w: invalid leave period", workflow.ErrValidation)
	}

	req := &entity.LeaveRequest{
		EmployeeID: actor.ID,
		LeaveType:  leaveType,
		Days:       inclusiveDays(in.StartDate, in.EndDate),
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		Status:     entity.LeaveStatusPending,
	}

	var instance *entity.WorkflowInstance
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.leaveRepo.Create(txCtx, req); err != nil {
			return err
		}
		var err error
		instance, err = s.workflows.Initiate(txCtx, entity.EntityTypeLeave, strconv.FormatInt(req.ID, 10), actor)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Leave requested", "leave_id", req.ID, "employee_id", actor.ID, "days", req.Days)
	return req, instance, nil
}

func inclusiveDays(start, end time.Time) int {
	s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(s).Hours()/24) + 1
}

func (s *leaveServiceImpl) Get(ctx context.Context, id int64) (*entity.LeaveRequest, error) {
	req, err := s.leaveRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, fmt.Errorf("%w: leave request %d", workflow.ErrNotFound, id)
	}
	return req, nil
}

func (s *leaveServiceImpl) Balance(ctx context.Context, employeeID string, year int) (*entity.LeaveBalance, error) {
	balance, err := s.leaveRepo.GetBalance(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &entity.LeaveBalance{EmployeeID: employeeID, Year: year}, nil
	}
	return balance, nil
}

func (s *leaveServiceImpl) writeStatus(ctx context.Context, entityID, status string) error {
	id, err := parseLeaveID(entityID)
	if err != nil {
		return err
	}
	return s.leaveRepo.UpdateStatus(ctx, id, status)
}

func parseLeaveID(entityID string) (int64, error) {
	id, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: leave request %q", workflow.ErrNotFound, entityID)
	}
	return id, nil
}

// recalculateBalance recomputes used days for the year the leave starts in
func (s *leaveServiceImpl) recalculateBalance(ctx context.Context, instance *entity.WorkflowInstance, _ string) error {
	id, err := parseLeaveID(instance.EntityID)
	if err != nil {
		return err
	}
	req, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	year := req.StartDate.Year()
	used, err := s.leaveRepo.SumDays(ctx, req.EmployeeID, year, entity.LeaveStatusSanctioned)
	if err != nil {
		return err
	}
	return s.leaveRepo.UpsertBalance(ctx, &entity.LeaveBalance{
		EmployeeID: req.EmployeeID,
		Year:       year,
		UsedDays:   used,
	})
}
