package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/approval-engine/internal/application/authz"
	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/eventbus"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/admission"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/pkg/tracing"
	"github.com/garyjia/approval-engine/pkg/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// PayloadInterviewAt is the SCHEDULE payload key holding an RFC 3339 time
const PayloadInterviewAt = "interview_at"

// Admission operations granted to staff roles through the guard
const (
	OpAssignPanel     = "admission.assign_panel"
	OpVerifyDocuments = "admission.verify_documents"
	OpAllocateSeat    = "admission.allocate_seat"
	OpCancel          = "admission.cancel"
	OpInitiatePayment = "admission.initiate_payment"
	OpCompletePayment = "admission.complete_payment"
)

const (
	defaultRegistrarRole = "REGISTRAR"
	defaultFinanceRole   = "FINANCE"
)

// AdmissionRoles are the staff roles granted admission operations. Admin
// roles are granted all of them.
type AdmissionRoles struct {
	Registrar []string
	Finance   []string
	Admin     []string
}

// AdmissionService runs the admission application lifecycle. Every status
// write goes through the transition gate.
type AdmissionService interface {
	CreateDraft(ctx context.Context, program string, actor authz.Actor) (*entity.AdmissionApplication, error)

	// Submit moves DRAFT to SUBMITTED, starts the review workflow and moves on to UNDER_REVIEW
	Submit(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, *entity.WorkflowInstance, error)

	// Transition is the gate: allowed-set check, prerequisites, atomic status and history write.
	// Statuses owned by Submit and the review workflow cannot be requested here.
	Transition(ctx context.Context, id int64, to admission.Status, actor authz.Actor, metadata map[string]any) (*entity.AdmissionApplication, error)

	AssignPanel(ctx context.Context, id int64, panel []string, actor authz.Actor) (*entity.AdmissionApplication, error)
	AcceptOffer(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error)
	VerifyDocuments(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error)

	// InitiatePayment returns the unresolved payment if one exists; created is false in that case
	InitiatePayment(ctx context.Context, id int64, amountCents int64, currency string, actor authz.Actor) (payment *entity.AdmissionPayment, created bool, err error)
	CompletePayment(ctx context.Context, paymentID int64, actor authz.Actor) (*entity.AdmissionPayment, error)

	AllocateSeat(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error)
	Cancel(ctx context.Context, id int64, reason string, actor authz.Actor) (*entity.AdmissionApplication, error)

	Get(ctx context.Context, id int64) (*entity.AdmissionApplication, error)
	History(ctx context.Context, id int64) ([]*entity.AdmissionStatusChange, error)

	// Register wires the admission scheduler, domain handler, offer-letter hook
	// and the panel predicate for panelSteps into the engine
	Register(ws WorkflowService, registry *dispatcher.Registry, guard *authz.Guard, panelSteps ...string)
}

// AdmissionDeps are the collaborators of the admission lifecycle
type AdmissionDeps struct {
	Applications port.ApplicationRepository
	Payments     port.PaymentRepository
	Audit        port.AuditRepository
	TxManager    port.TransactionManager
	Workflows    WorkflowService
	Guard        *authz.Guard
	Bus          eventbus.Bus
	Table        *admission.Table
	Roles        AdmissionRoles
	Logger       Logger
}

type admissionServiceImpl struct {
	AdmissionDeps
	now func() time.Time
}

// NewAdmissionService creates a new AdmissionService
func NewAdmissionService(deps AdmissionDeps) AdmissionService {
	if deps.Table == nil {
		deps.Table = admission.NewTable()
	}
	if deps.Guard == nil {
		deps.Guard = authz.NewGuard()
	}
	if len(deps.Roles.Registrar) == 0 {
		deps.Roles.Registrar = []string{defaultRegistrarRole}
	}
	if len(deps.Roles.Finance) == 0 {
		deps.Roles.Finance = []string{defaultFinanceRole}
	}

	registrar := append(append([]string{}, deps.Roles.Registrar...), deps.Roles.Admin...)
	finance := append(append([]string{}, deps.Roles.Finance...), deps.Roles.Admin...)
	for _, op := range []string{OpAssignPanel, OpVerifyDocuments, OpAllocateSeat, OpCancel} {
		deps.Guard.Grant(op, registrar...)
	}
	for _, op := range []string{OpInitiatePayment, OpCompletePayment} {
		deps.Guard.Grant(op, finance...)
	}

	return &admissionServiceImpl{
		AdmissionDeps: deps,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *admissionServiceImpl) Register(ws WorkflowService, registry *dispatcher.Registry, guard *authz.Guard, panelSteps ...string) {
	ws.RegisterScheduler(entity.EntityTypeAdmission, &admissionScheduler{svc: s})
	registry.Register(entity.EntityTypeAdmission, &admissionHandler{svc: s})
	registry.RegisterHook(entity.EntityTypeAdmission, "offer-letter-ready", s.markOfferLetterReady)
	for _, step := range panelSteps {
		guard.Require(entity.EntityTypeAdmission, step, "interview-panel", s.onInterviewPanel)
	}
}

func (s *admissionServiceImpl) checkActor(actor authz.Actor) error {
	if actor.ID == "" || actor.Role == "" {
		return fmt.Errorf("%w: unauthenticated actor", workflow.ErrForbidden)
	}
	if s.Guard.IsExcluded(actor.Role) {
		return fmt.Errorf("%w: role %s is excluded from acting", workflow.ErrForbidden, actor.Role)
	}
	return nil
}

func (s *admissionServiceImpl) load(ctx context.Context, id int64) (*entity.AdmissionApplication, error) {
	app, err := s.Applications.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, fmt.Errorf("%w: admission application %d", workflow.ErrNotFound, id)
	}
	return app, nil
}

func (s *admissionServiceImpl) CreateDraft(ctx context.Context, program string, actor authz.Actor) (*entity.AdmissionApplication, error) {
	if err := s.checkActor(actor); err != nil {
		return nil, err
	}
	program = strings.TrimSpace(program)
	if program == "" {
		return nil, fmt.Errorf("%w: program is required", workflow.ErrValidation)
	}

	app := &entity.AdmissionApplication{
		ApplicantID: actor.ID,
		Program:     program,
		Status:      admission.StatusDraft,
	}
	if err := s.Applications.Create(ctx, app); err != nil {
		return nil, err
	}

	s.Logger.Info("Admission draft created", "application_id", app.ID, "applicant_id", actor.ID)
	return app, nil
}

func (s *admissionServiceImpl) Submit(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, *entity.WorkflowInstance, error) {
	if err := s.checkActor(actor); err != nil {
		return nil, nil, err
	}

	var app *entity.AdmissionApplication
	var instance *entity.WorkflowInstance
	var changes []*entity.AdmissionApplication

	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if current.ApplicantID != actor.ID {
			return fmt.Errorf("%w: only the applicant may submit", workflow.ErrForbidden)
		}

		submitted, err := s.gate(txCtx, id, admission.StatusSubmitted, actor, nil)
		if err != nil {
			return err
		}
		changes = append(changes, submitted)

		instance, err = s.Workflows.Initiate(txCtx, entity.EntityTypeAdmission, strconv.FormatInt(id, 10), actor)
		if err != nil {
			return err
		}

		app, err = s.gate(txCtx, id, admission.StatusUnderReview, actor, map[string]any{"instance_id": instance.ID})
		if err != nil {
			return err
		}
		changes = append(changes, app)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for _, c := range changes {
		s.publishTransition(ctx, c, actor)
	}
	return app, instance, nil
}

func (s *admissionServiceImpl) Transition(ctx context.Context, id int64, to admission.Status, actor authz.Actor, metadata map[string]any) (*entity.AdmissionApplication, error) {
	if err := s.checkActor(actor); err != nil {
		return nil, err
	}

	var app *entity.AdmissionApplication
	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if err := s.authorizeTransition(current, to, actor); err != nil {
			return err
		}
		app, err = s.gate(txCtx, id, to, actor, metadata)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishTransition(ctx, app, actor)
	return app, nil
}

// authorizeTransition decides who may request a status directly. SUBMITTED
// and UNDER_REVIEW belong to Submit; INTERVIEW_SCHEDULED, SELECTED and
// REJECTED are entered only by the review workflow's scheduler and handler.
func (s *admissionServiceImpl) authorizeTransition(current *entity.AdmissionApplication, to admission.Status, actor authz.Actor) error {
	switch to {
	case admission.StatusOfferAccepted:
		if current.ApplicantID != actor.ID {
			return fmt.Errorf("%w: only the applicant may accept the offer", workflow.ErrForbidden)
		}
		return nil
	case admission.StatusSeatAllocated:
		return s.Guard.AuthorizeOperation(actor, OpAllocateSeat)
	case admission.StatusCancelled:
		if current.ApplicantID == actor.ID {
			return nil
		}
		return s.Guard.AuthorizeOperation(actor, OpCancel)
	case admission.StatusSubmitted, admission.StatusUnderReview:
		return fmt.Errorf("%w: %s is entered by submitting the application", workflow.ErrForbidden, to)
	case admission.StatusInterviewScheduled, admission.StatusSelected, admission.StatusRejected:
		return fmt.Errorf("%w: %s is entered by the review workflow", workflow.ErrForbidden, to)
	default:
		return fmt.Errorf("%w: unknown admission status %q", workflow.ErrValidation, to)
	}
}

// gate is the transition gate. It must run inside a transaction: the status
// is re-read, checked against the table and the prerequisites, then written
// with a compare-and-set together with the history row.
func (s *admissionServiceImpl) gate(ctx context.Context, id int64, to admission.Status, actor authz.Actor, metadata map[string]any) (app *entity.AdmissionApplication, err error) {
	ctx, span := tracing.Start(ctx, "admission.Transition",
		attribute.Int64("application.id", id),
		attribute.String("to", to.String()),
	)
	defer func() { tracing.End(span, err) }()

	current, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("from", current.Status.String()))

	if err := s.Table.Check(current.Status, to); err != nil {
		return nil, err
	}

	if len(s.Table.Prerequisites(to)) > 0 {
		paid, err := s.Payments.HasCompleted(ctx, id)
		if err != nil {
			return nil, err
		}
		facts := admission.Facts{DocumentsVerified: current.DocumentsVerified, PaymentCompleted: paid}
		if err := s.Table.CheckPrerequisites(to, facts); err != nil {
			return nil, err
		}
	}

	at := s.now()
	meta := map[string]any{"table_version": s.Table.Version()}
	for k, v := range metadata {
		meta[k] = v
	}

	app, err = s.Applications.AtomicTransition(ctx, port.TransitionRequest{
		ApplicationID: id,
		From:          current.Status,
		To:            to,
		ActorID:       actor.ID,
		DueAt:         s.Table.Deadline(to, at),
		Metadata:      meta,
		At:            at,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Audit.LogAction(ctx, &entity.AuditLog{
		UserID:   actor.ID,
		Action:   entity.AuditAdmissionTransition,
		Entity:   entity.EntityTypeAdmission,
		EntityID: strconv.FormatInt(id, 10),
		Metadata: map[string]any{"from": current.Status.String(), "to": to.String()},
	}); err != nil {
		return nil, err
	}

	s.Logger.Info("Admission transitioned",
		"application_id", id,
		"from", current.Status.String(),
		"to", to.String(),
		"actor_id", actor.ID,
	)
	return app, nil
}

func (s *admissionServiceImpl) publishTransition(ctx context.Context, app *entity.AdmissionApplication, actor authz.Actor) {
	if s.Bus == nil {
		return
	}
	evt := event.NewEvent(event.TypeAdmissionTransitioned, entity.EntityTypeAdmission,
		strconv.FormatInt(app.ID, 10), map[string]any{"status": app.Status.String()})
	evt.ActorID = actor.ID
	s.Bus.DispatchAsync(ctx, evt)
}

func (s *admissionServiceImpl) AssignPanel(ctx context.Context, id int64, panel []string, actor authz.Actor) (*entity.AdmissionApplication, error) {
	if err := s.Guard.AuthorizeOperation(actor, OpAssignPanel); err != nil {
		return nil, err
	}

	members := make([]string, 0, len(panel))
	seen := make(map[string]bool, len(panel))
	for _, m := range panel {
		m = strings.TrimSpace(m)
		if m != "" && !seen[m] {
			seen[m] = true
			members = append(members, m)
		}
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: interview panel must not be empty", workflow.ErrValidation)
	}

	var app *entity.AdmissionApplication
	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: application %d is %s", workflow.ErrStateViolation, id, current.Status)
		}
		if err := s.Applications.SetPanel(txCtx, id, members); err != nil {
			return err
		}
		if err := s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditPanelAssigned,
			Entity:   entity.EntityTypeAdmission,
			EntityID: strconv.FormatInt(id, 10),
			Metadata: map[string]any{"panel": members},
		}); err != nil {
			return err
		}
		app, err = s.load(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *admissionServiceImpl) AcceptOffer(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error) {
	return s.Transition(ctx, id, admission.StatusOfferAccepted, actor, nil)
}

func (s *admissionServiceImpl) VerifyDocuments(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error) {
	if err := s.Guard.AuthorizeOperation(actor, OpVerifyDocuments); err != nil {
		return nil, err
	}

	var app *entity.AdmissionApplication
	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if current.Status == admission.StatusDraft || current.Status.IsTerminal() {
			return fmt.Errorf("%w: documents cannot be verified while %s", workflow.ErrStateViolation, current.Status)
		}
		if current.DocumentsVerified {
			app = current
			return nil
		}
		if err := s.Applications.MarkDocumentsVerified(txCtx, id, actor.ID, s.now()); err != nil {
			return err
		}
		if err := s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditDocumentsVerified,
			Entity:   entity.EntityTypeAdmission,
			EntityID: strconv.FormatInt(id, 10),
		}); err != nil {
			return err
		}
		app, err = s.load(txCtx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (s *admissionServiceImpl) InitiatePayment(ctx context.Context, id int64, amountCents int64, currency string, actor authz.Actor) (payment *entity.AdmissionPayment, created bool, err error) {
	if err := s.checkActor(actor); err != nil {
		return nil, false, err
	}
	if err := utils.ValidateAmountCents(amountCents); err != nil {
		return nil, false, fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}
	currency = strings.ToUpper(currency)
	if err := utils.ValidateCurrency(currency); err != nil {
		return nil, false, fmt.Errorf("%w: %v", workflow.ErrValidation, err)
	}

	err = s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		app, err := s.load(txCtx, id)
		if err != nil {
			return err
		}
		if app.ApplicantID != actor.ID {
			if err := s.Guard.AuthorizeOperation(actor, OpInitiatePayment); err != nil {
				return err
			}
		}
		if app.Status == admission.StatusDraft || app.Status.IsTerminal() {
			return fmt.Errorf("%w: payment cannot be initiated while %s", workflow.ErrStateViolation, app.Status)
		}

		existing, err := s.Payments.FindUnresolved(txCtx, id)
		if err != nil {
			return err
		}
		if existing != nil {
			payment = existing
			return nil
		}

		paid, err := s.Payments.HasCompleted(txCtx, id)
		if err != nil {
			return err
		}
		if paid {
			return fmt.Errorf("%w: application %d is already paid", workflow.ErrConflict, id)
		}

		payment = &entity.AdmissionPayment{
			ApplicationID: id,
			AmountCents:   amountCents,
			Currency:      currency,
			Status:        entity.PaymentStatusPending,
			Reference:     "adm-" + uuid.NewString(),
		}
		if err := s.Payments.Create(txCtx, payment); err != nil {
			return err
		}
		created = true

		return s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditPaymentInitiated,
			Entity:   entity.EntityTypeAdmission,
			EntityID: strconv.FormatInt(id, 10),
			Metadata: map[string]any{"payment_id": payment.ID, "reference": payment.Reference},
		})
	})
	if err != nil {
		return nil, false, err
	}

	if created && s.Bus != nil {
		evt := event.NewEvent(event.TypeAdmissionPaymentStarted, entity.EntityTypeAdmission,
			strconv.FormatInt(id, 10), map[string]any{"payment_id": payment.ID, "amount_cents": payment.AmountCents})
		evt.ActorID = actor.ID
		s.Bus.DispatchAsync(ctx, evt)
	}
	return payment, created, nil
}

func (s *admissionServiceImpl) CompletePayment(ctx context.Context, paymentID int64, actor authz.Actor) (*entity.AdmissionPayment, error) {
	if err := s.Guard.AuthorizeOperation(actor, OpCompletePayment); err != nil {
		return nil, err
	}

	var payment *entity.AdmissionPayment
	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.Payments.GetByID(txCtx, paymentID)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: payment %d", workflow.ErrNotFound, paymentID)
		}
		if err := s.Payments.Complete(txCtx, paymentID, s.now()); err != nil {
			return err
		}
		if err := s.Audit.LogAction(txCtx, &entity.AuditLog{
			UserID:   actor.ID,
			Action:   entity.AuditPaymentCompleted,
			Entity:   entity.EntityTypeAdmission,
			EntityID: strconv.FormatInt(current.ApplicationID, 10),
			Metadata: map[string]any{"payment_id": paymentID},
		}); err != nil {
			return err
		}
		payment, err = s.Payments.GetByID(txCtx, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *admissionServiceImpl) AllocateSeat(ctx context.Context, id int64, actor authz.Actor) (*entity.AdmissionApplication, error) {
	return s.Transition(ctx, id, admission.StatusSeatAllocated, actor, nil)
}

func (s *admissionServiceImpl) Cancel(ctx context.Context, id int64, reason string, actor authz.Actor) (*entity.AdmissionApplication, error) {
	var metadata map[string]any
	if reason = strings.TrimSpace(reason); reason != "" {
		metadata = map[string]any{"reason": reason}
	}
	return s.Transition(ctx, id, admission.StatusCancelled, actor, metadata)
}

func (s *admissionServiceImpl) Get(ctx context.Context, id int64) (*entity.AdmissionApplication, error) {
	return s.load(ctx, id)
}

func (s *admissionServiceImpl) History(ctx context.Context, id int64) ([]*entity.AdmissionStatusChange, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}
	return s.Applications.ListHistory(ctx, id)
}

func parseEntityID(entityID string) (int64, error) {
	id, err := strconv.ParseInt(entityID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: admission application %q", workflow.ErrNotFound, entityID)
	}
	return id, nil
}

// onInterviewPanel passes when the actor sits on the application's interview panel
func (s *admissionServiceImpl) onInterviewPanel(ctx context.Context, req authz.Request) (bool, error) {
	id, err := parseEntityID(req.Instance.EntityID)
	if err != nil {
		return false, err
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return false, err
	}
	return app.OnPanel(req.Actor.ID), nil
}

// markOfferLetterReady is the post-approval hook of admission workflows. Only
// a SELECTED application gets an offer letter.
func (s *admissionServiceImpl) markOfferLetterReady(ctx context.Context, instance *entity.WorkflowInstance) error {
	id, err := parseEntityID(instance.EntityID)
	if err != nil {
		return err
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if app.Status != admission.StatusSelected {
		return fmt.Errorf("%w: offer letter not prepared for a %s application", workflow.ErrStateViolation, app.Status)
	}
	return s.Applications.SetOfferLetterStatus(ctx, id, entity.OfferLetterReady)
}

// admissionScheduler persists the interview time of a SCHEDULE action and
// moves the application to INTERVIEW_SCHEDULED
type admissionScheduler struct {
	svc *admissionServiceImpl
}

func (a *admissionScheduler) Schedule(ctx context.Context, instance *entity.WorkflowInstance, step *entity.WorkflowStep, actor authz.Actor, payload map[string]any) error {
	raw, _ := payload[PayloadInterviewAt].(string)
	if raw == "" {
		return fmt.Errorf("%w: payload.%s is required", workflow.ErrValidation, PayloadInterviewAt)
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("%w: payload.%s: %v", workflow.ErrValidation, PayloadInterviewAt, err)
	}

	id, err := parseEntityID(instance.EntityID)
	if err != nil {
		return err
	}
	app, err := a.svc.load(ctx, id)
	if err != nil {
		return err
	}

	if err := a.svc.Applications.SetInterview(ctx, id, at); err != nil {
		return err
	}

	// a second SCHEDULE on a later step reschedules without a status change
	if app.Status == admission.StatusInterviewScheduled {
		return nil
	}
	_, err = a.svc.gate(ctx, id, admission.StatusInterviewScheduled, actor, map[string]any{
		"instance_id":      instance.ID,
		"step":             step.Name,
		PayloadInterviewAt: at.UTC().Format(time.RFC3339),
	})
	return err
}

// admissionHandler applies closed review workflows through the transition gate
type admissionHandler struct {
	svc *admissionServiceImpl
}

var systemActor = authz.Actor{ID: "system:workflow", Role: "SYSTEM", Name: "workflow engine"}

func (h *admissionHandler) OnApproved(ctx context.Context, instance *entity.WorkflowInstance) error {
	return h.apply(ctx, instance, admission.StatusSelected)
}

func (h *admissionHandler) OnRejected(ctx context.Context, instance *entity.WorkflowInstance) error {
	return h.apply(ctx, instance, admission.StatusRejected)
}

func (h *admissionHandler) AttemptedStatus(final workflow.InstanceStatus) string {
	if final == workflow.StatusApproved {
		return admission.StatusSelected.String()
	}
	return admission.StatusRejected.String()
}

func (h *admissionHandler) apply(ctx context.Context, instance *entity.WorkflowInstance, to admission.Status) error {
	id, err := parseEntityID(instance.EntityID)
	if err != nil {
		return err
	}

	var app *entity.AdmissionApplication
	err = h.svc.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := h.svc.load(txCtx, id)
		if err != nil {
			return err
		}
		// withdrawn while the review was running
		if current.Status.IsTerminal() {
			return fmt.Errorf("%w: application %d is already %s", dispatcher.ErrSkipped, id, current.Status)
		}
		app, err = h.svc.gate(txCtx, id, to, systemActor, map[string]any{"instance_id": instance.ID})
		return err
	})
	if err != nil {
		return err
	}
	if app != nil {
		h.svc.publishTransition(ctx, app, systemActor)
	}
	return nil
}

// Verify interface compliance
var (
	_ Scheduler                = (*admissionScheduler)(nil)
	_ dispatcher.DomainHandler = (*admissionHandler)(nil)
	_ dispatcher.StatusNamer   = (*admissionHandler)(nil)
)
