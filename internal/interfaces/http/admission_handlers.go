package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/domain/admission"
)

// CreateAdmissionRequest is the body of POST /api/v1/admissions
type CreateAdmissionRequest struct {
	Program string `json:"program" binding:"required"`
}

// TransitionRequest is the body of POST /api/v1/admissions/:id/transitions
type TransitionRequest struct {
	Status   admission.Status `json:"status" binding:"required"`
	Metadata map[string]any   `json:"metadata"`
}

// PanelRequest is the body of POST /api/v1/admissions/:id/panel
type PanelRequest struct {
	Members []string `json:"members" binding:"required"`
}

// PaymentRequest is the body of POST /api/v1/admissions/:id/payments
type PaymentRequest struct {
	AmountCents int64  `json:"amount_cents" binding:"required"`
	Currency    string `json:"currency" binding:"required"`
}

// CancelRequest is the optional body of POST /api/v1/admissions/:id/cancel
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CreateAdmission handles POST /api/v1/admissions
func (h *Handlers) CreateAdmission(c *gin.Context) {
	var req CreateAdmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	app, err := h.services.Admissions.CreateDraft(c.Request.Context(), req.Program, actorFrom(c))
	if err != nil {
		h.respondError(c, "create_admission", err)
		return
	}
	created(c, app)
}

// GetAdmission handles GET /api/v1/admissions/:id
func (h *Handlers) GetAdmission(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	app, err := h.services.Admissions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_admission", err)
		return
	}
	ok(c, app)
}

// AdmissionHistory handles GET /api/v1/admissions/:id/history
func (h *Handlers) AdmissionHistory(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	history, err := h.services.Admissions.History(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "admission_history", err)
		return
	}
	ok(c, history)
}

// SubmitAdmission handles POST /api/v1/admissions/:id/submit
func (h *Handlers) SubmitAdmission(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	app, instance, err := h.services.Admissions.Submit(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, "submit_admission", err)
		return
	}
	ok(c, gin.H{"application": app, "instance": instance})
}

// TransitionAdmission handles POST /api/v1/admissions/:id/transitions
func (h *Handlers) TransitionAdmission(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	app, err := h.services.Admissions.Transition(c.Request.Context(), id, req.Status, actorFrom(c), req.Metadata)
	if err != nil {
		h.respondError(c, "transition_admission", err)
		return
	}
	ok(c, app)
}

// AssignPanel handles POST /api/v1/admissions/:id/panel
func (h *Handlers) AssignPanel(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req PanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	app, err := h.services.Admissions.AssignPanel(c.Request.Context(), id, req.Members, actorFrom(c))
	if err != nil {
		h.respondError(c, "assign_panel", err)
		return
	}
	ok(c, app)
}

// AcceptOffer handles POST /api/v1/admissions/:id/accept
func (h *Handlers) AcceptOffer(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	app, err := h.services.Admissions.AcceptOffer(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, "accept_offer", err)
		return
	}
	ok(c, app)
}

// VerifyDocuments handles POST /api/v1/admissions/:id/documents/verify
func (h *Handlers) VerifyDocuments(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	app, err := h.services.Admissions.VerifyDocuments(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, "verify_documents", err)
		return
	}
	ok(c, app)
}

// InitiatePayment handles POST /api/v1/admissions/:id/payments. A repeated
// call returns the unresolved payment with 200 instead of 201.
func (h *Handlers) InitiatePayment(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	payment, isNew, err := h.services.Admissions.InitiatePayment(c.Request.Context(), id, req.AmountCents, req.Currency, actorFrom(c))
	if err != nil {
		h.respondError(c, "initiate_payment", err)
		return
	}
	if isNew {
		created(c, payment)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: payment})
}

// CompletePayment handles POST /api/v1/payments/:id/complete
func (h *Handlers) CompletePayment(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	payment, err := h.services.Admissions.CompletePayment(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, "complete_payment", err)
		return
	}
	ok(c, payment)
}

// AllocateSeat handles POST /api/v1/admissions/:id/allocate
func (h *Handlers) AllocateSeat(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	app, err := h.services.Admissions.AllocateSeat(c.Request.Context(), id, actorFrom(c))
	if err != nil {
		h.respondError(c, "allocate_seat", err)
		return
	}
	ok(c, app)
}

// CancelAdmission handles POST /api/v1/admissions/:id/cancel
func (h *Handlers) CancelAdmission(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	var req CancelRequest
	if !bind(c, &req) {
		return
	}
	app, err := h.services.Admissions.Cancel(c.Request.Context(), id, req.Reason, actorFrom(c))
	if err != nil {
		h.respondError(c, "cancel_admission", err)
		return
	}
	ok(c, app)
}
