package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/service"
)

const dateLayout = "2006-01-02"

// ApplyLeaveRequest is the body of POST /api/v1/leaves. Dates use YYYY-MM-DD.
type ApplyLeaveRequest struct {
	LeaveType string `json:"leave_type" binding:"required"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
}

// ApplyLeave handles POST /api/v1/leaves
func (h *Handlers) ApplyLeave(c *gin.Context) {
	var req ApplyLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		badRequest(c, "invalid start_date: "+req.StartDate)
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		badRequest(c, "invalid end_date: "+req.EndDate)
		return
	}

	leave, instance, err := h.services.Leaves.Apply(c.Request.Context(), service.LeaveApplication{
		LeaveType: req.LeaveType,
		StartDate: start,
		EndDate:   end,
	}, actorFrom(c))
	if err != nil {
		h.respondError(c, "apply_leave", err)
		return
	}
	created(c, gin.H{"leave": leave, "instance": instance})
}

// GetLeave handles GET /api/v1/leaves/:id
func (h *Handlers) GetLeave(c *gin.Context) {
	id, valid := idParam(c)
	if !valid {
		return
	}
	leave, err := h.services.Leaves.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "get_leave", err)
		return
	}
	ok(c, leave)
}

// LeaveBalance handles GET /api/v1/employees/:id/leave-balance?year=
func (h *Handlers) LeaveBalance(c *gin.Context) {
	year := time.Now().UTC().Year()
	if raw := c.Query("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 {
			badRequest(c, "invalid year: "+raw)
			return
		}
		year = y
	}

	balance, err := h.services.Leaves.Balance(c.Request.Context(), c.Param("id"), year)
	if err != nil {
		h.respondError(c, "leave_balance", err)
		return
	}
	ok(c, balance)
}
