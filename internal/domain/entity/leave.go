package entity

import "time"

// LeaveRequest is an employee leave application
type LeaveRequest struct {
	ID         int64     `json:"id"`
	EmployeeID string    `json:"employee_id"`
	LeaveType  string    `json:"leave_type"`
	Days       int       `json:"days"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LeaveBalance is the consumed leave of an employee for one year
type LeaveBalance struct {
	EmployeeID string    `json:"employee_id"`
	Year       int       `json:"year"`
	UsedDays   int       `json:"used_days"`
	UpdatedAt  time.Time `json:"updated_at"`
}
