package workflow

// InstanceStatus is the status of a workflow instance
type InstanceStatus string

const (
	StatusInProgress InstanceStatus = "IN_PROGRESS"
	StatusApproved   InstanceStatus = "APPROVED"
	StatusRejected   InstanceStatus = "REJECTED"
)

// IsTerminal returns true once the instance can no longer accept actions
func (s InstanceStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// String returns the string representation of the status
func (s InstanceStatus) String() string {
	return string(s)
}

// ApprovalType controls how a step resolves approvals
type ApprovalType string

const (
	// ApprovalSequential advances on the first valid approval
	ApprovalSequential ApprovalType = "SEQUENTIAL"
	// ApprovalParallel advances once every approver role has approved
	ApprovalParallel ApprovalType = "PARALLEL"
)

// IsValid returns true for a known approval type
func (t ApprovalType) IsValid() bool {
	return t == ApprovalSequential || t == ApprovalParallel
}

// String returns the string representation of the approval type
func (t ApprovalType) String() string {
	return string(t)
}

// ActionType is the kind of action an actor records against a step
type ActionType string

const (
	ActionApprove  ActionType = "APPROVE"
	ActionReject   ActionType = "REJECT"
	ActionSchedule ActionType = "SCHEDULE"
)

// IsValid returns true for a known action type
func (a ActionType) IsValid() bool {
	switch a {
	case ActionApprove, ActionReject, ActionSchedule:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action
func (a ActionType) String() string {
	return string(a)
}
