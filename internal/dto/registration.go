package dto

// ApproveApplicationRequest approves one pending application.
// SiblingCount includes siblings already enrolled; zero means only this child.
type ApproveApplicationRequest struct {
	AssignedGroup string `json:"assignedGroup" validate:"omitempty,max=64"`
	SiblingCount  int    `json:"siblingCount" validate:"omitempty,min=1,max=20"`
}

// ApproveGroupRequest approves sibling applications from one guardian together.
type ApproveGroupRequest struct {
	ApplicationIDs   []string          `json:"applicationIds" validate:"required,min=1,max=20,dive,required"`
	GroupAssignments map[string]string `json:"groupAssignments" validate:"omitempty,dive,keys,required,endkeys,max=64"`
	SiblingCount     int               `json:"siblingCount" validate:"omitempty,min=1,max=20"`
}

// RejectApplicationRequest carries the mandatory rejection reason.
type RejectApplicationRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// ManualApproveRequest activates a student without payment.
type ManualApproveRequest struct {
	Justification string `json:"justification" validate:"required,max=1000"`
}

// ManualApproveGroupRequest activates several students without payment.
type ManualApproveGroupRequest struct {
	StudentIDs    []string `json:"studentIds" validate:"required,min=1,max=50,dive,required"`
	Justification string   `json:"justification" validate:"required,max=1000"`
}

// CancelRegistrationRequest cancels an unpaid registration.
type CancelRegistrationRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}
