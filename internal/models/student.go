package models

import "time"

// StudentStatus represents the lifecycle of an enrolled student.
type StudentStatus string

// Enrolled student statuses.
const (
	StudentStatusPendingPayment StudentStatus = "pending_payment"
	StudentStatusActive         StudentStatus = "active"
	StudentStatusLeft           StudentStatus = "left"
)

// CanTransitionTo reports whether moving from s to next is allowed.
func (s StudentStatus) CanTransitionTo(next StudentStatus) bool {
	switch s {
	case StudentStatusPendingPayment:
		return next == StudentStatusActive || next == StudentStatusLeft
	case StudentStatusActive:
		return next == StudentStatusLeft
	default:
		return false
	}
}

// EnrolledStudent is the authoritative record created once an application is provisioned.
type EnrolledStudent struct {
	ID                string        `db:"id" json:"id"`
	Code              string        `db:"student_code" json:"student_code"`
	ApplicationID     string        `db:"application_id" json:"application_id"`
	GuardianEmail     string        `db:"guardian_email" json:"guardian_email"`
	GuardianName      string        `db:"guardian_name" json:"guardian_name"`
	GuardianPhone     string        `db:"guardian_phone" json:"guardian_phone"`
	FirstName         string        `db:"first_name" json:"first_name"`
	LastName          string        `db:"last_name" json:"last_name"`
	Track             ProgramTrack  `db:"track" json:"track"`
	AssignedGroup     string        `db:"assigned_group" json:"assigned_group"`
	Status            StudentStatus `db:"status" json:"status"`
	PaymentCustomerID *string       `db:"payment_customer_id" json:"payment_customer_id,omitempty"`
	SiblingCount      int           `db:"sibling_count" json:"sibling_count"`
	ActivatedAt       *time.Time    `db:"activated_at" json:"activated_at,omitempty"`
	ActivatedBy       *string       `db:"activated_by" json:"activated_by,omitempty"`
	ActivationNote    *string       `db:"activation_note" json:"activation_note,omitempty"`
	CreatedAt         time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last names.
func (s *EnrolledStudent) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Ref returns the minimal billing view of the student.
func (s *EnrolledStudent) Ref() StudentRef {
	return StudentRef{ID: s.ID, Code: s.Code, Name: s.FullName()}
}

// StudentActivation records a manual fee-bypass approval.
type StudentActivation struct {
	ID          string
	ActivatedBy string
	ActivatedAt time.Time
	Note        string
}
