package models

import (
	"strings"
	"time"
)

// ProgramTrack identifies the programme a child is registered for.
type ProgramTrack string

// Supported program tracks.
const (
	TrackMaktab ProgramTrack = "maktab"
	TrackHifz   ProgramTrack = "hifz"
)

// hifzGroup is the only class the hifz track ever places students in.
const hifzGroup = "hifz"

// Valid reports whether the track is known.
func (t ProgramTrack) Valid() bool {
	switch t {
	case TrackMaktab, TrackHifz:
		return true
	}
	return false
}

// FixedGroup returns the group a track assigns automatically, if any.
func (t ProgramTrack) FixedGroup() (string, bool) {
	if t == TrackHifz {
		return hifzGroup, true
	}
	return "", false
}

// ApplicationStatus captures the review lifecycle of a registration application.
type ApplicationStatus string

// Application statuses.
const (
	ApplicationStatusPending         ApplicationStatus = "pending"
	ApplicationStatusAwaitingPayment ApplicationStatus = "awaiting_payment"
	ApplicationStatusApproved        ApplicationStatus = "approved"
	ApplicationStatusRejected        ApplicationStatus = "rejected"
)

// CanTransitionTo reports whether moving from s to next is a legal review transition.
func (s ApplicationStatus) CanTransitionTo(next ApplicationStatus) bool {
	switch s {
	case ApplicationStatusPending:
		return next == ApplicationStatusApproved || next == ApplicationStatusRejected || next == ApplicationStatusAwaitingPayment
	case ApplicationStatusAwaitingPayment:
		return next == ApplicationStatusApproved || next == ApplicationStatusRejected
	default:
		return false
	}
}

// PendingApplication is a guardian's enrollment request for one child.
type PendingApplication struct {
	ID               string            `db:"id" json:"id"`
	GuardianEmail    string            `db:"guardian_email" json:"guardian_email"`
	GuardianName     string            `db:"guardian_name" json:"guardian_name"`
	GuardianPhone    string            `db:"guardian_phone" json:"guardian_phone"`
	ChildFirstName   string            `db:"child_first_name" json:"child_first_name"`
	ChildLastName    string            `db:"child_last_name" json:"child_last_name"`
	ChildDateOfBirth *time.Time        `db:"child_date_of_birth" json:"child_date_of_birth,omitempty"`
	ChildGender      string            `db:"child_gender" json:"child_gender"`
	Track            ProgramTrack      `db:"track" json:"track"`
	MedicalNotes     *string           `db:"medical_notes" json:"medical_notes,omitempty"`
	Status           ApplicationStatus `db:"status" json:"status"`
	ReviewedAt       *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy       *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	RejectionReason  *string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AssignedGroup    *string           `db:"assigned_group" json:"assigned_group,omitempty"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updated_at"`
}

// ChildName joins the child's first and last names.
func (a *PendingApplication) ChildName() string {
	return strings.TrimSpace(a.ChildFirstName + " " + a.ChildLastName)
}

// NormalizedGuardianEmail is the key used to match siblings and billing customers.
func (a *PendingApplication) NormalizedGuardianEmail() string {
	return NormalizeEmail(a.GuardianEmail)
}

// NormalizeEmail lowercases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ApplicationDecision is the status transition written by a review.
type ApplicationDecision struct {
	ID              string
	From            ApplicationStatus
	To              ApplicationStatus
	ReviewedBy      *string
	ReviewedAt      *time.Time
	AssignedGroup   *string
	RejectionReason *string
}
