package models

import "time"

// StudentRef is the part of a student a payment session needs.
type StudentRef struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// DiscountDecision is the outcome of sibling-discount pricing.
type DiscountDecision struct {
	Applies        bool  `json:"applies"`
	AmountOff      int64 `json:"amount_off"`
	DurationMonths int   `json:"duration_months"`
}

// PaymentSession is a reference to an external checkout session. It is never persisted.
type PaymentSession struct {
	SessionID       string       `json:"session_id"`
	CustomerID      string       `json:"customer_id"`
	StudentIDs      []string     `json:"student_ids"`
	Track           ProgramTrack `json:"track"`
	DiscountApplied bool         `json:"discount_applied"`
	HasOtherTrack   bool         `json:"has_other_track"`
	URL             string       `json:"url"`
	CreatedAt       time.Time    `json:"created_at"`
	ExpiresAt       time.Time    `json:"expires_at"`
}

// BillingGroup collects students approved together who share a guardian and track.
type BillingGroup struct {
	GuardianEmail string
	GuardianName  string
	Track         ProgramTrack
	Students      []EnrolledStudent
}

// Refs returns the billing view of every member.
func (g BillingGroup) Refs() []StudentRef {
	refs := make([]StudentRef, 0, len(g.Students))
	for i := range g.Students {
		refs = append(refs, g.Students[i].Ref())
	}
	return refs
}

// StudentIDs returns member ids in group order.
func (g BillingGroup) StudentIDs() []string {
	ids := make([]string, 0, len(g.Students))
	for _, s := range g.Students {
		ids = append(ids, s.ID)
	}
	return ids
}

// GroupByBilling partitions students by (guardian email, track), keeping first-seen order.
func GroupByBilling(students []EnrolledStudent) []BillingGroup {
	type key struct {
		email string
		track ProgramTrack
	}
	index := make(map[key]int)
	var groups []BillingGroup
	for _, s := range students {
		k := key{email: NormalizeEmail(s.GuardianEmail), track: s.Track}
		pos, ok := index[k]
		if !ok {
			pos = len(groups)
			index[k] = pos
			groups = append(groups, BillingGroup{GuardianEmail: k.email, GuardianName: s.GuardianName, Track: s.Track})
		}
		groups[pos].Students = append(groups[pos].Students, s)
	}
	return groups
}
