package referral

import (
	"fmt"

	"github.com/google/uuid"
)

// Facet is a pure status filter shared by every role-scoped view. It never
// touches viewed flags.
type Facet string

const (
	FacetAll     Facet = "all"
	FacetPending Facet = "pending"
	FacetActive  Facet = "active"
	FacetDone    Facet = "done"
)

// ParseFacet accepts the canonical names plus the aliases the client app
// historically used for the same buckets.
func ParseFacet(s string) (Facet, error) {
	switch s {
	case "", "all":
		return FacetAll, nil
	case "pending":
		return FacetPending, nil
	case "active", "accepted":
		return FacetActive, nil
	case "done", "completed":
		return FacetDone, nil
	}
	return "", fmt.Errorf("%w: unknown filter %q", ErrValidation, s)
}

func (f Facet) Matches(s Status) bool {
	switch f {
	case FacetPending:
		return s == StatusPending
	case FacetActive:
		return s == StatusAccepted || s == StatusAppointmentScheduled
	case FacetDone:
		return s == StatusCompleted || s == StatusDeclined || s == StatusCancelled
	}
	return true
}

func ApplyFacet(details []Detail, f Facet) []Detail {
	if f == FacetAll || f == "" {
		return details
	}
	out := make([]Detail, 0, len(details))
	for _, d := range details {
		if f.Matches(d.Status) {
			out = append(out, d)
		}
	}
	return out
}

// ProjectDetail redacts a referral for the given viewer. Clinical notes are
// doctor-to-doctor; the patient never sees them no matter what the client
// renders.
func ProjectDetail(d Detail, viewerID uuid.UUID) Detail {
	if d.PatientID == viewerID {
		d.ClinicalNotes = nil
	}
	return d
}

// CountUnread counts referrals whose viewed flag for the role is still
// false. Status is irrelevant: a declined referral the patient has not seen
// still lights the badge.
func CountUnread(details []Detail, role ViewerRole) int {
	n := 0
	for _, d := range details {
		if !d.Viewed(role) {
			n++
		}
	}
	return n
}

// Stats is the badge summary surfaced to notification indicators.
type Stats struct {
	TotalPending   int `json:"total_pending"`
	TotalAccepted  int `json:"total_accepted"`
	TotalCompleted int `json:"total_completed"`
	UnreadCount    int `json:"unread_count"`
}

// ComputeStats aggregates a viewer's referral set. Doctors get the full
// received-side breakdown; patients only get their pending and unread
// numbers, mirroring what their screens display.
func ComputeStats(details []Detail, role ActorRole, unread int) *Stats {
	st := &Stats{UnreadCount: unread}
	for _, d := range details {
		switch d.Status {
		case StatusPending:
			st.TotalPending++
		case StatusAccepted:
			if role == RoleDoctor {
				st.TotalAccepted++
			}
		case StatusCompleted:
			if role == RoleDoctor {
				st.TotalCompleted++
			}
		}
	}
	return st
}
