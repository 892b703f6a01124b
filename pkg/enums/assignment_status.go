package enums

import "fmt"

// AssignmentStatus tracks the lifecycle of an employee stock assignment.
type AssignmentStatus string

const (
	AssignmentStatusActive   AssignmentStatus = "active"
	AssignmentStatusReleased AssignmentStatus = "released"
)

var validAssignmentStatuses = []AssignmentStatus{
	AssignmentStatusActive,
	AssignmentStatusReleased,
}

// IsValid reports whether the value matches the canonical assignment status enum.
func (a AssignmentStatus) IsValid() bool {
	for _, candidate := range validAssignmentStatuses {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAssignmentStatus converts the raw string to AssignmentStatus.
func ParseAssignmentStatus(value string) (AssignmentStatus, error) {
	for _, candidate := range validAssignmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid assignment status %q", value)
}
