package enums

import "fmt"

// HistoryAction labels entries in the product audit log.
type HistoryAction string

const (
	HistoryActionAdded   HistoryAction = "added"
	HistoryActionEdited  HistoryAction = "edited"
	HistoryActionDeleted HistoryAction = "deleted"
)

var validHistoryActions = []HistoryAction{
	HistoryActionAdded,
	HistoryActionEdited,
	HistoryActionDeleted,
}

// IsValid reports whether the value matches the canonical history action enum.
func (h HistoryAction) IsValid() bool {
	for _, candidate := range validHistoryActions {
		if candidate == h {
			return true
		}
	}
	return false
}

// ParseHistoryAction converts the raw string to HistoryAction.
func ParseHistoryAction(value string) (HistoryAction, error) {
	for _, candidate := range validHistoryActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid history action %q", value)
}
