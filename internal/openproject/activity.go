package openproject

import (
	"strings"
	"time"
)

const (
	statusChangedPrefix = "Status changed"
	statusFromPrefix    = "Status changed from "
	statusToInfix       = " to "
)

// StatusChange is one status transition recovered from an activity entry.
type StatusChange struct {
	From      string
	To        string
	Timestamp time.Time
	UserID    *int64
}

// IsStatusChange reports whether a detail line describes a status change.
func IsStatusChange(raw string) bool {
	return strings.HasPrefix(raw, statusChangedPrefix)
}

// ParseStatusChange splits "Status changed from X to Y" into X and Y. Any
// other shape, including a status name that itself contains " to ", is
// rejected.
func ParseStatusChange(raw string) (from, to string, ok bool) {
	if !strings.HasPrefix(raw, statusFromPrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(raw, statusFromPrefix), statusToInfix)
	if len(parts) != 2 {
		return "", "", false
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
}

// StatusChanges walks an activity collection and returns its status
// transitions in document order. Non-status details are ignored; status
// details that do not parse are counted in rejected. now stamps entries
// whose createdAt cannot be parsed.
func StatusChanges(col *ActivityCollection, now time.Time) (changes []StatusChange, rejected []string) {
	if col == nil {
		return nil, nil
	}
	for _, elem := range col.Embedded.Elements {
		if len(elem.Details) == 0 {
			continue
		}

		ts, err := ParseTime(elem.CreatedAt)
		if err != nil {
			ts = now
		}

		var userID *int64
		if elem.Links.User != nil {
			if id, ok := IDFromHref(elem.Links.User.Href); ok {
				userID = &id
			}
		}

		for _, d := range elem.Details {
			if !IsStatusChange(d.Raw) {
				continue
			}
			from, to, ok := ParseStatusChange(d.Raw)
			if !ok {
				rejected = append(rejected, d.Raw)
				continue
			}
			changes = append(changes, StatusChange{
				From:      from,
				To:        to,
				Timestamp: ts,
				UserID:    userID,
			})
		}
	}
	return changes, rejected
}
