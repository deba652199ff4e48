package openproject

import (
	"strconv"
	"strings"
	"time"
)

// ActivityCollection is the HAL collection returned by
// /api/v3/work_packages/{id}/activities.
type ActivityCollection struct {
	Embedded struct {
		Elements []ActivityDTO `json:"elements"`
	} `json:"_embedded"`
}

// ActivityDTO is a single journal entry of a work package.
type ActivityDTO struct {
	ID        int64  `json:"id"`
	CreatedAt string `json:"createdAt"`
	Links     struct {
		User *LinkDTO `json:"user,omitempty"`
	} `json:"_links"`
	Details []FormattableDTO `json:"details"`
}

// LinkDTO is a HAL link.
type LinkDTO struct {
	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
}

// FormattableDTO is OpenProject's formattable text; only the raw form is used.
type FormattableDTO struct {
	Raw string `json:"raw"`
}

// IDFromHref returns the numeric id at the end of a resource href such as
// /api/v3/users/42.
func IDFromHref(href string) (int64, bool) {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	if href == "" {
		return 0, false
	}
	if idx := strings.LastIndex(href, "/"); idx >= 0 {
		href = href[idx+1:]
	}
	id, err := strconv.ParseInt(href, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ParseTime parses the RFC 3339 timestamps used by API v3.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// ParseDate accepts a plain calendar date or a full timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return ParseTime(s)
}
