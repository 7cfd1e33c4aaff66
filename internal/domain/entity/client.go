package entity

import "time"

// Client represents a person receiving counseling sessions
type Client struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	RegistrationDate *time.Time `json:"registration_date,omitempty"`
	EndDate          *time.Time `json:"end_date,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// EndedBefore reports whether the client's service ended before t. The end
// date is a calendar day in loc; sessions on that day are still allowed.
// An ended client takes no new sessions or teacher assignments.
func (c *Client) EndedBefore(t time.Time, loc *time.Location) bool {
	if c.EndDate == nil {
		return false
	}
	end := c.EndDay(loc)
	return !t.Before(end.AddDate(0, 0, 1))
}

// EndDay returns midnight of the end date in loc. Stores hand dates back in
// UTC or the process zone, so the stored instant is re-read in loc first.
func (c *Client) EndDay(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	end := c.EndDate.In(loc)
	return time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
}
