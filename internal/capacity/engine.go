// Package capacity turns time-off requests and per-date role limits into a
// per-date availability status. Everything here is pure: the same inputs
// always produce the same output and nothing returns an error.
package capacity

import (
	"sort"

	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
)

// DefaultLimit applies when no CapacityLimit exists for a date and role, and
// always for the unfiltered view.
const DefaultLimit = 3

// Status is the availability of a date for one role scope.
type Status string

const (
	StatusAvailable Status = "available"
	StatusFull      Status = "full"
	StatusOver      Status = "over"
)

// DayAvailability is derived on every read and never persisted.
type DayAvailability struct {
	Date           string     `json:"date"`
	Role           model.Role `json:"role"`
	EffectiveCount int        `json:"effective_count"`
	EffectiveLimit int        `json:"effective_limit"`
	Status         Status     `json:"status"`
	Pending        int        `json:"pending"`
	Approved       int        `json:"approved"`
	Rejected       int        `json:"rejected"`
}

// StatusFor classifies a count against a limit.
func StatusFor(count, limit int) Status {
	switch {
	case count < limit:
		return StatusAvailable
	case count == limit:
		return StatusFull
	default:
		return StatusOver
	}
}

// Engine computes availability with a configurable default cap.
type Engine struct {
	DefaultLimit int
}

// New returns an Engine. A non-positive defaultLimit falls back to DefaultLimit.
func New(defaultLimit int) Engine {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return Engine{DefaultLimit: defaultLimit}
}

// Compute uses the package default cap.
func Compute(requests []model.TimeOffRequest, limits []model.CapacityLimit, role model.Role) map[string]DayAvailability {
	return New(DefaultLimit).Compute(requests, limits, role)
}

// ComputeRange uses the package default cap.
func ComputeRange(requests []model.TimeOffRequest, limits []model.CapacityLimit, role model.Role, from, to string) map[string]DayAvailability {
	return New(DefaultLimit).ComputeRange(requests, limits, role, from, to)
}

// Compute returns the availability of every date that has at least one request.
func (e Engine) Compute(requests []model.TimeOffRequest, limits []model.CapacityLimit, role model.Role) map[string]DayAvailability {
	return e.compute(requests, limits, role, nil)
}

// ComputeRange returns the availability of every calendar day in [from, to],
// plus any other date that has requests.
func (e Engine) ComputeRange(requests []model.TimeOffRequest, limits []model.CapacityLimit, role model.Role, from, to string) map[string]DayAvailability {
	return e.compute(requests, limits, role, parse.Days(from, to))
}

func (e Engine) compute(requests []model.TimeOffRequest, limits []model.CapacityLimit, role model.Role, days []string) map[string]DayAvailability {
	role = normalize(role)
	limitIndex := indexLimits(limits)

	out := make(map[string]DayAvailability, len(days))
	for _, d := range days {
		out[d] = e.empty(d, role, limitIndex)
	}

	for _, r := range requests {
		if r.Status == model.StatusCanceled || !matches(r.Role, role) {
			continue
		}
		day, ok := out[r.Date]
		if !ok {
			day = e.empty(r.Date, role, limitIndex)
		}
		switch r.Status {
		case model.StatusPending:
			day.Pending++
		case model.StatusApproved:
			day.Approved++
		case model.StatusRejected:
			day.Rejected++
		}
		if r.Status.Counts() {
			day.EffectiveCount++
		}
		day.Status = StatusFor(day.EffectiveCount, day.EffectiveLimit)
		out[r.Date] = day
	}
	return out
}

func (e Engine) empty(date string, role model.Role, limitIndex map[limitKey]int) DayAvailability {
	limit := e.limitFor(date, role, limitIndex)
	return DayAvailability{
		Date:           date,
		Role:           role,
		EffectiveLimit: limit,
		Status:         StatusFor(0, limit),
	}
}

// limitFor never consults per-role records for the unfiltered view: those caps
// only apply when a specific role filter is active.
func (e Engine) limitFor(date string, role model.Role, limitIndex map[limitKey]int) int {
	def := e.DefaultLimit
	if def <= 0 {
		def = DefaultLimit
	}
	if role == model.RoleAll {
		return def
	}
	if n, ok := limitIndex[limitKey{date: date, role: role}]; ok {
		return n
	}
	return def
}

type limitKey struct {
	date string
	role model.Role
}

// indexLimits keeps the last record per key. Records for RoleAll are ignored.
func indexLimits(limits []model.CapacityLimit) map[limitKey]int {
	idx := make(map[limitKey]int, len(limits))
	for _, l := range limits {
		if !l.Role.Limited() {
			continue
		}
		idx[limitKey{date: l.Date, role: l.Role}] = l.MaxAllowed
	}
	return idx
}

func normalize(role model.Role) model.Role {
	if role == "" {
		return model.RoleAll
	}
	return role
}

// matches reports whether a request with requestRole belongs to the filter.
// RoleAll requests belong to every bucket.
func matches(requestRole, filter model.Role) bool {
	return filter == model.RoleAll || requestRole == filter || requestRole == model.RoleAll
}

// Visible returns the requests listed for a role filter: canceled requests are
// dropped, rejected ones stay for display. Ordered by creation time, then id.
func Visible(requests []model.TimeOffRequest, role model.Role) []model.TimeOffRequest {
	role = normalize(role)
	out := make([]model.TimeOffRequest, 0, len(requests))
	for _, r := range requests {
		if r.Status == model.StatusCanceled || !matches(r.Role, role) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Sorted flattens an availability map into date order.
func Sorted(days map[string]DayAvailability) []DayAvailability {
	out := make([]DayAvailability, 0, len(days))
	for _, d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
