package timeoff

import (
	"context"
	"strings"
	"time"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/capacity"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/parse"
)

// MonthView is the availability of every day of one month for a role filter.
type MonthView struct {
	Month string                     `json:"month"` // YYYY-MM
	Role  model.Role                 `json:"role"`
	Days  []capacity.DayAvailability `json:"days"`
}

// RequestView is a request as shown to callers. The secret never leaves the store.
type RequestView struct {
	ID            string              `json:"id"`
	RequesterName string              `json:"requester_name"`
	Date          string              `json:"date"`
	Role          model.Role          `json:"role"`
	Kind          model.RequestKind   `json:"kind"`
	Reason        string              `json:"reason"`
	Status        model.RequestStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewRequestView renders r for display.
func NewRequestView(r model.TimeOffRequest) RequestView {
	return RequestView{
		ID:            r.ID,
		RequesterName: r.RequesterName,
		Date:          r.Date,
		Role:          r.Role,
		Kind:          r.Kind,
		Reason:        r.DisplayReason(),
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
	}
}

// DateDetail is one date's availability plus the requests listed on it.
type DateDetail struct {
	Date         string                   `json:"date"`
	Role         model.Role               `json:"role"`
	Availability capacity.DayAvailability `json:"availability"`
	Requests     []RequestView            `json:"requests"`
}

func roleFilter(role model.Role) (model.Role, error) {
	if role == "" {
		return model.RoleAll, nil
	}
	if !role.Valid() {
		return "", apperr.NewValidation("role", "must be one of: caregiver, office, all")
	}
	return role, nil
}

// MonthAvailability recomputes the month from source data on every call.
func (s *Service) MonthAvailability(ctx context.Context, year int, month time.Month, role model.Role) (*MonthView, error) {
	m, err := parse.NewMonth(year, month)
	if err != nil {
		return nil, apperr.NewValidation("month", err.Error())
	}
	role, err = roleFilter(role)
	if err != nil {
		return nil, err
	}

	requests, err := s.requests.FindByDateRange(ctx, m.First(), m.Last())
	if err != nil {
		return nil, err
	}
	limits, err := s.limits.FindByDateRangeAndRole(ctx, m.First(), m.Last(), role)
	if err != nil {
		return nil, err
	}

	days := s.engine.ComputeRange(requests, limits, role, m.First(), m.Last())
	return &MonthView{Month: m.String(), Role: role, Days: capacity.Sorted(days)}, nil
}

// DateDetail returns the availability and visible requests for one date.
func (s *Service) DateDetail(ctx context.Context, date string, role model.Role) (*DateDetail, error) {
	date = strings.TrimSpace(date)
	if !parse.IsDate(date) {
		return nil, apperr.NewValidation("date", "must be a date in YYYY-MM-DD format")
	}
	role, err := roleFilter(role)
	if err != nil {
		return nil, err
	}

	requests, err := s.requests.FindByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	limits, err := s.limits.FindByDateRangeAndRole(ctx, date, date, role)
	if err != nil {
		return nil, err
	}

	day := s.engine.ComputeRange(requests, limits, role, date, date)[date]
	visible := capacity.Visible(requests, role)
	views := make([]RequestView, 0, len(visible))
	for _, r := range visible {
		views = append(views, NewRequestView(r))
	}
	return &DateDetail{Date: date, Role: role, Availability: day, Requests: views}, nil
}
