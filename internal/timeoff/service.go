// Package timeoff implements the request lifecycle and the read models the
// API exposes: month availability and per-date detail.
package timeoff

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/capacity"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/notification"
	"timeoff-scheduler-backend/internal/parse"
	"timeoff-scheduler-backend/internal/store"
)

// maxSecretBytes is the bcrypt input limit.
const maxSecretBytes = 72

// Service applies lifecycle transitions against the stores.
type Service struct {
	requests store.RequestStore
	limits   store.LimitStore
	engine   capacity.Engine
	notifier notification.Notifier
	log      *zap.Logger
	now      func() time.Time
	validate *validator.Validate
	cost     int
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier sets where lifecycle events go. The default drops them.
func WithNotifier(n notification.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithDefaultLimit overrides the cap used when no limit record exists.
func WithDefaultLimit(n int) Option {
	return func(s *Service) { s.engine = capacity.New(n) }
}

// WithHashCost sets the bcrypt cost for deletion secrets.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a Service over the given stores.
func NewService(requests store.RequestStore, limits store.LimitStore, opts ...Option) *Service {
	s := &Service{
		requests: requests,
		limits:   limits,
		engine:   capacity.New(capacity.DefaultLimit),
		notifier: notification.Nop{},
		log:      zap.NewNop(),
		now:      time.Now,
		validate: newValidator(),
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		return parse.IsDate(fl.Field().String())
	})
	return v
}

// SubmitInput carries the requester supplied fields of a new request.
type SubmitInput struct {
	RequesterName  string            `json:"requester_name" validate:"required,max=128"`
	Date           string            `json:"date" validate:"required,isodate"`
	Role           model.Role        `json:"role" validate:"required,oneof=caregiver office all"`
	Kind           model.RequestKind `json:"kind" validate:"max=32"`
	Reason         string            `json:"reason"`
	DeletionSecret string            `json:"deletion_secret" validate:"required,max=72"`
}

// DeleteOptions says who is deleting. Admins skip the secret check.
type DeleteOptions struct {
	IsAdmin bool
	Secret  string
}

// validationError turns validator output into the shared taxonomy.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.NewValidation("request", err.Error())
	}
	out := &apperr.ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), fieldMessage(fe))
	}
	return out
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}

// Submit validates and stores a new pending request. Capacity is not checked:
// over-booking is accepted and shows up as an "over" day.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*model.TimeOffRequest, error) {
	in.RequesterName = strings.TrimSpace(in.RequesterName)
	in.Date = strings.TrimSpace(in.Date)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}
	if len(in.DeletionSecret) > maxSecretBytes {
		return nil, apperr.NewValidation("deletion_secret", fmt.Sprintf("must be at most %d bytes", maxSecretBytes))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.DeletionSecret), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash deletion secret: %w", err)
	}

	kind := in.Kind
	if kind == "" {
		kind = model.KindRegular
	}

	now := s.now().UTC()
	r := &model.TimeOffRequest{
		RequesterName: in.RequesterName,
		Date:          in.Date,
		Role:          in.Role,
		Kind:          kind,
		Reason:        in.Reason,
		Status:        model.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		SecretHash:    string(hash),
	}
	if err := s.requests.Insert(ctx, r); err != nil {
		return nil, err
	}

	s.log.Info("time-off request submitted",
		zap.String("id", r.ID),
		zap.String("date", r.Date),
		zap.String("role", string(r.Role)))
	s.notifier.Notify(notification.Event{Kind: notification.EventSubmitted, Request: *r})
	return r, nil
}

// Approve moves a pending request to approved.
func (s *Service) Approve(ctx context.Context, id string) (*model.TimeOffRequest, error) {
	return s.decide(ctx, id, model.StatusApproved, notification.EventApproved)
}

// Reject moves a pending request to rejected.
func (s *Service) Reject(ctx context.Context, id string) (*model.TimeOffRequest, error) {
	return s.decide(ctx, id, model.StatusRejected, notification.EventRejected)
}

func (s *Service) decide(ctx context.Context, id string, to model.RequestStatus, kind notification.EventKind) (*model.TimeOffRequest, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.NewValidation("id", "is required")
	}
	if err := s.requests.UpdateStatus(ctx, id, model.StatusPending, to); err != nil {
		return nil, err
	}
	r, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info("time-off request decided", zap.String("id", id), zap.String("status", string(to)))
	s.notifier.Notify(notification.Event{Kind: kind, Request: *r})
	return r, nil
}

// Delete permanently removes a request.
func (s *Service) Delete(ctx context.Context, id string, opts DeleteOptions) error {
	if strings.TrimSpace(id) == "" {
		return apperr.NewValidation("id", "is required")
	}
	if !opts.IsAdmin {
		if opts.Secret == "" {
			return apperr.NewValidation("secret", "is required")
		}
		r, err := s.requests.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(r.SecretHash), []byte(opts.Secret)) != nil {
			s.log.Warn("deletion secret mismatch", zap.String("id", id))
			return &apperr.AuthorizationError{Reason: "deletion secret does not match"}
		}
	}
	if err := s.requests.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("time-off request deleted", zap.String("id", id), zap.Bool("admin", opts.IsAdmin))
	return nil
}

// SetLimit creates or replaces the cap for (date, role).
func (s *Service) SetLimit(ctx context.Context, date string, role model.Role, maxAllowed int) (*model.CapacityLimit, error) {
	date = strings.TrimSpace(date)
	verr := &apperr.ValidationError{}
	if !parse.IsDate(date) {
		verr.Add("date", "must be a date in YYYY-MM-DD format")
	}
	if !role.Limited() {
		verr.Add("role", "must be one of: caregiver, office")
	}
	if maxAllowed < 0 {
		verr.Add("max_allowed", "must be a non-negative integer")
	}
	if verr.HasErrors() {
		return nil, verr
	}

	limit, err := s.limits.Upsert(ctx, date, role, maxAllowed)
	if err != nil {
		return nil, err
	}
	s.log.Info("capacity limit set",
		zap.String("date", date),
		zap.String("role", string(role)),
		zap.Int("max_allowed", maxAllowed))
	return limit, nil
}
