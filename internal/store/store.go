package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/model"
)

// RequestStore is the durable collection of time-off requests.
type RequestStore interface {
	FindByDateRange(ctx context.Context, start, end string) ([]model.TimeOffRequest, error)
	FindByDate(ctx context.Context, date string) ([]model.TimeOffRequest, error)
	FindByID(ctx context.Context, id string) (*model.TimeOffRequest, error)
	// Insert assigns the id when it is empty.
	Insert(ctx context.Context, r *model.TimeOffRequest) error
	// UpdateStatus moves a request from one status to another. It fails with
	// InvalidStateError when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to model.RequestStatus) error
	Delete(ctx context.Context, id string) error
}

// LimitStore is the durable collection of per-(date, role) caps.
type LimitStore interface {
	// FindByDateRangeAndRole returns every limit in [start, end]. An empty role
	// or RoleAll returns limits for every role.
	FindByDateRangeAndRole(ctx context.Context, start, end string, role model.Role) ([]model.CapacityLimit, error)
	Upsert(ctx context.Context, date string, role model.Role, maxAllowed int) (*model.CapacityLimit, error)
}

// SubscriptionStore persists admin push subscriptions.
type SubscriptionStore interface {
	PutSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForRole(ctx context.Context, role model.Role) ([]model.PushSubscription, error)
}

// Store defines the interface for all database operations.
type Store interface {
	RequestStore
	LimitStore
	SubscriptionStore
	Ping(ctx context.Context) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// wrap maps gorm errors onto the shared taxonomy. Anything that is not a
// missing row is treated as a retryable backend failure.
func wrap(op, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &apperr.NotFoundError{Resource: resource, ID: id}
	}
	return &apperr.TransientStoreError{Op: op, Err: err}
}

func (s *gormStore) FindByDateRange(ctx context.Context, start, end string) ([]model.TimeOffRequest, error) {
	var requests []model.TimeOffRequest
	err := s.db.WithContext(ctx).
		Where("off_date >= ? AND off_date <= ?", start, end).
		Order("off_date, created_at, id").
		Find(&requests).Error
	if err != nil {
		return nil, wrap("find requests by range", "request", "", err)
	}
	return requests, nil
}

func (s *gormStore) FindByDate(ctx context.Context, date string) ([]model.TimeOffRequest, error) {
	var requests []model.TimeOffRequest
	err := s.db.WithContext(ctx).
		Where("off_date = ?", date).
		Order("created_at, id").
		Find(&requests).Error
	if err != nil {
		return nil, wrap("find requests by date", "request", "", err)
	}
	return requests, nil
}

func (s *gormStore) FindByID(ctx context.Context, id string) (*model.TimeOffRequest, error) {
	var r model.TimeOffRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, wrap("find request", "request", id, err)
	}
	return &r, nil
}

func (s *gormStore) Insert(ctx context.Context, r *model.TimeOffRequest) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return &apperr.TransientStoreError{Op: "insert request", Err: err}
	}
	return nil
}

// UpdateStatus is a compare-and-set on the status column, so two admins
// deciding the same request at once cannot both succeed.
func (s *gormStore) UpdateStatus(ctx context.Context, id string, from, to model.RequestStatus) error {
	res := s.db.WithContext(ctx).
		Model(&model.TimeOffRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return &apperr.TransientStoreError{Op: "update request status", Err: res.Error}
	}
	if res.RowsAffected > 0 {
		return nil
	}

	current, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &apperr.InvalidStateError{ID: id, From: string(current.Status), To: string(to)}
}

func (s *gormStore) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TimeOffRequest{})
	if res.Error != nil {
		return &apperr.TransientStoreError{Op: "delete request", Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return &apperr.NotFoundError{Resource: "request", ID: id}
	}
	return nil
}

func (s *gormStore) FindByDateRangeAndRole(ctx context.Context, start, end string, role model.Role) ([]model.CapacityLimit, error) {
	q := s.db.WithContext(ctx).Where("off_date >= ? AND off_date <= ?", start, end)
	if role != "" && role != model.RoleAll {
		q = q.Where("role = ?", role)
	}
	var limits []model.CapacityLimit
	if err := q.Order("off_date, role").Find(&limits).Error; err != nil {
		return nil, wrap("find limits", "limit", "", err)
	}
	return limits, nil
}

// Upsert writes the limit keyed by (date, role); repeating it updates in place.
func (s *gormStore) Upsert(ctx context.Context, date string, role model.Role, maxAllowed int) (*model.CapacityLimit, error) {
	limit := model.CapacityLimit{Date: date, Role: role, MaxAllowed: maxAllowed}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "off_date"}, {Name: "role"}},
		DoUpdates: clause.AssignmentColumns([]string{"max_allowed", "updated_at"}),
	}).Create(&limit).Error
	if err != nil {
		return nil, &apperr.TransientStoreError{Op: fmt.Sprintf("upsert limit %s/%s", date, role), Err: err}
	}
	return &limit, nil
}

func (s *gormStore) PutSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if sub.Role == "" {
		sub.Role = model.RoleAll
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "role"}),
	}).Create(sub).Error
	if err != nil {
		return &apperr.TransientStoreError{Op: "put subscription", Err: err}
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := s.db.WithContext(ctx).First(&sub, "endpoint = ?", endpoint).Error; err != nil {
		return nil, wrap("get subscription", "subscription", endpoint, err)
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error
	if err != nil {
		return &apperr.TransientStoreError{Op: "delete subscription", Err: err}
	}
	return nil
}

// SubscriptionsForRole returns subscribers interested in role: those scoped to
// it plus those scoped to RoleAll. RoleAll events reach everyone.
func (s *gormStore) SubscriptionsForRole(ctx context.Context, role model.Role) ([]model.PushSubscription, error) {
	q := s.db.WithContext(ctx)
	if role != model.RoleAll {
		q = q.Where("role IN ?", []model.Role{role, model.RoleAll})
	}
	var subs []model.PushSubscription
	if err := q.Order("endpoint").Find(&subs).Error; err != nil {
		return nil, wrap("find subscriptions", "subscription", "", err)
	}
	return subs, nil
}

func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
