package internal

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"timeoff-scheduler-backend/config"
	"timeoff-scheduler-backend/internal/api"
	"timeoff-scheduler-backend/internal/apperr"
	"timeoff-scheduler-backend/internal/capacity"
	"timeoff-scheduler-backend/internal/db"
	"timeoff-scheduler-backend/internal/model"
	"timeoff-scheduler-backend/internal/store"
	"timeoff-scheduler-backend/internal/syncer"
	"timeoff-scheduler-backend/internal/timeoff"
)

const adminToken = "integration-admin"

// startServer runs the full HTTP stack against a fresh in-memory database.
func startServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	cfg.Database.LogLevel = "silent"
	cfg.Server.AdminToken = adminToken
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000

	gormDB, err := db.Init(&cfg.Database, zap.NewNop())
	require.NoError(t, err)
	sqlDB, _ := gormDB.DB()
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gormDB)
	svc := timeoff.NewService(s, s,
		timeoff.WithHashCost(bcrypt.MinCost),
		timeoff.WithDefaultLimit(cfg.Capacity.DefaultLimit))
	router := api.NewRouter(t.Context(), api.NewHandler(svc, s, nil, zap.NewNop()), cfg.Server, zap.NewNop())

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func submit(t *testing.T, c *syncer.Client, name, date string, role model.Role) *timeoff.RequestView {
	t.Helper()
	view, _, err := c.Submit(context.Background(), timeoff.SubmitInput{
		RequesterName:  name,
		Date:           date,
		Role:           role,
		DeletionSecret: "secret-" + name,
	}, "")
	require.NoError(t, err)
	return view
}

func TestCapacityLifecycleOverHTTP(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	client := syncer.NewClient(server.URL, 5*time.Second, syncer.WithAdminToken(adminToken))
	coord := syncer.NewCoordinator(client, syncer.WithSettleDelay(time.Hour))
	defer coord.Close()

	_, err := coord.Navigate(ctx, 2025, time.March, model.RoleCaregiver)
	require.NoError(t, err)

	view, err := coord.Mutate(ctx, func(ctx context.Context) error {
		_, err := client.SetLimit(ctx, "2025-03-10", model.RoleCaregiver, 2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, syncer.StateSettled, coord.State())

	first := submit(t, client, "ana", "2025-03-10", model.RoleCaregiver)
	submit(t, client, "ben", "2025-03-10", model.RoleCaregiver)

	view, err = coord.SelectDate(ctx, "2025-03-10")
	require.NoError(t, err)
	require.NotNil(t, view.Detail)
	assert.Equal(t, 2, view.Detail.Availability.EffectiveCount)
	assert.Equal(t, capacity.StatusFull, view.Detail.Availability.Status)

	submit(t, client, "cai", "2025-03-10", model.RoleCaregiver)
	view, err = coord.AfterMutation(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Detail.Availability.EffectiveCount)
	assert.Equal(t, capacity.StatusOver, view.Detail.Availability.Status)
	assert.Equal(t, capacity.StatusOver, view.Days[9].Status)

	view, err = coord.Mutate(ctx, func(ctx context.Context) error {
		_, err := client.Reject(ctx, first.ID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, view.Detail.Availability.EffectiveCount)
	assert.Equal(t, capacity.StatusFull, view.Detail.Availability.Status)
	assert.Len(t, view.Detail.Requests, 3)

	_, err = client.Approve(ctx, first.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))

	// Requesters carry no admin token, so the secret is checked. A failed
	// mutation leaves the published view untouched.
	requester := syncer.NewClient(server.URL, 5*time.Second)
	before := coord.View()
	after, err := coord.Mutate(ctx, func(ctx context.Context) error {
		return requester.Delete(ctx, first.ID, "wrong")
	})
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))
	assert.Equal(t, before.Token, after.Token)
	assert.Equal(t, syncer.StateSettled, coord.State())

	view, err = coord.Mutate(ctx, func(ctx context.Context) error {
		return requester.Delete(ctx, first.ID, "secret-ana")
	})
	require.NoError(t, err)
	require.NotNil(t, view.Detail)
	assert.Len(t, view.Detail.Requests, 2)
	for _, r := range view.Detail.Requests {
		assert.NotEqual(t, first.ID, r.ID)
	}
	assert.Equal(t, 2, view.Detail.Availability.EffectiveCount)

	err = requester.Delete(ctx, first.ID, "secret-ana")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestRoleAllCountsInEveryRoleView(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	client := syncer.NewClient(server.URL, 5*time.Second)

	submit(t, client, "dee", "2025-04-02", model.RoleAll)
	submit(t, client, "eli", "2025-04-02", model.RoleOffice)

	for role, want := range map[model.Role]int{
		model.RoleCaregiver: 1,
		model.RoleOffice:    2,
		model.RoleAll:       2,
	} {
		detail, err := client.FetchDate(ctx, "2025-04-02", role)
		require.NoError(t, err)
		assert.Equal(t, want, detail.Availability.EffectiveCount, role)
		assert.Equal(t, 3, detail.Availability.EffectiveLimit, role)
	}
}

func TestUnlimitedMonthStaysAvailable(t *testing.T) {
	server := startServer(t)
	ctx := context.Background()
	client := syncer.NewClient(server.URL, 5*time.Second, syncer.WithAdminToken(adminToken))

	r := submit(t, client, "fay", "2025-06-01", model.RoleOffice)
	_, err := client.Approve(ctx, r.ID)
	require.NoError(t, err)

	month, err := client.FetchMonth(ctx, 2025, time.June, model.RoleOffice)
	require.NoError(t, err)
	require.Len(t, month.Days, 30)
	day := month.Days[0]
	assert.Equal(t, "2025-06-01", day.Date)
	assert.Equal(t, 1, day.EffectiveCount)
	assert.Equal(t, 3, day.EffectiveLimit)
	assert.Equal(t, capacity.StatusAvailable, day.Status)

	require.NoError(t, client.Delete(ctx, r.ID, "secret-fay"))
	month, err = client.FetchMonth(ctx, 2025, time.June, model.RoleOffice)
	require.NoError(t, err)
	assert.Zero(t, month.Days[0].EffectiveCount)
}
