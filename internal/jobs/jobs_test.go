package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Keoroanthony/go-storefront/internal/jobs"
	"github.com/Keoroanthony/go-storefront/internal/models"
	"github.com/Keoroanthony/go-storefront/internal/testutil"
)

func TestSchedulerRunsJobs(t *testing.T) {
	s := jobs.NewScheduler(zap.NewNop())
	var runs int32
	require.NoError(t, s.Add("tick", "@every 1s", func(context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}))
	require.NoError(t, s.Add("boom", "@every 1s", func(context.Context) error {
		panic("boom")
	}))
	require.NoError(t, s.Add("fails", "@every 1s", func(context.Context) error {
		return errors.New("nope")
	}))
	assert.Error(t, s.Add("bad", "every now and then", func(context.Context) error { return nil }))
	assert.Equal(t, 3, s.Len())

	s.Start()
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestPruneJobs(t *testing.T) {
	testDB := testutil.OpenDB(t)
	old := time.Now().Add(-100 * 24 * time.Hour)

	admin := uint(1)
	rows := []models.Notification{
		{UserID: &admin, Type: models.NotificationSystem, Title: "old read", Message: "x", IsRead: true, CreatedAt: old},
		{UserID: &admin, Type: models.NotificationSystem, Title: "old unread", Message: "x", CreatedAt: old},
		{UserID: &admin, Type: models.NotificationSystem, Title: "new read", Message: "x", IsRead: true},
	}
	require.NoError(t, testDB.Create(&rows).Error)

	require.NoError(t, jobs.PruneReadNotifications(testDB, 90*24*time.Hour)(context.Background()))
	var titles []string
	require.NoError(t, testDB.Model(&models.Notification{}).Order("id").Pluck("title", &titles).Error)
	assert.Equal(t, []string{"old unread", "new read"}, titles)

	carts := []models.CartItem{
		{Owner: "guest:stale", ProductID: 1, Quantity: 1},
		{Owner: "guest:fresh", ProductID: 1, Quantity: 1},
		{Owner: "user:1", ProductID: 1, Quantity: 1},
	}
	require.NoError(t, testDB.Create(&carts).Error)
	require.NoError(t, testDB.Model(&models.CartItem{}).Where("owner IN ?", []string{"guest:stale", "user:1"}).
		UpdateColumn("updated_at", old).Error)

	require.NoError(t, jobs.PruneGuestCarts(testDB, 30*24*time.Hour)(context.Background()))
	var owners []string
	require.NoError(t, testDB.Model(&models.CartItem{}).Order("id").Pluck("owner", &owners).Error)
	assert.Equal(t, []string{"guest:fresh", "user:1"}, owners)
}
