package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Rogue-Bear-Innovations/linkshelf/internal/config"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/db"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/hub"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/metrics"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/models"
	"github.com/Rogue-Bear-Innovations/linkshelf/internal/notify"
)

type testEnv struct {
	db         *gorm.DB
	hub        *hub.Hub
	resources  *Resources
	onboarding *Onboarding
	auth       *Auth
	transfer   *Transfer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := db.Open(sqlite.Open("file:"+uuid.New().String()+"?mode=memory&cache=shared"), logger.Discard)
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	l := zap.NewNop().Sugar()
	snapshots := NewSnapshots(gdb)
	h := hub.New(snapshots, l, metrics.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = sqlDB.Close()
	})

	cfg := &config.Config{BcryptCost: bcrypt.MinCost}
	resources := NewResources(gdb, snapshots, h, notify.NewLocal(h), metrics.Nop{}, l)

	return &testEnv{
		db:         gdb,
		hub:        h,
		resources:  resources,
		onboarding: NewOnboarding(gdb, resources, l),
		auth:       NewAuth(gdb, cfg, l),
		transfer:   NewTransfer(resources, metrics.Nop{}, l),
	}
}

func validFields(name string) models.ResourceFields {
	return models.ResourceFields{
		Name:        name,
		URL:         "https://example.com/" + name,
		Description: name + " description",
		Category:    models.CategoryTools,
		Tags:        models.Tags{"a", "b"},
	}
}

// nextSnapshot waits for the next emission on sub.
func nextSnapshot(t *testing.T, sub *hub.Subscription) models.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return models.Snapshot{}
}

// waitForSnapshot reads emissions until one satisfies ok.
func waitForSnapshot(t *testing.T, sub *hub.Subscription, ok func(models.Snapshot) bool) models.Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap, open := <-sub.C:
			require.True(t, open, "subscription closed")
			if ok(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("timed out waiting for snapshot")
			return models.Snapshot{}
		}
	}
}
