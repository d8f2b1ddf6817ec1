package main

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rpattn/tripsync/internal/config"
	"github.com/rpattn/tripsync/internal/domain"
	"github.com/rpattn/tripsync/internal/notify"
	"github.com/rpattn/tripsync/internal/repository"
	tripsync "github.com/rpattn/tripsync/internal/sync"
)

type countingRemote struct {
	calls  int
	cancel context.CancelFunc
}

func (r *countingRemote) FetchUpdatedSince(context.Context, *time.Time) ([]domain.TripRecord, error) {
	r.calls++
	r.cancel()
	return nil, nil
}

func TestPollLoopRunsImmediatelyAndStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	remote := &countingRemote{cancel: cancel}
	adapter := tripsync.NewAdapter(repository.NewMemoryMirrorRepository(), remote, nil)

	require.NoError(t, pollLoop(ctx, adapter, time.Hour, zap.NewNop()))
	assert.Equal(t, 1, remote.calls)
	require.NotNil(t, adapter.Last())
}

func TestBuildNotifierWithRedis(t *testing.T) {
	srv := miniredis.RunT(t)
	notifier, closeAll, err := buildNotifier(config.NotificationConfig{}, zap.NewNop())
	require.NoError(t, err)
	closeAll()
	assert.IsType(t, &notify.Multi{}, notifier)

	cfg := config.NotificationConfig{}
	cfg.Redis.Addr = srv.Addr()
	cfg.Redis.Channel = "alerts"
	notifier, closeAll, err = buildNotifier(cfg, zap.NewNop())
	require.NoError(t, err)
	defer closeAll()

	msg := notify.NewMessage("run", "syncing with the Ride Clearinghouse", nil, time.Now())
	assert.NoError(t, notifier.Notify(context.Background(), msg))
}
