package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFinished[T, R any](t *testing.T, h *Handle[T, R]) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = h.Wait(ctx)
	require.True(t, h.Finished(), "task did not finish")
}

func TestSpawn_DeliversItems(t *testing.T) {
	h := Spawn(context.Background(), Options{Name: "test", Log: zerolog.Nop()},
		func(ctx context.Context, out *Sender[int], _ <-chan struct{}) error {
			for i := 0; i < 3; i++ {
				out.TrySend(i)
			}
			return nil
		})
	waitFinished(t, h)
	assert.NoError(t, h.Err())

	var got []int
	for {
		v, ok := h.TryRecv()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestSender_FullChannelDropsNewest(t *testing.T) {
	h := Spawn(context.Background(), Options{Name: "test", OutBuffer: 2, Log: zerolog.Nop()},
		func(ctx context.Context, out *Sender[int], _ <-chan struct{}) error {
			for i := 0; i < 5; i++ {
				if !out.TrySend(i) {
					return errors.New("unexpected stop")
				}
			}
			return nil
		})
	waitFinished(t, h)
	require.NoError(t, h.Err())

	v, ok := h.TryRecv()
	require.True(t, ok)
	assert.Equal(t, 0, v)
	v, ok = h.TryRecv()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = h.TryRecv()
	assert.False(t, ok)
}

func TestHandle_CloseStopsTask(t *testing.T) {
	h := Spawn(context.Background(), Options{Name: "test", Log: zerolog.Nop()},
		func(ctx context.Context, out *Sender[int], _ <-chan struct{}) error {
			<-ctx.Done()
			if out.TrySend(1) {
				return errors.New("send after cancel succeeded")
			}
			return ctx.Err()
		})
	assert.False(t, h.Finished())

	h.Close()
	waitFinished(t, h)
	assert.ErrorIs(t, h.Err(), context.Canceled)
}

func TestHandle_FatalErrorSurfaces(t *testing.T) {
	errBind := errors.New("bind failed")
	h := Spawn(context.Background(), Options{Name: "test", Log: zerolog.Nop()},
		func(ctx context.Context, out *Sender[int], _ <-chan struct{}) error {
			return errBind
		})
	waitFinished(t, h)
	assert.ErrorIs(t, h.Err(), errBind)
	assert.False(t, h.Request(struct{}{}))
}

func TestHandle_RequestsReachTask(t *testing.T) {
	h := Spawn(context.Background(), Options{Name: "test", Log: zerolog.Nop()},
		func(ctx context.Context, out *Sender[string], requests <-chan string) error {
			select {
			case r := <-requests:
				out.TrySend("echo " + r)
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	require.True(t, h.Request("ping"))
	waitFinished(t, h)

	v, ok := h.TryRecv()
	require.True(t, ok)
	assert.Equal(t, "echo ping", v)
}

func TestWarnLimiter(t *testing.T) {
	l := NewWarnLimiter(8, time.Hour)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"))
}
