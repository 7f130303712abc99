package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/citycom/internal/cache"
)

type fakePublisher struct {
	published []EmailMessage
	err       error
}

func (f *fakePublisher) Publish(routingKey string, message any) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, message.(EmailMessage))
	return nil
}

func newTestService(t *testing.T, publisher Publisher, ttl time.Duration) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := &cache.Cache{Db: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(c, publisher, log, ttl), mr
}

func TestPushAndList(t *testing.T) {
	publisher := &fakePublisher{}
	svc, _ := newTestService(t, publisher, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Push(ctx, "user-1", "success", "¡Tu suscripción fue activada con éxito!"))
	require.NoError(t, svc.Push(ctx, "user-2", "error", "El pago fue rechazado o cancelado. Podés intentarlo nuevamente."))

	notices, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, notices, 1)
	assert.Equal(t, "success", notices[0].Kind)
	assert.Equal(t, "user-1", notices[0].UserID)
	assert.NotEmpty(t, notices[0].ID)

	require.Len(t, publisher.published, 2)
	assert.Equal(t, "user-1", publisher.published[0].UserID)
}

func TestListOrderedNewestFirst(t *testing.T) {
	svc, _ := newTestService(t, nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Push(ctx, "user-1", "info", "first"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, svc.Push(ctx, "user-1", "info", "second"))

	notices, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, notices, 2)
	assert.Equal(t, "second", notices[0].Message)
}

func TestNoticesExpire(t *testing.T) {
	svc, mr := newTestService(t, nil, 30*time.Second)
	ctx := context.Background()

	require.NoError(t, svc.Push(ctx, "user-1", "info", "Tu pago está en proceso."))

	mr.FastForward(31 * time.Second)

	notices, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestDismissRemovesNotice(t *testing.T) {
	svc, _ := newTestService(t, nil, time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.Push(ctx, "user-1", "info", "hola"))
	notices, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, notices, 1)

	require.NoError(t, svc.Dismiss(ctx, "user-1", notices[0].ID))

	notices, err = svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, notices)
}

func TestPublisherFailureIsNotFatal(t *testing.T) {
	publisher := &fakePublisher{err: errors.New("broker down")}
	svc, _ := newTestService(t, publisher, time.Minute)
	ctx := context.Background()

	// Очередь недоступна, но само уведомление сохраняется.
	require.NoError(t, svc.Push(ctx, "user-1", "success", "activada"))

	notices, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, notices, 1)
}
