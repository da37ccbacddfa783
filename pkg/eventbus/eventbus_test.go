package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type created struct {
	id string
}

type deleted struct{}

func bufferedLogger(buf *bytes.Buffer) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(log)
}

func TestPublish_DeliversToMatchingHandlers(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	var got []string
	bus.Subscribe(func(_ context.Context, e *created) error {
		got = append(got, e.id)
		return nil
	})
	bus.Subscribe(func(_ context.Context, _ *deleted) error {
		t.Error("should not be called")
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), &created{id: "a"}))
	require.Equal(t, []string{"a"}, got)
}

func TestPublish_NoSubscribersIsReportedAndLogged(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bus := NewEventPublisher(bufferedLogger(&buf))
	bus.Subscribe(func(_ context.Context, _ *deleted) error { return nil })

	err := bus.Publish(context.Background(), &created{})
	require.ErrorIs(t, err, ErrNoSubscribers)
	require.True(t, strings.Contains(buf.String(), "no matching subscribers"), buf.String())
}

func TestPublish_JoinsHandlerErrors(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	err1 := errors.New("err1")
	err2 := errors.New("err2")
	bus.Subscribe(func(context.Context, *created) error { return err1 })
	bus.Subscribe(func(context.Context, *created) error { return err2 })

	err := bus.Publish(context.Background(), &created{})
	require.ErrorIs(t, err, err1)
	require.ErrorIs(t, err, err2)
}

func TestPublish_PanicIsRecoveredAndOthersRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	bus := NewEventPublisher(bufferedLogger(&buf))
	called := false
	bus.Subscribe(func(context.Context, *created) error { panic("boom") })
	bus.Subscribe(func(context.Context, *created) error {
		called = true
		return nil
	})

	err := bus.Publish(context.Background(), &created{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")
	require.True(t, called)
	require.Contains(t, buf.String(), "boom")
}

func TestPublish_InterfaceHandlerReceivesImplementations(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	var seen error
	bus.Subscribe(func(_ context.Context, e error) error {
		seen = e
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), errors.New("as event")))
	require.EqualError(t, seen, "as event")
}

func TestSubscribe_RejectsMalformedHandler(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	require.Panics(t, func() { bus.Subscribe(func(*created) {}) })
	require.Panics(t, func() { bus.Subscribe("not a func") })
	require.Zero(t, bus.SubscribersCount())
}

func TestMatches(t *testing.T) {
	t.Parallel()

	h := func(context.Context, *created) error { return nil }
	require.True(t, Matches(h, &created{}))
	require.False(t, Matches(h, &deleted{}))
	require.False(t, Matches(func(*created) {}, &created{}))
}

func TestClearAndCount(t *testing.T) {
	t.Parallel()

	bus := NewEventPublisher(nil)
	bus.Subscribe(func(context.Context, *created) error { return nil })
	bus.Subscribe(func(context.Context, *deleted) error { return nil })
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Clear()
	require.Zero(t, bus.SubscribersCount())
}
