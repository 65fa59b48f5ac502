package core

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/jdelaire/turnbot/core/policy"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.observeUpdate(KindNewMessage)
	m.observeRoute(routeQueued)
	m.setSessions(3)
	m.invocationStarted()
	m.invocationDone("private", "ok", time.Second)
	m.sessionEvicted()
	m.updateRejected("stale")
	m.FetchError()
}

func TestMetrics_DispatchCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := MustNewMetrics(reg)

	gate := make(chan struct{})
	done := make(chan struct{}, 3)
	d := newTestDispatcher(t,
		WithMetrics(m),
		WithPolicy(policy.New()),
		WithHandler(ChatPrivate, func(ctx context.Context, conv *Conversation) error {
			<-gate
			done <- struct{}{}
			return nil
		}),
	)

	chat := privateChat(1)
	d.HandleUpdate(textUpdate(1, chat, "a"))
	d.HandleUpdate(textUpdate(2, chat, "b"))
	d.HandleUpdate(textUpdate(2, chat, "b again"))
	d.HandleUpdate(editedUpdate(3, chat, "b!"))

	require.Equal(t, 3.0, testutil.ToFloat64(m.updates.WithLabelValues("new_message")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.updates.WithLabelValues("edited_message")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("duplicate")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.routes.WithLabelValues(routeQueued)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sessions))

	close(gate)
	for range 3 {
		recv(t, done)
	}
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.activeInvocations) == 0
	}, waitTimeout, time.Millisecond)
	require.Equal(t, 3.0, testutil.ToFloat64(m.routes.WithLabelValues("private")))
	require.Equal(t, 1, testutil.CollectAndCount(m.invocationDuration))
}

func TestMetrics_FetchErrors(t *testing.T) {
	t.Parallel()

	m := MustNewMetrics(prometheus.NewRegistry())
	m.FetchError()
	m.FetchError()
	require.Equal(t, 2.0, testutil.ToFloat64(m.fetchErrors))
}
