package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/projectpulse/internal/adapter/metrics"
	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{insertMessageSQL, "insert messages"},
		{markConversationReadSQL, "update messages"},
		{unreadCountsSQL, "select messages"},
		{listConversationSQL, "select messages"},
		{participantsSQL, "select projects"},
		{"SELECT 1", "select"},
		{"SELECT pg_advisory_lock($1)", "select"},
		{"   ", "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), tt.sql)
	}
}

func TestMetricsTracer_RecordsDurationAndErrors(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	tracer := NewMetricsTracer(m)

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: countUnreadSQL})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: countUnreadSQL})
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{Err: errors.New("timeout")})

	assert.Equal(t, 1, testutil.CollectAndCount(m.QueryDuration))
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("select messages")), 0.001)
}

func TestMetricsTracer_IgnoresUntracedContext(t *testing.T) {
	m := metrics.NewDBMetrics(prometheus.NewRegistry())
	NewMetricsTracer(m).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{Err: errors.New("x")})

	assert.Equal(t, 0, testutil.CollectAndCount(m.Errors))
}
