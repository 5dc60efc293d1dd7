package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestIncAcknowledgement(t *testing.T) {
	ok := testutil.ToFloat64(Acknowledgements.WithLabelValues(AckResultOk))
	failed := testutil.ToFloat64(Acknowledgements.WithLabelValues(AckResultError))

	IncAcknowledgement(true)
	IncAcknowledgement(true)
	IncAcknowledgement(false)

	require.Equal(t, ok+2, testutil.ToFloat64(Acknowledgements.WithLabelValues(AckResultOk)))
	require.Equal(t, failed+1, testutil.ToFloat64(Acknowledgements.WithLabelValues(AckResultError)))
}

func TestSetQueues(t *testing.T) {
	SetQueues(3, 42)
	require.Equal(t, 3.0, testutil.ToFloat64(OutboundQueueLength))
	require.Equal(t, 42.0, testutil.ToFloat64(InFlightBytes))
}
