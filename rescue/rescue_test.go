package rescue

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/mistnet/httpx/metrics"
)

func TestHandleCrashRunsHandlersAndIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(metrics.PanicTotal)

	var captured any
	originalHandlers := PanicHandlers
	PanicHandlers = append(originalHandlers, func(r any) { captured = r })
	defer func() { PanicHandlers = originalHandlers }()

	func() {
		defer HandleCrash()
		panic("boom")
	}()

	require.Equal(t, "boom", captured)
	require.Equal(t, before+1, testutil.ToFloat64(metrics.PanicTotal))
}

func TestHandleCrashNoPanicIsNoop(t *testing.T) {
	before := testutil.ToFloat64(metrics.PanicTotal)
	func() {
		defer HandleCrash()
	}()
	require.Equal(t, before, testutil.ToFloat64(metrics.PanicTotal))
}
