package httpxd

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommandRunsWithoutError(t *testing.T) {
	require.NotPanics(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
}

func TestVersionDefaults(t *testing.T) {
	require.NotEmpty(t, version)
	require.NotEmpty(t, gitHash)
}
