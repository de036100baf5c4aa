package sigs

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTerminateFiresOnSIGTERM(t *testing.T) {
	ch := Terminate()
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case sig := <-ch:
		require.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGTERM")
	}
}

func TestReloadFiresOnSIGHUP(t *testing.T) {
	ch := Reload()
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))

	select {
	case sig := <-ch:
		require.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for SIGHUP")
	}
}
