// Package testutil holds helpers shared by integration tests.
package testutil

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

// RunServer creates a NATS server listening on a random local port. A
// non-empty storeDir turns JetStream on.
func RunServer(storeDir string) (*server.Server, error) {
	opts := &server.Options{
		Host:           "127.0.0.1",
		Port:           -1,
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 256,
		JetStream:      storeDir != "",
		StoreDir:       storeDir,
	}

	return server.NewServer(opts)
}

// StartJetStream starts an embedded JetStream server for the duration of
// the test and returns a context that has already answered an account info
// request.
func StartJetStream(t *testing.T) nats.JetStreamContext {
	t.Helper()

	s, err := RunServer(t.TempDir())
	require.NoError(t, err)

	go s.Start()
	t.Cleanup(s.Shutdown)
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}

	nc, err := nats.Connect(s.ClientURL(), nats.Timeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := nc.JetStream(nats.MaxWait(5 * time.Second))
	require.NoError(t, err)
	require.NoError(t, WaitForJetStream(js, 10*time.Second))
	return js
}

// WaitForJetStream polls until the JetStream API answers.
func WaitForJetStream(js nats.JetStreamContext, timeout time.Duration) error {
	start := time.Now()
	for {
		_, err := js.AccountInfo(nats.MaxWait(time.Second))
		if err == nil {
			return nil
		}
		if time.Since(start) >= timeout {
			return fmt.Errorf("timeout waiting for JetStream: %w", err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// WaitForStream waits for a stream to be created.
func WaitForStream(js nats.JetStreamContext, name string, timeout time.Duration) error {
	start := time.Now()
	for time.Since(start) < timeout {
		_, err := js.StreamInfo(name)
		if err == nil {
			return nil
		}
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for stream %s", name)
}
