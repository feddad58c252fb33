package sshx

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fleetops/internal/core/domain"
	"fleetops/internal/platform/errors"
	"fleetops/internal/testutil"
)

func TestNew(t *testing.T) {
	t.Run("needs at least one auth method", func(t *testing.T) {
		_, err := New(Config{User: "pi"}, testutil.NewTestLogger())
		testutil.AssertError(t, err, "build")
		testutil.AssertTrue(t, errors.IsInvalidInput(err), "config error")
	})

	t.Run("password auth is enough", func(t *testing.T) {
		r, err := New(Config{User: "pi", Password: "raspberry"}, testutil.NewTestLogger())
		testutil.AssertNoError(t, err, "build")
		testutil.AssertEqual(t, r.config.Port, "22", "default port")
		testutil.AssertEqual(t, r.config.ConnectTimeout, 10*time.Second, "default connect timeout")
	})

	t.Run("unreadable key file is a config error", func(t *testing.T) {
		_, err := New(Config{User: "pi", PrivateKeyPath: "/does/not/exist.pem"}, testutil.NewTestLogger())
		testutil.AssertError(t, err, "build")
		testutil.AssertTrue(t, errors.IsInvalidInput(err), "config error")
	})

	t.Run("garbage key file is a config error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.pem")
		if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		_, err := New(Config{User: "pi", PrivateKeyPath: path}, testutil.NewTestLogger())
		testutil.AssertError(t, err, "build")
	})
}

func TestRunValidation(t *testing.T) {
	r, err := New(Config{User: "pi", Password: "raspberry"}, testutil.NewTestLogger())
	testutil.AssertNoError(t, err, "build")

	t.Run("invalid target is rejected before dialing", func(t *testing.T) {
		_, err := r.Run(context.Background(), domain.Target{}, "uptime")
		testutil.AssertError(t, err, "run")
		testutil.AssertTrue(t, domain.IsBatchFatal(err), "config error")
	})

	t.Run("unreachable target is a transport failure", func(t *testing.T) {
		r, err := New(Config{
			User:           "pi",
			Password:       "raspberry",
			Port:           "1",
			ConnectTimeout: 200 * time.Millisecond,
		}, testutil.NewTestLogger())
		testutil.AssertNoError(t, err, "build")

		_, err = r.Run(context.Background(), domain.NewTarget("127.0.0.1", "", ""), "uptime")
		testutil.AssertError(t, err, "run")
		testutil.AssertEqual(t, string(domain.KindOf(err)), string(domain.KindTransport), "transport kind")
	})
}
