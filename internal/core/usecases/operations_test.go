// internal/core/usecases/operations_test.go
package usecases

import (
	"context"
	"strings"
	"testing"
	"time"

	"fleetops/internal/classify"
	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/authx"
	"fleetops/internal/platform/cache"
	"fleetops/internal/platform/errors"
	"fleetops/internal/testutil"
)

func init() {
	// The settle pause before verifying a restarted unit only matters against
	// real systemd.
	restartSettleDelay = 0
}

func testDeps(runner ports.CommandRunner, doer AuthedDoer) Deps {
	return Deps{
		Runner:     runner,
		Doer:       doer,
		Classifier: classify.New(nil, nil),
		Cache:      cache.NewMemoryCache(),
		Logger:     testutil.NewTestLogger(),
	}
}

func opTarget(addr string) domain.Target {
	return domain.NewTarget(addr, "host-"+addr, "OSM_CP")
}

func TestStatusCheck(t *testing.T) {
	t.Run("online service with version", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "osm version 7.1.12-4 started\nlistening"}, nil
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, res.Status.State, domain.StateOnline, "state")
		testutil.AssertEqual(t, res.ExtractedFields["version"], "7.1.12-4", "version extracted")
	})

	t.Run("stopped service is offline", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "Stopped OSM Service.\nsegmentation fault"}, nil
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "check itself succeeds")
		testutil.AssertEqual(t, res.Status.State, domain.StateOffline, "offline wins over error")
	})

	t.Run("error phrase is surfaced as reason", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "running\nexception caught: stoi"}, nil
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertEqual(t, res.Status.State, domain.StateError, "state")
		testutil.AssertEqual(t, res.Status.Reason, "exception caught: stoi", "reason")
	})

	t.Run("unreachable target fails as transport and reads offline", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{}, errors.Wrap(errors.ErrTimeout, "dial: i/o timeout")
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertFalse(t, res.Success, "failed")
		testutil.AssertEqual(t, string(res.ErrorKind), string(domain.KindTransport), "kind")
		testutil.AssertEqual(t, res.Status.State, domain.StateOffline, "unreachable reads offline")
	})

	t.Run("version is served from cache within the ttl", func(t *testing.T) {
		calls := 0
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				calls++
				if calls == 1 {
					return ports.CommandOutput{Stdout: "osm 7.1.12-4 up"}, nil
				}
				// Later fetches have no version line; the cache must cover it.
				return ports.CommandOutput{Stdout: "osm up"}, nil
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))
		target := opTarget("10.0.0.1")

		first := op.Execute(context.Background(), target)
		second := op.Execute(context.Background(), target)
		testutil.AssertEqual(t, first.ExtractedFields["version"], "7.1.12-4", "first version")
		testutil.AssertEqual(t, second.ExtractedFields["version"], "7.1.12-4", "cached version")
	})

	t.Run("missing version is best-effort, check still succeeds", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "osm running fine"}, nil
			},
		}
		op := NewStatusCheck(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, res.ExtractedFields["version"], "", "no version field")
	})
}

func TestServiceRestart(t *testing.T) {
	t.Run("restart then verify, unit state recorded", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				if strings.HasPrefix(command, "systemctl is-active") {
					return ports.CommandOutput{Stdout: "active\n"}, nil
				}
				return ports.CommandOutput{}, nil
			},
		}
		op := NewServiceRestart(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, runner.Commands[0], "sudo systemctl restart osm", "restart command")
		testutil.AssertEqual(t, runner.Commands[1], "systemctl is-active osm", "verify command")
		testutil.AssertEqual(t, res.ExtractedFields["service_state"], "active", "unit state recorded")
	})

	t.Run("failed verify does not fail the restart", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				if strings.HasPrefix(command, "systemctl is-active") {
					return ports.CommandOutput{}, errors.Wrap(errors.ErrConnectionFailed, "connection reset")
				}
				return ports.CommandOutput{}, nil
			},
		}
		op := NewServiceRestart(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "restart itself succeeded")
		testutil.AssertContains(t, res.Message, "verify skipped", "skip noted")
		testutil.AssertEqual(t, res.ExtractedFields["service_state"], "", "no state field")
	})

	t.Run("inactive unit state is still recorded", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				if strings.HasPrefix(command, "systemctl is-active") {
					return ports.CommandOutput{Stdout: "inactive\n", ExitCode: 3}, nil
				}
				return ports.CommandOutput{}, nil
			},
		}
		op := NewServiceRestart(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "restart succeeded")
		testutil.AssertEqual(t, res.ExtractedFields["service_state"], "inactive", "state from is-active exit != 0")
	})

	t.Run("non-zero restart exit is an application error", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{ExitCode: 5, Stderr: "unit not found"}, nil
			},
		}
		op := NewServiceRestart(testDeps(runner, nil))

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertFalse(t, res.Success, "failed")
		testutil.AssertEqual(t, string(res.ErrorKind), string(domain.KindApplication), "kind")
		testutil.AssertContains(t, res.Message, "unit not found", "stderr surfaced")
		testutil.AssertEqual(t, runner.CallCount(), 1, "no verify after failed restart")
	})
}

func TestMachineRestart(t *testing.T) {
	t.Run("unknown mode is rejected at build time", func(t *testing.T) {
		_, err := NewMachineRestart(testDeps(&testutil.MockRunner{}, nil), "warm_restart")
		testutil.AssertError(t, err, "build")
		testutil.AssertTrue(t, domain.IsBatchFatal(err), "config error")
	})

	t.Run("soft restart runs the runbook command", func(t *testing.T) {
		runner := &testutil.MockRunner{}
		op, err := NewMachineRestart(testDeps(runner, nil), domain.RestartSoft)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertContains(t, runner.Commands[0], "stopallserver.sh", "runbook command")
	})

	t.Run("full reboot tolerates the dropped connection", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{}, errors.Wrap(errors.ErrConnectionFailed, "connection reset")
			},
		}
		op, err := NewMachineRestart(testDeps(runner, nil), domain.RestartFull)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "dropped connection counts as reboot in progress")
	})

	t.Run("soft restart does not tolerate transport failure", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{}, errors.Wrap(errors.ErrConnectionFailed, "connection reset")
			},
		}
		op, err := NewMachineRestart(testDeps(runner, nil), domain.RestartSoft)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertFalse(t, res.Success, "failed")
	})
}

func TestFirmwarePush(t *testing.T) {
	image := []byte{0xde, 0xad, 0xbe, 0xef}

	t.Run("empty image is rejected", func(t *testing.T) {
		_, err := NewFirmwarePush(testDeps(nil, authx.New(&testutil.MockDoer{}, testutil.NewTestLogger())), nil)
		testutil.AssertError(t, err, "build")
	})

	t.Run("disables capture before uploading", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"capture off"}`)}},
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"flashing"}`)}},
		}}
		op, err := NewFirmwarePush(testDeps(nil, authx.New(doer, testutil.NewTestLogger())), image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.NoneScheme()}
		res := op.Execute(context.Background(), target)

		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, doer.CallCount(), 2, "disable then upload")
		testutil.AssertContains(t, doer.Calls[0].URL, "/cgi-bin/capture_disable", "disable endpoint first")
		testutil.AssertContains(t, doer.Calls[1].URL, "/cgi-bin/firmware_upgrade", "upload endpoint second")
		testutil.AssertEqual(t, len(doer.Calls[1].Body), len(image), "image in the upload only")
		testutil.AssertEqual(t, res.ExtractedFields["capture_disabled"], "true", "disable recorded")
	})

	t.Run("failed disable is best-effort, upload still lands", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":7,"message":"busy"}`)}},
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"flashing"}`)}},
		}}
		op, err := NewFirmwarePush(testDeps(nil, authx.New(doer, testutil.NewTestLogger())), image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.NoneScheme()}
		res := op.Execute(context.Background(), target)

		testutil.AssertTrue(t, res.Success, "upload succeeded")
		testutil.AssertContains(t, res.Message, "disable-capture skipped", "skip noted")
		testutil.AssertEqual(t, res.ExtractedFields["capture_disabled"], "", "no disable field")
	})

	t.Run("accepted upload clears the cached version", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"flashing"}`)}},
		}}
		deps := testDeps(nil, authx.New(doer, testutil.NewTestLogger()))
		deps.Cache.Set("version:10.0.0.1", "7.1.12-4", time.Minute)

		op, err := NewFirmwarePush(deps, image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.NoneScheme()}
		res := op.Execute(context.Background(), target)

		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertContains(t, doer.Calls[0].URL, "10.0.0.1", "target address in url")
		_, cached := deps.Cache.Get("version:10.0.0.1")
		testutil.AssertFalse(t, cached, "stale version evicted")
	})

	t.Run("application code != 0 is an application error", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":13,"message":"bad checksum"}`)}},
		}}
		op, err := NewFirmwarePush(testDeps(nil, authx.New(doer, testutil.NewTestLogger())), image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.NoneScheme()}
		res := op.Execute(context.Background(), target)

		testutil.AssertFalse(t, res.Success, "failed")
		testutil.AssertEqual(t, string(res.ErrorKind), string(domain.KindApplication), "kind")
		testutil.AssertContains(t, res.Message, "bad checksum", "device message surfaced")
	})

	t.Run("malformed reply is a parse error", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte("<html>oops</html>")}},
		}}
		op, err := NewFirmwarePush(testDeps(nil, authx.New(doer, testutil.NewTestLogger())), image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.NoneScheme()}
		res := op.Execute(context.Background(), target)

		testutil.AssertFalse(t, res.Success, "failed")
		testutil.AssertEqual(t, string(res.ErrorKind), string(domain.KindParse), "kind")
	})

	t.Run("digest challenge round trip on upload", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{
				StatusCode: 401,
				Header:     map[string]string{"Www-Authenticate": `Digest realm="devices", nonce="n9", qop="auth"`},
			}},
			{Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"ok"}`)}},
		}}
		op, err := NewFirmwarePush(testDeps(nil, authx.New(doer, testutil.NewTestLogger())), image)
		testutil.AssertNoError(t, err, "build")

		target := opTarget("10.0.0.1")
		target.Schemes = []domain.AuthScheme{domain.DigestScheme("u", "p")}
		res := op.Execute(context.Background(), target)

		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertTrue(t,
			strings.HasPrefix(doer.Calls[1].Header["Authorization"], "Digest "),
			"authenticated re-issue")
	})
}

func TestLogFetch(t *testing.T) {
	t.Run("log tail lands in extracted fields", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "line1\nline2\n"}, nil
			},
		}
		op, err := NewLogFetch(testDeps(runner, nil), "", 0)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, res.ExtractedFields["log_tail"], "line1\nline2\n", "tail")
		testutil.AssertEqual(t, runner.Commands[0], "sudo journalctl -u osm -n 100", "journal variant with default lines")
	})

	t.Run("date variant reads the daily log file", func(t *testing.T) {
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: "old line\n"}, nil
			},
		}
		op, err := NewLogFetch(testDeps(runner, nil), "2026-08-27", 50)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		testutil.AssertTrue(t, res.Success, "success")
		testutil.AssertEqual(t, runner.Commands[0],
			"tail -n 50 /home/pi/osm/logs/logic/2026-08-27.log", "dated file command")
		testutil.AssertEqual(t, res.ExtractedFields["log_file"],
			"/home/pi/osm/logs/logic/2026-08-27.log", "file recorded")
	})

	t.Run("malformed date is rejected at build time", func(t *testing.T) {
		for _, date := range []string{"27-08-2026", "2026/08/27", "2026-13-01", "yesterday"} {
			_, err := NewLogFetch(testDeps(&testutil.MockRunner{}, nil), date, 0)
			testutil.AssertError(t, err, "build "+date)
			testutil.AssertTrue(t, domain.IsBatchFatal(err), "config error for "+date)
		}
	})

	t.Run("oversized tail is truncated from the front", func(t *testing.T) {
		big := strings.Repeat("x", logTailLimit+100) + "END"
		runner := &testutil.MockRunner{
			RunFunc: func(ctx context.Context, target domain.Target, command string) (ports.CommandOutput, error) {
				return ports.CommandOutput{Stdout: big}, nil
			},
		}
		op, err := NewLogFetch(testDeps(runner, nil), "", 0)
		testutil.AssertNoError(t, err, "build")

		res := op.Execute(context.Background(), opTarget("10.0.0.1"))
		tail := res.ExtractedFields["log_tail"]
		testutil.AssertEqual(t, len(tail), logTailLimit, "bounded size")
		testutil.AssertTrue(t, strings.HasSuffix(tail, "END"), "newest lines kept")
	})
}

// perTargetDoer routes responses by target address so concurrent batches can
// exercise mixed outcomes.
type perTargetDoer struct {
	byHost map[string]testutil.MockExchange
}

func (d *perTargetDoer) Do(ctx context.Context, req ports.Request) (*ports.Response, error) {
	for host, ex := range d.byHost {
		if strings.Contains(req.URL, host) {
			return ex.Resp, ex.Err
		}
	}
	return &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"ok"}`)}, nil
}

func TestBatchEndToEnd(t *testing.T) {
	// Three targets: A succeeds, B times out (transport), C is rejected by
	// every auth scheme (auth).
	doer := &perTargetDoer{byHost: map[string]testutil.MockExchange{
		"10.0.0.1": {Resp: &ports.Response{StatusCode: 200, Body: []byte(`{"code":0,"message":"ok"}`)}},
		"10.0.0.2": {Err: errors.Wrap(errors.ErrTimeout, "dial 10.0.0.2: i/o timeout")},
		"10.0.0.3": {Resp: &ports.Response{StatusCode: 403}},
	}}

	deps := testDeps(nil, authx.New(doer, testutil.NewTestLogger()))
	op, err := NewFirmwarePush(deps, []byte{0x01})
	testutil.AssertNoError(t, err, "build")

	targets := []domain.Target{opTarget("10.0.0.1"), opTarget("10.0.0.2"), opTarget("10.0.0.3")}
	for i := range targets {
		targets[i].Schemes = []domain.AuthScheme{domain.BasicScheme("u", "p")}
	}

	d := NewDispatcher(3, testutil.NewTestLogger())
	report, err := d.Run(context.Background(), op, targets)
	testutil.AssertNoError(t, err, "run")
	testutil.AssertNoError(t, report.Validate(), "invariants")

	testutil.AssertEqual(t, report.Total, 3, "total")
	testutil.AssertEqual(t, report.Succeeded, 1, "one success")
	testutil.AssertEqual(t, report.Failed, 2, "two failures")

	kinds := map[string]domain.ErrorKind{}
	for _, r := range report.Results {
		kinds[r.TargetID] = r.ErrorKind
	}
	testutil.AssertEqual(t, string(kinds["10.0.0.1"]), "", "A succeeded")
	testutil.AssertEqual(t, string(kinds["10.0.0.2"]), string(domain.KindTransport), "B is a transport failure")
	testutil.AssertEqual(t, string(kinds["10.0.0.3"]), string(domain.KindAuth), "C is an auth failure")
}
