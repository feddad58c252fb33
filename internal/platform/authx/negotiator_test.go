// internal/platform/authx/negotiator_test.go
package authx

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"fleetops/internal/core/domain"
	"fleetops/internal/core/ports"
	"fleetops/internal/platform/errors"
	"fleetops/internal/testutil"
)

func req() ports.Request {
	return ports.Request{Method: "GET", URL: "http://10.0.0.1/status"}
}

func TestNegotiatorSchemes(t *testing.T) {
	t.Run("none scheme passes request through", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200, Body: []byte("ok")}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), []domain.AuthScheme{domain.NoneScheme()})
		testutil.AssertNoError(t, err, "negotiate")
		testutil.AssertEqual(t, resp.StatusCode, 200, "status")
		testutil.AssertEqual(t, doer.CallCount(), 1, "one request")
		testutil.AssertEqual(t, doer.Calls[0].Header["Authorization"], "", "no auth header")
	})

	t.Run("basic scheme sends encoded credentials", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		_, err := n.Do(context.Background(), req(), []domain.AuthScheme{domain.BasicScheme("admin", "s3cret")})
		testutil.AssertNoError(t, err, "negotiate")

		want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:s3cret"))
		testutil.AssertEqual(t, doer.Calls[0].Header["Authorization"], want, "basic header")
	})

	t.Run("digest performs the two-step round trip", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{
				StatusCode: 401,
				Header:     map[string]string{"Www-Authenticate": `Digest realm="devices", nonce="n1", qop="auth"`},
			}},
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), []domain.AuthScheme{domain.DigestScheme("u", "p")})
		testutil.AssertNoError(t, err, "negotiate")
		testutil.AssertEqual(t, resp.StatusCode, 200, "status")
		testutil.AssertEqual(t, doer.CallCount(), 2, "two requests")

		auth := doer.Calls[1].Header["Authorization"]
		testutil.AssertTrue(t, strings.HasPrefix(auth, "Digest "), "digest header on second request")
		testutil.AssertContains(t, auth, `uri="/status"`, "uri covers the request path")
	})

	t.Run("digest second rejection is final, no retry", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{
				StatusCode: 401,
				Header:     map[string]string{"Www-Authenticate": `Digest realm="r", nonce="n"`},
			}},
			{Resp: &ports.Response{StatusCode: 401}},
		}}
		n := New(doer, testutil.NewTestLogger())

		_, err := n.Do(context.Background(), req(), []domain.AuthScheme{domain.DigestScheme("u", "bad")})
		testutil.AssertError(t, err, "negotiate")
		testutil.AssertEqual(t, doer.CallCount(), 2, "exactly two requests for the scheme")
	})

	t.Run("schemes are tried strictly in order", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 401}}, // basic rejected
			{Resp: &ports.Response{ // digest challenge
				StatusCode: 401,
				Header:     map[string]string{"Www-Authenticate": `Digest realm="r", nonce="n"`},
			}},
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), []domain.AuthScheme{
			domain.BasicScheme("u", "p"),
			domain.DigestScheme("u", "p"),
		})
		testutil.AssertNoError(t, err, "negotiate")
		testutil.AssertEqual(t, resp.StatusCode, 200, "digest succeeded after basic")
		testutil.AssertTrue(t, strings.HasPrefix(doer.Calls[0].Header["Authorization"], "Basic "), "basic tried first")
	})
}

func TestNegotiatorFailures(t *testing.T) {
	t.Run("all schemes rejected is an auth failure", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 403}},
			{Resp: &ports.Response{StatusCode: 403}},
		}}
		n := New(doer, testutil.NewTestLogger())

		_, err := n.Do(context.Background(), req(), []domain.AuthScheme{
			domain.NoneScheme(),
			domain.BasicScheme("u", "p"),
		})
		testutil.AssertError(t, err, "negotiate")
		testutil.AssertTrue(t, errors.IsUnauthorized(err), "unwraps to unauthorized")
		testutil.AssertEqual(t, domain.KindOf(err), domain.KindAuth, "classified as auth error")

		var negErr *NegotiationError
		testutil.AssertTrue(t, errors.As(err, &negErr), "negotiation error type")
		testutil.AssertEqual(t, len(negErr.Failures), 2, "one failure per scheme")
	})

	t.Run("pure transport failure stays a transport error", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Err: errors.Wrap(errors.ErrTimeout, "dial 10.0.0.1: i/o timeout")},
			{Err: errors.Wrap(errors.ErrTimeout, "dial 10.0.0.1: i/o timeout")},
		}}
		n := New(doer, testutil.NewTestLogger())

		_, err := n.Do(context.Background(), req(), []domain.AuthScheme{
			domain.NoneScheme(),
			domain.BasicScheme("u", "p"),
		})
		testutil.AssertError(t, err, "negotiate")
		testutil.AssertEqual(t, domain.KindOf(err), domain.KindTransport, "classified as transport error")
	})

	t.Run("malformed challenge skips the scheme", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{
				StatusCode: 401,
				Header:     map[string]string{"Www-Authenticate": `Digest nonce="only"`},
			}},
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), []domain.AuthScheme{
			domain.DigestScheme("u", "p"),
			domain.BasicScheme("u", "p"),
		})
		testutil.AssertNoError(t, err, "negotiate falls through to basic")
		testutil.AssertEqual(t, resp.StatusCode, 200, "basic succeeded")
	})

	t.Run("scheme without credentials is skipped", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), []domain.AuthScheme{
			{Kind: domain.SchemeDigest}, // missing user and secret
			domain.NoneScheme(),
		})
		testutil.AssertNoError(t, err, "negotiate")
		testutil.AssertEqual(t, resp.StatusCode, 200, "none scheme reached")
		testutil.AssertEqual(t, doer.CallCount(), 1, "invalid scheme never hit the wire")
	})

	t.Run("empty scheme list defaults to none", func(t *testing.T) {
		doer := &testutil.MockDoer{Script: []testutil.MockExchange{
			{Resp: &ports.Response{StatusCode: 200}},
		}}
		n := New(doer, testutil.NewTestLogger())

		resp, err := n.Do(context.Background(), req(), nil)
		testutil.AssertNoError(t, err, "negotiate")
		testutil.AssertEqual(t, resp.StatusCode, 200, "status")
	})
}
