package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamkey-relay/work/activity"
	"streamkey-relay/work/credentials"
	"streamkey-relay/work/errs"
	"streamkey-relay/work/metrics"
	"streamkey-relay/work/upstream"
)

type fakeCreds struct {
	file *credentials.File
	err  error
}

func (f *fakeCreds) ReadAll() (*credentials.File, error) {
	return f.file, f.err
}

type fakeLog struct {
	mu      sync.Mutex
	entries []activity.Entry
	err     error
}

func (f *fakeLog) Append(e activity.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

type fakeUpstream struct {
	resp  *upstream.Response
	err   error
	calls int
	token string
	title string
}

func (f *fakeUpstream) StartStream(_ context.Context, token, title string) (*upstream.Response, error) {
	f.calls++
	f.token = token
	f.title = title
	return f.resp, f.err
}

func testCredentials() *credentials.File {
	tokens := credentials.Defaults()
	tokens[0].Token = "  main-token  "
	tokens[1].Token = "backup-token"
	tokens[1].Enabled = false
	return &credentials.File{Tokens: tokens}
}

func jsonResponse(status int, body string) *upstream.Response {
	return &upstream.Response{StatusCode: status, Body: []byte(body), JSON: json.Valid([]byte(body))}
}

func newTestService(up *fakeUpstream) (*Service, *fakeLog) {
	attempts := &fakeLog{}
	return NewService(&fakeCreds{file: testCredentials()}, attempts, up, true), attempts
}

func TestStartExtracted(t *testing.T) {
	up := &fakeUpstream{resp: jsonResponse(http.StatusOK, `{"rtmp":"rtmp://push.example/live","key":"sk_1"}`)}
	svc, attempts := newTestService(up)
	before := testutil.ToFloat64(metrics.StreamAttempts.WithLabelValues(metrics.OutcomeExtracted))

	out, err := svc.Start(context.Background(), Request{SelectedTokenID: "token1", StreamTitle: "  Evening show "})
	require.NoError(t, err)

	assert.Equal(t, "main-token", up.token)
	assert.Equal(t, "Evening show", up.title)

	assert.Equal(t, "Account 1 - Main", out.Account)
	require.True(t, out.Found())
	assert.Equal(t, "rtmp://push.example/live", out.Result.RTMPServer)
	assert.Equal(t, "sk_1", out.Result.StreamKey)
	assert.Equal(t, "rtmp:sk_1:", out.Result.Formatted)
	assert.Equal(t, json.RawMessage(`{"rtmp":"rtmp://push.example/live","key":"sk_1"}`), out.Payload)

	require.Len(t, attempts.entries, 1)
	e := attempts.entries[0]
	assert.Equal(t, "Account 1 - Main", e.Account)
	assert.Equal(t, "Evening show", e.StreamTitle)
	assert.True(t, e.Success)
	assert.True(t, e.RTMPFound)
	require.NotNil(t, e.StatusCode)
	assert.Equal(t, http.StatusOK, *e.StatusCode)
	assert.Nil(t, e.Error)

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.StreamAttempts.WithLabelValues(metrics.OutcomeExtracted)))
}

func TestStartNoMatch(t *testing.T) {
	up := &fakeUpstream{resp: &upstream.Response{StatusCode: http.StatusOK, Body: []byte("accepted")}}
	svc, attempts := newTestService(up)

	out, err := svc.Start(context.Background(), Request{SelectedTokenID: CustomTokenID, CustomToken: " abc ", StreamTitle: "t"})
	require.NoError(t, err)

	assert.Equal(t, "abc", up.token)
	assert.Equal(t, CustomAccountName, out.Account)
	assert.False(t, out.Found())
	assert.Equal(t, "accepted", out.Payload)

	require.Len(t, attempts.entries, 1)
	assert.False(t, attempts.entries[0].Success)
	assert.False(t, attempts.entries[0].RTMPFound)
	assert.Equal(t, CustomAccountName, attempts.entries[0].Account)
}

func TestStartRejections(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		msg  string
	}{
		{
			name: "blank title",
			req:  Request{SelectedTokenID: "token1", StreamTitle: "   "},
			msg:  "Stream title is required",
		},
		{
			name: "custom without token",
			req:  Request{SelectedTokenID: CustomTokenID, CustomToken: "  ", StreamTitle: "t"},
			msg:  `Custom bearer token is required when "Custom Token" is selected`,
		},
		{
			name: "disabled credential",
			req:  Request{SelectedTokenID: "token2", StreamTitle: "t"},
			msg:  "Selected bearer token is not configured, disabled, or invalid",
		},
		{
			name: "credential without token",
			req:  Request{SelectedTokenID: "token3", StreamTitle: "t"},
			msg:  "Selected bearer token is not configured, disabled, or invalid",
		},
		{
			name: "unknown credential",
			req:  Request{SelectedTokenID: "token9", StreamTitle: "t"},
			msg:  "Selected bearer token is not configured, disabled, or invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{}
			svc, attempts := newTestService(up)

			_, err := svc.Start(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errs.IsInvalidInput(err))
			assert.Equal(t, tt.msg, errs.Msg(err))
			assert.Equal(t, http.StatusBadRequest, errs.HTTPStatus(err))

			assert.Zero(t, up.calls)
			assert.Empty(t, attempts.entries)
		})
	}
}

func TestStartUpstreamFailureIsLogged(t *testing.T) {
	up := &fakeUpstream{err: errs.Upstream(nil, http.StatusUnauthorized, json.RawMessage(`{"message":"nope"}`))}
	svc, attempts := newTestService(up)

	_, err := svc.Start(context.Background(), Request{SelectedTokenID: "token1", StreamTitle: "t"})
	require.Error(t, err)

	var upErr *errs.UpstreamError
	require.True(t, errors.As(err, &upErr))
	assert.Equal(t, http.StatusUnauthorized, upErr.StatusCode)

	require.Len(t, attempts.entries, 1)
	e := attempts.entries[0]
	assert.Equal(t, "Account 1 - Main", e.Account)
	assert.False(t, e.Success)
	assert.False(t, e.RTMPFound)
	require.NotNil(t, e.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, *e.StatusCode)
	require.NotNil(t, e.Error)
	assert.Equal(t, "Request failed with status code 401", *e.Error)
}

func TestStartTransportFailureHasNullStatus(t *testing.T) {
	up := &fakeUpstream{err: errs.Upstream(errors.New("dial tcp: connection refused"), 0, nil)}
	svc, attempts := newTestService(up)

	_, err := svc.Start(context.Background(), Request{SelectedTokenID: CustomTokenID, CustomToken: "x", StreamTitle: "t"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))

	require.Len(t, attempts.entries, 1)
	assert.Nil(t, attempts.entries[0].StatusCode)
	require.NotNil(t, attempts.entries[0].Error)
	assert.Equal(t, "dial tcp: connection refused", *attempts.entries[0].Error)
}

func TestStartSwallowsActivityFailure(t *testing.T) {
	up := &fakeUpstream{resp: jsonResponse(http.StatusOK, `{"key":"k"}`)}
	attempts := &fakeLog{err: errs.StoreUnavailable(errors.New("disk full"), "Failed to write stream logs")}
	svc := NewService(&fakeCreds{file: testCredentials()}, attempts, up, false)
	before := testutil.ToFloat64(metrics.ActivityWriteFailures)

	out, err := svc.Start(context.Background(), Request{SelectedTokenID: "token1", StreamTitle: "t"})
	require.NoError(t, err)
	assert.True(t, out.Found())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ActivityWriteFailures))
}

func TestStartCredentialStoreFailure(t *testing.T) {
	up := &fakeUpstream{}
	attempts := &fakeLog{}
	storeErr := errs.StoreUnavailable(errors.New("permission denied"), "Failed to read bearer tokens configuration")
	svc := NewService(&fakeCreds{err: storeErr}, attempts, up, true)

	_, err := svc.Start(context.Background(), Request{SelectedTokenID: "token1", StreamTitle: "t"})
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(err))
	assert.Equal(t, "Failed to read bearer tokens configuration", errs.Msg(err))
	assert.Zero(t, up.calls)
	assert.Empty(t, attempts.entries)
}
