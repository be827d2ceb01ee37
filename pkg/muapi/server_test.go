package muapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/femtomc/mu-controlplane/pkg/muadapter/neovim"
	"github.com/femtomc/mu-controlplane/pkg/mucore"
	"github.com/femtomc/mu-controlplane/pkg/muissue"
	"github.com/femtomc/mu-controlplane/pkg/mujournal"
	"github.com/femtomc/mu-controlplane/pkg/mupipeline"
	"github.com/femtomc/mu-controlplane/pkg/mureload"
)

type fakePipeline struct {
	received []mucore.InboundEnvelope
	result   mupipeline.Result
}

func (p *fakePipeline) HandleInbound(_ context.Context, env mucore.InboundEnvelope) mupipeline.Result {
	p.received = append(p.received, env)
	return p.result
}

type fakeReloadModule struct{}

func (fakeReloadModule) Init(context.Context, []byte) error { return nil }
func (fakeReloadModule) Handle(context.Context, any) error   { return nil }
func (fakeReloadModule) Warmup(context.Context) error        { return nil }
func (fakeReloadModule) Drain(context.Context, time.Duration, string) mureload.DrainResult {
	return mureload.DrainResult{Drained: true}
}
func (fakeReloadModule) Checkpoint(context.Context) ([]byte, error) { return nil, nil }
func (fakeReloadModule) Shutdown(context.Context, string, bool) error { return nil }

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dir := t.TempDir()

	issueStore, err := muissue.NewMemStore(dir+"/issues.json", func() int64 { return 1 })
	require.NoError(t, err)
	forum, err := muissue.NewMemForum(dir+"/forum.json", func() int64 { return 1 })
	require.NoError(t, err)
	events, err := mujournal.OpenEventJournal(dir + "/events.jsonl")
	require.NoError(t, err)
	flash, err := mujournal.OpenSessionFlashJournal(dir + "/session_flash.jsonl")
	require.NoError(t, err)

	sup := mureload.NewSupervisor(mureload.Config{
		Name:    "test",
		Factory: func(ctx context.Context, reason string) (mureload.Module, error) { return fakeReloadModule{}, nil },
		Clock:   func() int64 { return 1 },
		DrainTimeout: time.Millisecond,
	})
	_, err = sup.Bootstrap(context.Background())
	require.NoError(t, err)

	s := NewServer(func() int64 { return 1 }, nil)
	s.SetPipeline(&fakePipeline{result: mupipeline.Result{Kind: mupipeline.ResultAccepted}})
	s.SetReloadSupervisor(sup)
	s.SetIssueStore(issueStore)
	s.SetForum(forum)
	s.SetEventJournal(events)
	s.SetSessionFlashJournal(flash)
	s.RegisterAdapter("neovim", neovim.New("topsecret", func() int64 { return 1 }))

	require.NoError(t, s.ValidateWiring())

	return s, func() {
		events.Close()
		flash.Close()
	}
}

func TestWebhookHandler_UnknownChannelReturns404(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/bogus", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookHandler_SignatureMismatchReturns401(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	body := []byte(`{"session_id":"s1","actor_id":"dev","body":"run.list"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/neovim", bytes.NewReader(body))
	req.Header.Set("X-Mu-Shared-Secret", "wrong")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookHandler_ValidPayloadReachesPipeline(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	body := []byte(`{"session_id":"s1","actor_id":"dev","body":"run.list"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/neovim", bytes.NewReader(body))
	req.Header.Set("X-Mu-Shared-Secret", "topsecret")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	fp := s.pipeline.(*fakePipeline)
	require.Len(t, fp.received, 1)
	assert.Equal(t, "run.list", fp.received[0].CommandText)
}

func TestStatusHandler_IncludesGenerationAndObservability(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.ControlPlane.Active)
	assert.NotEmpty(t, resp.ControlPlane.Generation)
}

func TestIssuesHandlers_CreateGetCloseRoundTrip(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	createBody := []byte(`{"title":"fix the thing"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/issues", bytes.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var issue muissue.Issue
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &issue))
	assert.Equal(t, "fix the thing", issue.Title)

	req = httptest.NewRequest(http.MethodGet, "/api/issues?id="+issue.ID, nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/issues/"+issue.ID+"/close", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionFlashHandlers_CreateListAck(t *testing.T) {
	s, cleanup := newTestServer(t)
	defer cleanup()

	createBody := []byte(`{"session_id":"sess-1","kind":"info","text":"hello"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/session-flash", bytes.NewReader(createBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var flash mujournal.SessionFlash
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flash))
	require.NotEmpty(t, flash.FlashID)

	req = httptest.NewRequest(http.MethodGet, "/api/session-flash?session_id=sess-1", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/session-flash/"+flash.FlashID+"/ack", nil)
	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
