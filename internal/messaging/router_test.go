package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hirebot/internal/collector"
	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom/domtest"
	"github.com/jonathan/hirebot/internal/feed"
	"github.com/jonathan/hirebot/internal/greet"
	"github.com/jonathan/hirebot/internal/sink"
	"github.com/jonathan/hirebot/internal/store"
)

const (
	recommendURL = "https://www.zhipin.com/web/frame/recommend/?jobid=1"
	chatURL      = "https://www.zhipin.com/web/chat/index"
	searchURL    = "https://www.xiaohongshu.com/search_result?keyword=go"
)

const searchHTML = `<html><head><title>搜索</title></head><body><div class="feeds-container">
	<section class="note-item"><a class="cover mask ld" href="/explore/64a1b2c3d4e5f6a7b8c9d0e1">c</a><div class="title"><span>一</span></div></section>
	<section class="note-item"><div class="title"><span>二</span></div></section>
</div></body></html>`

func slowTiming() config.Timing {
	timing := config.FastTiming()
	timing.WarmUp = time.Hour
	return timing
}

type fixture struct {
	page      *domtest.Page
	collector *collector.Session
	greeter   *greet.Session
	ledger    *store.MemoryResumes
	router    *Router
}

func newFixture(url, html string) *fixture {
	page := domtest.New(url, html)
	f := &fixture{
		page:   page,
		ledger: store.NewMemoryResumes(),
	}
	f.collector = collector.New(page, store.NewMemoryKV(), f.ledger, collector.Options{Timing: slowTiming()})
	f.greeter = greet.New(page, slowTiming(), nil)
	f.router = NewRouter(Router{
		Page:      page,
		Collector: f.collector,
		Greeter:   f.greeter,
		Feeds:     feed.NewScraper(page, sink.Discard, nil),
		Ledger:    f.ledger,
	})
	return f
}

func send(t *testing.T, r *Router, raw string) Response {
	t.Helper()
	return r.HandleJSON(context.Background(), []byte(raw))
}

func dataMap(t *testing.T, resp Response) map[string]any {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func TestHandle_UnknownAction(t *testing.T) {
	f := newFixture(recommendURL, `<html></html>`)
	resp := send(t, f.router, `{"action":"doSomethingElse"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown action", resp.Error)
}

func TestHandleJSON_RejectsInvalidEnvelope(t *testing.T) {
	f := newFixture(recommendURL, `<html></html>`)
	for _, raw := range []string{`{`, `{"data":{}}`, `{"action":7}`} {
		resp := send(t, f.router, raw)
		assert.False(t, resp.Success, raw)
		assert.Contains(t, resp.Error, "invalid request", raw)
	}
}

func TestHandle_PingAndPageInfo(t *testing.T) {
	f := newFixture(recommendURL, `<html><head><title>推荐牛人</title></head><body></body></html>`)

	resp := send(t, f.router, `{"action":"ping"}`)
	require.True(t, resp.Success)
	assert.Equal(t, true, dataMap(t, resp)["isInFrame"])

	resp = send(t, f.router, `{"action":"getPageInfo"}`)
	require.True(t, resp.Success)
	data := dataMap(t, resp)
	assert.Equal(t, "推荐牛人", data["title"])
	assert.Equal(t, recommendURL, data["url"])
}

func TestHandle_GreetLifecycle(t *testing.T) {
	f := newFixture(recommendURL, `<html><body></body></html>`)

	ctx, cancel := context.WithCancel(context.Background())
	resp := f.router.HandleJSON(ctx, []byte(`{"action":"startAutoGreet"}`))
	require.True(t, resp.Success, resp.Error)
	cancel()
	time.Sleep(10 * time.Millisecond)
	assert.True(t, f.greeter.Running(), "the run outlives the request")

	resp = send(t, f.router, `{"action":"startAutoGreet"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, "已在运行", resp.Error)

	resp = send(t, f.router, `{"action":"getAutoGreetStatus"}`)
	require.True(t, resp.Success)
	assert.Equal(t, true, dataMap(t, resp)["isRunning"])

	resp = send(t, f.router, `{"action":"stopAutoGreet"}`)
	require.True(t, resp.Success)
	assert.EqualValues(t, 0, dataMap(t, resp)["clickedCount"])
	f.greeter.Wait()

	resp = send(t, f.router, `{"action":"stopAutoGreet"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, "未在运行", resp.Error)
}

func TestHandle_CollectorWrongPage(t *testing.T) {
	f := newFixture(recommendURL, `<html><body></body></html>`)
	resp := send(t, f.router, `{"type":"START_RESUME_COLLECTOR"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, "请在聊天页面使用此功能", resp.Error)
}

func TestHandle_CollectorLifecycle(t *testing.T) {
	f := newFixture(chatURL, `<html><body></body></html>`)

	resp := send(t, f.router, `{"type":"START_RESUME_COLLECTOR"}`)
	require.True(t, resp.Success, resp.Error)

	resp = send(t, f.router, `{"type":"GET_RESUME_COLLECTOR_STATUS"}`)
	require.True(t, resp.Success)
	data := dataMap(t, resp)
	assert.Equal(t, true, data["isRunning"])
	assert.Equal(t, true, data["isCorrectPage"])

	resp = send(t, f.router, `{"type":"STOP_RESUME_COLLECTOR"}`)
	require.True(t, resp.Success)
	f.collector.Wait()
}

func TestHandle_CollectorConfig(t *testing.T) {
	f := newFixture(chatURL, `<html><body></body></html>`)

	resp := send(t, f.router, `{"action":"updateKeywordConfig","data":{"keyword":"voice"}}`)
	require.True(t, resp.Success, resp.Error)
	data := dataMap(t, resp)
	assert.Equal(t, "voice", data["keyword"])
	assert.Equal(t, true, data["enabled"])

	resp = send(t, f.router, `{"action":"updateKeywordConfig","data":{"message":""}}`)
	assert.False(t, resp.Success, "enabled config needs a message")

	resp = send(t, f.router, `{"action":"updateDownloadEnabled","data":{"enabled":false}}`)
	require.True(t, resp.Success)
	assert.False(t, f.collector.Status(context.Background()).DownloadEnabled)

	resp = send(t, f.router, `{"action":"updateDownloadEnabled","data":{}}`)
	assert.False(t, resp.Success)
}

func TestHandle_Ledger(t *testing.T) {
	f := newFixture(chatURL, `<html></html>`)

	resp := send(t, f.router, `{"type":"SAVE_RESUME_TO_DB","data":{"name":"张三","timestamp":"2025-03-01T10:00:00Z","status":"downloaded"}}`)
	require.True(t, resp.Success, resp.Error)

	resp = send(t, f.router, `{"type":"CHECK_RESUME_EXISTS","data":{"name":"张三"}}`)
	require.True(t, resp.Success)
	assert.Equal(t, true, dataMap(t, resp)["exists"])

	resp = send(t, f.router, `{"type":"CHECK_RESUME_EXISTS"}`)
	require.True(t, resp.Success)
	assert.Equal(t, false, dataMap(t, resp)["exists"])

	resp = send(t, f.router, `{"type":"GET_ALL_RESUMES"}`)
	require.True(t, resp.Success)
	assert.Len(t, resp.Data, 1)

	resp = send(t, f.router, `{"type":"SAVE_RESUME_TO_DB","data":{"status":"downloaded"}}`)
	assert.False(t, resp.Success, "name is required")

	resp = send(t, f.router, `{"type":"CLEAR_ALL_RESUMES"}`)
	require.True(t, resp.Success)
	all, err := f.ledger.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestHandle_Feeds(t *testing.T) {
	f := newFixture(searchURL, searchHTML)

	resp := send(t, f.router, `{"action":"getSearchResultFeeds"}`)
	require.True(t, resp.Success, resp.Error)
	data, ok := resp.Data.(feed.FeedsResponseData)
	require.True(t, ok)
	assert.Equal(t, 2, data.Count)
	assert.Equal(t, searchURL, data.URL)

	resp = send(t, f.router, `{"action":"getUserPostedFeeds"}`)
	assert.False(t, resp.Success)
	assert.Equal(t, "请在用户主页使用此功能", resp.Error)
}

type panicky struct{ Greeter }

func (panicky) Status(context.Context) greet.Status { panic("boom") }

func TestHandle_RecoversPanics(t *testing.T) {
	r := NewRouter(Router{Greeter: panicky{}})
	resp := r.Handle(context.Background(), Request{Action: ActionAutoGreetStatus})
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "boom")
}

func TestHandle_MissingDependencies(t *testing.T) {
	r := NewRouter(Router{})
	for _, name := range []string{ActionStartAutoGreet, TypeStartCollector, TypeAllResumes, ActionSearchResultFeeds} {
		resp := r.Handle(context.Background(), Request{Action: name})
		assert.False(t, resp.Success, name)
		assert.Equal(t, errUnavailable.Error(), resp.Error, name)
	}
}

func TestStatusSink(t *testing.T) {
	var got []sink.Event
	out := sink.Func(func(_ context.Context, ev sink.Event) error {
		got = append(got, ev)
		return nil
	})
	StatusSink(context.Background(), out)(collector.Status{IsRunning: true})
	require.Len(t, got, 1)
	assert.Equal(t, EventCollectorStatus, got[0].Action)
}
