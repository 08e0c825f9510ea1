package greet

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hirebot/internal/config"
	"github.com/jonathan/hirebot/internal/dom/domtest"
	"github.com/jonathan/hirebot/internal/locate"
	"github.com/jonathan/hirebot/internal/loop"
)

const recommendURL = "https://www.zhipin.com/web/frame/recommend/?jobid=abc"

const recommendHTML = `<html><body><ul class="card-list">
	<li class="card-item"><div data-geekid="g1"><h3>候选人一</h3></div><button class="btn-greet">打招呼</button></li>
	<li class="card-item"><div data-geekid="g2"><h3>候选人二</h3></div><button class="btn-greet" disabled>打招呼</button></li>
	<li class="card-item"><div data-geekid="g3"><h3>候选人三</h3></div><button class="btn-greet">继续沟通</button></li>
	<li class="card-item"><span>无标识</span><button class="btn-greet">打招呼</button></li>
	<li class="card-item"><a href="https://www.zhipin.com/geek/998877">主页</a><button class="btn-greet">打招呼</button></li>
</ul></body></html>`

// newRecommendPage relabels a greet button once it is clicked, like the
// live site does.
func newRecommendPage() *domtest.Page {
	page := domtest.New(recommendURL, recommendHTML)
	page.OnClick(func(p *domtest.Page, el *goquery.Selection) {
		if el.HasClass("btn-greet") {
			p.Mutate(func(*goquery.Document) { el.SetText("继续沟通") })
		}
	})
	return page
}

func TestPass_GreetsEachCardOnce(t *testing.T) {
	page := newRecommendPage()
	timing := config.FastTiming()
	timing.PassInterval = 3 * time.Second
	s := New(page, timing, nil)
	ctx := context.Background()

	delay := s.pass(ctx, &loop.Token{})
	assert.Equal(t, 3*time.Second, delay)
	assert.Len(t, page.Clicks(), 2, "g1 and the link-identified card")
	assert.True(t, s.greeted("g1"))
	assert.True(t, s.greeted("998877"))
	assert.False(t, s.greeted("g2"), "disabled button")
	assert.False(t, s.greeted("g3"), "label mismatch")
	assert.Equal(t, 1, page.BottomScrolls())

	s.pass(ctx, &loop.Token{})
	assert.Len(t, page.Clicks(), 2, "no card greeted twice")
	assert.Equal(t, 2, page.BottomScrolls())
	assert.Equal(t, 2, s.Status(ctx).ClickedCount)
}

func TestPass_GreetedCardLeavingListDoesNotShiftTargets(t *testing.T) {
	const html = `<html><body><ul class="card-list">
	<li class="card-item"><div data-geekid="g1"><h3>一</h3></div><button class="btn-greet">打招呼</button></li>
	<li class="card-item"><div data-geekid="g2"><h3>二</h3></div><button class="btn-greet">打招呼</button></li>
	<li class="card-item"><div data-geekid="g3"><h3>三</h3></div><button class="btn-greet">打招呼</button></li>
</ul></body></html>`
	page := domtest.New(recommendURL, html)
	var clicked []string
	page.OnClick(func(p *domtest.Page, el *goquery.Selection) {
		card := el.Closest(".card-item")
		clicked = append(clicked, card.Find("[data-geekid]").AttrOr("data-geekid", ""))
		p.Mutate(func(*goquery.Document) { card.Remove() })
	})
	s := New(page, config.FastTiming(), nil)

	s.pass(context.Background(), &loop.Token{})

	assert.Equal(t, []string{"g1", "g2", "g3"}, clicked)
	for _, id := range clicked {
		assert.True(t, s.greeted(id), id)
	}
}

func TestPass_SeenCardSkippedEvenIfButtonReturns(t *testing.T) {
	page := domtest.New(recommendURL, recommendHTML)
	s := New(page, config.FastTiming(), nil)
	ctx := context.Background()

	s.pass(ctx, &loop.Token{})
	clicks := len(page.Clicks())
	s.pass(ctx, &loop.Token{})
	assert.Len(t, page.Clicks(), clicks)
}

func TestPass_RetriesWithoutCardsOrOnWrongPage(t *testing.T) {
	timing := config.FastTiming()
	timing.RetryInterval = 9 * time.Second

	empty := domtest.New(recommendURL, `<html><body><div>加载中</div></body></html>`)
	assert.Equal(t, 9*time.Second, New(empty, timing, nil).pass(context.Background(), &loop.Token{}))
	assert.Zero(t, empty.BottomScrolls())

	wrong := domtest.New("https://www.zhipin.com/web/chat/index", recommendHTML)
	assert.Equal(t, 9*time.Second, New(wrong, timing, nil).pass(context.Background(), &loop.Token{}))
	assert.Empty(t, wrong.Clicks())
}

func TestPass_CardsFoundThroughGreetButtons(t *testing.T) {
	html := `<html><body><div class="list">
		<div class="geek-card"><h4>甲</h4><div><button>打招呼</button></div></div>
		<div class="geek-card"><h4>乙</h4><div><button>打招呼</button></div></div>
	</div></body></html>`
	page := domtest.New(recommendURL, html)
	s := New(page, config.FastTiming(), nil)

	s.pass(context.Background(), &loop.Token{})
	assert.True(t, s.greeted("text_甲"))
	assert.True(t, s.greeted("text_乙"))
}

func TestSession_StartStop(t *testing.T) {
	page := newRecommendPage()
	timing := config.FastTiming()
	timing.WarmUp = time.Hour
	s := New(page, timing, nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Status(ctx).IsRunning)
	assert.True(t, s.Status(ctx).IsCorrectPage)
	assert.ErrorIs(t, s.Start(ctx), loop.ErrAlreadyRunning)

	n, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	s.Wait()

	_, err = s.Stop(ctx)
	assert.ErrorIs(t, err, loop.ErrNotRunning)

	var messages []string
	for _, toast := range page.Toasts() {
		messages = append(messages, toast.Message)
	}
	assert.Equal(t, []string{"自动打招呼已启动", "自动打招呼已在运行", "自动打招呼已停止", "自动打招呼未在运行"}, messages)
}

func TestSession_StartClearsSeen(t *testing.T) {
	page := newRecommendPage()
	s := New(page, config.FastTiming(), nil)
	ctx := context.Background()

	s.pass(ctx, &loop.Token{})
	require.Equal(t, 2, s.clicked())

	timing := config.FastTiming()
	timing.WarmUp = time.Hour
	s.timing = timing
	require.NoError(t, s.Start(ctx))
	assert.Zero(t, s.Status(ctx).ClickedCount)
	_, err := s.Stop(ctx)
	require.NoError(t, err)
	s.Wait()
}

func TestSession_RunsUntilStopped(t *testing.T) {
	page := newRecommendPage()
	s := New(page, config.FastTiming(), nil)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.Eventually(t, func() bool { return s.clicked() == 2 }, time.Second, 5*time.Millisecond)
	n, err := s.Stop(ctx)
	require.NoError(t, err)
	s.Wait()
	assert.Equal(t, 2, n)
}

func TestSession_StartOnWrongPage(t *testing.T) {
	page := domtest.New("https://www.zhipin.com/web/chat/index", recommendHTML)
	s := New(page, config.FastTiming(), nil)

	err := s.Start(context.Background())
	var wrong *locate.WrongPageError
	require.ErrorAs(t, err, &wrong)
	assert.Equal(t, "请在推荐页面使用此功能", wrong.Message)
	assert.False(t, s.Running())
}
