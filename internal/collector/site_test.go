package collector

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom/domtest"
)

const chatURL = "https://www.zhipin.com/web/chat/index"

// Transcript fragments the fake site renders.
const (
	msgAttachment    = `<div class="message-item"><div class="message-card-buttons"><span class="card-btn">点击预览附件简历</span></div></div>`
	msgAgreePrompt   = `<div class="message-item">对方想发送附件简历给您，您是否同意<div class="message-card-buttons"><span class="card-btn">拒绝</span><span class="card-btn">同意</span></div></div>`
	msgAgreeAnswered = `<div class="message-item">对方想发送附件简历给您，您是否同意<div class="message-card-buttons"><span class="card-btn disabled">拒绝</span><span class="card-btn disabled">同意</span></div></div>`
	msgRequestSent   = `<div class="message-item">简历请求已发送</div>`
)

type contact struct {
	id         string
	name       string
	messages   string
	canRequest bool
	// agreeSends controls what an agree click turns the transcript into.
	agreeSends bool
	// hides names a contact whose row disappears once this one is opened.
	hides string
}

// chatSite is a fake recruiting chat page. Selecting a contact renders its
// transcript; the request, agree, preview and download controls change the
// contact's state the way the live site does.
type chatSite struct {
	page *domtest.Page

	mu        sync.Mutex
	order     []*contact
	byID      map[string]*contact
	current   *contact
	downloads int
}

func newChatSite(contacts ...*contact) *chatSite {
	s := &chatSite{byID: make(map[string]*contact)}
	for _, c := range contacts {
		s.order = append(s.order, c)
		s.byID[c.id] = c
	}
	s.page = domtest.New(chatURL, s.html())
	s.page.OnClick(s.onClick)
	return s
}

func (s *chatSite) contact(id string) *contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byID[id]
}

func (s *chatSite) setMessages(id, html string) {
	s.mu.Lock()
	s.byID[id].messages = html
	cur := s.current
	s.mu.Unlock()
	if cur != nil && cur.id == id {
		s.render()
	}
}

func (s *chatSite) downloadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

func (s *chatSite) html() string {
	var items strings.Builder
	for _, c := range s.order {
		fmt.Fprintf(&items, `<div role="listitem"><div class="geek-item" data-id="%s"><span class="geek-name">%s</span></div></div>`, c.id, c.name)
	}
	return `<html><head><title>BOSS直聘</title></head><body>
<div id="container"><div><div><div class="chat-box"><div class="chat-container">
	<div class="user-container">` + items.String() + `</div>
	<div class="chat-conversation"><div class="conversation-box">
		<div class="chat-message-list"></div>
		<div class="conversation-operate">
			<div class="toolbar-box"><div class="toolbar-box-left">
				<div><span>表情</span></div>
				<div><div class="phrase-toggle">常用语</div><div></div><div><div><ul><li class="phrase">你好，方便聊聊吗</li><li class="phrase">再见</li></ul></div></div></div>
			</div></div>
			<div class="conversation-editor"><div id="boss-chat-editor-input"></div><div class="submit-content"><div class="submit">发送</div></div></div>
		</div>
	</div></div>
	<div class="operate-icon-item"><span class="operate-btn disabled">求简历</span></div>
	<div class="exchange-tooltip"><span class="boss-btn-primary">确定</span></div>
</div></div></div></div></div>
</body></html>`
}

// render draws the selected contact's transcript and request control.
func (s *chatSite) render() {
	s.mu.Lock()
	cur := s.current
	var messages string
	var canRequest bool
	if cur != nil {
		messages, canRequest = cur.messages, cur.canRequest
	}
	s.mu.Unlock()

	s.page.Mutate(func(doc *goquery.Document) {
		doc.Find(".chat-message-list").SetHtml(messages)
		btn := doc.Find(".operate-btn")
		if canRequest {
			btn.RemoveClass("disabled")
		} else {
			btn.AddClass("disabled")
		}
	})
}

func (s *chatSite) onClick(p *domtest.Page, el *goquery.Selection) {
	switch {
	case el.HasClass("geek-item"):
		s.mu.Lock()
		s.current = s.byID[el.AttrOr("data-id", "")]
		var hides string
		if s.current != nil {
			hides = s.current.hides
		}
		s.mu.Unlock()
		if hides != "" {
			p.Mutate(func(doc *goquery.Document) {
				doc.Find(`.geek-item[data-id="` + hides + `"]`).Parent().Remove()
			})
		}
		s.render()

	case el.HasClass("boss-btn-primary"):
		s.mu.Lock()
		if c := s.current; c != nil {
			c.messages += msgRequestSent
			c.canRequest = false
		}
		s.mu.Unlock()
		s.render()

	case el.HasClass("card-btn") && strings.Contains(el.Text(), "同意"):
		s.mu.Lock()
		if c := s.current; c != nil {
			if c.agreeSends {
				c.messages = msgAgreeAnswered + msgAttachment
			} else {
				c.messages = msgAgreeAnswered
			}
		}
		s.mu.Unlock()
		s.render()

	case el.HasClass("card-btn") && strings.Contains(el.Text(), "点击预览附件简历"):
		p.Mutate(func(doc *goquery.Document) {
			doc.Find("body").AppendHtml(`<div id="boss-dynamic-dialog-1"><div class="resume-footer-wrap"><div>打印</div><div>转发</div><div><span class="download">下载</span></div></div><span class="boss-popup__close">关闭</span></div>`)
		})

	case el.HasClass("download"):
		s.mu.Lock()
		s.downloads++
		s.mu.Unlock()

	case el.HasClass("boss-popup__close"):
		p.Mutate(func(doc *goquery.Document) {
			doc.Find(`[id^="boss-dynamic-dialog"]`).Remove()
		})

	case el.HasClass("phrase"):
		text := el.Text()
		p.Mutate(func(doc *goquery.Document) {
			doc.Find("#boss-chat-editor-input").SetText(text)
		})

	case el.HasClass("submit"):
		var text string
		p.Mutate(func(doc *goquery.Document) {
			editor := doc.Find("#boss-chat-editor-input")
			text = editor.Text()
			editor.SetText("")
		})
		if text == "" {
			return
		}
		s.mu.Lock()
		if c := s.current; c != nil {
			c.messages += `<div class="message-item">` + text + `</div>`
		}
		s.mu.Unlock()
		s.render()
	}
}
