package locate

import (
	"fmt"
	"strings"
)

// PageType names a page the automation knows how to work on.
type PageType string

const (
	PageChat      PageType = "chat"
	PageRecommend PageType = "recommend"
	PageSearch    PageType = "search"
	PageProfile   PageType = "profile"
	PageOther     PageType = "other"
)

type pageCheck struct {
	kind    PageType
	pattern string
	message string
}

var pageChecks = []pageCheck{
	{kind: PageChat, pattern: "/web/chat/index", message: "请在聊天页面使用此功能"},
	{kind: PageRecommend, pattern: "/web/frame/recommend", message: "请在推荐页面使用此功能"},
	{kind: PageSearch, pattern: "/search_result", message: "请在搜索结果页面使用此功能"},
	{kind: PageProfile, pattern: "/user/profile/", message: "请在用户主页使用此功能"},
}

// WrongPageError reports an automation started outside the page it works on.
// Message is user facing.
type WrongPageError struct {
	Want    PageType
	URL     string
	Message string
}

func (e *WrongPageError) Error() string {
	return fmt.Sprintf("wrong page: %s (want %s, at %s)", e.Message, e.Want, e.URL)
}

// Check reports whether url is a page of the given type.
func Check(url string, kind PageType) bool {
	for _, c := range pageChecks {
		if c.kind == kind {
			return strings.Contains(url, c.pattern)
		}
	}
	return false
}

// Validate returns a *WrongPageError when url is not a page of the given type.
func Validate(url string, kind PageType) error {
	for _, c := range pageChecks {
		if c.kind != kind {
			continue
		}
		if strings.Contains(url, c.pattern) {
			return nil
		}
		return &WrongPageError{Want: kind, URL: url, Message: c.message}
	}
	return &WrongPageError{Want: kind, URL: url, Message: fmt.Sprintf("未知的页面类型: %s", kind)}
}

// Detect returns the type of the page at url, or PageOther.
func Detect(url string) PageType {
	for _, c := range pageChecks {
		if strings.Contains(url, c.pattern) {
			return c.kind
		}
	}
	return PageOther
}
