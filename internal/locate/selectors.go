package locate

// Recruiting chat selectors. The site changes its markup without notice;
// update these when collection stops finding things.
const (
	// Candidate list
	CandidateList      = `.user-container`
	CandidateItem      = `[role="listitem"]`
	CandidateName      = `.geek-name`
	CandidateIDHolder  = `[data-id]`
	CandidateClickable = `.geek-item`

	// Transcript
	Transcript  = `.chat-message-list`
	MessageItem = `.message-item`
	CardButton  = `.message-card-buttons .card-btn`

	// Request resume
	RequestButton  = `.operate-icon-item .operate-btn`
	RequestConfirm = `.exchange-tooltip .boss-btn-primary`

	// Attachment preview
	PreviewDialog  = `[id^="boss-dynamic-dialog"]`
	DownloadButton = `.resume-footer-wrap div:nth-child(3) > span`
	PopupClose     = `.boss-popup__close`

	// Editor
	ChatEditor   = `#boss-chat-editor-input`
	conversation = `#container > div:nth-child(1) > div > div.chat-box > div.chat-container > div.chat-conversation > div.conversation-box > div.conversation-operate`
	SubmitButton = conversation + ` > div.conversation-editor > div.submit-content > div`
	PhraseToggle = conversation + ` > div.toolbar-box > div.toolbar-box-left > div:nth-child(2) > div`
	PhraseFirst  = conversation + ` > div.toolbar-box > div.toolbar-box-left > div:nth-child(2) > div:nth-child(3) > div > ul > li:nth-child(1)`
)

// Transcript markers.
const (
	MarkerAttachment   = "点击预览附件简历"
	MarkerAgreePrompt  = "对方想发送附件简历给您，您是否同意"
	MarkerRequestSent  = "简历请求已发送"
	LabelAgree         = "同意"
	LabelRequestResume = "求简历"
	UnknownName        = "未知"
)

// Recommend page selectors.
const (
	GreetCardID     = `[data-geekid]`
	GreetButton     = `button.btn-greet, button[class*="greet"]`
	GreetLabel      = "打招呼"
	greetTitle      = `[class*="title"], h3, h4`
	greetLink       = `a[href*="geek"]`
	greetCardParent = `li, article`
)

// GreetCards is the cascade that finds candidate cards on the recommend page.
var GreetCards = Cascade{
	Selector(`li.card-item`),
	Selector(`li[class*="card"]`),
	Selector(`li[class*="geek"]`),
	Selector(`article[class*="card"]`),
	Closest(GreetCardID, greetCardParent),
	TextAncestor(`button`, GreetLabel, 8),
}

// GreetButtons finds the greet button inside one card.
var GreetButtons = Cascade{
	Selector(GreetButton),
	ContainsText(`button`, GreetLabel),
}
