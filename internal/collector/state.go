// Package collector runs the resume collection workflow on the recruiting
// chat page: for each contact it classifies the conversation from the
// transcript and requests, accepts or downloads the attachment resume,
// remembering across restarts which contacts are done or still waiting.
package collector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom"
	"github.com/jonathan/hirebot/internal/locate"
)

// State is the conversation state of one contact, derived fresh on every
// visit.
type State int

const (
	NoResponse State = iota
	NeedRequest
	NeedAgree
	HasResume
	AlreadyCollected
)

func (s State) String() string {
	switch s {
	case NoResponse:
		return "NO_RESPONSE"
	case NeedRequest:
		return "NEED_REQUEST"
	case NeedAgree:
		return "NEED_AGREE"
	case HasResume:
		return "HAS_RESUME"
	case AlreadyCollected:
		return "ALREADY_COLLECTED"
	}
	return "UNKNOWN"
}

// Reasons name the rule that produced a classification.
const (
	ReasonNoTranscript  = "no-transcript"
	ReasonLedger        = "ledger"
	ReasonAttachment    = "attachment"
	ReasonAgreePrompt   = "agree-prompt"
	ReasonAgreeDisabled = "agree-disabled"
	ReasonRequestButton = "request-button"
	ReasonNone          = "none"
)

// Classification is a state plus the rule that fired. The two
// AlreadyCollected rules differ in what they imply: a ledger hit means a
// resume was stored, a disabled agree button only means someone already
// answered the prompt.
type Classification struct {
	State  State
	Reason string
}

// Classify reads the open conversation. inLedger reports whether the
// contact's name is already in the resume ledger. Rules, first match wins:
// ledger, attachment marker, agree prompt (enabled agree button or not),
// enabled request button, nothing.
func Classify(doc *goquery.Document, inLedger bool) Classification {
	transcript := doc.Find(locate.Transcript).First()
	if transcript.Length() == 0 {
		return Classification{State: NoResponse, Reason: ReasonNoTranscript}
	}
	if inLedger {
		return Classification{State: AlreadyCollected, Reason: ReasonLedger}
	}

	html, _ := transcript.Html()
	if strings.Contains(html, locate.MarkerAttachment) {
		return Classification{State: HasResume, Reason: ReasonAttachment}
	}

	if strings.Contains(html, locate.MarkerAgreePrompt) {
		if agreeButton(transcript).Length() > 0 {
			return Classification{State: NeedAgree, Reason: ReasonAgreePrompt}
		}
		return Classification{State: AlreadyCollected, Reason: ReasonAgreeDisabled}
	}

	if requestButton(doc.Selection).Length() > 0 {
		return Classification{State: NeedRequest, Reason: ReasonRequestButton}
	}
	return Classification{State: NoResponse, Reason: ReasonNone}
}

// RequestPending reports whether the transcript shows a resume request that
// is still unanswered.
func RequestPending(doc *goquery.Document) bool {
	return strings.Contains(dom.Text(doc.Find(locate.Transcript).First()), locate.MarkerRequestSent)
}

var (
	agreeButtons   = locate.Cascade{locate.ContainsText(locate.CardButton, locate.LabelAgree)}
	requestButtons = locate.Cascade{locate.ContainsText(locate.RequestButton, locate.LabelRequestResume)}
	previewButtons = locate.Cascade{locate.ContainsText(locate.CardButton, locate.MarkerAttachment)}
)

func agreeButton(root *goquery.Selection) *goquery.Selection {
	return agreeButtons.FirstEnabled(root)
}

func requestButton(root *goquery.Selection) *goquery.Selection {
	return requestButtons.FirstEnabled(root)
}

func previewButton(root *goquery.Selection) *goquery.Selection {
	found, _ := previewButtons.First(root)
	return found.First()
}

func transcriptContains(doc *goquery.Document, s string) bool {
	if s == "" {
		return false
	}
	return strings.Contains(doc.Find(locate.Transcript).First().Text(), s)
}
