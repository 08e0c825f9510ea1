package config

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Timing holds every delay the automation loops use. The defaults were tuned
// against the live sites' rendering latency and are not protocol constants.
type Timing struct {
	HighlightLead     time.Duration // highlight visible before a click lands
	HighlightDuration time.Duration // how long the highlight frame stays
	ClickSettle       time.Duration // after toolbar / submit clicks
	ScrollSettle      time.Duration // after scrolling an element into view
	SelectSettle      time.Duration // after selecting a candidate, chat pane load
	CandidateInterval time.Duration // between two candidates
	PassInterval      time.Duration // between two passes
	WarmUp            time.Duration // before the first pass
	RetryInterval     time.Duration // wrong page or empty list
	AgreeSettle       time.Duration // after clicking agree
	ReclassifySettle  time.Duration // before re-reading the transcript after agree
	PreviewLoad       time.Duration // after opening the attachment preview
	DownloadPoll      time.Duration // poll period for the download control
	DownloadTimeout   time.Duration // hard limit for the download poll
	IntroSettle       time.Duration // after sending the intro messages
	GreetInterval     time.Duration // after a successful greet click
	GreetScrollSettle time.Duration // between scrolling a card and clicking greet
	MutationDebounce  time.Duration // feed watcher, DOM change stimulus
	ScrollDebounce    time.Duration // feed watcher, near-bottom stimulus
	WatchPoll         time.Duration // feed watcher poll period
}

// DefaultTiming returns the delays used against the live sites.
func DefaultTiming() Timing {
	return Timing{
		HighlightLead:     300 * time.Millisecond,
		HighlightDuration: 2 * time.Second,
		ClickSettle:       500 * time.Millisecond,
		ScrollSettle:      800 * time.Millisecond,
		SelectSettle:      1500 * time.Millisecond,
		CandidateInterval: 2 * time.Second,
		PassInterval:      3 * time.Second,
		WarmUp:            2 * time.Second,
		RetryInterval:     3 * time.Second,
		AgreeSettle:       2 * time.Second,
		ReclassifySettle:  2 * time.Second,
		PreviewLoad:       3 * time.Second,
		DownloadPoll:      300 * time.Millisecond,
		DownloadTimeout:   10 * time.Second,
		IntroSettle:       1500 * time.Millisecond,
		GreetInterval:     5 * time.Second,
		GreetScrollSettle: 500 * time.Millisecond,
		MutationDebounce:  500 * time.Millisecond,
		ScrollDebounce:    300 * time.Millisecond,
		WatchPoll:         time.Second,
	}
}

// FastTiming returns near-zero delays for tests.
func FastTiming() Timing {
	return Timing{
		DownloadPoll:     time.Millisecond,
		DownloadTimeout:  50 * time.Millisecond,
		MutationDebounce: 5 * time.Millisecond,
		ScrollDebounce:   5 * time.Millisecond,
		WatchPoll:        2 * time.Millisecond,
	}
}

// Scaled multiplies every delay by f. The download poll keeps at least 1ms.
func (t Timing) Scaled(f float64) Timing {
	scale := func(d time.Duration) time.Duration { return time.Duration(float64(d) * f) }
	for _, p := range t.fields() {
		*p = scale(*p)
	}
	if t.DownloadPoll < time.Millisecond {
		t.DownloadPoll = time.Millisecond
	}
	return t
}

// WithOverrides applies name -> duration overrides such as
// {"candidate_interval": "2s"}. Unknown names and bad durations are errors.
func (t Timing) WithOverrides(overrides map[string]string) (Timing, error) {
	if len(overrides) == 0 {
		return t, nil
	}
	fields := t.named()
	for name, raw := range overrides {
		p, ok := fields[strings.ToLower(name)]
		if !ok {
			return t, fmt.Errorf("unknown timing %q (known: %s)", name, strings.Join(TimingNames(), ", "))
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return t, fmt.Errorf("timing %q: %w", name, err)
		}
		if d < 0 {
			return t, fmt.Errorf("timing %q must not be negative", name)
		}
		*p = d
	}
	return t, nil
}

// TimingNames lists the names accepted by WithOverrides.
func TimingNames() []string {
	var t Timing
	names := make([]string, 0, len(t.named()))
	for n := range t.named() {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t *Timing) named() map[string]*time.Duration {
	return map[string]*time.Duration{
		"highlight_lead":      &t.HighlightLead,
		"highlight_duration":  &t.HighlightDuration,
		"click_settle":        &t.ClickSettle,
		"scroll_settle":       &t.ScrollSettle,
		"select_settle":       &t.SelectSettle,
		"candidate_interval":  &t.CandidateInterval,
		"pass_interval":       &t.PassInterval,
		"warm_up":             &t.WarmUp,
		"retry_interval":      &t.RetryInterval,
		"agree_settle":        &t.AgreeSettle,
		"reclassify_settle":   &t.ReclassifySettle,
		"preview_load":        &t.PreviewLoad,
		"download_poll":       &t.DownloadPoll,
		"download_timeout":    &t.DownloadTimeout,
		"intro_settle":        &t.IntroSettle,
		"greet_interval":      &t.GreetInterval,
		"greet_scroll_settle": &t.GreetScrollSettle,
		"mutation_debounce":   &t.MutationDebounce,
		"scroll_debounce":     &t.ScrollDebounce,
		"watch_poll":          &t.WatchPoll,
	}
}

func (t *Timing) fields() []*time.Duration {
	m := t.named()
	out := make([]*time.Duration, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}
