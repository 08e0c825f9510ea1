// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/width"

	"github.com/jonathan/hirebot/internal/collector"
	"github.com/jonathan/hirebot/internal/feed"
	"github.com/jonathan/hirebot/internal/greet"
	"github.com/jonathan/hirebot/internal/store"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// displayWidth counts terminal columns; wide CJK runes take two.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			n += 2
		default:
			n++
		}
	}
	return n
}

// fit truncates s to at most cols columns, marking the cut with "...".
func fit(s string, cols int) string {
	if displayWidth(s) <= cols {
		return s
	}
	var sb strings.Builder
	used := 0
	for _, r := range s {
		w := displayWidth(string(r))
		if used+w > cols-3 {
			break
		}
		sb.WriteRune(r)
		used += w
	}
	return sb.String() + "..."
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	row := func(s string) {
		s = fit(s, inner)
		fmt.Fprintf(p.out, "│ %s%s │\n", s, strings.Repeat(" ", inner-displayWidth(s)))
	}

	fmt.Fprintf(p.out, "┌%s┐\n", border)
	row(title)
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(content, "\n") {
		row(line)
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func check(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// PrintCollectorStatus outputs the resume collector counters.
func (p *Printer) PrintCollectorStatus(st collector.Status) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Running:      %s\n", check(st.IsRunning)))
	sb.WriteString(fmt.Sprintf("Chat page:    %s\n", check(st.IsCorrectPage)))
	sb.WriteString(fmt.Sprintf("Download:     %s\n", check(st.DownloadEnabled)))
	if st.KeywordConfig.Enabled {
		sb.WriteString(fmt.Sprintf("Intro:        %q\n", st.KeywordConfig.Keyword))
	} else {
		sb.WriteString("Intro:        off\n")
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Processed:    %d\n", st.ProcessedCount))
	sb.WriteString(fmt.Sprintf("Requested:    %d\n", st.RequestedCount))
	sb.WriteString(fmt.Sprintf("Agreed:       %d\n", st.AgreedCount))
	sb.WriteString(fmt.Sprintf("Collected:    %d\n", st.ResumeCollectedCount))
	sb.WriteString(fmt.Sprintf("Waiting:      %d", st.WaitingCount))
	if st.CurrentCandidate != "" {
		sb.WriteString(fmt.Sprintf("\nCurrent:      %s", st.CurrentCandidate))
	}

	p.printBox("RESUME COLLECTOR", sb.String())
}

// PrintGreetStatus outputs the auto-greet counters.
func (p *Printer) PrintGreetStatus(st greet.Status) {
	content := fmt.Sprintf("Running:      %s\nRecommend:    %s\nGreeted:      %d",
		check(st.IsRunning), check(st.IsCorrectPage), st.ClickedCount)
	p.printBox("AUTO GREET", content)
}

// PrintFeedDelta outputs the records a watcher pass discovered.
func (p *Printer) PrintFeedDelta(d feed.Delta) {
	if len(d.NewFeeds) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("New: %d   Total: %d\n", len(d.NewFeeds), d.TotalCount))
	sb.WriteString(fmt.Sprintf("Page: %s\n\n", d.URL))

	count := min(len(d.NewFeeds), maxItemsToShow)
	for i := 0; i < count; i++ {
		r := d.NewFeeds[i]
		title := r.Title
		if title == "" {
			title = "(untitled)"
		}
		sb.WriteString(fmt.Sprintf("• %s\n", title))
		if r.AuthorName != "" || r.LikeCount != "" {
			sb.WriteString(fmt.Sprintf("  %s  ♥ %s\n", r.AuthorName, r.LikeCount))
		}
	}
	if len(d.NewFeeds) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("... and %d more\n", len(d.NewFeeds)-maxItemsToShow))
	}

	p.printBox("FEEDS UPDATED", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResumes outputs the most recent ledger entries.
func (p *Printer) PrintResumes(records []store.ResumeRecord) {
	if len(records) == 0 {
		p.printBox("RESUME LEDGER", "No resumes collected yet")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total: %d\n\n", len(records)))
	start := max(len(records)-maxItemsToShow, 0)
	for _, r := range records[start:] {
		sb.WriteString(fmt.Sprintf("%s  %-10s  %s\n",
			r.Timestamp.Local().Format("2006-01-02 15:04"), r.Status, r.Name))
	}
	if start > 0 {
		sb.WriteString(fmt.Sprintf("... and %d older\n", start))
	}

	p.printBox("RESUME LEDGER", strings.TrimSuffix(sb.String(), "\n"))
}
