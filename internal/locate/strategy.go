// Package locate finds target elements in page snapshots. Lookups are
// expressed as ordered lists of strategies so a new site layout is one more
// entry in a cascade rather than another branch in the engines.
package locate

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonathan/hirebot/internal/dom"
)

// Strategy finds zero or more elements under root.
type Strategy interface {
	Name() string
	Find(root *goquery.Selection) *goquery.Selection
}

// Selector matches a plain CSS selector.
func Selector(css string) Strategy {
	return selectorStrategy{css: css}
}

type selectorStrategy struct {
	css string
}

func (s selectorStrategy) Name() string { return s.css }

func (s selectorStrategy) Find(root *goquery.Selection) *goquery.Selection {
	return root.Find(s.css)
}

// Closest matches css and maps every hit to its nearest ancestor matching
// ancestorCSS. Hits without such an ancestor are dropped; duplicates collapse.
func Closest(css, ancestorCSS string) Strategy {
	return closestStrategy{css: css, ancestor: ancestorCSS}
}

type closestStrategy struct {
	css      string
	ancestor string
}

func (s closestStrategy) Name() string { return s.css + " -> " + s.ancestor }

func (s closestStrategy) Find(root *goquery.Selection) *goquery.Selection {
	out := root.Slice(0, 0)
	root.Find(s.css).Each(func(_ int, el *goquery.Selection) {
		out = out.AddSelection(el.Parent().Closest(s.ancestor))
	})
	return out
}

// ContainsText matches css elements whose text contains text.
func ContainsText(css, text string) Strategy {
	return containsStrategy{css: css, text: text}
}

type containsStrategy struct {
	css  string
	text string
}

func (s containsStrategy) Name() string { return s.css + ` contains "` + s.text + `"` }

func (s containsStrategy) Find(root *goquery.Selection) *goquery.Selection {
	return root.Find(s.css).FilterFunction(func(_ int, el *goquery.Selection) bool {
		return strings.Contains(el.Text(), s.text)
	})
}

// TextAncestor finds buttons labelled with text and climbs at most maxDepth
// ancestors from each to the first li, article, or element whose class
// mentions card or item.
func TextAncestor(buttonCSS, text string, maxDepth int) Strategy {
	return textAncestorStrategy{css: buttonCSS, text: text, depth: maxDepth}
}

type textAncestorStrategy struct {
	css   string
	text  string
	depth int
}

func (s textAncestorStrategy) Name() string { return `ancestor of ` + s.css + ` "` + s.text + `"` }

func (s textAncestorStrategy) Find(root *goquery.Selection) *goquery.Selection {
	out := root.Slice(0, 0)
	ContainsText(s.css, s.text).Find(root).Each(func(_ int, btn *goquery.Selection) {
		parent := btn.Parent()
		for depth := 0; parent.Length() > 0 && depth < s.depth; depth++ {
			if isCardLike(parent) {
				out = out.AddSelection(parent)
				return
			}
			parent = parent.Parent()
		}
	})
	return out
}

func isCardLike(el *goquery.Selection) bool {
	switch goquery.NodeName(el) {
	case "li", "article":
		return true
	}
	cls := strings.ToLower(el.AttrOr("class", ""))
	return strings.Contains(cls, "card") || strings.Contains(cls, "item")
}

// Cascade tries strategies in order.
type Cascade []Strategy

// First returns the result of the first strategy that matches anything, with
// that strategy's name. An empty selection and "" mean nothing matched.
func (c Cascade) First(root *goquery.Selection) (*goquery.Selection, string) {
	for _, s := range c {
		found := s.Find(root)
		if found.Length() > 0 {
			return found, s.Name()
		}
	}
	return root.Slice(0, 0), ""
}

// FirstEnabled returns the first element matched by the cascade that is not
// disabled.
func (c Cascade) FirstEnabled(root *goquery.Selection) *goquery.Selection {
	found, _ := c.First(root)
	return found.FilterFunction(func(_ int, el *goquery.Selection) bool {
		return !dom.IsDisabled(el)
	}).First()
}
