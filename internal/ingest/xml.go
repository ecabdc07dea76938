package ingest

import (
	"html"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/microcosm-cc/bluemonday"

	"evstage/internal/dates"
	"evstage/internal/model"
)

// maxFeedDescription caps RSS/Atom descriptions, counted in runes.
const maxFeedDescription = 300

// Child element names tried for generic <event> records, in priority order.
// Each list is tried again as attributes of the <event> element.
var (
	xmlTitleNames    = []string{"title", "name", "summary"}
	xmlStartNames    = []string{"start", "date", "when"}
	xmlEndNames      = []string{"end", "finish"}
	xmlLocationNames = []string{"location", "place", "venue"}
	xmlDescNames     = []string{"description", "details", "notes"}
)

// stripPolicy removes all markup. Shared because building a policy is not
// free and a built policy is safe for concurrent use.
var (
	stripPolicy     *bluemonday.Policy
	stripPolicyOnce sync.Once
)

func getStripPolicy() *bluemonday.Policy {
	stripPolicyOnce.Do(func() {
		stripPolicy = bluemonday.StrictPolicy()
	})
	return stripPolicy
}

// ParseXML reads RSS items, Atom entries or generic <event> elements,
// whichever appears first in that priority order. Records without a title
// are skipped.
func ParseXML(text string, stamp model.Stamp) ([]model.Event, error) {
	doc, err := xmlquery.Parse(strings.NewReader(text))
	if err != nil {
		return nil, malformed("xml", err.Error())
	}

	if items := xmlquery.Find(doc, "//item"); len(items) > 0 {
		return parseRSSItems(items, stamp), nil
	}
	if entries := xmlquery.Find(doc, "//entry"); len(entries) > 0 {
		return parseAtomEntries(entries, stamp), nil
	}
	return parseGenericEvents(xmlquery.Find(doc, "//event"), stamp), nil
}

func parseRSSItems(items []*xmlquery.Node, stamp model.Stamp) []model.Event {
	events := make([]model.Event, 0, len(items))
	for _, item := range items {
		ev := stamp.New(childText(item, "title"))
		if !ev.HasTitle() {
			continue
		}
		// Publication date is the only date a feed item has; there is no end.
		ev.Start = dates.NormalizePtr(childText(item, "pubDate"))

		desc := truncateRunes(stripMarkup(childText(item, "description")), maxFeedDescription)
		if link := childText(item, "link"); link != "" {
			desc += "\n" + link
		}
		ev.Description = desc
		events = append(events, ev)
	}
	return events
}

func parseAtomEntries(entries []*xmlquery.Node, stamp model.Stamp) []model.Event {
	events := make([]model.Event, 0, len(entries))
	for _, entry := range entries {
		ev := stamp.New(childText(entry, "title"))
		if !ev.HasTitle() {
			continue
		}
		ev.Start = dates.NormalizePtr(firstChildText(entry, "published", "updated"))
		ev.Description = truncateRunes(stripMarkup(firstChildText(entry, "summary", "content")), maxFeedDescription)
		events = append(events, ev)
	}
	return events
}

func parseGenericEvents(nodes []*xmlquery.Node, stamp model.Stamp) []model.Event {
	events := make([]model.Event, 0, len(nodes))
	for _, n := range nodes {
		ev := stamp.New(childOrAttr(n, xmlTitleNames))
		if !ev.HasTitle() {
			continue
		}
		ev.Start = dates.NormalizePtr(childOrAttr(n, xmlStartNames))
		ev.End = dates.NormalizePtr(childOrAttr(n, xmlEndNames))
		ev.Location = childOrAttr(n, xmlLocationNames)
		ev.Description = childOrAttr(n, xmlDescNames)
		events = append(events, ev)
	}
	return events
}

// childText returns the trimmed text of the first descendant named name.
func childText(n *xmlquery.Node, name string) string {
	c := xmlquery.FindOne(n, ".//"+name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.InnerText())
}

func firstChildText(n *xmlquery.Node, names ...string) string {
	for _, name := range names {
		if s := childText(n, name); s != "" {
			return s
		}
	}
	return ""
}

// childOrAttr tries descendants first, then attributes of n itself.
func childOrAttr(n *xmlquery.Node, names []string) string {
	if s := firstChildText(n, names...); s != "" {
		return s
	}
	for _, name := range names {
		if s := strings.TrimSpace(n.SelectAttr(name)); s != "" {
			return s
		}
	}
	return ""
}

// stripMarkup drops every tag and decodes entities, leaving plain text.
func stripMarkup(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(getStripPolicy().Sanitize(s)))
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
