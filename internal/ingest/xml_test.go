package ingest

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseXML_RSS(t *testing.T) {
	text := `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>City events</title>
    <item>
      <title>Farmers Market</title>
      <link>https://example.com/market</link>
      <description><![CDATA[<p>Fresh <b>produce</b> &amp; more</p>]]></description>
      <pubDate>Sat, 07 Jun 2025 08:00:00 GMT</pubDate>
    </item>
    <item>
      <title></title>
      <description>untitled item is skipped</description>
    </item>
    <item>
      <title>Link only</title>
      <link>https://example.com/x</link>
    </item>
  </channel>
</rss>`

	events, err := ParseXML(text, testStamp)
	if err != nil {
		t.Fatalf("ParseXML error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	m := events[0]
	if m.Title != "Farmers Market" {
		t.Errorf("unexpected title %q", m.Title)
	}
	if m.Description != "Fresh produce & more\nhttps://example.com/market" {
		t.Errorf("unexpected description %q", m.Description)
	}
	if m.Start == nil || !m.Start.Equal(time.Date(2025, 6, 7, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected start %v", m.Start)
	}
	if m.End != nil {
		t.Errorf("RSS items never carry an end, got %v", m.End)
	}
	if events[1].Description != "\nhttps://example.com/x" {
		t.Errorf("unexpected link-only description %q", events[1].Description)
	}
}

func TestParseXML_RSSTruncatesDescription(t *testing.T) {
	long := strings.Repeat("é", 400)
	text := `<rss><channel><item><title>Long</title><description>` + long + `</description></item></channel></rss>`

	events, _ := ParseXML(text, testStamp)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if n := len([]rune(events[0].Description)); n != 300 {
		t.Errorf("description has %d runes, want 300", n)
	}
}

func TestParseXML_Atom(t *testing.T) {
	text := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Release feed</title>
  <entry>
    <title>v1.0 released</title>
    <updated>2025-05-01T12:00:00Z</updated>
    <content type="html">&lt;p&gt;Big release&lt;/p&gt;</content>
  </entry>
  <entry>
    <title>v1.1 released</title>
    <published>2025-06-01T12:00:00Z</published>
    <updated>2025-06-02T12:00:00Z</updated>
    <summary>Small fixes</summary>
  </entry>
</feed>`

	events, err := ParseXML(text, testStamp)
	if err != nil {
		t.Fatalf("ParseXML error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Description != "Big release" {
		t.Errorf("content fallback not stripped: %q", events[0].Description)
	}
	if events[0].Start == nil || events[0].Start.Month() != time.May {
		t.Errorf("updated fallback not used: %v", events[0].Start)
	}
	if events[1].Start == nil || events[1].Start.Day() != 1 {
		t.Errorf("published should win over updated: %v", events[1].Start)
	}
	if events[1].Description != "Small fixes" {
		t.Errorf("unexpected summary: %q", events[1].Description)
	}
}

func TestParseXML_GenericEvents(t *testing.T) {
	text := `<events>
  <event title="Board meeting" start="2025-06-05 14:00" location="HQ"/>
  <event>
    <name>Workshop</name>
    <date>06/12/2025</date>
    <finish>06/12/2025 5:00 PM</finish>
    <venue>Library</venue>
    <details>Bring laptop</details>
  </event>
  <event location="nowhere"/>
</events>`

	events, err := ParseXML(text, testStamp)
	if err != nil {
		t.Fatalf("ParseXML error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Title != "Board meeting" || events[0].Location != "HQ" || events[0].Start == nil {
		t.Errorf("attribute fallback failed: %+v", events[0])
	}
	w := events[1]
	if w.Title != "Workshop" || w.Location != "Library" || w.Description != "Bring laptop" {
		t.Errorf("child lookup failed: %+v", w)
	}
	if w.End == nil || w.End.Hour() != 17 {
		t.Errorf("unexpected end: %v", w.End)
	}
}

func TestParseXML_Malformed(t *testing.T) {
	events, err := ParseXML(`<rss><channel><item><title>oops</channel>`, testStamp)
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("err = %v, want ErrMalformed", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestStripMarkup(t *testing.T) {
	tests := map[string]string{
		"<p>Hello <em>world</em></p>": "Hello world",
		"a &lt; b":                    "a < b",
		"  plain  ":                   "plain",
		"":                            "",
	}
	for in, want := range tests {
		if got := stripMarkup(in); got != want {
			t.Errorf("stripMarkup(%q) = %q, want %q", in, got, want)
		}
	}
}
