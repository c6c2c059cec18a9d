// Package sanitize turns untrusted HTML fragments into plain text or
// Markdown. NASA descriptions regularly embed markup, and user-submitted
// favorite fields are stripped of it before they are stored.
package sanitize

import (
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// unsafe lists elements dropped before any text is extracted.
const unsafe = "script, style, noscript, iframe, object, embed, applet, form, input, button, select, textarea"

// Text returns the visible text of an HTML fragment on a single line.
func Text(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return SingleLine(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return SingleLine(fragment)
	}
	doc.Find(unsafe).Remove()
	return SingleLine(doc.Text())
}

// Markdown converts an HTML fragment to Markdown, keeping links and
// emphasis. It falls back to Text when conversion fails.
func Markdown(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return Text(fragment)
	}
	doc.Find(unsafe).Remove()
	html, err := doc.Find("body").Html()
	if err != nil {
		return Text(fragment)
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return Text(fragment)
	}
	return strings.TrimSpace(md)
}

// SingleLine trims and collapses internal whitespace/newlines to single spaces.
func SingleLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}
