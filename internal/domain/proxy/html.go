package proxy

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// rewriteTargets maps element selectors to the attribute whose URL is
// rewritten.
var rewriteTargets = []struct {
	selector string
	attr     string
}{
	{"a", "href"},
	{"form", "action"},
	{"img", "src"},
	{"script", "src"},
	{"iframe", "src"},
	{"link", "href"},
}

// RewriteHTML rewrites every navigable URL in an HTML document to the
// proxy route for sessionID and injects the navigation interception
// script and compatibility styles. It also returns the document title.
// A parse failure is returned to the caller, which degrades to serving
// the original body.
func RewriteHTML(body []byte, pageOrigin *url.URL, sessionID string) (rewritten []byte, title string, err error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	for _, target := range rewriteTargets {
		attr := target.attr
		doc.Find(target.selector).Each(func(_ int, sel *goquery.Selection) {
			raw, ok := sel.Attr(attr)
			if !ok || raw == "" {
				return
			}
			// In-page fragments stay untouched.
			if strings.HasPrefix(raw, "#") {
				return
			}
			sel.SetAttr(attr, Rewrite(raw, pageOrigin, sessionID))
		})
	}

	// Inline style blocks carry url(...) references of their own.
	doc.Find("style").Each(func(_ int, sel *goquery.Selection) {
		sel.SetText(RewriteCSS(sel.Text(), pageOrigin, sessionID))
	})

	title = strings.TrimSpace(doc.Find("title").First().Text())

	injection := compatStylesheet + interceptionScript
	if sel := doc.Find("body"); sel.Length() > 0 {
		sel.AppendHtml(injection)
	} else {
		doc.Find("html").AppendHtml(injection)
	}

	out, err := doc.Html()
	if err != nil {
		return nil, "", err
	}
	return []byte(out), title, nil
}
