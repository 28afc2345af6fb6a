package proxy

import (
	"net/url"
	"regexp"
)

var cssURLPattern = regexp.MustCompile(`url\(['"]?([^'")\s]+)['"]?\)`)

// RewriteCSS rewrites url(...) references in a stylesheet to the proxy
// route for sessionID. Quoting is normalized to single quotes.
func RewriteCSS(css string, pageOrigin *url.URL, sessionID string) string {
	return cssURLPattern.ReplaceAllStringFunc(css, func(match string) string {
		groups := cssURLPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		return "url('" + Rewrite(groups[1], pageOrigin, sessionID) + "')"
	})
}
