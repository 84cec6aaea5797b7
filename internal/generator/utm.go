package generator

import (
	"net/url"
	"strings"

	"mvdan.cc/xurls/v2"
)

// TaggedURL returns rawURL with UTM parameters applied. defaults is a query
// string such as "utm_source=promoter&utm_medium=social"; campaign, when
// set, overrides utm_campaign. Parameters already on the URL survive unless
// overridden.
func TaggedURL(rawURL, defaults, campaign string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return rawURL
	}

	desired, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(defaults), "?"))
	if err != nil {
		desired = url.Values{}
	}

	if campaign = strings.TrimSpace(campaign); campaign != "" {
		desired.Set("utm_campaign", campaign)
	}

	if len(desired) == 0 {
		return u.String()
	}

	q := u.Query()
	for k, vs := range desired {
		q[k] = vs
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// retagLinks swaps any link to the same page as target for tagged, so a
// model that drops or mangles the query string still posts the tracked URL.
func retagLinks(text, target, tagged string) string {
	want, err := url.Parse(target)
	if err != nil || want.Host == "" {
		return text
	}

	return xurls.Strict().ReplaceAllStringFunc(text, func(found string) string {
		got, parseErr := url.Parse(found)
		if parseErr != nil || !samePage(got, want) {
			return found
		}

		return tagged
	})
}

func samePage(a, b *url.URL) bool {
	return strings.EqualFold(strings.TrimPrefix(a.Host, "www."), strings.TrimPrefix(b.Host, "www.")) &&
		strings.TrimSuffix(a.Path, "/") == strings.TrimSuffix(b.Path, "/")
}
