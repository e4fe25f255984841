package solver

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	DEFAULT_CHALLENGE_SELECTOR = "#cf-wrapper, #turnstile-wrapper, #ie-container, #turnstile-box, .cf-turnstile"

	SITEKEY_ATTRIBUTE = "data-sitekey"
)

// Widget kinds found by FindSiteKey
const (
	WidgetTurnstile = "turnstile"
	WidgetRecaptcha = "recaptcha"
	WidgetUnknown   = "unknown"
)

var sitekeySelectors = []struct {
	selector string
	widget   string
}{
	{selector: ".cf-turnstile[data-sitekey]", widget: WidgetTurnstile},
	{selector: ".g-recaptcha[data-sitekey]", widget: WidgetRecaptcha},
	{selector: "[data-sitekey]", widget: WidgetUnknown},
}

// Find captcha site key in the document.
//
// Returns empty key if no widget is rendered with data-sitekey
func FindSiteKey(doc *goquery.Document) (key, widget string) {
	if doc == nil {
		return "", ""
	}

	for _, s := range sitekeySelectors {
		value, ok := doc.Find(s.selector).First().Attr(SITEKEY_ATTRIBUTE)
		if value = strings.TrimSpace(value); ok && value != "" {
			return value, s.widget
		}
	}
	return "", ""
}

// Check if document shows a challenge.
//
// Uses DEFAULT_CHALLENGE_SELECTOR when selector is empty
func HasChallenge(doc *goquery.Document, selector string) bool {
	if doc == nil {
		return false
	}
	if selector == "" {
		selector = DEFAULT_CHALLENGE_SELECTOR
	}
	return doc.Find(selector).Length() > 0
}
