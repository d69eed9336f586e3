// Package contact extracts structured contact data (emails, phone numbers,
// external links) from free text and HTML markup. It is a pure library:
// the post-extraction stages, the deep scraper, and the profile-intel stage
// all call into it with the same contract.
package contact

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/webasthetic/leadflow/internal/model"
)

var (
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	// Bare URLs in plain text: explicit scheme or a www. mention.
	textLinkRe = regexp.MustCompile(`(?:https?://[^\s]+|www\.[^\s]+)`)
	digitsRe   = regexp.MustCompile(`\D`)
	wsRe       = regexp.MustCompile(`\s+`)
	newlinesRe = regexp.MustCompile(`\n+`)
)

// Navigation fragments and domains that never carry lead contact value.
var (
	internalPathFragments = []string{"/search/", "/feed/", "/people/", "/in/"}
	filteredDomains       = []string{"w3.org", "schema.org", "linkedin.com", "google.com"}
)

// minPhoneDigits rejects short numeric noise (years, zip codes) that the
// loose phone pattern would otherwise accept.
const minPhoneDigits = 10

// Extract parses text and optional HTML markup into a ContactBundle.
// Markup may be empty; link harvesting then relies on bare-URL mentions in
// the text alone.
func Extract(text, markup string) model.ContactBundle {
	return model.NewContactBundle(
		Emails(text),
		Phones(text),
		Links(text, markup),
	)
}

// Emails returns the lowercased, deduplicated email addresses found in text.
func Emails(text string) []string {
	if text == "" {
		return nil
	}
	matches := emailRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.ToLower(m))
	}
	return out
}

// Phones returns phone-number candidates with at least minPhoneDigits
// digits, whitespace-normalized.
func Phones(text string) []string {
	if text == "" {
		return nil
	}
	matches := phoneRe.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimSpace(wsRe.ReplaceAllString(m, " "))
		if m == "" {
			continue
		}
		digits := digitsRe.ReplaceAllString(m, "")
		if len(digits) < minPhoneDigits {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Links harvests external URLs from markup anchor attributes and bare-URL
// mentions in text. Redirect wrappers are unwrapped, internal navigation
// and known non-content domains are dropped.
func Links(text, markup string) []string {
	var out []string

	if markup != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
		if err == nil {
			doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
				href, ok := sel.Attr("href")
				if !ok {
					return
				}
				if link, keep := normalizeLink(href); keep {
					out = append(out, link)
				}
			})
		}
	}

	for _, raw := range textLinkRe.FindAllString(text, -1) {
		candidate := strings.TrimRight(raw, `).,;"'`)
		if strings.HasPrefix(candidate, "www.") {
			candidate = "https://" + candidate
		}
		if link, keep := normalizeLink(candidate); keep {
			out = append(out, link)
		}
	}

	return out
}

// UnwrapRedirect resolves redirect-wrapper URLs (an outer domain carrying
// the real target in a url= query parameter) to their embedded target.
// Anything else is returned unchanged.
func UnwrapRedirect(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if !strings.Contains(parsed.Path, "redir") {
		return raw
	}
	if target := parsed.Query().Get("url"); target != "" {
		return target
	}
	return raw
}

// normalizeLink unwraps and filters a single candidate URL. The second
// return value is false when the link should be discarded.
func normalizeLink(raw string) (string, bool) {
	link := UnwrapRedirect(raw)
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		return "", false
	}

	lower := strings.ToLower(link)
	for _, frag := range internalPathFragments {
		if strings.Contains(lower, frag) {
			return "", false
		}
	}
	for _, dom := range filteredDomains {
		if strings.Contains(lower, dom) {
			return "", false
		}
	}
	return link, true
}

// CleanText collapses repeated newlines and trims the result. Scraped post
// bodies arrive with heavy vertical padding that wastes prompt tokens.
func CleanText(text string) string {
	if text == "" {
		return ""
	}
	collapsed := newlinesRe.ReplaceAllString(text, "\n")
	return strings.TrimSpace(collapsed)
}
