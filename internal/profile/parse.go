package profile

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/webasthetic/leadflow/internal/contact"
	"github.com/webasthetic/leadflow/internal/model"
)

// Details is the structured result of parsing one rendered profile page.
type Details struct {
	Name           string
	Type           model.ProfileType
	AboutText      string
	BioLinks       []string
	ContactPDFLink string
}

// aboutSelectors is tried in order. Rendered pages shift markup between
// captures, so each known layout gets an entry.
var aboutSelectors = []string{
	"#about",
	"section.summary",
	"p.break-words",
	".core-section-container__content p",
}

// subPageSuffixes are profile sub-pages that scraped anchors often point
// at; the canonical profile lives one segment up.
var subPageSuffixes = []string{"/posts", "/about", "/jobs", "/people", "/life", "/recent-activity"}

// CleanURL strips query parameters, fragments, sub-page suffixes, and
// trailing slashes from a profile URL. Scraped anchors carry per-session
// tracking junk that would make the same profile look like different ones.
func CleanURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	cleaned := strings.TrimRight(parsed.String(), "/")
	for _, suffix := range subPageSuffixes {
		cleaned = strings.TrimSuffix(cleaned, suffix)
	}
	return strings.TrimRight(cleaned, "/")
}

// DetectType classifies a profile URL as a personal or company page.
func DetectType(profileURL string) model.ProfileType {
	switch {
	case strings.Contains(profileURL, "/company/"):
		return model.ProfileTypeCompany
	case strings.Contains(profileURL, "/in/"):
		return model.ProfileTypeUser
	default:
		return model.ProfileTypeUnknown
	}
}

// Parse extracts structured details from a rendered profile page.
func Parse(page *Page) (*Details, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, eris.Wrapf(err, "profile: parse page %s", page.URL)
	}

	d := &Details{Type: DetectType(page.URL)}

	d.Name = strings.TrimSpace(doc.Find("h1").First().Text())
	d.AboutText = aboutText(doc)
	d.ContactPDFLink = contactPDFLink(doc)
	d.BioLinks = contact.Links(d.AboutText, page.HTML)

	return d, nil
}

func aboutText(doc *goquery.Document) string {
	for _, selector := range aboutSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		// The #about anchor itself is empty; the copy lives in the
		// enclosing section.
		if section := sel.Closest("section"); section.Length() > 0 {
			if text := contact.CleanText(section.Text()); text != "" {
				return text
			}
		}
		if text := contact.CleanText(sel.Text()); text != "" {
			return text
		}
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		return contact.CleanText(desc)
	}
	return ""
}

func contactPDFLink(doc *goquery.Document) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		lower := strings.ToLower(href)
		if strings.HasSuffix(lower, ".pdf") && strings.Contains(lower, "contact") {
			link = href
			return false
		}
		return true
	})
	if link != "" {
		return link
	}
	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		if strings.HasSuffix(strings.ToLower(href), ".pdf") {
			link = href
			return false
		}
		return true
	})
	return link
}
