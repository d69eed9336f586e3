package model

import "sort"

// ContactBundle is the uniform result of contact extraction: emails, phone
// numbers, and external links pulled from free text or markup. Fields are
// kept sorted and deduplicated so two bundles with the same contacts
// compare equal.
type ContactBundle struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
	Links  []string `json:"links"`
}

// NewContactBundle builds a bundle from possibly-unsorted, possibly-duplicated
// slices.
func NewContactBundle(emails, phones, links []string) ContactBundle {
	return ContactBundle{
		Emails: dedupeSorted(emails),
		Phones: dedupeSorted(phones),
		Links:  dedupeSorted(links),
	}
}

// Empty reports whether the bundle holds no contacts at all.
func (b ContactBundle) Empty() bool {
	return len(b.Emails) == 0 && len(b.Phones) == 0 && len(b.Links) == 0
}

// Merge returns the union of two bundles.
func (b ContactBundle) Merge(other ContactBundle) ContactBundle {
	return NewContactBundle(
		append(append([]string{}, b.Emails...), other.Emails...),
		append(append([]string{}, b.Phones...), other.Phones...),
		append(append([]string{}, b.Links...), other.Links...),
	)
}

func dedupeSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
