// Package matcher decides which subscribers should hear about a posting.
package matcher

import (
	"slices"
	"strings"

	"github.com/amishk599/jobwatch/internal/model"
)

// Matches reports whether the posting satisfies every constraint in the
// subscriber's preference filter. Dimensions are checked in a fixed order
// and short-circuit. A nil posting value on a constrained dimension fails.
func Matches(sub model.Subscriber, p model.Posting) bool {
	prefs := sub.Preferences
	if prefs.IsEmpty() {
		return true
	}

	if len(prefs.Locations) > 0 {
		if p.Location == nil {
			return false
		}
		matched := false
		for _, loc := range prefs.Locations {
			if LocationMatches(*p.Location, loc) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	// Job type and experience level compare verbatim.
	if len(prefs.JobTypes) > 0 {
		if p.JobType == nil || !slices.Contains(prefs.JobTypes, *p.JobType) {
			return false
		}
	}

	if len(prefs.ExperienceLevels) > 0 {
		if p.ExperienceLevel == nil || !slices.Contains(prefs.ExperienceLevels, *p.ExperienceLevel) {
			return false
		}
	}

	if len(prefs.SourceIDs) > 0 && !slices.Contains(prefs.SourceIDs, p.SourceID) {
		return false
	}

	return true
}

// LocationMatches compares a posting location with one preferred location,
// case-insensitively after trimming. It tries, in order: exact equality,
// both mentioning "remote", then either containing the other (so
// "San Francisco" matches "San Francisco, CA").
func LocationMatches(posted, preferred string) bool {
	a := strings.ToLower(strings.TrimSpace(posted))
	b := strings.ToLower(strings.TrimSpace(preferred))

	if a == b {
		return true
	}
	if strings.Contains(a, "remote") && strings.Contains(b, "remote") {
		return true
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// FindRecipients returns the subscribers whose filters accept the posting,
// in input order. A subscriber listed twice is returned once.
func FindRecipients(p model.Posting, subs []model.Subscriber) []model.Subscriber {
	var out []model.Subscriber
	seen := make(map[string]bool, len(subs))
	for _, s := range subs {
		if seen[s.ID] {
			continue
		}
		if Matches(s, p) {
			seen[s.ID] = true
			out = append(out, s)
		}
	}
	return out
}
