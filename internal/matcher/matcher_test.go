package matcher

import (
	"testing"

	"github.com/amishk599/jobwatch/internal/model"
)

func strPtr(s string) *string { return &s }

func sub(id string, prefs model.PreferenceFilter) model.Subscriber {
	return model.Subscriber{ID: id, Email: id + "@example.com", Preferences: prefs, Active: true}
}

func TestMatches(t *testing.T) {
	tests := []struct {
		name    string
		prefs   model.PreferenceFilter
		posting model.Posting
		want    bool
	}{
		{
			name:    "empty filter matches anything",
			prefs:   model.PreferenceFilter{},
			posting: model.Posting{Title: "Anything"},
			want:    true,
		},
		{
			name:    "remote preference matches remote variant",
			prefs:   model.PreferenceFilter{Locations: []string{"Remote"}},
			posting: model.Posting{Location: strPtr("Remote - US")},
			want:    true,
		},
		{
			name:    "remote preference rejects Berlin",
			prefs:   model.PreferenceFilter{Locations: []string{"Remote"}},
			posting: model.Posting{Location: strPtr("Berlin")},
			want:    false,
		},
		{
			name:    "location constraint rejects nil location",
			prefs:   model.PreferenceFilter{Locations: []string{"Remote"}},
			posting: model.Posting{},
			want:    false,
		},
		{
			name:    "second preferred location can match",
			prefs:   model.PreferenceFilter{Locations: []string{"Berlin", "San Francisco"}},
			posting: model.Posting{Location: strPtr("San Francisco, CA")},
			want:    true,
		},
		{
			name:    "job type mismatch",
			prefs:   model.PreferenceFilter{JobTypes: []string{"Contract"}},
			posting: model.Posting{JobType: strPtr("Full-time")},
			want:    false,
		},
		{
			name:    "job type is case sensitive",
			prefs:   model.PreferenceFilter{JobTypes: []string{"full-time"}},
			posting: model.Posting{JobType: strPtr("Full-time")},
			want:    false,
		},
		{
			name:    "job type constraint rejects nil",
			prefs:   model.PreferenceFilter{JobTypes: []string{"Full-time"}},
			posting: model.Posting{},
			want:    false,
		},
		{
			name:    "experience level match",
			prefs:   model.PreferenceFilter{ExperienceLevels: []string{"Senior", "Mid"}},
			posting: model.Posting{ExperienceLevel: strPtr("Mid")},
			want:    true,
		},
		{
			name:    "experience level constraint rejects nil",
			prefs:   model.PreferenceFilter{ExperienceLevels: []string{"Senior"}},
			posting: model.Posting{},
			want:    false,
		},
		{
			name:    "source allow-list match",
			prefs:   model.PreferenceFilter{SourceIDs: []string{"src-a"}},
			posting: model.Posting{SourceID: "src-a"},
			want:    true,
		},
		{
			name:    "source allow-list miss",
			prefs:   model.PreferenceFilter{SourceIDs: []string{"src-a"}},
			posting: model.Posting{SourceID: "src-b"},
			want:    false,
		},
		{
			name: "all dimensions satisfied",
			prefs: model.PreferenceFilter{
				Locations:        []string{"new york"},
				JobTypes:         []string{"Full-time"},
				ExperienceLevels: []string{"Senior"},
				SourceIDs:        []string{"src-a"},
			},
			posting: model.Posting{
				SourceID:        "src-a",
				Location:        strPtr("New York, NY"),
				JobType:         strPtr("Full-time"),
				ExperienceLevel: strPtr("Senior"),
			},
			want: true,
		},
		{
			name: "one failing dimension rejects",
			prefs: model.PreferenceFilter{
				Locations: []string{"new york"},
				JobTypes:  []string{"Contract"},
			},
			posting: model.Posting{
				Location: strPtr("New York, NY"),
				JobType:  strPtr("Full-time"),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Matches(sub("u1", tt.prefs), tt.posting)
			if got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLocationMatches(t *testing.T) {
	tests := []struct {
		posted, preferred string
		want              bool
	}{
		{"Berlin", "berlin", true},
		{"  Berlin ", "BERLIN", true},
		{"Remote (EU)", "Fully remote", true},
		{"San Francisco", "San Francisco, CA", true},
		{"San Francisco, CA", "san francisco", true},
		{"Berlin", "Munich", false},
		{"Remote - US", "US", true},
	}
	for _, tt := range tests {
		if got := LocationMatches(tt.posted, tt.preferred); got != tt.want {
			t.Errorf("LocationMatches(%q, %q) = %v, want %v", tt.posted, tt.preferred, got, tt.want)
		}
	}
}

func TestFindRecipients(t *testing.T) {
	posting := model.Posting{SourceID: "src-a", Location: strPtr("Remote")}
	subs := []model.Subscriber{
		sub("all", model.PreferenceFilter{}),
		sub("berlin", model.PreferenceFilter{Locations: []string{"Berlin"}}),
		sub("remote", model.PreferenceFilter{Locations: []string{"remote"}}),
		sub("all", model.PreferenceFilter{}),
	}

	got := FindRecipients(posting, subs)
	if len(got) != 2 {
		t.Fatalf("FindRecipients returned %d subscribers, want 2: %+v", len(got), got)
	}
	if got[0].ID != "all" || got[1].ID != "remote" {
		t.Errorf("FindRecipients order = [%s %s], want [all remote]", got[0].ID, got[1].ID)
	}
}

func TestFindRecipients_NoSubscribers(t *testing.T) {
	if got := FindRecipients(model.Posting{}, nil); len(got) != 0 {
		t.Errorf("FindRecipients(nil) = %v, want empty", got)
	}
}
