package ai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"text/template"

	"github.com/amishk599/jobwatch/internal/model"
)

// mockProvider is a stub CompletionProvider for testing.
type mockProvider struct {
	response   string
	err        error
	calls      int
	lastUser   string
	lastSystem string
}

func (m *mockProvider) Complete(_ context.Context, system, user string) (string, error) {
	m.calls++
	m.lastSystem = system
	m.lastUser = user
	return m.response, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExtractor(provider model.CompletionProvider, limit int) *Extractor {
	tmpl := template.Must(template.New("test").Parse("{{.Company}}|{{.Content}}"))
	return NewExtractor(provider, tmpl, limit, discardLogger())
}

func testUnit(content string) model.RawUnit {
	return model.RawUnit{
		SourceID: "src-1",
		Company:  "Acme",
		URL:      "https://acme.example/careers",
		Content:  content,
	}
}

func TestExtract_CommentaryAroundArray(t *testing.T) {
	p := &mockProvider{response: `Here you go: [{"title":"X"}] thanks`}
	got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("page"))

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.Title != "X" {
		t.Errorf("Title = %q, want X", c.Title)
	}
	if c.Location != nil || c.JobType != nil || c.ExperienceLevel != nil || c.Description != nil || c.Requirements != nil {
		t.Errorf("optional fields should all be nil: %+v", c)
	}
	if c.URL != "https://acme.example/careers" {
		t.Errorf("URL = %q, want the page URL fallback", c.URL)
	}
	if c.SourceID != "src-1" || c.Company != "Acme" {
		t.Errorf("source enrichment missing: %+v", c)
	}
	if c.Raw.Content != "page" {
		t.Errorf("raw unit not retained: %+v", c.Raw)
	}
}

func TestExtract_EmptyResults(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"no brackets", "no jobs"},
		{"empty array", "[]"},
		{"object instead of array", `{"title":"X"}`},
		{"broken json", `[{"title": "X",]`},
		{"reversed brackets", `] nothing [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &mockProvider{response: tt.response}
			got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("page"))
			if len(got) != 0 {
				t.Errorf("got %d candidates, want 0", len(got))
			}
		})
	}
}

func TestExtract_DropsElementsWithoutTitle(t *testing.T) {
	p := &mockProvider{response: `[
		{"location":"NY"},
		{"title":"   ", "location":"SF"},
		{"title":null},
		"just a string",
		42,
		{"title":"Kept", "location":" Remote ", "job_type":"", "url":"https://acme.example/jobs/1"}
	]`}
	got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("page"))

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1: %+v", len(got), got)
	}
	c := got[0]
	if c.Title != "Kept" {
		t.Errorf("Title = %q", c.Title)
	}
	if c.Location == nil || *c.Location != "Remote" {
		t.Errorf("Location = %v, want trimmed Remote", c.Location)
	}
	if c.JobType != nil {
		t.Errorf("blank job_type should be nil, got %q", *c.JobType)
	}
	if c.URL != "https://acme.example/jobs/1" {
		t.Errorf("URL = %q, want model-supplied URL", c.URL)
	}
}

func TestExtract_TolerantFieldTypes(t *testing.T) {
	p := &mockProvider{response: `[{"title":"SRE","experience_level":5,"location":{"city":"Berlin"},"requirements":["go","k8s"]}]`}
	got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("page"))

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].ExperienceLevel == nil || *got[0].ExperienceLevel != "5" {
		t.Errorf("ExperienceLevel = %v, want \"5\"", got[0].ExperienceLevel)
	}
	if got[0].Location != nil {
		t.Errorf("object location should decode to nil")
	}
	if got[0].Requirements != nil {
		t.Errorf("array requirements should decode to nil")
	}
}

func TestExtract_ProviderErrorYieldsEmpty(t *testing.T) {
	p := &mockProvider{err: errors.New("connection refused")}
	got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("page"))
	if len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
}

func TestExtract_EmptyContentSkipsProvider(t *testing.T) {
	p := &mockProvider{response: `[{"title":"X"}]`}
	got := newTestExtractor(p, 0).Extract(context.Background(), testUnit("  \n "))
	if len(got) != 0 {
		t.Errorf("got %d candidates, want 0", len(got))
	}
	if p.calls != 0 {
		t.Errorf("provider called %d times, want 0", p.calls)
	}
}

func TestExtract_TruncatesContent(t *testing.T) {
	p := &mockProvider{response: "[]"}
	content := strings.Repeat("é", 50)
	newTestExtractor(p, 10).Extract(context.Background(), testUnit(content))

	want := "Acme|" + strings.Repeat("é", 10)
	if p.lastUser != want {
		t.Errorf("prompt = %q, want %q", p.lastUser, want)
	}
	if p.lastSystem != extractionSystemPrompt {
		t.Errorf("system prompt = %q", p.lastSystem)
	}
}

func TestExtractionTemplate_RendersFields(t *testing.T) {
	var sb strings.Builder
	err := ExtractionTemplate.Execute(&sb, struct {
		Company string
		URL     string
		Content string
	}{"Acme", "https://acme.example", "BODY"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"Acme", "https://acme.example", "BODY", "JSON array"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered prompt missing %q", want)
		}
	}
}
