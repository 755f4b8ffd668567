package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/amishk599/jobwatch/internal/model"
)

// DefaultContentLimit is the number of characters of page content sent to
// the model when no limit is configured.
const DefaultContentLimit = 8000

// Extractor turns fetched page content into candidate postings using a
// completion provider.
type Extractor struct {
	provider     model.CompletionProvider
	tmpl         *template.Template
	contentLimit int
	logger       *slog.Logger
}

// NewExtractor creates an extractor. contentLimit caps the characters of
// page content embedded in the prompt; zero or less uses DefaultContentLimit.
func NewExtractor(provider model.CompletionProvider, tmpl *template.Template, contentLimit int, logger *slog.Logger) *Extractor {
	if contentLimit <= 0 {
		contentLimit = DefaultContentLimit
	}
	return &Extractor{
		provider:     provider,
		tmpl:         tmpl,
		contentLimit: contentLimit,
		logger:       logger,
	}
}

// Extract returns the candidate postings found in unit. It never fails:
// provider errors and unparseable responses are logged and yield no
// candidates, so the caller can move on to the next unit.
func (e *Extractor) Extract(ctx context.Context, unit model.RawUnit) []model.Candidate {
	if strings.TrimSpace(unit.Content) == "" {
		return nil
	}

	var promptBuf bytes.Buffer
	if err := e.tmpl.Execute(&promptBuf, struct {
		Company string
		URL     string
		Content string
	}{
		Company: unit.Company,
		URL:     unit.URL,
		Content: truncate(unit.Content, e.contentLimit),
	}); err != nil {
		e.logger.Error("render extraction prompt", "source", unit.SourceID, "error", err)
		return nil
	}

	raw, err := e.provider.Complete(ctx, extractionSystemPrompt, promptBuf.String())
	if err != nil {
		e.logger.Warn("extraction failed",
			"source", unit.SourceID,
			"url", unit.URL,
			"error", &model.TransportError{Transport: "completion", Err: err},
		)
		return nil
	}

	candidates, err := parseCandidates(raw, unit)
	if err != nil {
		e.logger.Warn("discarding extraction response",
			"source", unit.SourceID,
			"url", unit.URL,
			"error", err,
		)
		return nil
	}

	e.logger.Debug("extracted candidates", "source", unit.SourceID, "url", unit.URL, "count", len(candidates))
	return candidates
}

// truncate returns at most limit characters of s without splitting a rune.
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

// rawPosting is the element shape the prompt asks for. Every field is
// tolerant of nulls and unexpected types.
type rawPosting struct {
	Title           optString `json:"title"`
	Location        optString `json:"location"`
	JobType         optString `json:"job_type"`
	ExperienceLevel optString `json:"experience_level"`
	Description     optString `json:"description"`
	Requirements    optString `json:"requirements"`
	URL             optString `json:"url"`
}

// optString decodes a JSON string (trimmed, blank becomes nil) or number
// (kept as its literal text). Anything else decodes to nil.
type optString struct {
	v *string
}

func (o *optString) UnmarshalJSON(b []byte) error {
	o.v = nil
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch c := b[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		if s = strings.TrimSpace(s); s != "" {
			o.v = &s
		}
	case c == '-' || (c >= '0' && c <= '9'):
		s := string(b)
		o.v = &s
	}
	return nil
}

// parseCandidates parses the span between the first '[' and the last ']'
// of the model response. Elements without a title are dropped.
func parseCandidates(raw string, unit model.RawUnit) ([]model.Candidate, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end < start {
		return nil, &model.MalformedExtractionError{Reason: "no JSON array in response"}
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw[start:end+1]), &elems); err != nil {
		return nil, &model.MalformedExtractionError{Reason: "invalid JSON array", Err: err}
	}

	var out []model.Candidate
	for _, elem := range elems {
		var rp rawPosting
		if err := json.Unmarshal(elem, &rp); err != nil {
			// Not an object.
			continue
		}
		if rp.Title.v == nil {
			continue
		}

		c := model.Candidate{
			SourceID:        unit.SourceID,
			Company:         unit.Company,
			Title:           *rp.Title.v,
			Location:        rp.Location.v,
			JobType:         rp.JobType.v,
			ExperienceLevel: rp.ExperienceLevel.v,
			Description:     rp.Description.v,
			Requirements:    rp.Requirements.v,
			URL:             unit.URL,
			Raw:             unit,
		}
		if rp.URL.v != nil {
			c.URL = *rp.URL.v
		}
		out = append(out, c)
	}
	return out, nil
}
