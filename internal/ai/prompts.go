package ai

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/extraction.md
var extractionPromptRaw string

// ExtractionTemplate is the parsed user prompt for posting extraction.
// Parsed once at package init; reused on every Extract call.
var ExtractionTemplate = template.Must(template.New("extraction").Parse(extractionPromptRaw))

// extractionSystemPrompt is sent as the system message with every extraction.
const extractionSystemPrompt = "You are a job posting data extraction assistant. " +
	"You read career page content and return structured job postings as a JSON array. " +
	"Respond with JSON only."
