package notifier

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"

	"github.com/amishk599/jobwatch/internal/model"
)

//go:embed templates/email.html
var emailHTML string

var emailTemplate = template.Must(template.New("email").Parse(emailHTML))

const notSpecified = "Not specified"

type emailView struct {
	Title           string
	Company         string
	Location        string
	JobType         string
	ExperienceLevel string
	Description     string
	Requirements    string
	URL             string
}

func orDefault(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

// emailSubject returns the subject line for a posting notification.
func emailSubject(p *model.Posting) string {
	return fmt.Sprintf("New Job Match: %s at %s", p.Title, p.Company)
}

// renderEmail renders the HTML body for a posting. Missing optional fields
// read "Not specified".
func renderEmail(p *model.Posting) (string, error) {
	view := emailView{
		Title:           p.Title,
		Company:         p.Company,
		Location:        orDefault(p.Location, notSpecified),
		JobType:         orDefault(p.JobType, notSpecified),
		ExperienceLevel: orDefault(p.ExperienceLevel, notSpecified),
		Description:     orDefault(p.Description, "No description available"),
		Requirements:    orDefault(p.Requirements, "No requirements specified"),
		URL:             p.URL,
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
