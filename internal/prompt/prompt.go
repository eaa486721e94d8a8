// Package prompt renders the versioned templates sent to the model. Given
// identical inputs a template always renders identical bytes, so scoring
// stays reproducible across retries.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
)

// Prompt is a rendered system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Template versions. Bump when wording changes so stored results can be
// attributed to the prompt that produced them.
const (
	CVScoringVersion      = "cv-scoring/v1"
	ProjectScoringVersion = "project-scoring/v1"
	SynthesisVersion      = "synthesis/v1"
)

const cvSystemTmpl = `You are a strict technical recruiter scoring a candidate CV for the {{.JobTitle}} position.
Use only the provided CV text and reference material.
Respond with a single JSON object and nothing else, matching:
{"match_rate": <number between 0 and 1>, "feedback": <string>, "parameter_scores": {<parameter>: <number between 0 and 1>}}
Score these parameters: technical_skills, experience_level, achievements, cultural_fit.`

const cvUserTmpl = `Evaluate this CV for the {{.JobTitle}} position.
{{- if .VacancyID}}
Vacancy: {{.VacancyID}}
{{- end}}
{{- if .Context}}

Reference material (job description and rubric excerpts):
{{.Context}}
{{- end}}

CV:
{{.CVText}}`

const projectSystemTmpl = `You are a strict technical reviewer scoring a candidate project report against the case study brief.
Use only the provided report text and reference material.
Respond with a single JSON object and nothing else, matching:
{"score": <number between 1 and 10>, "feedback": <string>, "parameter_scores": {<parameter>: <number between 1 and 10>}}
Score these parameters: correctness, code_quality, resilience, documentation, creativity.`

const projectUserTmpl = `Evaluate this project report for the {{.JobTitle}} position.
{{- if .Context}}

Reference material (case study brief and rubric excerpts):
{{.Context}}
{{- end}}

Project report:
{{.ProjectText}}`

const synthesisSystemTmpl = `You merge two completed evaluation axes into one concise overall summary for a hiring reviewer.
Respond with a single JSON object and nothing else, matching:
{"overall_summary": <string, 3 to 5 sentences>}`

const synthesisUserTmpl = `CV evaluation:
match_rate: {{printf "%.4f" .CVMatchRate}}
feedback: {{.CVFeedback}}

Project evaluation:
score: {{printf "%.2f" .ProjectScore}}
feedback: {{.ProjectFeedback}}`

// CVInput feeds the CV scoring templates.
type CVInput struct {
	JobTitle  string
	VacancyID string
	CVText    string
	Context   string
}

// ProjectInput feeds the project scoring templates.
type ProjectInput struct {
	JobTitle    string
	ProjectText string
	Context     string
}

// SynthesisInput feeds the synthesis templates with both axis outcomes.
type SynthesisInput struct {
	CVMatchRate     float64
	CVFeedback      string
	ProjectScore    float64
	ProjectFeedback string
}

// Builder renders the scoring prompts. The zero value is not usable; call New.
type Builder struct {
	cvSystem      *template.Template
	cvUser        *template.Template
	projectSystem *template.Template
	projectUser   *template.Template
	synthSystem   *template.Template
	synthUser     *template.Template
}

// New parses all templates once. Parse failures are programming errors and
// panic at startup.
func New() *Builder {
	return &Builder{
		cvSystem:      template.Must(template.New(CVScoringVersion + "/system").Parse(cvSystemTmpl)),
		cvUser:        template.Must(template.New(CVScoringVersion + "/user").Parse(cvUserTmpl)),
		projectSystem: template.Must(template.New(ProjectScoringVersion + "/system").Parse(projectSystemTmpl)),
		projectUser:   template.Must(template.New(ProjectScoringVersion + "/user").Parse(projectUserTmpl)),
		synthSystem:   template.Must(template.New(SynthesisVersion + "/system").Parse(synthesisSystemTmpl)),
		synthUser:     template.Must(template.New(SynthesisVersion + "/user").Parse(synthesisUserTmpl)),
	}
}

// CVScoring renders the CV axis prompt.
func (b *Builder) CVScoring(in CVInput) (Prompt, error) {
	return render(b.cvSystem, b.cvUser, in)
}

// ProjectScoring renders the project axis prompt.
func (b *Builder) ProjectScoring(in ProjectInput) (Prompt, error) {
	return render(b.projectSystem, b.projectUser, in)
}

// Synthesis renders the merge prompt from both axis outcomes.
func (b *Builder) Synthesis(in SynthesisInput) (Prompt, error) {
	return render(b.synthSystem, b.synthUser, in)
}

func render(system, user *template.Template, data any) (Prompt, error) {
	var sys, usr strings.Builder
	if err := system.Execute(&sys, data); err != nil {
		return Prompt{}, fmt.Errorf("op=prompt.render template=%s: %w", system.Name(), err)
	}
	if err := user.Execute(&usr, data); err != nil {
		return Prompt{}, fmt.Errorf("op=prompt.render template=%s: %w", user.Name(), err)
	}
	return Prompt{System: sys.String(), User: usr.String()}, nil
}
