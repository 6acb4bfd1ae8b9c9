// Package coach runs the per-turn coaching pipeline: usage gating,
// user context assembly, training-content retrieval and the LLM call.
package coach

import "strings"

// Persona selects which system prompt and retrieval profile a turn
// uses. Unknown values resolve to PersonaCoach.
type Persona int

const (
	PersonaCoach Persona = iota
	PersonaReport
	PersonaTrainer
)

func (p Persona) String() string {
	switch p {
	case PersonaReport:
		return "report"
	case PersonaTrainer:
		return "trainer"
	default:
		return "coach"
	}
}

// PersonaConfig is the static profile behind each persona.
type PersonaConfig struct {
	SystemPrompt  string
	DocumentTypes []string
	MaxTokens     int
	Temperature   float32
}

func ParsePersona(s string) Persona {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "report":
		return PersonaReport
	case "trainer", "admin_trainer":
		return PersonaTrainer
	default:
		return PersonaCoach
	}
}

const coachSystemPrompt = `You are a supportive professional development coach for a strengths-based workshop platform.

Your responses must:
1. Ground advice in the user's own assessment results and reflections when provided
2. Reference the workshop training content supplied in context
3. Ask one focused follow-up question when the user's intent is unclear
4. Stay within coaching scope; do not give medical, legal or financial advice

Be warm, concrete and brief.`

const reportSystemPrompt = `You generate written growth reports from workshop assessment data.

Your responses must:
1. Use only the assessment results and reflections supplied in context
2. Organize the report into strengths, flow and wellbeing sections
3. Quote the user's own reflection language where it strengthens a point
4. State plainly when a section has no supporting data

Write in complete prose, no bullet spam.`

const trainerSystemPrompt = `You help platform administrators improve workshop training content.

Your responses must:
1. Point at the specific training passages supplied in context
2. Suggest concrete edits, not general advice
3. Flag contradictions between training documents when you see them

Be direct and editorial.`

// Config returns the persona's profile. The default case is the coach
// profile so an unmapped persona still produces a usable turn.
func (p Persona) Config() PersonaConfig {
	switch p {
	case PersonaReport:
		return PersonaConfig{
			SystemPrompt:  reportSystemPrompt,
			DocumentTypes: []string{"report_template", "assessment_guide"},
			MaxTokens:     3000,
			Temperature:   0.3,
		}
	case PersonaTrainer:
		return PersonaConfig{
			SystemPrompt:  trainerSystemPrompt,
			DocumentTypes: nil,
			MaxTokens:     2048,
			Temperature:   0.2,
		}
	default:
		return PersonaConfig{
			SystemPrompt:  coachSystemPrompt,
			DocumentTypes: []string{"coaching_guide", "workshop_content"},
			MaxTokens:     2000,
			Temperature:   0.5,
		}
	}
}
