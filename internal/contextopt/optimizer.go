// Package contextopt compresses a user's full workshop record into a
// bounded payload safe for prompt inclusion.
package contextopt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/starteams/coaching-backend/internal/storage/models"
	"github.com/starteams/coaching-backend/pkg/logger"
)

// maxSerializedChars is a safety ceiling on the optimized payload. The
// optimizer has already discarded everything non-essential, so blowing
// past this is a programming error, not a truncation opportunity.
const maxSerializedChars = 100000

const reflectionExcerptLen = 200

// ErrContextTooLarge signals that the optimized context still exceeds
// the serialized ceiling. Truncating further would corrupt meaning, so
// this fails loudly instead.
var ErrContextTooLarge = errors.New("optimized context exceeds size ceiling")

type StrengthScore struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type AssessmentSummary struct {
	Type       string          `json:"type"`
	Strengths  []StrengthScore `json:"strengths,omitempty"`
	FlowScore  float64         `json:"flow_score,omitempty"`
	Attributes []string        `json:"attributes,omitempty"`
	WellBeing  *WellBeing      `json:"well_being,omitempty"`
	ParseError string          `json:"parse_error,omitempty"`
}

type WellBeing struct {
	Current float64 `json:"current"`
	Future  float64 `json:"future"`
}

type ReflectionExcerpt struct {
	StepID  string `json:"step_id"`
	Excerpt string `json:"excerpt"`
}

type OptimizedContext struct {
	UserName    string              `json:"user_name"`
	ReportType  string              `json:"report_type"`
	Assessments []AssessmentSummary `json:"assessments"`
	Reflections []ReflectionExcerpt `json:"reflections"`
}

// topStrengthCount and topAttributeCount bound the per-assessment payload.
const (
	topStrengthCount  = 2
	topAttributeCount = 4
)

// OptimizedReportContext reduces raw assessment and reflection rows to
// their essential fields. A missing user yields (nil, nil): absent input
// is a signal, not an error. Malformed per-record JSON is recorded as a
// parse-error marker in that record's slot and never aborts the rest.
func OptimizedReportContext(user *models.UserProfile, assessments []models.UserAssessment, reflections []models.ReflectionStep, reportType string) (*OptimizedContext, error) {
	if user == nil || user.Name == "" {
		return nil, nil
	}

	out := &OptimizedContext{
		UserName:    user.Name,
		ReportType:  reportType,
		Assessments: make([]AssessmentSummary, 0, len(assessments)),
		Reflections: make([]ReflectionExcerpt, 0, len(reflections)),
	}

	for _, a := range assessments {
		out.Assessments = append(out.Assessments, summarizeAssessment(a))
	}

	for _, r := range reflections {
		out.Reflections = append(out.Reflections, ReflectionExcerpt{
			StepID:  r.StepID,
			Excerpt: excerpt(r.Content, reflectionExcerptLen),
		})
	}

	serialized, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize optimized context: %w", err)
	}
	if len(serialized) > maxSerializedChars {
		return nil, fmt.Errorf("%w: %d chars after optimization", ErrContextTooLarge, len(serialized))
	}

	logger.Debug("Report context optimized",
		zap.String("user_id", user.ID),
		zap.Int("assessments", len(out.Assessments)),
		zap.Int("reflections", len(out.Reflections)),
		zap.Int("serialized_chars", len(serialized)),
	)

	return out, nil
}

func summarizeAssessment(a models.UserAssessment) AssessmentSummary {
	summary := AssessmentSummary{Type: a.AssessmentType}

	switch a.AssessmentType {
	case "starCard":
		var scores map[string]float64
		if err := json.Unmarshal([]byte(a.Results), &scores); err != nil {
			summary.ParseError = "invalid results payload"
			return summary
		}
		summary.Strengths = topStrengths(scores, topStrengthCount)

	case "flowAssessment":
		var payload struct {
			FlowScore float64 `json:"flowScore"`
		}
		if err := json.Unmarshal([]byte(a.Results), &payload); err != nil {
			summary.ParseError = "invalid results payload"
			return summary
		}
		summary.FlowScore = payload.FlowScore

	case "flowAttributes":
		var payload struct {
			Attributes []string `json:"attributes"`
		}
		if err := json.Unmarshal([]byte(a.Results), &payload); err != nil {
			summary.ParseError = "invalid results payload"
			return summary
		}
		if len(payload.Attributes) > topAttributeCount {
			payload.Attributes = payload.Attributes[:topAttributeCount]
		}
		summary.Attributes = payload.Attributes

	case "cantrilLadder":
		var payload struct {
			WellBeingLevel       float64 `json:"wellBeingLevel"`
			FutureWellBeingLevel float64 `json:"futureWellBeingLevel"`
		}
		if err := json.Unmarshal([]byte(a.Results), &payload); err != nil {
			summary.ParseError = "invalid results payload"
			return summary
		}
		summary.WellBeing = &WellBeing{
			Current: payload.WellBeingLevel,
			Future:  payload.FutureWellBeingLevel,
		}

	default:
		// Unknown assessment types carry no payload: only validate that
		// the record holds well-formed JSON so bad rows stay visible.
		if !json.Valid([]byte(a.Results)) {
			summary.ParseError = "invalid results payload"
		}
	}

	return summary
}

func topStrengths(scores map[string]float64, n int) []StrengthScore {
	ranked := make([]StrengthScore, 0, len(scores))
	for name, score := range scores {
		ranked = append(ranked, StrengthScore{Name: name, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Name < ranked[j].Name
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never leaves a partial
	// UTF-8 sequence in the payload.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
