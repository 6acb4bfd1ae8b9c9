package contextopt

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/starteams/coaching-backend/internal/storage/models"
)

func testUser() *models.UserProfile {
	return &models.UserProfile{ID: "u1", Username: "jordan", Name: "Jordan Reyes"}
}

func TestOptimizedReportContextEssentialFields(t *testing.T) {
	assessments := []models.UserAssessment{
		{AssessmentType: "starCard", Results: `{"thinking":31,"feeling":18,"acting":27,"planning":24}`},
		{AssessmentType: "flowAttributes", Results: `{"attributes":["focused","curious","energized","calm","bold","precise"]}`},
		{AssessmentType: "flowAssessment", Results: `{"flowScore":42}`},
		{AssessmentType: "cantrilLadder", Results: `{"wellBeingLevel":6,"futureWellBeingLevel":8}`},
	}
	reflections := []models.ReflectionStep{
		{StepID: "2-1", Content: strings.Repeat("insightful reflection ", 40)},
	}

	out, err := OptimizedReportContext(testUser(), assessments, reflections, "personal")
	if err != nil {
		t.Fatalf("OptimizedReportContext: %v", err)
	}
	if out == nil {
		t.Fatal("got nil context for valid input")
	}

	if out.UserName != "Jordan Reyes" {
		t.Errorf("UserName = %q", out.UserName)
	}

	star := out.Assessments[0]
	if len(star.Strengths) != 2 {
		t.Fatalf("got %d top strengths, want 2", len(star.Strengths))
	}
	if star.Strengths[0].Name != "thinking" || star.Strengths[1].Name != "acting" {
		t.Errorf("top strengths = %+v, want thinking then acting", star.Strengths)
	}

	if got := len(out.Assessments[1].Attributes); got != 4 {
		t.Errorf("flow attributes trimmed to %d, want 4", got)
	}

	if out.Assessments[2].FlowScore != 42 {
		t.Errorf("flow score = %f, want 42", out.Assessments[2].FlowScore)
	}

	wb := out.Assessments[3].WellBeing
	if wb == nil || wb.Current != 6 || wb.Future != 8 {
		t.Errorf("well-being = %+v", wb)
	}

	if got := len(out.Reflections[0].Excerpt); got != 200 {
		t.Errorf("reflection excerpt length = %d, want 200", got)
	}
}

func TestOptimizedReportContextMissingUser(t *testing.T) {
	out, err := OptimizedReportContext(nil, nil, nil, "personal")
	if err != nil {
		t.Fatalf("missing user should not error, got %v", err)
	}
	if out != nil {
		t.Errorf("missing user should yield nil context, got %+v", out)
	}

	out, err = OptimizedReportContext(&models.UserProfile{ID: "u2"}, nil, nil, "personal")
	if err != nil || out != nil {
		t.Errorf("nameless user should yield (nil, nil), got (%+v, %v)", out, err)
	}
}

func TestOptimizedReportContextMalformedRecord(t *testing.T) {
	assessments := []models.UserAssessment{
		{AssessmentType: "starCard", Results: `{"thinking":31,`},
		{AssessmentType: "flowAssessment", Results: `{"flowScore":42}`},
	}

	out, err := OptimizedReportContext(testUser(), assessments, nil, "personal")
	if err != nil {
		t.Fatalf("one bad record must not abort the optimization: %v", err)
	}

	if out.Assessments[0].ParseError == "" {
		t.Error("malformed record should carry a parse-error marker")
	}
	if out.Assessments[1].FlowScore != 42 {
		t.Error("well-formed record after a bad one should still be summarized")
	}
}

func TestOptimizedReportContextBoundedOutput(t *testing.T) {
	var assessments []models.UserAssessment
	for i := 0; i < 50; i++ {
		assessments = append(assessments, models.UserAssessment{
			AssessmentType: "starCard",
			Results:        `{"thinking":31,"feeling":18,"acting":27,"planning":24}`,
		})
	}

	var reflections []models.ReflectionStep
	for i := 0; i < 30; i++ {
		reflections = append(reflections, models.ReflectionStep{
			StepID:  fmt.Sprintf("4-%d", i),
			Content: strings.Repeat("a very long reflection ", 2000),
		})
	}

	out, err := OptimizedReportContext(testUser(), assessments, reflections, "personal")
	if err != nil {
		t.Fatalf("OptimizedReportContext: %v", err)
	}

	serialized, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(serialized) > maxSerializedChars {
		t.Errorf("serialized size %d exceeds ceiling despite optimization", len(serialized))
	}

	if !strings.Contains(string(serialized), "Jordan Reyes") {
		t.Error("optimized output lost the user's name")
	}
	if !strings.Contains(string(serialized), "thinking") {
		t.Error("optimized output lost the top strengths")
	}
}

func TestTopStrengthsTieBreak(t *testing.T) {
	scores := map[string]float64{"acting": 10, "feeling": 10, "planning": 3}
	got := topStrengths(scores, 2)
	if got[0].Name != "acting" || got[1].Name != "feeling" {
		t.Errorf("tied strengths should order by name, got %+v", got)
	}
}

func TestExcerptKeepsRuneBoundary(t *testing.T) {
	// Each rune is 3 bytes, so a 10-byte limit lands mid-rune and
	// must back up to the previous boundary.
	s := strings.Repeat("日", 8)
	got := excerpt(s, 10)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt produced invalid UTF-8: %q", got)
	}
	if got != strings.Repeat("日", 3) {
		t.Errorf("excerpt = %q, want 3 runes", got)
	}
	if excerpt("short", 10) != "short" {
		t.Error("excerpt must return short strings unchanged")
	}
}
