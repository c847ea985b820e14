// Package recommend implements the defended recommendation pipeline: input
// filtering, the streaming model/tool orchestration loop, payload
// normalization, output redaction, and run logging.
//
// Information Hiding:
// - Filter sequencing and degraded-mode decisions
// - Payload normalization rules
// - Run logging format

package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/richinex/cerberus/filter"
	"github.com/richinex/cerberus/logging"
	"github.com/richinex/cerberus/tools"
)

// RecommenderConfig wires the pipeline's collaborators. Nil filters are
// skipped; a nil logger disables run logging.
type RecommenderConfig struct {
	Orchestrator    *Orchestrator
	InjectionFilter *filter.InjectionFilter
	PIIFilter       *filter.PIIFilter
	Logger          *logging.MarkdownLogger
	Progress        io.Writer
}

// Recommender is the pipeline façade.
type Recommender struct {
	orchestrator *Orchestrator
	injection    *filter.InjectionFilter
	pii          *filter.PIIFilter
	logger       *logging.MarkdownLogger
	progress     io.Writer
}

// Outcome is the pipeline's always-well-formed result. Error carries the
// failure description when the run could not complete; Recommendations is
// then an empty array.
type Outcome struct {
	RunID            string                   `json:"run_id"`
	Recommendations  json.RawMessage          `json:"recommendations"`
	InjectionVerdict *filter.Verdict          `json:"injection_verdict,omitempty"`
	RedactionVerdict *filter.RedactionVerdict `json:"redaction_verdict,omitempty"`
	Result           Result                   `json:"-"`
	Error            string                   `json:"error,omitempty"`
}

// NewRecommender assembles the pipeline.
func NewRecommender(cfg RecommenderConfig) *Recommender {
	return &Recommender{
		orchestrator: cfg.Orchestrator,
		injection:    cfg.InjectionFilter,
		pii:          cfg.PIIFilter,
		logger:       cfg.Logger,
		progress:     cfg.Progress,
	}
}

// RecommendForStudent runs the full defended pipeline for one student.
func (r *Recommender) RecommendForStudent(ctx context.Context, studentID, studentQuestion string, gateway *tools.Gateway) (Outcome, error) {
	outcome := Outcome{
		RunID:           uuid.NewString(),
		Recommendations: json.RawMessage("[]"),
	}

	effectiveQuestion := studentQuestion
	if r.injection != nil && studentQuestion != "" {
		r.printf("Analyzing input for prompt injection...\n")
		verdict, err := r.injection.Analyze(ctx, studentQuestion)
		if err != nil {
			r.printf("Injection analysis degraded: %v\n", err)
		}
		outcome.InjectionVerdict = &verdict
		// The cleaned prompt is the effective input either way: it matches
		// the original when safe and is neutralized or empty when not.
		effectiveQuestion = verdict.CleanedPrompt
		if effectiveQuestion != studentQuestion {
			r.printf("Using sanitized prompt: %s\n", effectiveQuestion)
		}
	}

	userMessage := buildUserMessage(studentID, effectiveQuestion)
	result, err := r.orchestrator.Run(ctx, DefaultSystemInstruction, userMessage, gateway)
	outcome.Result = result
	if err != nil {
		outcome.Error = err.Error()
		r.logRun(studentID, studentQuestion, result)
		return outcome, fmt.Errorf("recommendation run failed: %w", err)
	}

	recommendations := normalizePayload(result.Content)

	if r.pii != nil {
		r.printf("Analyzing response for PII...\n")
		var decoded interface{}
		if err := json.Unmarshal(recommendations, &decoded); err != nil {
			decoded = string(recommendations)
		}
		verdict, err := r.pii.AnalyzeAndRedact(ctx, decoded, studentID)
		if err != nil {
			r.printf("PII analysis degraded: %v\n", err)
		}
		outcome.RedactionVerdict = &verdict
		if len(verdict.SanitizedResponse) > 0 {
			recommendations = verdict.SanitizedResponse
		}
	}

	outcome.Recommendations = recommendations
	r.logRun(studentID, studentQuestion, result)
	return outcome, nil
}

// normalizePayload coerces the orchestrator's terminal payload into a JSON
// array of recommendations: arrays pass through, objects contribute their
// "recommendations" key or get wrapped as a single element, error payloads
// become an empty array.
func normalizePayload(content json.RawMessage) json.RawMessage {
	var asObject map[string]json.RawMessage
	if err := json.Unmarshal(content, &asObject); err == nil && asObject != nil {
		if recs, ok := asObject["recommendations"]; ok {
			return normalizePayload(recs)
		}
		if _, ok := asObject["error"]; ok {
			return json.RawMessage("[]")
		}
		wrapped, _ := json.Marshal([]json.RawMessage{content})
		return wrapped
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(content, &asArray); err == nil && asArray != nil {
		return content
	}

	return json.RawMessage("[]")
}

func (r *Recommender) logRun(studentID, studentQuestion string, result Result) {
	if r.logger == nil {
		return
	}

	question := studentQuestion
	if question == "" {
		question = "None"
	}
	toolCallDetails, _ := json.Marshal(result.ToolCalls)

	err := r.logger.LogRequest(
		"mcp_recommendation_full_flow",
		studentID,
		fmt.Sprintf("Student ID: %s\nStudent Question: %s", studentID, question),
		result.RawContent,
		result.Metrics,
		r.orchestrator.provider.Model(),
		[]logging.InfoItem{
			{Key: "Student ID", Value: studentID},
			{Key: "Student Question", Value: question},
			{Key: "Tool Calls", Value: fmt.Sprintf("%d", len(result.ToolCalls))},
			{Key: "Tool Call Details", Value: string(toolCallDetails)},
		},
	)
	if err != nil {
		r.printf("Warning: failed to write run log: %v\n", err)
	}
}

func (r *Recommender) printf(format string, args ...interface{}) {
	if r.progress != nil {
		fmt.Fprintf(r.progress, format, args...)
	}
}
