// Output redaction filter: classifies pipeline output for PII belonging to
// anyone other than the requesting student and redacts it in place.

package filter

import (
	"context"
	"encoding/json"
	"fmt"

	ijson "github.com/richinex/cerberus/internal/json"
	"github.com/richinex/cerberus/llm"
)

// RedactedMarker replaces sensitive values in sanitized output.
const RedactedMarker = "[REDACTED]"

// RedactionVerdict is the output classifier's JSON reply. SanitizedResponse
// has the same structural shape as the analyzed payload.
type RedactionVerdict struct {
	PIIDetected       bool            `json:"pii_detected"`
	PIITypes          []string        `json:"pii_types"`
	SanitizedResponse json.RawMessage `json:"sanitized_response"`
	Explanation       string          `json:"explanation"`
	RedactionCount    int             `json:"redaction_count"`
	Error             string          `json:"error,omitempty"`
}

const piiSystemPrompt = `You are a privacy filter for an educational system.
Analyze the following JSON response for PII.

Current Student ID: %s

Response to analyze:
"""
%s
"""

Look for and REDACT:
1. Phone numbers
2. Physical addresses
3. Email addresses
4. Social Security Numbers
5. Dates of birth
6. Names of OTHER students (not current student)
7. Any other sensitive personal information

IMPORTANT:
- Current student can see their OWN information
- Only redact information about OTHER people
- Replace PII with [REDACTED]
- Preserve JSON structure

Respond in JSON format:
{
  "pii_detected": true/false,
  "pii_types": ["phone", "email", ...],
  "sanitized_response": {...},
  "explanation": "What was redacted",
  "redaction_count": number
}
`

// PIIFilter redacts other students' PII from pipeline output.
type PIIFilter struct {
	provider llm.Provider
	policy   Policy
}

// NewPIIFilter creates a filter using the given classifier provider.
func NewPIIFilter(provider llm.Provider, policy Policy) *PIIFilter {
	return &PIIFilter{provider: provider, policy: policy}
}

// AnalyzeAndRedact classifies the payload and returns a sanitized copy.
// The requesting student's own information stays intact; other people's
// sensitive fields come back replaced with the redaction marker. When the
// classifier call fails, the returned error is informational: the verdict
// already encodes the degraded decision (original payload annotated by
// default, a blocked-output payload under FailClosed).
func (f *PIIFilter) AnalyzeAndRedact(ctx context.Context, payload interface{}, currentStudentID string) (RedactionVerdict, error) {
	payloadJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return f.degraded(nil, err), fmt.Errorf("failed to encode payload: %w", err)
	}

	if f.policy.Disabled {
		return RedactionVerdict{
			PIIDetected:       false,
			PIITypes:          []string{},
			SanitizedResponse: payloadJSON,
			Explanation:       "Filter disabled",
			RedactionCount:    0,
		}, nil
	}

	messages := []llm.ChatMessage{
		llm.SystemMessage(fmt.Sprintf(piiSystemPrompt, currentStudentID, string(payloadJSON))),
		llm.UserMessage("Please analyze and redact the provided JSON."),
	}

	resp, err := f.provider.ChatWithFormat(ctx, messages, llm.NewJSONObjectFormat())
	if err != nil {
		return f.degraded(payloadJSON, err), fmt.Errorf("PII analysis failed: %w", err)
	}

	verdict, err := ijson.ExtractJSONFromResponse[RedactionVerdict](resp.Content)
	if err != nil {
		return f.degraded(payloadJSON, err), fmt.Errorf("PII verdict parse failed: %w", err)
	}
	if len(verdict.SanitizedResponse) == 0 {
		verdict.SanitizedResponse = payloadJSON
	}
	return verdict, nil
}

// degraded builds the verdict used when analysis itself fails.
func (f *PIIFilter) degraded(payloadJSON []byte, cause error) RedactionVerdict {
	if f.policy.FailClosed {
		blocked, _ := json.Marshal(map[string]string{
			"error": "output blocked by privacy filter",
		})
		return RedactionVerdict{
			PIIDetected:       false,
			PIITypes:          []string{},
			SanitizedResponse: blocked,
			Explanation:       fmt.Sprintf("Filter error, output blocked: %v", cause),
			RedactionCount:    0,
			Error:             cause.Error(),
		}
	}
	return RedactionVerdict{
		PIIDetected:       false,
		PIITypes:          []string{},
		SanitizedResponse: payloadJSON,
		Explanation:       fmt.Sprintf("Filter error: %v", cause),
		RedactionCount:    0,
		Error:             cause.Error(),
	}
}
