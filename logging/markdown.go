// Package logging writes per-run markdown logs: the prompt, tool-call
// details, the response payload, and a metrics table.
//
// Information Hiding:
// - Semantic filename generation and uniqueness counters
// - Markdown layout
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/richinex/cerberus/metrics"
)

// InfoItem is one key/value line of the log's additional-information block.
// A slice keeps the output order deterministic.
type InfoItem struct {
	Key   string
	Value string
}

// MarkdownLogger writes one markdown file per logged run.
type MarkdownLogger struct {
	logDir string
}

// NewMarkdownLogger creates the log directory if needed.
func NewMarkdownLogger(logDir string) (*MarkdownLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return &MarkdownLogger{logDir: logDir}, nil
}

// LogRequest writes one run log. The filename derives from requestType and
// nameHint; an existing file of the same name gets a counter suffix.
func (l *MarkdownLogger) LogRequest(requestType, nameHint, prompt, content string, m metrics.Performance, modelName string, additionalInfo []InfoItem) error {
	filename := l.semanticFilename(requestType, nameHint)
	path := filepath.Join(l.logDir, filename)

	var buf bytes.Buffer
	buf.WriteString("# Recommendation Run Log\n\n")
	fmt.Fprintf(&buf, "**Timestamp:** %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&buf, "**Request Type:** %s\n", requestType)
	fmt.Fprintf(&buf, "**Model:** %s\n\n", modelName)

	buf.WriteString("## Request Details\n\n")
	buf.WriteString("### Prompt\n\n")
	buf.WriteString("```\n")
	buf.WriteString(prompt)
	buf.WriteString("\n```\n\n")

	if len(additionalInfo) > 0 {
		buf.WriteString("### Additional Information\n\n")
		for _, item := range additionalInfo {
			fmt.Fprintf(&buf, "- **%s:** %s\n", item.Key, item.Value)
		}
		buf.WriteString("\n")
	}

	buf.WriteString("## Response\n\n")
	buf.WriteString("### Content\n\n")
	buf.WriteString("```json\n")
	buf.WriteString(prettyJSON(content))
	buf.WriteString("\n```\n\n")

	writeMetricsTable(&buf, m)

	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write log file: %w", err)
	}
	return nil
}

// semanticFilename builds "<requestType>_<hint>.md" and bumps a counter
// suffix until the name is unused.
func (l *MarkdownLogger) semanticFilename(requestType, nameHint string) string {
	base := sanitizeName(requestType)
	if nameHint != "" {
		base += "_" + sanitizeName(nameHint)
	}

	filename := base + ".md"
	counter := 0
	for {
		if _, err := os.Stat(filepath.Join(l.logDir, filename)); os.IsNotExist(err) {
			return filename
		}
		counter++
		filename = fmt.Sprintf("%s_%03d.md", base, counter)
	}
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func prettyJSON(content string) string {
	var parsed interface{}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return content
	}
	pretty, err := json.MarshalIndent(parsed, "", "  ")
	if err != nil {
		return content
	}
	return string(pretty)
}

func writeMetricsTable(buf *bytes.Buffer, m metrics.Performance) {
	buf.WriteString("## Token Usage & Metrics\n\n")
	buf.WriteString("| Metric | Value |\n")
	buf.WriteString("|--------|-------|\n")
	fmt.Fprintf(buf, "| Prompt Tokens | %d |\n", m.PromptTokens)
	fmt.Fprintf(buf, "| Completion Tokens | %d |\n", m.CompletionTokens)
	fmt.Fprintf(buf, "| Total Tokens | %d |\n", m.PromptTokens+m.CompletionTokens)
	fmt.Fprintf(buf, "| Total Time (s) | %.3f |\n", m.TotalTime)
	fmt.Fprintf(buf, "| Time to First Token (s) | %.3f |\n", m.TTFT)
	fmt.Fprintf(buf, "| Generation Time (s) | %.3f |\n", m.GenerationTime)
	fmt.Fprintf(buf, "| Prompt Processing Rate (tokens/s) | %.2f |\n", m.PromptTokensPerSec)
	fmt.Fprintf(buf, "| Token Generation Rate (tokens/s) | %.2f |\n", m.CompletionTokensPerSec)
	if m.TotalCost > 0 {
		fmt.Fprintf(buf, "| **Total Cost ($)** | **%.6f** |\n", m.TotalCost)
		fmt.Fprintf(buf, "| Input Cost ($) | %.6f |\n", m.InputCost)
		fmt.Fprintf(buf, "| Output Cost ($) | %.6f |\n", m.OutputCost)
	}
	fmt.Fprintf(buf, "| Retries | %d |\n", m.Retries)
	buf.WriteString("\n")
}
