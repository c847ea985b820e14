// Package json provides JSON extraction utilities for parsing LLM responses.
//
// LLMs often return JSON embedded in text or with additional commentary.
// This package provides utilities to extract and parse JSON from such responses.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON finds and returns the JSON portion of a response string.
// It handles common LLM response patterns:
// 1. Pure JSON response - returns the full response
// 2. JSON wrapped in markdown code fences (```json ... ```), anywhere in the text
// 3. JSON value embedded in text - outermost '{'..'}' or '['..']' span
//
// Limitations:
// - Uses simple bracket matching, not full JSON parsing
// - May fail if brackets appear in strings or are unbalanced
func extractJSON(response string) (string, error) {
	// Try full response first
	trimmed := strings.TrimSpace(response)
	var test interface{}
	if err := json.Unmarshal([]byte(trimmed), &test); err == nil && trimmed != "" {
		return trimmed, nil
	}

	// A fenced block anywhere in the text takes priority over bare braces,
	// since commentary around the fence routinely contains its own braces.
	if fenced, ok := extractFencedBlock(response); ok {
		if err := json.Unmarshal([]byte(fenced), &test); err == nil {
			return fenced, nil
		}
	}

	if jsonStr, ok := extractSpan(response, '{', '}'); ok {
		return jsonStr, nil
	}
	if jsonStr, ok := extractSpan(response, '[', ']'); ok {
		return jsonStr, nil
	}

	// Create a preview for the error message
	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// extractFencedBlock returns the contents of the first ```json (or bare ```)
// code fence in the response, if one exists.
func extractFencedBlock(response string) (string, bool) {
	start := strings.Index(response, "```json")
	offset := len("```json")
	if start == -1 {
		start = strings.Index(response, "```")
		offset = len("```")
	}
	if start == -1 {
		return "", false
	}

	rest := response[start+offset:]
	end := strings.Index(rest, "```")
	if end == -1 {
		// Unterminated fence; take everything after the opening marker.
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractSpan returns the substring between the first open bracket and the
// last close bracket, if that substring parses as JSON.
func extractSpan(response string, open, close byte) (string, bool) {
	start := strings.IndexByte(response, open)
	if start == -1 {
		return "", false
	}
	end := strings.LastIndexByte(response, close)
	if end == -1 || end <= start {
		return "", false
	}
	jsonStr := response[start : end+1]
	var test interface{}
	if err := json.Unmarshal([]byte(jsonStr), &test); err != nil {
		return "", false
	}
	return jsonStr, true
}

// ExtractJSONFromResponse extracts and parses JSON from an LLM response.
//
// This function handles common LLM response patterns:
// 1. Pure JSON response - parses directly
// 2. JSON wrapped in markdown code fences
// 3. JSON value embedded in text
//
// Returns the parsed value or an error if extraction fails.
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	jsonStr, err := extractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// ExtractJSONFromResponseWithType extracts JSON from a response into a provided pointer.
// This is the non-generic version for cases where generics aren't suitable.
func ExtractJSONFromResponseWithType(response string, result interface{}) error {
	jsonStr, err := extractJSON(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), result); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

// ExtractJSON extracts the JSON portion from a response string.
// Returns the raw JSON string suitable for further processing.
func ExtractJSON(response string) (string, error) {
	return extractJSON(response)
}
