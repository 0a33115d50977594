// Package types holds the request and response bodies of the HTTP API.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/digipath/maturity-diagnosis/internal/analysis"
)

// SubmitRequest is the body of POST /api/v1/diagnoses.
type SubmitRequest struct {
	Answers []AnswerInput `json:"answers" binding:"required"`
}

// AnswerInput is one submitted answer. RawValue accepts a JSON string or
// a JSON number; numbers keep their literal decimal text.
type AnswerInput struct {
	QuestionID int      `json:"question_id"`
	RawValue   RawValue `json:"raw_value"`
}

// RawValue is answer text decoded from either a JSON string or number.
type RawValue string

// UnmarshalJSON implements json.Unmarshaler.
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = RawValue(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("raw_value must be a string or number: %w", err)
	}
	*v = RawValue(n.String())
	return nil
}

// RawAnswers converts the request into pipeline input.
func (r SubmitRequest) RawAnswers() []analysis.RawAnswer {
	out := make([]analysis.RawAnswer, len(r.Answers))
	for i, a := range r.Answers {
		out[i] = analysis.RawAnswer{QuestionID: a.QuestionID, RawValue: string(a.RawValue)}
	}
	return out
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Timestamp string          `json:"timestamp"`
	Uptime    string          `json:"uptime"`
	Database  string          `json:"database"`
	Artifacts ArtifactsHealth `json:"artifacts"`
	Redis     string          `json:"redis"`
}

// ArtifactsHealth reports whether the model release is loaded.
type ArtifactsHealth struct {
	Loaded  bool   `json:"loaded"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QuestionsResponse is the body of GET /api/v1/questions.
type QuestionsResponse struct {
	Questions []QuestionInfo `json:"questions"`
}

// QuestionInfo describes one survey question.
type QuestionInfo struct {
	ID        int    `json:"id"`
	Text      string `json:"text"`
	Section   string `json:"section"`
	Domain    string `json:"domain"`
	Subdomain string `json:"subdomain"`
	Type      string `json:"type"`
}
