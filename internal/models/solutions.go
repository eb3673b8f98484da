package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	errInvalidSolutionID   = errors.New("solution id must be a positive integer")
	errMalformedSolutionID = errors.New("solution id must be an integer")
)

// SolutionID is the store-assigned identifier of a persisted solution.
// It is written to JSON as a string and read from either a number or a numeric string.
type SolutionID int64

// ParseSolutionID parses a decimal solution id as it appears in a URL path. Only positive ids
// can name a stored solution.
func ParseSolutionID(s string) (SolutionID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", errInvalidSolutionID, s)
	}

	return SolutionID(n), nil
}

// String returns the decimal form of the id.
func (id SolutionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// MarshalJSON encodes the id as a JSON string.
func (id SolutionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts 42 or "42". Any integer decodes; whether it names a stored
// solution is for the store to say.
func (id *SolutionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode solution id: %w", err)
		}
	}

	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", errMalformedSolutionID, raw)
	}

	*id = SolutionID(n)

	return nil
}

// Solution is one candidate remediation for a problem description.
// ID is nil for the unpersisted fallback returned when the oracle is unavailable.
type Solution struct {
	ID                 *SolutionID `json:"solution_id"`
	ProblemDescription string      `json:"problem_description,omitempty"`
	SolutionText       string      `json:"solution_text"`
	SuccessCount       int64       `json:"success_count"`
	CreatedAt          *time.Time  `json:"created_at,omitempty"`
	UpdatedAt          *time.Time  `json:"updated_at,omitempty"`
}

// IsPersisted reports whether the solution carries a store-assigned id.
func (s *Solution) IsPersisted() bool {
	return s.ID != nil
}

// ResolveRequest is the body of POST /api/get-solutions.
type ResolveRequest struct {
	Problem string `json:"problem" form:"problem" validate:"required,notblank,max=4000,no_null_bytes"`
}

// ResolveResponse lists candidate solutions, best first.
type ResolveResponse struct {
	Solutions []Solution `json:"solutions"`
}

// FeedbackRequest is the body of POST /api/submit-feedback.
type FeedbackRequest struct {
	SolutionIDs []SolutionID `json:"solutionIds" validate:"required,min=1,max=100"`
}

// FeedbackResult reports which ids were counted. Unknown ids are warnings, not errors.
type FeedbackResult struct {
	Applied    int          `json:"applied"`
	UnknownIDs []SolutionID `json:"unknown_solution_ids,omitempty"`
}

// FeedbackResponse is the body returned by POST /api/submit-feedback.
type FeedbackResponse struct {
	Message    string       `json:"message"`
	UnknownIDs []SolutionID `json:"unknown_solution_ids,omitempty"`
}
