package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/prompts"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
)

// polarityPromptTemplate is rendered via langchaingo's prompt templating
// so the system message (spec 4.3's "configurable system message") stays
// data, not string-concatenation, across both provider backends.
var polarityPromptTemplate = prompts.NewPromptTemplate(
	`{{.system_prompt}}

Analyze the following content from a {{.source_type}} source and respond with
EXACTLY four lines in this format:
LABEL: POSITIVE|NEGATIVE|NEUTRAL
SCORE: <number between -1 and 1>
JUSTIFICATION: <one sentence>
TOPICS: <comma-separated topic hints>

Content:
{{.text}}`,
	[]string{"system_prompt", "source_type", "text"},
)

// RenderPolarityPrompt builds the full prompt sent to the model for one
// mention's polarity+justification sub-task.
func RenderPolarityPrompt(req PolarityRequest) (string, error) {
	rendered, err := polarityPromptTemplate.Format(map[string]any{
		"system_prompt": req.SystemPrompt,
		"source_type":   req.SourceType,
		"text":          req.Text,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to render polarity prompt")
	}
	return rendered, nil
}

// ParsePolarityResponse parses the four-line structured response format
// the prompt requests, enforcing the score/label band consistency rule
// from spec 4.3.
func ParsePolarityResponse(raw string) (*PolarityResponse, error) {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	resp := &PolarityResponse{}
	var foundLabel, foundScore bool

	for _, line := range lines {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "LABEL:"):
			resp.Label = strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(line, "LABEL:")))
			foundLabel = true
		case strings.HasPrefix(line, "SCORE:"):
			scoreStr := strings.TrimSpace(strings.TrimPrefix(line, "SCORE:"))
			score, err := strconv.ParseFloat(scoreStr, 64)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, fmt.Sprintf("could not parse score %q", scoreStr))
			}
			resp.Score = score
			foundScore = true
		case strings.HasPrefix(line, "JUSTIFICATION:"):
			resp.Justification = strings.TrimSpace(strings.TrimPrefix(line, "JUSTIFICATION:"))
		case strings.HasPrefix(line, "TOPICS:"):
			topicsStr := strings.TrimSpace(strings.TrimPrefix(line, "TOPICS:"))
			if topicsStr != "" {
				parts := strings.Split(topicsStr, ",")
				for _, p := range parts {
					if t := strings.TrimSpace(p); t != "" {
						resp.TopicHints = append(resp.TopicHints, t)
					}
				}
			}
		}
	}

	if !foundLabel || !foundScore {
		return nil, apperrors.NewValidationError("polarity response missing LABEL or SCORE line")
	}

	if err := validateBand(resp.Label, resp.Score); err != nil {
		return nil, err
	}

	return resp, nil
}

// validateBand enforces spec 4.3's score->label consistency:
// POSITIVE requires score in [0.2, 1], NEGATIVE in [-1, -0.2],
// NEUTRAL in (-0.2, 0.2).
func validateBand(label string, score float64) error {
	switch label {
	case "POSITIVE":
		if score < 0.2 || score > 1 {
			return apperrors.NewValidationError(fmt.Sprintf("label POSITIVE inconsistent with score %v", score))
		}
	case "NEGATIVE":
		if score < -1 || score > -0.2 {
			return apperrors.NewValidationError(fmt.Sprintf("label NEGATIVE inconsistent with score %v", score))
		}
	case "NEUTRAL":
		if score <= -0.2 || score >= 0.2 {
			return apperrors.NewValidationError(fmt.Sprintf("label NEUTRAL inconsistent with score %v", score))
		}
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown sentiment label %q", label))
	}
	return nil
}
