package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// Normalization defaults. The two pending labels differ on purpose: the
// structured path means the endpoint answered but left the field blank,
// the transcript path means the parser found no condition marker at all.
const (
	pendingConditionStructured = "Assessment pending"
	pendingConditionTranscript = "Assessment pending further review"

	defaultTranscriptConfidence = 0.7
)

var confidencePattern = regexp.MustCompile(`(0\.\d+|1\.0)`)

// NormalizerService converts either raw inference shape into canonical
// clinical fields. Structured responses pass through with defaulting;
// transcripts run a line-oriented section parser. Normalization never
// fails: malformed transcripts degrade to whole-text fallbacks instead.
type NormalizerService struct {
	log *logrus.Logger
}

// NewNormalizerService creates a new normalizer service
func NewNormalizerService(logger *logrus.Logger) *NormalizerService {
	return &NormalizerService{log: logger}
}

// Normalize produces canonical clinical fields from a raw inference result.
func (n *NormalizerService) Normalize(raw *domain.RawInferenceResult) domain.ClinicalFields {
	if raw.IsStructured() {
		return normalizeStructured(raw.Structured)
	}
	return n.parseTranscript(raw.Transcript)
}

func normalizeStructured(s *domain.StructuredResult) domain.ClinicalFields {
	fields := domain.ClinicalFields{
		ProbableCondition: s.ProbableCondition,
		ConfidenceScore:   s.ConfidenceScore,
		Reasoning:         s.Reasoning,
		RehabPlan:         s.RehabPlan,
		ImageCaptions:     s.ImageCaptions,
	}
	if fields.ProbableCondition == "" {
		fields.ProbableCondition = pendingConditionStructured
	}
	return fields
}

// parseTranscript extracts clinical fields from free-text model output.
// Matching is per line, case-insensitive; the value markers reset the
// active section, the section markers open one, and every other line is
// collected into the open section's buffer. Lines before the first marker
// are discarded.
func (n *NormalizerService) parseTranscript(transcript string) domain.ClinicalFields {
	var (
		condition  string
		confidence = defaultTranscriptConfidence
		reasoning  strings.Builder
		rehabPlan  strings.Builder
	)

	const (
		sectionNone = iota
		sectionReasoning
		sectionRehabPlan
	)
	section := sectionNone

	for _, line := range strings.Split(transcript, "\n") {
		lineLower := strings.ToLower(strings.TrimSpace(line))

		switch {
		case strings.Contains(lineLower, "probable condition"):
			condition = extractAfterColon(line)
			section = sectionNone

		case strings.Contains(lineLower, "confidence") &&
			(strings.Contains(line, "0.") || strings.Contains(line, "1.0")):
			if match := confidencePattern.FindString(line); match != "" {
				if value, err := strconv.ParseFloat(match, 64); err == nil {
					confidence = value
				}
			}
			section = sectionNone

		case strings.Contains(lineLower, "clinical reasoning"):
			section = sectionReasoning

		case strings.Contains(lineLower, "rehabilitation plan"):
			section = sectionRehabPlan

		default:
			switch section {
			case sectionReasoning:
				reasoning.WriteString(line)
				reasoning.WriteString("\n")
			case sectionRehabPlan:
				rehabPlan.WriteString(line)
				rehabPlan.WriteString("\n")
			}
		}
	}

	fields := domain.ClinicalFields{
		ProbableCondition: condition,
		ConfidenceScore:   confidence,
		Reasoning:         strings.TrimSpace(reasoning.String()),
		RehabPlan:         strings.TrimSpace(rehabPlan.String()),
	}
	if fields.ProbableCondition == "" {
		fields.ProbableCondition = pendingConditionTranscript
	}

	// A transcript without section markers still has to persist something
	// usable, so empty buffers fall back to the entire transcript.
	degraded := make([]string, 0, 2)
	if fields.Reasoning == "" {
		fields.Reasoning = transcript
		degraded = append(degraded, "reasoning")
	}
	if fields.RehabPlan == "" {
		fields.RehabPlan = transcript
		degraded = append(degraded, "rehab_plan")
	}
	if len(degraded) > 0 {
		n.log.WithField("fields", strings.Join(degraded, ",")).
			Warn("Transcript had no recognizable section markers, using full text")
	}

	return fields
}

// extractAfterColon returns the text after the first colon on the line,
// stripped of whitespace and * emphasis. A line without a colon is used
// whole.
func extractAfterColon(line string) string {
	value := line
	if idx := strings.Index(line, ":"); idx >= 0 {
		value = line[idx+1:]
	}
	return strings.Trim(value, "* \t\r")
}

// Compose flattens parsed fields into the single narrative that gets
// persisted as the reasoning column: the rehab plan appended under its own
// heading, image captions prepended as a visual assessment block. It runs
// exactly once per pipeline run.
func (n *NormalizerService) Compose(fields domain.ClinicalFields) string {
	reasoning := fields.Reasoning

	if fields.RehabPlan != "" {
		reasoning = fields.Reasoning + "\n\n## Rehabilitation Plan\n" + fields.RehabPlan
	}

	if len(fields.ImageCaptions) > 0 {
		lines := make([]string, 0, len(fields.ImageCaptions)+1)
		lines = append(lines, "## Visual Assessment")
		for i, caption := range fields.ImageCaptions {
			lines = append(lines, fmt.Sprintf("- Image %d: %s", i+1, caption))
		}
		reasoning = strings.Join(lines, "\n") + "\n\n" + reasoning
	}

	return reasoning
}
