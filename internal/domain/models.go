// Package domain contains the core business entities for the RehabFlow
// clinical-analysis platform: patient injury assessments, aggregated patient
// context, and the persisted AI clinical analysis records.
package domain

import (
	"time"
)

// Assessment represents a patient-submitted injury assessment row.
// Assessments are owned by exactly one user and are read-only to the
// analysis pipeline.
type Assessment struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	PainLocation        string     `json:"pain_location"`
	PainLevel           int        `json:"pain_level"`
	PainCause           string     `json:"pain_cause,omitempty"`
	AdditionalNotes     string     `json:"additional_notes,omitempty"`
	VisibleSwelling     bool       `json:"visible_swelling"`
	MobilityRestriction bool       `json:"mobility_restriction"`
	PainStartedAt       *time.Time `json:"pain_started_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// BaselineProfile captures a user's lifestyle baseline. At most one row
// exists per user; absence is not an error.
type BaselineProfile struct {
	UserID            string `json:"user_id"`
	OccupationType    string `json:"occupation_type"`
	DailySittingHours int    `json:"daily_sitting_hours"`
	PhysicalWorkLevel string `json:"physical_work_level"`
	GymFrequency      string `json:"gym_frequency"`
	AlcoholUsage      string `json:"alcohol_usage"`
	SmokingUsage      string `json:"smoking_usage"`
}

// MedicalCondition is a condition from the catalog linked to a user.
type MedicalCondition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// InjuryImage is the metadata row for an uploaded injury photo. The blob
// itself lives in object storage under StoragePath.
type InjuryImage struct {
	ID            string `json:"id"`
	AssessmentID  string `json:"injury_assessment_id"`
	StoragePath   string `json:"image_url"`
	AIDescription string `json:"ai_description,omitempty"`
}

// Profile holds per-user presentation preferences. Language is a short
// code ("en", "hi", ...) used for on-read translation of analyses.
type Profile struct {
	ID       string `json:"id"`
	Language string `json:"language"`
}

// PatientContext is the ephemeral lifestyle/medical-history aggregate
// embedded in an inference request. It is built fresh for every pipeline
// run and never persisted. Fields with no source data are omitted from
// the serialized form entirely rather than sent as zero values.
type PatientContext struct {
	OccupationType    string   `json:"occupation_type,omitempty"`
	DailySittingHours int      `json:"daily_sitting_hours,omitempty"`
	PhysicalWorkLevel string   `json:"physical_work_level,omitempty"`
	MedicalConditions []string `json:"medical_conditions,omitempty"`
}

// IsEmpty reports whether no context field carries data.
func (pc PatientContext) IsEmpty() bool {
	return pc.OccupationType == "" &&
		pc.DailySittingHours == 0 &&
		pc.PhysicalWorkLevel == "" &&
		len(pc.MedicalConditions) == 0
}

// InferenceRequest is the logical input to the inference invoker.
// TextComplaint must never be empty; the aggregator guarantees a
// non-empty fallback before a request is built.
type InferenceRequest struct {
	ImagesBase64   []string       `json:"images_base64"`
	TextComplaint  string         `json:"text_complaint"`
	PainLocation   string         `json:"pain_location"`
	PainLevel      int            `json:"pain_level"`
	PatientContext PatientContext `json:"patient_context"`
}

// StructuredResult is the fully-typed response shape of the inference
// endpoint.
type StructuredResult struct {
	ProbableCondition string   `json:"probable_condition"`
	ConfidenceScore   float64  `json:"confidence_score"`
	Reasoning         string   `json:"reasoning"`
	RehabPlan         string   `json:"rehab_plan"`
	ImageCaptions     []string `json:"image_captions"`
	ModelVersion      string   `json:"model_version,omitempty"`
}

// RawInferenceResult is a tagged union of the two response shapes the
// inference endpoint is known to produce. The discriminant is explicit:
// a response body carrying a non-empty probable_condition key decodes as
// Structured; anything else is carried as a Transcript for the
// normalizer's section parser.
type RawInferenceResult struct {
	Structured *StructuredResult
	Transcript string
}

// IsStructured reports which arm of the union is populated.
func (r *RawInferenceResult) IsStructured() bool {
	return r.Structured != nil
}

// ClinicalFields is the canonical normalized form of an inference result,
// regardless of which raw shape it arrived in.
type ClinicalFields struct {
	ProbableCondition string
	ConfidenceScore   float64
	Reasoning         string
	RehabPlan         string
	ImageCaptions     []string
}

// ClinicalAnalysis is the persisted analysis record. Rows are insert-only;
// multiple rows may exist per assessment and "current" means the most
// recently created one. Exactly these fields, no nested structure.
type ClinicalAnalysis struct {
	ID                string    `json:"id"`
	AssessmentID      string    `json:"assessment_id"`
	ProbableCondition string    `json:"probable_condition"`
	ConfidenceScore   float64   `json:"confidence_score"`
	Reasoning         string    `json:"reasoning"`
	ModelVersion      string    `json:"model_version"`
	CreatedAt         time.Time `json:"created_at"`
}

// VideoMatch is the outcome of a keyword video search: the embeddable
// player URL of the highest-scored candidate and the query it answered.
type VideoMatch struct {
	EmbedURL string `json:"embed_url"`
	Query    string `json:"query"`
}

// PipelineStage identifies where a pipeline run currently is. Runs
// progress Validating through Done in order; any stage may transition to
// Failed. Nothing is persisted before Persisting is reached.
type PipelineStage string

const (
	StageValidating  PipelineStage = "validating"
	StageAggregating PipelineStage = "aggregating"
	StageInvoking    PipelineStage = "invoking"
	StageNormalizing PipelineStage = "normalizing"
	StagePersisting  PipelineStage = "persisting"
	StageDone        PipelineStage = "done"
	StageFailed      PipelineStage = "failed"
)

// String returns the wire representation of the stage.
func (s PipelineStage) String() string {
	return string(s)
}

// Terminal reports whether the stage ends a run.
func (s PipelineStage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// StageObserver receives pipeline stage transitions as they happen.
// Observers must not block; the pipeline invokes them synchronously
// between stages.
type StageObserver func(stage PipelineStage)
