package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/rehabflow-backend/internal/domain"
)

// placeholderNotes is what the mobile client submits in additional_notes
// when the advanced assessment form is sent without free text. It carries
// no clinical signal and is excluded from the complaint.
const placeholderNotes = "Advanced assessment submission"

// AggregatedContext is everything the inference invoker needs for one run.
type AggregatedContext struct {
	Assessment   *domain.Assessment
	Complaint    string
	Patient      domain.PatientContext
	ImagesBase64 []string
}

// AggregatorService assembles the clinical context for an assessment: the
// assessment row, the owner's lifestyle baseline and linked conditions,
// and every injury image downloaded and base64-encoded.
type AggregatorService struct {
	store      domain.AssessmentStore
	downloader domain.ImageDownloader
	log        *logrus.Logger
}

// NewAggregatorService creates a new context aggregator
func NewAggregatorService(store domain.AssessmentStore, downloader domain.ImageDownloader, logger *logrus.Logger) *AggregatorService {
	return &AggregatorService{
		store:      store,
		downloader: downloader,
		log:        logger,
	}
}

// Aggregate gathers the full context for assessmentID on behalf of ownerID.
// A missing assessment and an ownership mismatch both come back as
// ErrAccessDenied so callers cannot probe for assessments they do not own.
// Any failed image download aborts with ErrUpstreamUnavailable; partial
// image evidence is never forwarded silently.
func (a *AggregatorService) Aggregate(ctx context.Context, assessmentID, ownerID string) (*AggregatedContext, error) {
	assessment, err := a.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.logDenied(assessmentID, ownerID)
			return nil, fmt.Errorf("assessment %s: %w", assessmentID, domain.ErrAccessDenied)
		}
		return nil, fmt.Errorf("fetching assessment: %w", err)
	}
	if assessment.UserID != ownerID {
		a.logDenied(assessmentID, ownerID)
		return nil, fmt.Errorf("assessment %s: %w", assessmentID, domain.ErrAccessDenied)
	}

	baseline, err := a.store.GetBaseline(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching baseline profile: %w", err)
	}

	conditions, err := a.store.GetConditions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("fetching medical conditions: %w", err)
	}

	images, err := a.store.GetImages(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("fetching image references: %w", err)
	}

	encoded, err := a.downloadAll(ctx, images)
	if err != nil {
		return nil, err
	}

	a.log.WithFields(logrus.Fields{
		"assessment_id": assessmentID,
		"images":        len(encoded),
		"conditions":    len(conditions),
		"has_baseline":  baseline != nil,
	}).Info("Clinical context aggregated")

	return &AggregatedContext{
		Assessment:   assessment,
		Complaint:    buildComplaint(assessment),
		Patient:      buildPatientContext(baseline, conditions),
		ImagesBase64: encoded,
	}, nil
}

func (a *AggregatorService) logDenied(assessmentID, ownerID string) {
	a.log.WithFields(logrus.Fields{
		"assessment_id": assessmentID,
		"user_id":       ownerID,
	}).Warn("Assessment access denied")
}

// downloadAll fetches every image blob concurrently and base64-encodes it,
// preserving reference order. The first failure wins and fails the step.
func (a *AggregatorService) downloadAll(ctx context.Context, refs []domain.InjuryImage) ([]string, error) {
	if len(refs) == 0 {
		return nil, nil
	}

	encoded := make([]string, len(refs))
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for i, ref := range refs {
		wg.Add(1)
		go func(idx int, img domain.InjuryImage) {
			defer wg.Done()

			data, err := a.downloader.Download(ctx, img.StoragePath)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("image %s: %w", img.ID, err)
				}
				mu.Unlock()
				return
			}
			encoded[idx] = base64.StdEncoding.EncodeToString(data)
		}(i, ref)
	}
	wg.Wait()

	if firstErr != nil {
		a.log.WithError(firstErr).Error("Image download failed, aborting analysis")
		return nil, firstErr
	}
	return encoded, nil
}

// buildComplaint renders the patient's complaint as a single text in a
// fixed clause order. The fallback clause keeps the invariant that the
// complaint is never empty.
func buildComplaint(a *domain.Assessment) string {
	var clauses []string

	if a.PainCause != "" {
		clauses = append(clauses, a.PainCause)
	}
	if a.AdditionalNotes != "" && a.AdditionalNotes != placeholderNotes {
		clauses = append(clauses, a.AdditionalNotes)
	}
	if a.VisibleSwelling {
		clauses = append(clauses, "Visible swelling is present.")
	}
	if a.MobilityRestriction {
		clauses = append(clauses, "Movement or mobility is restricted.")
	}

	if len(clauses) == 0 {
		if a.PainLocation == "" {
			return "Pain in unspecified area"
		}
		return "Pain in " + a.PainLocation
	}
	return strings.Join(clauses, " ")
}

// buildPatientContext folds the optional baseline and condition list into
// the ephemeral context object. Absent sources leave fields zero so they
// are omitted from the serialized request.
func buildPatientContext(baseline *domain.BaselineProfile, conditions []domain.MedicalCondition) domain.PatientContext {
	pc := domain.PatientContext{}

	if baseline != nil {
		pc.OccupationType = baseline.OccupationType
		pc.DailySittingHours = baseline.DailySittingHours
		pc.PhysicalWorkLevel = baseline.PhysicalWorkLevel
	}
	for _, condition := range conditions {
		pc.MedicalConditions = append(pc.MedicalConditions, condition.Name)
	}
	return pc
}
