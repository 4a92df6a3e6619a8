package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// PredictionPossibility tells whether a prediction can be launched on a project
// and, if not, why.
type PredictionPossibility string

const (
	CanLaunchPrediction      PredictionPossibility = "CAN_LAUNCH_PREDICTION"
	InvalidParameters        PredictionPossibility = "INVALID_PARAMETERS"
	ProjectNotFound          PredictionPossibility = "PROJECT_NOT_FOUND"
	NoDataInProject          PredictionPossibility = "NO_DATA_IN_PROJECT"
	NoEndCaseRule            PredictionPossibility = "NO_END_CASE_RULE"
	NoCompletedCase          PredictionPossibility = "NO_COMPLETED_CASE"
	NoNonCompletedCase       PredictionPossibility = "NO_NON_COMPLETED_CASE"
	PredictionServiceFailure PredictionPossibility = "PREDICTION_SERVICE_FAILURE"
	NonActivatedPrediction   PredictionPossibility = "NON_ACTIVATED_PREDICTION"
	Forbidden                PredictionPossibility = "FORBIDDEN"
	UnknownError             PredictionPossibility = "UNKNOWN_ERROR"
	InvalidResponse          PredictionPossibility = "INVALID_RESPONSE"
)

var possibilities = map[PredictionPossibility]bool{
	CanLaunchPrediction: true, InvalidParameters: true, ProjectNotFound: true,
	NoDataInProject: true, NoEndCaseRule: true, NoCompletedCase: true,
	NoNonCompletedCase: true, PredictionServiceFailure: true, NonActivatedPrediction: true,
	Forbidden: true, UnknownError: true, InvalidResponse: true,
}

// PredictionStatus is the lifecycle state of a prediction workflow.
type PredictionStatus string

const (
	PredictionRunning  PredictionStatus = "RUNNING"
	PredictionPending  PredictionStatus = "PENDING"
	PredictionSuccess  PredictionStatus = "SUCCESS"
	PredictionCanceled PredictionStatus = "CANCELED"
	PredictionError    PredictionStatus = "ERROR"
)

// Done reports whether the workflow has reached a final state.
func (s PredictionStatus) Done() bool {
	return s == PredictionSuccess || s == PredictionCanceled || s == PredictionError
}

// WorkflowStatus is the state of one prediction.
type WorkflowStatus struct {
	PredictionID   uuid.UUID        `json:"predictionId"`
	ProjectID      uuid.UUID        `json:"projectId"`
	Status         PredictionStatus `json:"status"`
	StartTime      time.Time        `json:"startTime"`
	EndTime        *time.Time       `json:"endTime,omitempty"`
	CompletedTasks []string         `json:"completedTasks,omitempty"`
}

type launchPredictionRequest struct {
	CaseIDs []string `json:"caseIds,omitempty"`
}

type launchPredictionResponse struct {
	PredictionID uuid.UUID `json:"predictionId"`
}

// PredictionPossibility asks the platform whether a prediction can be launched.
// HTTP failures are folded into the returned code; only transport errors are returned.
func (p *Project) PredictionPossibility(ctx context.Context) (PredictionPossibility, error) {
	var raw []byte
	err := p.c.get(ctx, p.path("prediction", "possibility"), nil, &raw)

	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return ProjectNotFound, nil
		case http.StatusForbidden:
			return Forbidden, nil
		case http.StatusBadRequest:
			return InvalidParameters, nil
		default:
			return UnknownError, nil
		}
	case err != nil:
		return "", fmt.Errorf("project %s prediction possibility: %w", p.ID, err)
	}
	return parsePossibility(raw), nil
}

// parsePossibility accepts a bare code, a JSON string or an object holding the code.
func parsePossibility(raw []byte) PredictionPossibility {
	raw = bytes.TrimSpace(raw)

	var code string
	if err := json.Unmarshal(raw, &code); err != nil {
		var obj struct {
			Possibility string `json:"possibility"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			code = obj.Possibility
		} else {
			code = string(raw)
		}
	}

	if pp := PredictionPossibility(code); possibilities[pp] {
		return pp
	}
	return InvalidResponse
}

// LaunchPrediction starts a prediction workflow, restricted to caseIDs when given.
func (p *Project) LaunchPrediction(ctx context.Context, caseIDs ...string) (uuid.UUID, error) {
	var resp launchPredictionResponse
	if err := p.c.post(ctx, p.path("prediction"), launchPredictionRequest{CaseIDs: caseIDs}, &resp); err != nil {
		return uuid.Nil, fmt.Errorf("project %s launch prediction: %w", p.ID, err)
	}
	if resp.PredictionID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("project %s launch prediction: response has no prediction id", p.ID)
	}

	p.logger().WithField("prediction_id", resp.PredictionID).Info("prediction launched")
	return resp.PredictionID, nil
}

// PredictionStatus returns the current state of a prediction.
func (p *Project) PredictionStatus(ctx context.Context, id uuid.UUID) (*WorkflowStatus, error) {
	var ws WorkflowStatus
	if err := p.c.get(ctx, p.path("prediction", id.String()), nil, &ws); err != nil {
		return nil, fmt.Errorf("project %s prediction %s: %w", p.ID, id, err)
	}
	return &ws, nil
}

// CancelPrediction cancels a running prediction.
func (p *Project) CancelPrediction(ctx context.Context, id uuid.UUID) error {
	if err := p.c.del(ctx, p.path("prediction", id.String()), nil); err != nil {
		return fmt.Errorf("project %s cancel prediction %s: %w", p.ID, id, err)
	}
	return nil
}

// WaitPrediction polls the prediction every interval until it reaches a final
// state or ctx is done.
func (p *Project) WaitPrediction(ctx context.Context, id uuid.UUID, interval time.Duration) (*WorkflowStatus, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ws, err := p.PredictionStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if ws.Status.Done() {
			return ws, nil
		}
		p.logger().WithFields(logrus.Fields{
			"prediction_id": id,
			"status":        ws.Status,
		}).Debug("waiting for prediction")

		select {
		case <-ctx.Done():
			return ws, ctx.Err()
		case <-ticker.C:
		}
	}
}

// TrainStatus reports whether the project's training is running.
func (p *Project) TrainStatus(ctx context.Context) (bool, error) {
	var resp trainStatusResponse
	if err := p.c.get(ctx, p.trainPath(), nil, &resp); err != nil {
		return false, fmt.Errorf("project %s train status: %w", p.ID, err)
	}
	return resp.IsTrainRunning, nil
}

// LaunchTrain starts training the project's prediction model.
func (p *Project) LaunchTrain(ctx context.Context) error {
	if err := p.c.post(ctx, p.trainPath()+"/launch", nil, nil); err != nil {
		return fmt.Errorf("project %s launch train: %w", p.ID, err)
	}
	return nil
}

// StopTrain stops a running training.
func (p *Project) StopTrain(ctx context.Context) error {
	if err := p.c.del(ctx, p.trainPath(), nil); err != nil {
		return fmt.Errorf("project %s stop train: %w", p.ID, err)
	}
	return nil
}

func (p *Project) trainPath() string {
	return "/train/" + url.PathEscape(p.ID)
}
