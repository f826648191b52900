package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/verdatum/lca-review-api/internal/dto"
	"github.com/verdatum/lca-review-api/internal/middleware"
	"github.com/verdatum/lca-review-api/internal/models"
	appErrors "github.com/verdatum/lca-review-api/pkg/errors"
)

const (
	reviewerUUID  = "6f1c2a34-9f0d-4c1b-8f71-55f00a2b9c01"
	reviewer2UUID = "0b9e6d12-4a3c-4e8f-9d20-7cb1f4e5a602"
)

type reviewWorkflowMock struct {
	submitTask *models.ReviewTask
	submitErr  error

	decisionResp *dto.ReviewTaskResponse
	decisionErr  error

	state    *models.DatasetReviewState
	stateErr error

	taskResp *dto.ReviewTaskResponse
	taskErr  error

	tasks    []models.ReviewTask
	listErr  error
	gotQuery dto.TaskQuery

	gotDatasetID string
	gotVersion   models.Version
	gotReviewers []string
	gotDecision  models.DecisionState
	gotReason    string
}

func (m *reviewWorkflowMock) SubmitForReview(ctx context.Context, datasetID string, version models.Version, typ models.EntityType, reviewerIDs []string) (*models.ReviewTask, error) {
	m.gotDatasetID = datasetID
	m.gotVersion = version
	m.gotReviewers = reviewerIDs
	return m.submitTask, m.submitErr
}

func (m *reviewWorkflowMock) RecordDecision(ctx context.Context, taskID, reviewerID string, state models.DecisionState, reason string) (*dto.ReviewTaskResponse, error) {
	m.gotDecision = state
	m.gotReason = reason
	return m.decisionResp, m.decisionErr
}

func (m *reviewWorkflowMock) GetReviewState(ctx context.Context, datasetID string) (*models.DatasetReviewState, error) {
	m.gotDatasetID = datasetID
	return m.state, m.stateErr
}

func (m *reviewWorkflowMock) GetTask(ctx context.Context, taskID string) (*dto.ReviewTaskResponse, error) {
	return m.taskResp, m.taskErr
}

func (m *reviewWorkflowMock) ListTasks(ctx context.Context, query dto.TaskQuery) ([]models.ReviewTask, error) {
	m.gotQuery = query
	return m.tasks, m.listErr
}

func newJSONContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestReviewHandlerSubmit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewWorkflowMock{
		submitTask: &models.ReviewTask{
			ID:             "task-1",
			DatasetID:      "ds-1",
			DatasetVersion: models.MustParseVersion("1.0.0"),
			ReviewerIDs:    pq.StringArray{reviewerUUID},
			StateCode:      models.StateAssigned,
		},
	}
	handler := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.SubmitForReviewRequest{
		Type:        models.TypeProcess,
		ReviewerIDs: []string{reviewerUUID, reviewer2UUID},
	})
	c, w := newJSONContext(http.MethodPost, "/datasets/ds-1/versions/01.00.000/submit", payload)
	c.Params = gin.Params{{Key: "id", Value: "ds-1"}, {Key: "version", Value: "01.00.000"}}

	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t, "ds-1", mockSvc.gotDatasetID)
	require.Equal(t, models.MustParseVersion("1.0.0"), mockSvc.gotVersion)
	require.Equal(t, []string{reviewerUUID, reviewer2UUID}, mockSvc.gotReviewers)
}

func TestReviewHandlerSubmitBadVersion(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{})

	c, w := newJSONContext(http.MethodPost, "/datasets/ds-1/versions/not-a-version/submit", nil)
	c.Params = gin.Params{{Key: "id", Value: "ds-1"}, {Key: "version", Value: "not-a-version"}}

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandlerSubmitRejectsNonUUIDReviewers(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{})

	payload, _ := json.Marshal(dto.SubmitForReviewRequest{
		Type:        models.TypeProcess,
		ReviewerIDs: []string{"alice"},
	})
	c, w := newJSONContext(http.MethodPost, "/datasets/ds-1/versions/01.00.000/submit", payload)
	c.Params = gin.Params{{Key: "id", Value: "ds-1"}, {Key: "version", Value: "01.00.000"}}

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandlerSubmitVersionConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewWorkflowMock{
		submitErr: appErrors.WithDetails(appErrors.ErrVersionConflict, map[string]interface{}{
			"under_review_version": "01.00.000",
		}),
	}
	handler := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.SubmitForReviewRequest{
		Type:        models.TypeProcess,
		ReviewerIDs: []string{reviewerUUID},
	})
	c, w := newJSONContext(http.MethodPost, "/datasets/ds-1/versions/01.01.000/submit", payload)
	c.Params = gin.Params{{Key: "id", Value: "ds-1"}, {Key: "version", Value: "01.01.000"}}

	handler.Submit(c)

	require.Equal(t, http.StatusConflict, w.Code)
	require.Contains(t, w.Body.String(), "VERSION_CONFLICT")
	require.Contains(t, w.Body.String(), "01.00.000")
}

func TestReviewHandlerRecordDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewWorkflowMock{
		decisionResp: &dto.ReviewTaskResponse{
			Task:    &models.ReviewTask{ID: "task-1", StateCode: models.StateRejected},
			Outcome: models.ConsensusOutcome{State: models.DecisionRejected, Reasons: []string{"missing classification"}},
		},
	}
	handler := NewReviewHandler(mockSvc)

	payload, _ := json.Marshal(dto.RecordDecisionRequest{Decision: "REJECTED", Reason: "missing classification"})
	c, w := newJSONContext(http.MethodPost, "/review-tasks/task-1/decisions", payload)
	c.Params = gin.Params{{Key: "id", Value: "task-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: reviewerUUID, Role: models.RoleReviewer})

	handler.RecordDecision(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.DecisionRejected, mockSvc.gotDecision)
	require.Equal(t, "missing classification", mockSvc.gotReason)
}

func TestReviewHandlerRecordDecisionRequiresAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{})

	payload, _ := json.Marshal(dto.RecordDecisionRequest{Decision: "APPROVED"})
	c, w := newJSONContext(http.MethodPost, "/review-tasks/task-1/decisions", payload)
	c.Params = gin.Params{{Key: "id", Value: "task-1"}}

	handler.RecordDecision(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReviewHandlerRecordDecisionBadVerdict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{})

	payload, _ := json.Marshal(map[string]string{"decision": "MAYBE"})
	c, w := newJSONContext(http.MethodPost, "/review-tasks/task-1/decisions", payload)
	c.Params = gin.Params{{Key: "id", Value: "task-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: reviewerUUID, Role: models.RoleReviewer})

	handler.RecordDecision(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReviewHandlerReviewState(t *testing.T) {
	gin.SetMode(gin.TestMode)
	version := models.MustParseVersion("1.0.0")
	mockSvc := &reviewWorkflowMock{
		state: &models.DatasetReviewState{
			DatasetID:          "ds-1",
			StateCode:          models.UnderReviewCode(1),
			UnderReviewVersion: &version,
		},
	}
	handler := NewReviewHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/datasets/ds-1/review-state", nil)
	c.Params = gin.Params{{Key: "id", Value: "ds-1"}}

	handler.ReviewState(c)

	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data dto.ReviewStateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "ds-1", envelope.Data.DatasetID)
	require.Equal(t, 21, envelope.Data.StateCode)
	require.NotNil(t, envelope.Data.UnderReviewVersion)
	require.Equal(t, "01.00.000", envelope.Data.UnderReviewVersion.String())
}

func TestReviewHandlerGetTaskNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewReviewHandler(&reviewWorkflowMock{taskErr: appErrors.ErrNotFound})

	c, w := newJSONContext(http.MethodGet, "/review-tasks/nope", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	handler.GetTask(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestReviewHandlerListTasksScopesReviewer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewWorkflowMock{tasks: []models.ReviewTask{}}
	handler := NewReviewHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/review-tasks?reviewer_id="+reviewer2UUID, nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: reviewerUUID, Role: models.RoleReviewer})

	handler.ListTasks(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, reviewerUUID, mockSvc.gotQuery.ReviewerID, "reviewers may only list their own assignments")
}

func TestReviewHandlerListTasksAdminKeepsFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &reviewWorkflowMock{tasks: []models.ReviewTask{}}
	handler := NewReviewHandler(mockSvc)

	c, w := newJSONContext(http.MethodGet, "/review-tasks?reviewer_id="+reviewer2UUID, nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.ListTasks(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, reviewer2UUID, mockSvc.gotQuery.ReviewerID)
}
