//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/testutil"
)

// TestIncidents_FullLifecycle walks a significant incident through every
// stage: notification, RCA report with its two approvals, close-out scoring,
// a remediation solution and finally the anniversary review.
func TestIncidents_FullLifecycle(t *testing.T) {
	re := newUser(t)
	sem := newUser(t, domain.RoleSectionEngineeringManager)
	snrAM := newUser(t, domain.RoleSeniorAssetManager)
	se := newUser(t, domain.RoleSectionEngineer)

	incidentID := logIncident(t, re.Client, withSignificant(true))

	detail := getDetail(t, re.Client, incidentID)
	assert.Equal(t, "active", detail.Incident.Status)
	assert.True(t, detail.Incident.Significant)
	assert.Equal(t, "2 hours, 0 minutes", detail.Duration)
	assert.True(t, strings.HasPrefix(detail.Incident.Code, fmt.Sprintf("RI-CON-%d-", time.Now().Year())),
		"unexpected code %s", detail.Incident.Code)

	// Stage 1: 48H notification
	notifApproval := publishNotification(t, re.Client, incidentID, sem.ID)
	assert.Equal(t, "section_engineering_manager", notifApproval.Role)
	assert.Equal(t, "notification", notifApproval.Type)
	assert.Equal(t, "pending", notifApproval.Outcome)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.NotificationTimePublished)
	// Publishing starts the 14-day RCA window, which flips a significant
	// incident to overdue until the report goes out.
	assert.Equal(t, "overdue", detail.Incident.Status)

	accept(t, sem.Client, notifApproval.ID)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.NotificationTimeApproved)

	// Stage 2: RCA report, approved by the SnrAM and then the SEM
	resp, err := re.Client.POST("/api/v1/incidents/"+incidentID+"/rca-report", map[string]string{
		"report_file": "reports/rca-mill-trip.pdf",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/rca-report/submit", map[string]string{
		"snr_am_user_id": snrAM.ID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var rcaResult struct {
		Data approvalResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &rcaResult)
	assert.Equal(t, "senior_asset_manager", rcaResult.Data.Role)
	assert.Equal(t, "rca", rcaResult.Data.Type)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.RCAReportTimePublished)
	assert.Equal(t, "reports/rca-mill-trip.pdf", detail.Incident.ReportFile)
	// Report published, window rule no longer applies.
	assert.Equal(t, "active", detail.Incident.Status)

	accept(t, snrAM.Client, rcaResult.Data.ID)

	// SnrAM acceptance alone does not approve the report
	detail = getDetail(t, re.Client, incidentID)
	assert.Nil(t, detail.Incident.RCAReportTimeApproved)

	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/rca-report/submit-sem", map[string]string{
		"sem_user_id": sem.ID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var semRCAResult struct {
		Data approvalResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &semRCAResult)

	accept(t, sem.Client, semRCAResult.Data.ID)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.RCAReportTimeApproved)

	// Stage 3: close-out slide scored by the SE and SEM
	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/close-out", map[string]string{
		"se_user_id":  se.ID,
		"sem_user_id": sem.ID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var closeOutResult struct {
		Data []approvalResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &closeOutResult)
	require.Len(t, closeOutResult.Data, 2)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.CloseOutTimePublished)

	seApproval := latestApproval(t, detail, "close_out", "section_engineer")
	semApproval := latestApproval(t, detail, "close_out", "section_engineering_manager")

	score(t, se.Client, seApproval.ID, 4)

	// One score is not concurrence
	detail = getDetail(t, re.Client, incidentID)
	assert.Nil(t, detail.Incident.CloseOutTimeApproved)

	score(t, sem.Client, semApproval.ID, 3)

	detail = getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.CloseOutTimeApproved)
	assert.Equal(t, 3, detail.Incident.CloseOutRating, "rating comes from the SEM score")

	// Stage 4: a solution moves the incident to scheduled, verifying it
	// completes the incident
	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/solutions", map[string]interface{}{
		"priority":           "A",
		"timeframe":          "short_term",
		"description":        "Replace worn mill liner bolts",
		"person_responsible": "T. Mokoena",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var solutionResult struct {
		Data solutionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &solutionResult)

	detail = getDetail(t, re.Client, incidentID)
	assert.Equal(t, "scheduled", detail.Incident.Status)

	resp, err = re.Client.POST("/api/v1/solutions/"+solutionResult.Data.ID+"/verify", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var verified struct {
		Data solutionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &verified)
	assert.NotNil(t, verified.Data.DateVerified)
	assert.NotNil(t, verified.Data.ActualCompletionDate)

	detail = getDetail(t, re.Client, incidentID)
	assert.Equal(t, "complete", detail.Incident.Status)

	// Stage 5: anniversary review
	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/anniversary-review", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reviewed struct {
		Data incidentResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &reviewed)
	assert.NotNil(t, reviewed.Data.TimeAnniversaryReviewed)
	assert.Equal(t, "complete", reviewed.Data.Status)

	// A second review is refused
	resp, err = re.Client.WithoutValidation().POST("/api/v1/incidents/"+incidentID+"/anniversary-review", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// TestIncidents_NonSignificantSkipsRCA checks the short path: a
// non-significant incident goes straight from the approved notification to
// the close-out slide.
func TestIncidents_NonSignificantSkipsRCA(t *testing.T) {
	re := newUser(t)
	sem := newUser(t, domain.RoleSectionEngineeringManager)
	se := newUser(t, domain.RoleSectionEngineer)

	incidentID := logIncident(t, re.Client, withSignificant(false))

	// The RCA report stage is closed to non-significant incidents
	resp, err := re.Client.WithoutValidation().POST("/api/v1/incidents/"+incidentID+"/rca-report", map[string]string{
		"report_file": "reports/should-not-exist.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	notifApproval := publishNotification(t, re.Client, incidentID, sem.ID)
	accept(t, sem.Client, notifApproval.ID)

	// Close-out does not wait for an RCA approval here
	resp, err = re.Client.POST("/api/v1/incidents/"+incidentID+"/close-out", map[string]string{
		"se_user_id":  se.ID,
		"sem_user_id": sem.ID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	detail := getDetail(t, re.Client, incidentID)
	require.NotNil(t, detail.Incident.CloseOutTimePublished)

	seApproval := latestApproval(t, detail, "close_out", "section_engineer")
	semApproval := latestApproval(t, detail, "close_out", "section_engineering_manager")

	// A score below the concurrence floor blocks approval
	score(t, se.Client, seApproval.ID, 4)
	score(t, sem.Client, semApproval.ID, 1)

	detail = getDetail(t, re.Client, incidentID)
	assert.Nil(t, detail.Incident.CloseOutTimeApproved)
	assert.Equal(t, 0, detail.Incident.CloseOutRating)
}

// TestIncidents_RejectionAndResubmission exercises the append-only approval
// ledger: a rejected notification can be republished, creating a fresh
// approval while the rejected one is kept.
func TestIncidents_RejectionAndResubmission(t *testing.T) {
	re := newUser(t)
	sem := newUser(t, domain.RoleSectionEngineeringManager)

	incidentID := logIncident(t, re.Client)

	first := publishNotification(t, re.Client, incidentID, sem.ID)

	// Rejection without a comment is refused
	resp, err := sem.Client.WithoutValidation().POST("/api/v1/approvals/"+first.ID+"/decision", map[string]interface{}{
		"outcome": "rejected",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp, err = sem.Client.POST("/api/v1/approvals/"+first.ID+"/decision", map[string]interface{}{
		"outcome": "rejected",
		"comment": "Times do not match the control room log",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// The approval is resolved; deciding again conflicts
	resp, err = sem.Client.WithoutValidation().POST("/api/v1/approvals/"+first.ID+"/decision", map[string]interface{}{
		"outcome": "accepted",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Republish: a fresh approval, the rejected one stays on the ledger
	second := publishNotification(t, re.Client, incidentID, sem.ID)
	assert.NotEqual(t, first.ID, second.ID)

	detail := getDetail(t, re.Client, incidentID)
	outcomes := make([]string, 0, len(detail.Approvals))
	for _, a := range detail.Approvals {
		if a.Type == "notification" {
			outcomes = append(outcomes, a.Outcome)
		}
	}
	assert.Equal(t, []string{"rejected", "pending"}, outcomes)

	accept(t, sem.Client, second.ID)

	detail = getDetail(t, re.Client, incidentID)
	assert.NotNil(t, detail.Incident.NotificationTimeApproved)
}

func TestIncidents_DecisionByWrongUserForbidden(t *testing.T) {
	re := newUser(t)
	sem := newUser(t, domain.RoleSectionEngineeringManager)
	other := newUser(t, domain.RoleSectionEngineeringManager)

	incidentID := logIncident(t, re.Client)
	approval := publishNotification(t, re.Client, incidentID, sem.ID)

	resp, err := other.Client.WithoutValidation().POST("/api/v1/approvals/"+approval.ID+"/decision", map[string]interface{}{
		"outcome": "accepted",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestIncidents_InvalidWindowRejected(t *testing.T) {
	re := newUser(t)

	now := time.Now().UTC()
	resp, err := re.Client.WithoutValidation().POST("/api/v1/incidents", map[string]interface{}{
		"time_start":        now.Format(time.RFC3339),
		"time_end":          now.Add(-2 * time.Hour).Format(time.RFC3339),
		"short_description": "ends before it starts",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestIncidents_ListAndFilter(t *testing.T) {
	re := newUser(t)

	logIncident(t, re.Client, withSignificant(true))
	logIncident(t, re.Client, withSignificant(false))

	resp, err := re.Client.GET("/api/v1/incidents?created_by=" + re.ID + "&significant=true")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data []incidentResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.Len(t, result.Data, 1)
	assert.True(t, result.Data[0].Significant)
	assert.Equal(t, re.ID, result.Data[0].CreatedBy)
}

func TestIncidents_SolutionsGatedOnCloseOut(t *testing.T) {
	re := newUser(t)

	incidentID := logIncident(t, re.Client)

	resp, err := re.Client.WithoutValidation().POST("/api/v1/incidents/"+incidentID+"/solutions", map[string]interface{}{
		"priority":           "B",
		"timeframe":          "medium_term",
		"description":        "Premature solution",
		"person_responsible": "N. Dlamini",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestIncidents_GetActionsAt(t *testing.T) {
	re := newUser(t)
	incidentID := logIncident(t, re.Client)

	// At creation the notification action is informational
	resp, err := re.Client.GET("/api/v1/incidents/" + incidentID + "/actions")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var now struct {
		Data []actionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &now)
	require.NotEmpty(t, now.Data)
	assert.Equal(t, "Create 48H Notification", now.Data[0].Message)
	assert.Equal(t, "info", now.Data[0].Urgency)

	// Three days on, the unpublished notification is well past due
	at := time.Now().UTC().Add(72 * time.Hour).Format(time.RFC3339)
	resp, err = re.Client.GET("/api/v1/incidents/" + incidentID + "/actions?at=" + at)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var later struct {
		Data []actionResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &later)
	require.NotEmpty(t, later.Data)
	assert.Equal(t, "danger", later.Data[0].Urgency)
}
