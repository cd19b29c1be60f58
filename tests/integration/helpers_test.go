//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obakeng/relitrack/internal/domain"
	"github.com/obakeng/relitrack/internal/testutil"
)

// testUser is a registered and logged-in user with its own client.
type testUser struct {
	ID       string
	Email    string
	Password string
	Client   *testutil.Client
}

// newUser registers a fresh user, grants it the given roles and logs it in.
// Registration always yields a reliability engineer; other roles are written
// straight to the database because role management is admin-only.
func newUser(t *testing.T, roles ...domain.Role) testUser {
	t.Helper()

	email := testutil.RandomEmail()
	password := "password123"

	client := newTestClient(t)
	resp, err := client.POST("/api/v1/auth/register", map[string]string{
		"email":    email,
		"password": password,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)

	if len(roles) > 0 {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		_, err = testDB.Exec(context.Background(),
			"UPDATE users SET roles = $1 WHERE id = $2", names, result.Data.ID)
		require.NoError(t, err)
	}

	// Log in after the role change so the access token carries the final roles.
	client.LoginAs(t, email, password)

	return testUser{
		ID:       result.Data.ID,
		Email:    email,
		Password: password,
		Client:   client,
	}
}

type incidentOption func(map[string]interface{})

func withWindow(start, end time.Time) incidentOption {
	return func(m map[string]interface{}) {
		m["time_start"] = start.Format(time.RFC3339)
		m["time_end"] = end.Format(time.RFC3339)
	}
}

func withSignificant(significant bool) incidentOption {
	return func(m map[string]interface{}) {
		m["significant"] = significant
	}
}

// withDaysAgoWindow backdates the incident so its notification deadline is
// long past, which makes the derived action DANGER.
func withDaysAgoWindow(days int) incidentOption {
	return func(m map[string]interface{}) {
		now := time.Now().UTC()
		m["time_start"] = now.AddDate(0, 0, -days).Format(time.RFC3339)
		m["time_end"] = now.AddDate(0, 0, -days).Add(2 * time.Hour).Format(time.RFC3339)
	}
}

func withOperation(operation string) incidentOption {
	return func(m map[string]interface{}) {
		m["operation"] = operation
	}
}

// logIncident creates an incident that ended an hour ago and returns its ID.
func logIncident(t *testing.T, client *testutil.Client, opts ...incidentOption) string {
	t.Helper()

	now := time.Now().UTC()
	payload := map[string]interface{}{
		"operation":         "Concentrator",
		"time_start":        now.Add(-3 * time.Hour).Format(time.RFC3339),
		"time_end":          now.Add(-1 * time.Hour).Format(time.RFC3339),
		"short_description": "Mill trip on high vibration",
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	require.NotEmpty(t, result.Data.ID)
	return result.Data.ID
}

// approvalResponse is the decoded approval payload used across tests.
type approvalResponse struct {
	ID         string `json:"id"`
	IncidentID string `json:"incident_id"`
	Role       string `json:"role"`
	Type       string `json:"type"`
	Outcome    string `json:"outcome"`
	Score      int    `json:"score"`
	UserID     string `json:"user_id"`
	Comment    string `json:"comment"`
}

// publishNotification publishes the 48H notification and returns the SEM
// approval it creates.
func publishNotification(t *testing.T, client *testutil.Client, incidentID, semUserID string) approvalResponse {
	t.Helper()

	resp, err := client.POST("/api/v1/incidents/"+incidentID+"/notification", map[string]string{
		"sem_user_id": semUserID,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result struct {
		Data approvalResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// accept records an accepting decision on the approval.
func accept(t *testing.T, client *testutil.Client, approvalID string) {
	t.Helper()

	resp, err := client.POST("/api/v1/approvals/"+approvalID+"/decision", map[string]interface{}{
		"outcome": "accepted",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// score records a close-out confidence score on the approval.
func score(t *testing.T, client *testutil.Client, approvalID string, value int) {
	t.Helper()

	resp, err := client.POST("/api/v1/approvals/"+approvalID+"/decision", map[string]interface{}{
		"score": value,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// incidentResponse is the decoded incident payload used across tests.
type incidentResponse struct {
	ID                        string     `json:"id"`
	Code                      string     `json:"code"`
	Status                    string     `json:"status"`
	CreatedBy                 string     `json:"created_by"`
	Significant               bool       `json:"significant"`
	ReportFile                string     `json:"report_file"`
	CloseOutRating            int        `json:"close_out_rating"`
	NotificationTimePublished *time.Time `json:"notification_time_published"`
	NotificationTimeApproved  *time.Time `json:"notification_time_approved"`
	RCAReportTimePublished    *time.Time `json:"rca_report_time_published"`
	RCAReportTimeApproved     *time.Time `json:"rca_report_time_approved"`
	CloseOutTimePublished     *time.Time `json:"close_out_time_published"`
	CloseOutTimeApproved      *time.Time `json:"close_out_time_approved"`
	TimeAnniversaryReviewed   *time.Time `json:"time_anniversary_reviewed"`
}

// incidentDetailResponse is the decoded incident detail payload.
type incidentDetailResponse struct {
	Incident  incidentResponse   `json:"incident"`
	Approvals []approvalResponse `json:"approvals"`
	Solutions []solutionResponse `json:"solutions"`
	Actions   []actionResponse   `json:"actions"`
	Duration  string             `json:"duration"`
}

type solutionResponse struct {
	ID                   string     `json:"id"`
	IncidentID           string     `json:"incident_id"`
	Priority             string     `json:"priority"`
	Timeframe            string     `json:"timeframe"`
	Description          string     `json:"description"`
	DateVerified         *time.Time `json:"date_verified"`
	ActualCompletionDate *time.Time `json:"actual_completion_date"`
}

type actionResponse struct {
	Urgency      string            `json:"urgency"`
	Message      string            `json:"message"`
	Incident     *incidentResponse `json:"incident"`
	TimeRequired time.Time         `json:"time_required"`
}

// getDetail fetches the incident with approvals, solutions and actions.
func getDetail(t *testing.T, client *testutil.Client, incidentID string) incidentDetailResponse {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + incidentID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result struct {
		Data incidentDetailResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// latestApproval returns the most recently created approval of the given type
// and role, relying on the handler returning approvals in creation order.
func latestApproval(t *testing.T, detail incidentDetailResponse, approvalType, role string) approvalResponse {
	t.Helper()

	for i := len(detail.Approvals) - 1; i >= 0; i-- {
		a := detail.Approvals[i]
		if a.Type == approvalType && a.Role == role {
			return a
		}
	}
	t.Fatalf("no %s approval for role %s", approvalType, role)
	return approvalResponse{}
}
