package domain

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusOverdue   Status = "overdue"
	StatusScheduled Status = "scheduled"
	StatusComplete  Status = "complete"
)

// Incident is a logged reliability incident moving through the multi-stage
// review workflow: 48-hour notification, optional RCA report, close-out slide,
// remediation solutions and the one-year anniversary review.
type Incident struct {
	ID   string `json:"id"`
	Code string `json:"code"`

	// Status caches the last computed lifecycle status. It is recomputed and
	// re-persisted at every mutation boundary; the computed value wins over
	// the stored one when the two disagree.
	Status Status `json:"status"`

	CreatedBy         string  `json:"created_by"`
	Operation         *string `json:"operation,omitempty"`
	Area              *string `json:"area,omitempty"`
	Section           *string `json:"section,omitempty"`
	Equipment         *string `json:"equipment,omitempty"`
	SectionEngineerID *string `json:"section_engineer_id,omitempty"`

	TimeStart   time.Time  `json:"time_start"`
	TimeEnd     *time.Time `json:"time_end"` // unset until the incident is over
	Significant bool       `json:"significant"` // significant incidents require a full RCA report

	ShortDescription     string `json:"short_description"`
	LongDescription      string `json:"long_description"`
	ImmediateCause       string `json:"immediate_cause"`
	RootCause            string `json:"root_cause"`
	ImmediateActionTaken string `json:"immediate_action_taken"`
	RemainingRisk        string `json:"remaining_risk"`

	ProductionValueLoss float64 `json:"production_value_loss"`
	RandValueLoss       float64 `json:"rand_value_loss"`

	NotificationTimePublished *time.Time `json:"notification_time_published,omitempty"`
	NotificationTimeApproved  *time.Time `json:"notification_time_approved,omitempty"`
	RCAReportTimePublished    *time.Time `json:"rca_report_time_published,omitempty"`
	RCAReportTimeApproved     *time.Time `json:"rca_report_time_approved,omitempty"`
	CloseOutTimePublished     *time.Time `json:"close_out_time_published,omitempty"`
	CloseOutTimeApproved      *time.Time `json:"close_out_time_approved,omitempty"`
	TimeAnniversaryReviewed   *time.Time `json:"time_anniversary_reviewed,omitempty"`

	// ReportFile references the uploaded RCA report document. Empty until a
	// report has been attached; upload mechanics live outside this service.
	ReportFile string `json:"report_file,omitempty"`

	// CloseOutRating stays 0 until the SEM close-out approval is accepted,
	// then equals that approval's score.
	CloseOutRating int `json:"close_out_rating,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
