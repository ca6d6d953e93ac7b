package email

import (
	"bytes"
	"fmt"
	"html/template"
)

// AlertEmailData fills the inventory alert template.
type AlertEmailData struct {
	RecipientName string
	AlertType     string
	Severity      string
	Detail        string
	DashboardURL  string
}

// ApprovalEmailData fills the approval request template.
type ApprovalEmailData struct {
	RecipientName string
	CampaignName  string
	Stage         int
	ApprovalKind  string
	ReviewURL     string
}

var alertTemplate = template.Must(template.New("alert").Parse(`
<p>Hi {{.RecipientName}},</p>
<p>An inventory alert was raised: <strong>{{.AlertType}}</strong> (severity {{.Severity}}).</p>
<p>{{.Detail}}</p>
<p><a href="{{.DashboardURL}}">Open the alert dashboard</a></p>
`))

var approvalTemplate = template.Must(template.New("approval").Parse(`
<p>Hi {{.RecipientName}},</p>
<p>Campaign <strong>{{.CampaignName}}</strong> reached stage {{.Stage}} and needs {{.ApprovalKind}} approval.</p>
<p><a href="{{.ReviewURL}}">Review the campaign</a></p>
`))

// RenderAlert renders the inventory alert email body.
func RenderAlert(data AlertEmailData) (string, error) {
	var buf bytes.Buffer
	if err := alertTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render alert email: %w", err)
	}
	return buf.String(), nil
}

// RenderApproval renders the approval request email body.
func RenderApproval(data ApprovalEmailData) (string, error) {
	var buf bytes.Buffer
	if err := approvalTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render approval email: %w", err)
	}
	return buf.String(), nil
}

// AlertSubject builds the alert email subject line.
func AlertSubject(alertType, severity string) string {
	return fmt.Sprintf("[%s] Inventory alert: %s", severity, alertType)
}

// ApprovalSubject builds the approval email subject line.
func ApprovalSubject(campaignName string, stage int) string {
	return fmt.Sprintf("Approval needed: %s (stage %d)", campaignName, stage)
}
