package utils

import (
	"bytes"
	"fmt"
	"html/template"
)

// TemplateData carries tenant display fields and precomputed links into
// the message templates. The engine owns no markup beyond these.
type TemplateData struct {
	TenantName     string
	FormCount      int
	SubmissionWeek int
	PlanName       string
	SubmissionUsed int
	SubmissionMax  int
	DashboardURL   string
	UnsubscribeURL string
}

// Embedded email templates
var emailTemplates = map[string]string{
	"frozen_starter_1": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2c3e50;">Your first form is two minutes away</h2>
    <p>Hi {{.TenantName}},</p>
    <p>You signed up for Formloft but haven't published a form yet. Pick a template and you'll be collecting responses in minutes:</p>
    <p style="text-align: center;">
        <a href="{{.DashboardURL}}" style="display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px;">Create your first form</a>
    </p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from getting-started emails</a></p>
    </div>
</body>
</html>`,

	"frozen_starter_2": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2c3e50;">Need a hand getting set up?</h2>
    <p>Hi {{.TenantName}},</p>
    <p>Still haven't built anything in Formloft? No problem. Here are the three most popular starting points: a contact list, an upload form, and a billing page.</p>
    <p style="text-align: center;">
        <a href="{{.DashboardURL}}" style="display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px;">Browse templates</a>
    </p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from getting-started emails</a></p>
    </div>
</body>
</html>`,

	"idle_builder_1": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2c3e50;">Your form hasn't seen a response yet</h2>
    <p>Hi {{.TenantName}},</p>
    <p>You've built {{.FormCount}} form{{if ne .FormCount 1}}s{{end}} but nothing has come in so far. Most teams fix this by sharing the form link directly or embedding it on their site.</p>
    <p style="text-align: center;">
        <a href="{{.DashboardURL}}" style="display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px;">Get your share link</a>
    </p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from tips like this</a></p>
    </div>
</body>
</html>`,

	"idle_builder_2": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2c3e50;">Three ways to get your first submission</h2>
    <p>Hi {{.TenantName}},</p>
    <p>Quick checklist: is the form published, is the link shared, and does the confirmation page point somewhere useful? Ten minutes on these usually gets the first response in.</p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from tips like this</a></p>
    </div>
</body>
</html>`,

	"at_capacity_1": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #e74c3c;">You've hit your {{.PlanName}} plan limit</h2>
    <p>Hi {{.TenantName}},</p>
    <p>You've used {{.SubmissionUsed}} of {{.SubmissionMax}} submissions this month. New responses will be held until the next cycle unless you upgrade.</p>
    <p style="text-align: center;">
        <a href="{{.DashboardURL}}" style="display: inline-block; padding: 10px 20px; background-color: #e74c3c; color: white; text-decoration: none; border-radius: 4px;">Upgrade your plan</a>
    </p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from usage alerts</a></p>
    </div>
</body>
</html>`,

	"weekly_digest": `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="color: #2c3e50;">Your week on Formloft</h2>
    <p>Hi {{.TenantName}},</p>
    <p>You collected <strong>{{.SubmissionWeek}}</strong> submission{{if ne .SubmissionWeek 1}}s{{end}} across {{.FormCount}} form{{if ne .FormCount 1}}s{{end}} this week.</p>
    <p style="text-align: center;">
        <a href="{{.DashboardURL}}" style="display: inline-block; padding: 10px 20px; background-color: #3498db; color: white; text-decoration: none; border-radius: 4px;">Open your dashboard</a>
    </p>
    <div style="margin-top: 30px; font-size: 12px; color: #7f8c8d; text-align: center;">
        <p><a href="{{.UnsubscribeURL}}">Unsubscribe from weekly digests</a></p>
    </div>
</body>
</html>`,
}

// RenderTemplate executes the named embedded template against data
func RenderTemplate(name string, data TemplateData) (string, error) {
	tmplContent, ok := emailTemplates[name]
	if !ok {
		return "", fmt.Errorf("template '%s' not found", name)
	}

	tmpl, err := template.New("email").Parse(tmplContent)
	if err != nil {
		return "", fmt.Errorf("error parsing template: %w", err)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("error executing template: %w", err)
	}
	return body.String(), nil
}
