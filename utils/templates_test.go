package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplateKnownNames(t *testing.T) {
	data := TemplateData{
		TenantName:     "Acme",
		FormCount:      2,
		SubmissionWeek: 14,
		PlanName:       "starter",
		SubmissionUsed: 2000,
		SubmissionMax:  2000,
		DashboardURL:   "https://app.formloft.test/dashboard",
		UnsubscribeURL: "https://app.formloft.test/unsubscribe?token=abc",
	}

	for name := range emailTemplates {
		body, err := RenderTemplate(name, data)
		require.NoError(t, err, name)
		assert.Contains(t, body, "Acme", name)
		// Every outbound message carries its unsubscribe link
		assert.Contains(t, body, data.UnsubscribeURL, name)
	}
}

func TestRenderTemplateUnknownName(t *testing.T) {
	_, err := RenderTemplate("does_not_exist", TemplateData{})
	assert.Error(t, err)
}
