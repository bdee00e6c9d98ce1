package email

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

const layout = `
{{define "header"}}<html><body style="font-family: sans-serif; color: #222;">{{end}}
{{define "footer"}}<p style="color: #888; font-size: 12px;">Manage your subscription at <a href="{{.DashboardURL}}">your dashboard</a>.</p></body></html>{{end}}
`

var templateSources = map[string]string{
	"welcome": `{{template "header"}}
<h1>Welcome, {{.Name}}!</h1>
<p>Your account is ready. Pick a plan to get your first box.</p>
{{template "footer" .}}`,

	"subscription_started": `{{template "header"}}
<h1>Thanks for subscribing, {{.Name}}!</h1>
<p>Your <strong>{{.PlanName}}</strong> subscription is active at {{money .Price}} {{upper .Currency}} per month.</p>
<p>Your current period ends on {{date .PeriodEnd}}.</p>
{{template "footer" .}}`,

	"subscription_cancelled": `{{template "header"}}
<h1>Subscription cancelled</h1>
{{if .CancelAtPeriodEnd}}<p>Your <strong>{{.PlanName}}</strong> subscription stays active until {{date .PeriodEnd}} and will not renew.</p>
{{else}}<p>Your <strong>{{.PlanName}}</strong> subscription has ended.</p>{{end}}
{{template "footer" .}}`,

	"trial_will_end": `{{template "header"}}
<h1>Your trial ends soon</h1>
<p>Hi {{.Name}}, your <strong>{{.PlanName}}</strong> trial ends on {{date .PeriodEnd}}. Your payment method will be charged after that.</p>
{{template "footer" .}}`,

	"renewal_reminder": `{{template "header"}}
<h1>Renewal coming up</h1>
<p>Hi {{.Name}}, your <strong>{{.PlanName}}</strong> subscription renews on {{date .PeriodEnd}} for {{money .Price}} {{upper .Currency}}.</p>
{{template "footer" .}}`,

	"payment_receipt": `{{template "header"}}
<h1>Payment received</h1>
<p>We received {{money .Amount}} {{upper .Currency}} for your <strong>{{.PlanName}}</strong> subscription (invoice {{.InvoiceID}}).</p>
{{template "footer" .}}`,

	"payment_failed": `{{template "header"}}
<h1>Payment failed</h1>
<p>Hi {{.Name}}, we could not charge {{money .Amount}} {{upper .Currency}} for your <strong>{{.PlanName}}</strong> subscription. Please update your payment method.</p>
{{template "footer" .}}`,

	"reconciliation_required": `<html><body>
<p>Reconciliation task {{.TaskID}} for user {{.UserID}} ({{.Reason}}).</p>
<p>Processor subscription: {{if .StripeSubscriptionID}}{{.StripeSubscriptionID}}{{else}}unknown{{end}}</p>
<pre>{{.LastError}}</pre>
</body></html>`,
}

var funcs = template.FuncMap{
	"upper": strings.ToUpper,
	"money": formatMoney,
	"date":  formatDate,
}

func loadTemplates() (*template.Template, error) {
	root, err := template.New("layout").Funcs(funcs).Parse(layout)
	if err != nil {
		return nil, err
	}
	for name, src := range templateSources {
		if _, err := root.New(name).Parse(src); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func formatMoney(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "the end of the current period"
	}
	return t.Format("January 2, 2006")
}
