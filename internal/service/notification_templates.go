package service

const notificationTemplates = `
{{define "layout_start"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222;max-width:600px">
<h2 style="color:#1b5e20">{{.School}}</h2>
<p>Dear {{if .GuardianName}}{{.GuardianName}}{{else}}Parent/Guardian{{end}},</p>{{end}}

{{define "layout_end"}}<p>Kind regards,<br>{{.School}} Admissions</p>
</body></html>{{end}}

{{define "payment_link"}}{{template "layout_start" .}}
<p>We are pleased to offer a place to:</p>
<ul>{{range .Students}}<li>{{.Name}}{{if .Code}} ({{.Code}}){{end}}</li>{{end}}</ul>
<p>Programme: <strong>{{.Track}}</strong></p>
{{if .DiscountApplied}}<p>A sibling discount has been applied to your monthly fees.</p>{{end}}
{{if .HasOtherTrack}}<p>You also have children registered in another programme; you will receive a separate payment link for them.</p>{{end}}
<p>To confirm the place please complete payment using the secure link below. The link expires on {{.ExpiresAt}}.</p>
<p><a href="{{.URL}}" style="background:#1b5e20;color:#fff;padding:10px 16px;text-decoration:none">Complete payment</a></p>
{{template "layout_end" .}}{{end}}

{{define "approval_confirmation"}}{{template "layout_start" .}}
<p>The registration of <strong>{{.StudentName}}</strong>{{if .StudentCode}} ({{.StudentCode}}){{end}} is now confirmed.</p>
<p>Programme: <strong>{{.Track}}</strong>{{if .Group}}, group <strong>{{.Group}}</strong>{{end}}.</p>
<p>We look forward to welcoming your child.</p>
{{template "layout_end" .}}{{end}}

{{define "rejection"}}{{template "layout_start" .}}
<p>Thank you for applying for <strong>{{.ChildName}}</strong>. After careful review we are unable to offer a place at this time.</p>
<p>Reason: {{.Reason}}</p>
<p>Please contact the office if you have any questions.</p>
{{template "layout_end" .}}{{end}}
`
