package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"sort"

	"github.com/rs/zerolog/log"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// BaseURL is the front-end origin used in invitation links
	BaseURL string
}

// Mailer handles sending emails
type Mailer struct {
	config Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a new Mailer instance
func New(cfg Config) *Mailer {
	return &Mailer{config: cfg, send: smtp.SendMail}
}

// DoctorInvitation is sent to a doctor a patient invited to their care team
type DoctorInvitation struct {
	DoctorName   string
	PatientName  string
	Role         string
	InvitationID string
}

// PatientInvitation is sent to a person a doctor wants to follow who has no account yet
type PatientInvitation struct {
	DoctorName string
}

// SendDoctorInvitation notifies a doctor of a pending care-team invitation
func (m *Mailer) SendDoctorInvitation(to string, inv DoctorInvitation) error {
	body, err := render(doctorInvitationTmpl, map[string]interface{}{
		"DoctorName":  inv.DoctorName,
		"PatientName": inv.PatientName,
		"Role":        inv.Role,
		"Link":        m.config.BaseURL + "/care-team/invitations/" + inv.InvitationID,
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return m.deliver(to, "Glycopilot - New care team invitation", body)
}

// SendPatientInvitation invites someone to join and be followed by a doctor
func (m *Mailer) SendPatientInvitation(to string, inv PatientInvitation) error {
	body, err := render(patientInvitationTmpl, map[string]interface{}{
		"DoctorName": inv.DoctorName,
		"Link":       m.config.BaseURL + "/register",
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return m.deliver(to, "Glycopilot - Your doctor invites you", body)
}

// deliver sends an email via SMTP
func (m *Mailer) deliver(to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%s", m.config.Host, m.config.Port)

	msg := buildMessage(fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From), to, subject, htmlBody)

	var auth smtp.Auth
	if m.config.Username != "" && m.config.Password != "" {
		auth = smtp.PlainAuth("", m.config.Username, m.config.Password, m.config.Host)
	}

	if err := m.send(addr, auth, m.config.From, []string{to}, msg); err != nil {
		log.Error().Err(err).Str("to", to).Msg("failed to send email")
		return fmt.Errorf("failed to send email: %w", err)
	}

	log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

func buildMessage(from, to, subject, htmlBody string) []byte {
	headers := map[string]string{
		"From":         from,
		"To":           to,
		"Subject":      subject,
		"MIME-Version": "1.0",
		"Content-Type": "text/html; charset=\"utf-8\"",
	}
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var msg bytes.Buffer
	for _, k := range keys {
		msg.WriteString(fmt.Sprintf("%s: %s\r\n", k, headers[k]))
	}
	msg.WriteString("\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

func render(tmpl *template.Template, data map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	err := tmpl.Execute(&buf, data)
	return buf.String(), err
}

var doctorInvitationTmpl = template.Must(template.New("doctor_invitation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#f4f7fb;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;">
    <div style="max-width:500px;margin:40px auto;background:#ffffff;border-radius:16px;overflow:hidden;border:1px solid #dbe4f0;">
        <div style="background:linear-gradient(135deg,#0ea5e9 0%,#2563eb 100%);padding:32px;text-align:center;">
            <h1 style="color:#fff;margin:0;font-size:28px;font-weight:700;">Glycopilot</h1>
            <p style="color:rgba(255,255,255,0.85);margin:8px 0 0;font-size:14px;">Care team invitation</p>
        </div>
        <div style="padding:32px;">
            <p style="color:#1e293b;font-size:16px;line-height:1.6;margin:0 0 24px;">
                Hello Dr <strong>{{.DoctorName}}</strong>,
            </p>
            <p style="color:#475569;font-size:14px;line-height:1.6;margin:0 0 24px;">
                <strong>{{.PatientName}}</strong> invited you to join their care team as <strong>{{.Role}}</strong>.
            </p>
            <div style="text-align:center;margin:0 0 24px;">
                <a href="{{.Link}}" style="display:inline-block;background:#2563eb;color:#fff;text-decoration:none;padding:12px 24px;border-radius:8px;font-weight:600;">Review invitation</a>
            </div>
            <p style="color:#64748b;font-size:13px;line-height:1.5;margin:0;">
                If you do not know this patient, you can ignore this email.
            </p>
        </div>
    </div>
</body>
</html>`))

var patientInvitationTmpl = template.Must(template.New("patient_invitation").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin:0;padding:0;background-color:#f4f7fb;font-family:'Segoe UI',Tahoma,Geneva,Verdana,sans-serif;">
    <div style="max-width:500px;margin:40px auto;background:#ffffff;border-radius:16px;overflow:hidden;border:1px solid #dbe4f0;">
        <div style="background:linear-gradient(135deg,#10b981 0%,#059669 100%);padding:32px;text-align:center;">
            <h1 style="color:#fff;margin:0;font-size:28px;font-weight:700;">Glycopilot</h1>
            <p style="color:rgba(255,255,255,0.85);margin:8px 0 0;font-size:14px;">Follow-up invitation</p>
        </div>
        <div style="padding:32px;">
            <p style="color:#475569;font-size:14px;line-height:1.6;margin:0 0 24px;">
                Dr <strong>{{.DoctorName}}</strong> would like to follow your glycemia on Glycopilot.
                Create your account to share your readings with your care team.
            </p>
            <div style="text-align:center;margin:0 0 24px;">
                <a href="{{.Link}}" style="display:inline-block;background:#059669;color:#fff;text-decoration:none;padding:12px 24px;border-radius:8px;font-weight:600;">Create my account</a>
            </div>
        </div>
    </div>
</body>
</html>`))
