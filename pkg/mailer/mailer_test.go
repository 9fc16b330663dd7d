package mailer

import (
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestMailer(c *captured, err error) *Mailer {
	m := New(Config{Host: "mailpit", Port: "1025", From: "noreply@glycopilot.local", FromName: "Glycopilot", BaseURL: "https://app.test"})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		c.addr, c.from, c.to, c.msg = addr, from, to, string(msg)
		return err
	}
	return m
}

func TestSendDoctorInvitation(t *testing.T) {
	var c captured
	m := newTestMailer(&c, nil)

	err := m.SendDoctorInvitation("doc@example.com", DoctorInvitation{
		DoctorName:   "House",
		PatientName:  "Jane Doe",
		Role:         "REFERENT_DOCTOR",
		InvitationID: "abc",
	})
	require.NoError(t, err)

	assert.Equal(t, "mailpit:1025", c.addr)
	assert.Equal(t, []string{"doc@example.com"}, c.to)
	assert.Contains(t, c.msg, "Subject: Glycopilot - New care team invitation")
	assert.Contains(t, c.msg, "Jane Doe")
	assert.Contains(t, c.msg, "https://app.test/care-team/invitations/abc")
}

func TestSendPatientInvitation_EscapesAndWrapsErrors(t *testing.T) {
	var c captured
	m := newTestMailer(&c, errors.New("connection refused"))

	err := m.SendPatientInvitation("new@example.com", PatientInvitation{DoctorName: "<b>Who</b>"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, c.msg, "&lt;b&gt;Who&lt;/b&gt;")
}
