package notify

import (
	"fmt"
	"net/smtp"
	"time"
)

// MsgBookingConfirmed is the queue message type for booking emails.
const MsgBookingConfirmed = "booking-confirmed"

// BookingConfirmation carries everything the worker needs to compose a
// confirmation email without touching the database.
type BookingConfirmation struct {
	Email     string    `json:"email"`
	LabName   string    `json:"lab_name"`
	Date      time.Time `json:"date"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

// Render returns the mail subject and body.
func (b BookingConfirmation) Render() (subject, body string) {
	subject = "Lab Slot Confirmation"
	body = fmt.Sprintf("You have successfully booked the lab: %s on %s from %s to %s.",
		b.LabName, b.Date.Format("Mon Jan 2 2006"), b.StartTime, b.EndTime)
	return subject, body
}

// Mailer sends plain-text mail over SMTP with PLAIN auth.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewMailer returns a configured mailer, or nil when host is empty so
// callers can skip sending in dev environments without SMTP creds.
func NewMailer(host string, port int, username, password, from string) *Mailer {
	if host == "" {
		return nil
	}
	return &Mailer{host: host, port: port, username: username, password: password, from: from}
}

// Send delivers one message. Callers treat failures as log-only.
func (m *Mailer) Send(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	msg := []byte("From: " + m.from + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" +
		body + "\r\n")
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, msg)
}
