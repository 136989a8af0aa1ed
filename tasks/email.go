package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"
)

type Mailer struct {
	host     string
	port     int
	user     string
	password string
}

func NewMailer(host string, port int, user, password string) *Mailer {
	return &Mailer{host: host, port: port, user: user, password: password}
}

// HandleMatchEmail delivers one mutual-match notification over SMTP.
func (m *Mailer) HandleMatchEmail(ctx context.Context, t *asynq.Task) error {
	var payload MatchEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", TypeMatchEmail, err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.user)
	msg.SetHeader("To", payload.ToEmail)
	msg.SetHeader("Subject", "It's a match!")
	msg.SetBody("text/plain", fmt.Sprintf(
		"Hi %s,\n\nYou matched with %s. Say hello: %s\n",
		payload.ToName, payload.MatchedName, payload.MatchedEmail,
	))

	dialer := gomail.NewDialer(m.host, m.port, m.user, m.password)
	if err := dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send match email to %s: %w", payload.ToEmail, err)
	}

	log.Printf("Match email sent to %s", payload.ToEmail)
	return nil
}
