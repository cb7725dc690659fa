package lib

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"ccr/src/types"

	"github.com/wneessen/go-mail"
)

func GetSMTPClient() (*mail.Client, error) {
	host := os.Getenv("SMTP_HOST")
	portEnv := os.Getenv("SMTP_PORT")
	port, err := strconv.Atoi(portEnv)
	if err != nil {
		port = 587
	}
	user := os.Getenv("SMTP_USERNAME")
	pass := os.Getenv("SMTP_PASSWORD")
	c, err := mail.NewClient(host, mail.WithPort(port), mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(user), mail.WithPassword(pass))
	if err != nil {
		log.Printf("Could not initialize smtp client: %s\n", err.Error())
		return nil, err
	}
	return c, nil
}

type SendMailInput struct {
	From     string
	FromName string
	To       []string
	Subject  string
	Body     string
	Html     bool
}

func SendMail(inputParams *SendMailInput) error {
	c, err := GetSMTPClient()
	if err != nil {
		return err
	}
	msg := mail.NewMsg()
	if err := msg.FromFormat(inputParams.FromName, inputParams.From); err != nil {
		log.Printf("Failed to set From address: %s\n", err.Error())
	}
	if err := msg.To(inputParams.To...); err != nil {
		log.Printf("Failed to set To address: %s\n", err.Error())
	}
	msg.Subject(inputParams.Subject)
	if inputParams.Html {
		msg.SetBodyString(mail.TypeTextHTML, inputParams.Body)
	} else {
		msg.SetBodyString(mail.TypeTextPlain, inputParams.Body)
	}
	if err := c.DialAndSend(msg); err != nil {
		return err
	}
	return nil
}

// Notifier delivers customer-facing notifications. Email in production;
// tests swap in a recorder via NewNotifier.
type Notifier interface {
	Notify(kind types.NotificationKind, email, subject, body string) error
}

type MailNotifier struct{}

func (m *MailNotifier) Notify(kind types.NotificationKind, email, subject, body string) error {
	from := os.Getenv("MAIL_FROM")
	if from == "" {
		from = "noreply@consolecorner.local"
	}
	err := SendMail(&SendMailInput{
		From:     from,
		FromName: "Console Corner",
		To:       []string{email},
		Subject:  subject,
		Body:     body,
	})
	if err != nil {
		log.Printf("[notify] Failed to send %s to %s: %s\n", kind, email, err.Error())
		return fmt.Errorf("send %s: %w", kind, err)
	}
	return nil
}

var notifier Notifier

func GetNotifier() Notifier {
	if notifier != nil {
		return notifier
	}
	notifier = &MailNotifier{}
	return notifier
}

// NewNotifier Replace notifier instance with custom implementation
func NewNotifier(n Notifier) Notifier {
	notifier = n
	return notifier
}
