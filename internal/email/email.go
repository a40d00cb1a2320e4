package email

import (
	"context"
	"fmt"
	"time"

	"github.com/Domenick1991/staybooking/config"
	"github.com/Domenick1991/staybooking/internal/kafka"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Sender mails guests about their booking. Without an SMTP host it only logs.
type Sender struct {
	dialer Dialer
	from   string
	log    logrus.FieldLogger
}

func NewSender(cfg config.SMTPConfig, log logrus.FieldLogger) *Sender {
	s := &Sender{from: cfg.From, log: log}
	if cfg.Host != "" {
		s.dialer = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	}
	return s
}

func NewSenderWithDialer(d Dialer, from string, log logrus.FieldLogger) *Sender {
	return &Sender{dialer: d, from: from, log: log}
}

func (s *Sender) Send(ctx context.Context, event kafka.BookingEvent) error {
	subject, body, ok := render(event)
	if !ok || event.GuestEmail == "" {
		return nil
	}
	entry := s.log.WithFields(logrus.Fields{"booking_id": event.BookingID, "type": event.Type})
	if s.dialer == nil {
		entry.Info("smtp not configured, guest notification skipped")
		return nil
	}

	message := gomail.NewMessage()
	message.SetHeader("From", s.from)
	message.SetHeader("To", event.GuestEmail)
	message.SetHeader("Subject", subject)
	message.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(message); err != nil {
		return fmt.Errorf("send %s mail for booking %s: %w", event.Type, event.BookingID, err)
	}
	entry.Info("guest notified")
	return nil
}

func render(event kafka.BookingEvent) (string, string, bool) {
	stay := fmt.Sprintf("unit %d from %s to %s", event.UnitID, event.CheckIn.Format(time.DateOnly), event.CheckOut.Format(time.DateOnly))
	switch event.Type {
	case "booking_created":
		return "Your stay is on hold",
			fmt.Sprintf("We are holding %s for you until %s. Confirm the booking to keep it.\nBooking: %s",
				stay, event.ExpiresAt.Format(time.RFC1123), event.BookingID), true
	case "booking_confirmed":
		return "Your stay is confirmed", fmt.Sprintf("Your booking of %s is confirmed.\nBooking: %s", stay, event.BookingID), true
	case "booking_cancelled":
		return "Your stay was cancelled", fmt.Sprintf("Your booking of %s was cancelled.\nBooking: %s", stay, event.BookingID), true
	case "booking_expired":
		return "Your hold has expired", fmt.Sprintf("The hold on %s expired before it was confirmed.\nBooking: %s", stay, event.BookingID), true
	}
	return "", "", false
}
