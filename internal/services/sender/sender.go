// Package sender отправляет письма об итогах оплаты. Работает в отдельном
// воркере, потребляющем сообщения из очереди платёжных уведомлений.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/magabrotheeeer/citycom/internal/lib/sl"
	"github.com/magabrotheeeer/citycom/internal/lib/smtp"
	"github.com/magabrotheeeer/citycom/internal/models"
	"github.com/magabrotheeeer/citycom/internal/services/notify"
)

// Repository часть хранилища, нужная отправителю: адрес получателя.
type Repository interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// Service сервис отправки писем об итогах оплаты.
type Service struct {
	repo      Repository
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый сервис отправки писем.
func New(repo Repository, transport smtp.TransportInterface, log *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		transport: transport,
		log:       log,
	}
}

// SendPaymentOutcome отправляет пользователю письмо об итоге оплаты.
// body — сообщение из очереди платёжных уведомлений.
func (s *Service) SendPaymentOutcome(body []byte) error {
	const op = "sender.SendPaymentOutcome"

	var message notify.EmailMessage
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	profile, err := s.repo.GetProfile(context.Background(), message.UserID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if profile == nil {
		// Пользователь удалён между оплатой и отправкой письма.
		// Письмо отправлять некуда, сообщение подтверждается.
		s.log.Warn("profile not found, email skipped", slog.String("user_id", message.UserID))
		return nil
	}

	subject := "Novedades sobre tu pago"
	switch message.Kind {
	case "success":
		subject = "¡Tu suscripción fue activada!"
	case "error":
		subject = "Hubo un problema con tu pago"
	}

	bodyText := fmt.Sprintf("Hola, %s!\n\n%s\n\nGracias por usar CityCom.",
		profile.Username, message.Message)

	return s.sendEmail([]string{profile.Email}, subject, bodyText)
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		s.log.Error("failed to close data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to)
	return nil
}
