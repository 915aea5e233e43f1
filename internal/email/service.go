package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"card-server/internal/observability"
)

var (
	ErrInvalidEmailAddress = errors.New("invalid email address")
	ErrSendingEmail        = errors.New("error sending email")
	ErrEmptyTemplate       = errors.New("email template is empty")
)

// MailClient sends a rendered email through the mail provider.
type MailClient interface {
	SendEmail(ctx context.Context, from, to, subject, htmlContent string) (string, error)
}

// EmailService handles sending transactional emails
type EmailService struct {
	mailClient    MailClient
	logger        *observability.Logger
	defaultSender string
	templates     map[string]string
}

// TemplateData represents the data that can be used in templates
type TemplateData struct {
	BuyerName string
	CardLink  string
	PlanName  string
	OrderID   string
	Amount    float64
	Currency  string
}

// New creates a new EmailService
func New(mailClient MailClient, defaultSender string, logger *observability.Logger) *EmailService {
	return &EmailService{
		mailClient:    mailClient,
		logger:        logger,
		defaultSender: defaultSender,
		templates: map[string]string{
			"order_confirmation": `
			<html>
				<body>
					<h1>Seu cartão está pronto!</h1>
					<p>Olá {{.BuyerName}},</p>
					<p>Recebemos o pagamento do pedido <strong>{{.OrderID}}</strong> ({{.PlanName}} — {{.Currency}} {{printf "%.2f" .Amount}}).</p>
					<p>Seu cartão personalizado já pode ser compartilhado:</p>
					<p><a href="{{.CardLink}}" style="background-color: #2563EB; color: white; padding: 12px 24px; text-decoration: none; border-radius: 6px; display: inline-block;">Abrir meu cartão</a></p>
					<p>Ou copie o link:</p>
					<p><a href="{{.CardLink}}">{{.CardLink}}</a></p>
					<p>Se você não fez esta compra, entre em contato com nosso suporte.</p>
				</body>
			</html>
			`,
		},
	}
}

// SendOrderConfirmation sends the payment confirmation email containing the
// shareable card link. Failure is returned to the caller so the reservation
// protocol can roll back and retry on a later redelivery.
func (s *EmailService) SendOrderConfirmation(ctx context.Context, to string, data TemplateData) error {
	if to == "" {
		return ErrInvalidEmailAddress
	}

	htmlContent, err := s.render("order_confirmation", data)
	if err != nil {
		s.logger.Error(ctx, "failed to render order confirmation template", err)
		return err
	}

	subject := "Seu cartão personalizado está pronto 🎉"
	if _, err := s.mailClient.SendEmail(ctx, s.defaultSender, to, subject, htmlContent); err != nil {
		s.logger.Error(ctx, "failed to send order confirmation email", err)
		return fmt.Errorf("%w: %s", ErrSendingEmail, err)
	}

	return nil
}

// render executes a named template with the given data.
func (s *EmailService) render(name string, data TemplateData) (string, error) {
	raw, ok := s.templates[name]
	if !ok || raw == "" {
		return "", ErrEmptyTemplate
	}

	tmpl, err := template.New(name).Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
