package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/casavoz/call-platform/internal/followup"
	"github.com/casavoz/call-platform/pkg/logging"
)

// HotLeadAlert carries everything the sales inbox needs about a freshly
// graded hot lead.
type HotLeadAlert struct {
	ConversationID int64
	CallSID        string
	PhoneNumber    string
	Resumen        string
	InteresCliente string
	NivelInteres   int
	ProximosPasos  []string
}

// Service sends sales notifications: hot-lead alerts right after analysis
// and follow-up scripts drained by the sweeper.
type Service struct {
	email      EmailSender
	recipients []string
	logger     *logging.Logger
}

// NewService creates a notification service. A nil sender or empty recipient
// list turns the service into a logged no-op, so callers never need to guard.
func NewService(email EmailSender, recipients []string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:      email,
		recipients: recipients,
		logger:     logger,
	}
}

// NotifyHotLead emails the sales inbox about a conversation graded caliente.
func (s *Service) NotifyHotLead(ctx context.Context, alert HotLeadAlert) error {
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: email not configured, skipping hot lead alert", "call_sid", alert.CallSID)
		return nil
	}

	contact := alert.PhoneNumber
	if contact == "" || contact == "unknown" {
		contact = alert.CallSID
	}

	subject := fmt.Sprintf("🔥 Lead caliente - %s", contact)
	body := fmt.Sprintf(`¡Nuevo lead caliente detectado!

Llamada: %s
Teléfono: %s
Nivel de interés: %d/10
Resumen: %s
Busca: %s
Próximos pasos:
%s
Contacta a este cliente hoy mismo.

— CasaVoz`, alert.CallSID, alert.PhoneNumber, alert.NivelInteres, alert.Resumen, alert.InteresCliente, formatSteps(alert.ProximosPasos))

	html := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2 style="color: #ef4444;">🔥 Lead caliente</h2>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Llamada:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Teléfono:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><a href="tel:%s">%s</a></td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Interés:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%d/10</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Resumen:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
  <tr><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;"><strong>Busca:</strong></td><td style="padding: 8px; border-bottom: 1px solid #e5e7eb;">%s</td></tr>
</table>
<p style="background: #fef2f2; padding: 12px; border-radius: 8px; border-left: 4px solid #ef4444;">
  ⭐ <strong>Lead prioritario</strong> — Contacta a este cliente hoy mismo.
</p>
<p style="color: #6b7280; font-size: 12px; margin-top: 20px;">— CasaVoz</p>
</div>`, alert.CallSID, alert.PhoneNumber, alert.PhoneNumber, alert.NivelInteres, alert.Resumen, alert.InteresCliente)

	return s.broadcast(ctx, subject, body, html, "call_sid", alert.CallSID)
}

// DeliverScript emails a generated follow-up script to the sales inbox. It
// satisfies the sweeper's Deliverer contract.
func (s *Service) DeliverScript(ctx context.Context, delivery followup.Delivery) error {
	if s.email == nil || len(s.recipients) == 0 {
		s.logger.Debug("notify: email not configured, skipping script delivery", "conversation_id", delivery.ConversationID)
		return nil
	}

	contact := delivery.PhoneNumber
	if contact == "" || contact == "unknown" {
		contact = delivery.CallSID
	}
	if contact == "" {
		contact = fmt.Sprintf("conversación %d", delivery.ConversationID)
	}

	subject := fmt.Sprintf("📋 Guion de seguimiento - %s", contact)
	body := fmt.Sprintf(`Guion de seguimiento listo para la llamada %s (teléfono %s):

%s

— CasaVoz`, delivery.CallSID, delivery.PhoneNumber, delivery.Script)

	return s.broadcast(ctx, subject, body, "", "conversation_id", delivery.ConversationID)
}

func (s *Service) broadcast(ctx context.Context, subject, body, html string, logKey string, logVal any) error {
	var errs []error
	for _, recipient := range s.recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    body,
			HTML:    html,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: failed to send email", "error", err, "to", recipient)
			errs = append(errs, err)
			continue
		}
		s.logger.Info("notify: email sent", "to", recipient, logKey, logVal)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d notification(s) failed", len(errs))
	}
	return nil
}

func formatSteps(steps []string) string {
	if len(steps) == 0 {
		return "- (sin pasos sugeridos)\n"
	}
	var b strings.Builder
	for _, step := range steps {
		b.WriteString("- ")
		b.WriteString(step)
		b.WriteString("\n")
	}
	return b.String()
}

// Ensure interface compliance
var _ followup.Deliverer = (*Service)(nil)
