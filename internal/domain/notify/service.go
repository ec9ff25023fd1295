package notify

import (
	"bytes"
	"context"
	"html/template"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Mail is a rendered message.
type Mail struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

var orderPlacedTmpl = template.Must(template.New("order_placed").Parse(`<h1>Thank you for your order, {{.FirstName}}!</h1>
<p>Order <strong>{{.OrderID}}</strong> has been received.</p>
<table>
{{- range .Lines}}
<tr><td>{{.Name}}</td><td>{{.Qty}} x {{.UnitPrice.StringFixed 2}}</td><td>{{.LineTotal.StringFixed 2}}</td></tr>
{{- end}}
</table>
<p>Subtotal: {{.SubTotal.StringFixed 2}} {{.Currency}}</p>
<p>Shipping: {{.ShippingCost.StringFixed 2}} {{.Currency}}</p>
{{- if not .Discount.IsZero}}
<p>Discount: -{{.Discount.StringFixed 2}} {{.Currency}}</p>
{{- end}}
<p><strong>Total: {{.Total.StringFixed 2}} {{.Currency}}</strong></p>
`))

// Service renders events into mail and hands them to a Sender.
type Service struct {
	sender  Sender
	appName string
}

// NewService creates a notification Service. appName prefixes subjects.
func NewService(sender Sender, appName string) *Service {
	return &Service{sender: sender, appName: appName}
}

// Handle processes one event. Unknown event types are ignored so that new
// producers can be deployed first.
func (s *Service) Handle(ctx context.Context, eventType string, payload []byte) error {
	switch eventType {
	case EventOrderPlaced:
		e, err := DecodeOrderPlaced(payload)
		if err != nil {
			return err
		}
		return s.orderPlaced(ctx, e)
	default:
		zctx.From(ctx).Debug("Skipping event", zap.String("type", eventType))
		return nil
	}
}

func (s *Service) orderPlaced(ctx context.Context, e *OrderPlaced) error {
	lg := zctx.From(ctx).With(zap.String("order_id", e.OrderID))
	if e.Email == "" {
		lg.Warn("Order has no customer email, confirmation skipped")
		return nil
	}

	m, err := s.RenderOrderPlaced(e)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, m); err != nil {
		return errors.Wrap(err, "send order confirmation")
	}
	lg.Info("Order confirmation sent")
	return nil
}

// RenderOrderPlaced builds the confirmation mail for e.
func (s *Service) RenderOrderPlaced(e *OrderPlaced) (Mail, error) {
	var buf bytes.Buffer
	if err := orderPlacedTmpl.Execute(&buf, e); err != nil {
		return Mail{}, errors.Wrap(err, "render order confirmation")
	}
	return Mail{
		To:      e.Email,
		Subject: s.appName + ": order " + e.OrderID + " confirmed",
		HTML:    buf.String(),
	}, nil
}
