// Package notify sends order confirmations to buyers.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/k3a/html2text"
	"github.com/safar/farmstand/internal/config"
	"github.com/safar/farmstand/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/gomail.v2"
)

type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email, name string, order *models.Order) error
}

// New returns an SMTP notifier, or a log-only one when no SMTP host is set.
func New(cfg config.MailConfig) Notifier {
	if cfg.Host == "" {
		return LogNotifier{}
	}
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func (n *SMTPNotifier) SendOrderConfirmation(ctx context.Context, email, name string, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetAddressHeader("To", email, name)
	m.SetHeader("Subject", fmt.Sprintf("Order %s confirmed", order.OrderNumber))
	html, err := RenderConfirmation(name, order)
	if err != nil {
		return err
	}
	m.SetBody("text/plain", html2text.HTML2Text(html))
	m.AddAlternative("text/html", html)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send confirmation for order %s: %w", order.OrderNumber, err)
	}
	return nil
}

// LogNotifier records confirmations in the log instead of sending them.
type LogNotifier struct{}

func (LogNotifier) SendOrderConfirmation(ctx context.Context, email, name string, order *models.Order) error {
	slog.InfoContext(ctx, "order confirmation",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"email", email,
		"total", order.TotalAmount.StringFixed(2),
	)
	return nil
}

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
	"upper": strings.ToUpper,
}).Parse(`<html><body>
<p>Hi {{.Name}},</p>
<p>Thanks for your order {{.Order.OrderNumber}}.</p>
<ul>
{{- range .Order.Groups}}{{range .Lines}}
<li>{{.Quantity}} x {{.ProductName}} @ {{money .UnitPrice}} = {{money .Subtotal}}</li>
{{- end}}{{end}}
</ul>
<p>Total: {{money .Order.TotalAmount}} {{upper .Order.Currency}}</p>
{{with .Order.ShippingAddress -}}
<p>Shipping to:<br>{{.Street}}<br>{{.City}}, {{.State}} {{.ZipCode}}<br>{{.Country}}</p>
{{- end}}
</body></html>`))

// RenderConfirmation renders the HTML confirmation body. The plain text part
// is derived from it.
func RenderConfirmation(name string, order *models.Order) (string, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, struct {
		Name  string
		Order *models.Order
	}{name, order})
	if err != nil {
		return "", fmt.Errorf("render confirmation for order %s: %w", order.OrderNumber, err)
	}
	return buf.String(), nil
}
