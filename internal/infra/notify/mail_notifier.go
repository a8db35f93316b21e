package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"shrimpshop/internal/domain/model"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

type MailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	From         string
	AdminEmail   string
}

// 注文確認（購入者向け）と新規注文通知（管理者向け）を送る
type MailNotifier struct {
	client     sender
	from       string
	adminEmail string
	log        *zap.Logger
}

func NewMailNotifier(cfg MailConfig, log *zap.Logger) (*MailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	c, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return newMailNotifier(c, cfg, log), nil
}

func newMailNotifier(c sender, cfg MailConfig, log *zap.Logger) *MailNotifier {
	return &MailNotifier{client: c, from: cfg.From, adminEmail: cfg.AdminEmail, log: log}
}

func (n *MailNotifier) SendOrderConfirmation(ctx context.Context, order model.Order, items []model.OrderItem) bool {
	subject := fmt.Sprintf("Order Confirmation - %s", order.Reference)
	return n.send(ctx, order.Email, subject, confirmationTmpl, order, items)
}

func (n *MailNotifier) SendOrderNotification(ctx context.Context, order model.Order, items []model.OrderItem) bool {
	subject := fmt.Sprintf("New Order Received - %s", order.Reference)
	return n.send(ctx, n.adminEmail, subject, notificationTmpl, order, items)
}

func (n *MailNotifier) send(ctx context.Context, to, subject string, tmpl *template.Template, order model.Order, items []model.OrderItem) bool {
	log := n.log.With(zap.String("reference", order.Reference), zap.String("subject", subject))
	if to == "" {
		log.Warn("mail skipped: no recipient")
		return false
	}

	body, err := renderOrderMail(tmpl, order, items)
	if err != nil {
		log.Error("mail render failed", zap.Error(err))
		return false
	}

	m := mail.NewMsg()
	if err := m.From(n.from); err != nil {
		log.Error("invalid from address", zap.Error(err))
		return false
	}
	if err := m.To(to); err != nil {
		log.Error("invalid recipient", zap.Error(err))
		return false
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, body)

	if err := n.client.DialAndSendWithContext(ctx, m); err != nil {
		log.Error("mail send failed", zap.Error(err))
		return false
	}
	log.Info("mail sent")
	return true
}

type mailView struct {
	Order model.Order
	Items []model.OrderItem
}

func renderOrderMail(tmpl *template.Template, order model.Order, items []model.OrderItem) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, mailView{Order: order, Items: items}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var funcs = template.FuncMap{
	"money": func(v interface{ StringFixed(int32) string }) string {
		return "£" + v.StringFixed(2)
	},
}

var confirmationTmpl = template.Must(template.New("confirmation").Funcs(funcs).Parse(
	`Thank you for your order!

Order reference: {{.Order.Reference}}

Items:
{{range .Items}}- {{.ProductName}}{{if .Size}} ({{.Size}}){{end}} x {{.Quantity}} @ {{money .UnitPrice}} = {{money .Subtotal}}
{{end}}
Subtotal: {{money .Order.Subtotal}}
Shipping: {{money .Order.ShippingCost}}
Total: {{money .Order.TotalAmount}}
{{if .Order.ShippingName}}
Shipping to:
{{.Order.ShippingName}}
{{.Order.ShippingAddress}}
{{.Order.ShippingCity}}{{if .Order.ShippingState}}, {{.Order.ShippingState}}{{end}} {{.Order.ShippingZip}}
{{.Order.ShippingCountry}}
{{end}}
We will let you know when your order ships.
`))

var notificationTmpl = template.Must(template.New("notification").Funcs(funcs).Parse(
	`A new order has been paid.

Order reference: {{.Order.Reference}}
Customer email: {{.Order.Email}}{{if .Order.Phone}}
Phone: {{.Order.Phone}}{{end}}

Items:
{{range .Items}}- {{.ProductName}}{{if .Size}} ({{.Size}}){{end}} x {{.Quantity}} @ {{money .UnitPrice}}
{{end}}
Subtotal: {{money .Order.Subtotal}}
Shipping: {{money .Order.ShippingCost}}
Total: {{money .Order.TotalAmount}}

Ship to: {{.Order.ShippingAddressFull}}
`))
