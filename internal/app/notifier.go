package app

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/broker"
	"github.com/xenking/storefront/internal/domain/notify"
	"github.com/xenking/storefront/internal/mailer"
)

// RunNotifier consumes order events and mails confirmations until ctx is
// done. Delivery failures are logged and never reach the order.
func RunNotifier(ctx context.Context, lg *zap.Logger, cfg *Config) error {
	sub, err := newSubscriber(cfg.Events)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Close() }()

	svc := notify.NewService(mailer.New(cfg.Mail.mailer(), lg), cfg.AppName)
	lg.Info("Notifier consuming",
		zap.String("broker", cfg.Events.Broker),
		zap.Bool("smtp", cfg.Mail.Host != ""),
	)

	ctx = zctx.Base(ctx, lg)
	return sub.Subscribe(ctx, notificationHandler(svc))
}

func notificationHandler(svc *notify.Service) broker.Handler {
	return func(ctx context.Context, m broker.Message) error {
		ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("event_id", m.ID)))
		return svc.Handle(ctx, m.Type, m.Payload)
	}
}
