package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/infra/logging"
	"telegram-bot-hosting/internal/infra/metrics"
	redisinfra "telegram-bot-hosting/internal/infra/redis"
)

var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentUseCase issues payment links and applies verified webhooks.
type PaymentUseCase interface {
	// InvoiceURL allocates an invoice id and returns the checkout link.
	InvoiceURL(ctx context.Context, userID int64, kind adapter.PaymentKind, botID string) (string, error)
	// Apply books a verified notice exactly once. Replays are no-ops.
	Apply(ctx context.Context, notice *adapter.PaymentNotice) error
}

type paymentUC struct {
	users     repository.UserRepository
	bots      repository.UserBotRepository
	referrals repository.ReferralRepository
	tm        repository.TransactionManager
	gateway   adapter.PaymentGateway
	redis     redisinfra.RedisClient
	notifier  OwnerNotifier

	paidDays          int
	tokensPerPurchase int64
	subscriptionPrice float64
	tokensPrice       float64

	log *zerolog.Logger
}

func NewPaymentUseCase(
	users repository.UserRepository,
	bots repository.UserBotRepository,
	referrals repository.ReferralRepository,
	tm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	redis redisinfra.RedisClient,
	notifier OwnerNotifier,
	paidDays int,
	tokensPerPurchase int64,
	subscriptionPrice, tokensPrice float64,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		users: users, bots: bots, referrals: referrals, tm: tm,
		gateway: gateway, redis: redis, notifier: notifier,
		paidDays: paidDays, tokensPerPurchase: tokensPerPurchase,
		subscriptionPrice: subscriptionPrice, tokensPrice: tokensPrice,
		log: logger,
	}
}

// SetNotifier attaches the master-bot notifier after wiring.
func (p *paymentUC) SetNotifier(n OwnerNotifier) { p.notifier = n }

const (
	invoiceSeqKey  = "payment:inv_seq"
	invoiceSeenKey = "payment:inv_seen:%d"
	invoiceSeenTTL = 72 * time.Hour
)

func (p *paymentUC) InvoiceURL(ctx context.Context, userID int64, kind adapter.PaymentKind, botID string) (string, error) {
	defer logging.TraceDuration(p.log, "PaymentUC.InvoiceURL")()

	invID, err := p.redis.Incr(ctx, invoiceSeqKey)
	if err != nil {
		return "", fmt.Errorf("allocate invoice id: %w", err)
	}
	amount := p.subscriptionPrice
	if kind == adapter.PaymentTokens {
		amount = p.tokensPrice
	}
	return p.gateway.PaymentURL(userID, kind, botID, amount, invID), nil
}

func (p *paymentUC) Apply(ctx context.Context, notice *adapter.PaymentNotice) error {
	defer logging.TraceDuration(p.log, "PaymentUC.Apply")()

	// Webhook replays are common; the invoice id claims a Redis slot first.
	fresh, err := p.redis.SetNX(ctx, fmt.Sprintf(invoiceSeenKey, notice.InvID), 1, invoiceSeenTTL)
	if err != nil {
		return fmt.Errorf("invoice dedup: %w", err)
	}
	if !fresh {
		p.log.Info().Int64("inv_id", notice.InvID).Msg("duplicate payment webhook ignored")
		return nil
	}

	var user *model.User
	err = p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		usr, err := p.users.FindByID(ctx, tx, notice.UserID)
		if err != nil {
			return err
		}
		user = usr

		switch notice.Kind {
		case adapter.PaymentSubscription:
			usr.ExtendPaid(time.Now(), p.paidDays)
			if err := p.users.Save(ctx, tx, usr); err != nil {
				return err
			}
		case adapter.PaymentTokens:
			botID, err := p.resolveTokenTarget(ctx, tx, notice)
			if err != nil {
				return err
			}
			if err := p.bots.AddTokenLimit(ctx, tx, botID, p.tokensPerPurchase); err != nil {
				return err
			}
		default:
			return fmt.Errorf("payment kind %q: %w", notice.Kind, domain.ErrInvalidArgument)
		}
		return nil
	})
	if err != nil {
		return err
	}
	metrics.IncPayment(string(notice.Kind))
	p.log.Info().
		Int64("inv_id", notice.InvID).
		Int64("user_id", notice.UserID).
		Str("kind", string(notice.Kind)).
		Float64("amount", notice.OutSum).
		Msg("payment applied")

	p.confirmPayer(ctx, user, notice)
	p.creditReferrer(ctx, user, notice)
	return nil
}

// confirmPayer tells the payer the purchase landed. Best effort, the
// payment is already booked.
func (p *paymentUC) confirmPayer(ctx context.Context, user *model.User, notice *adapter.PaymentNotice) {
	if p.notifier == nil {
		return
	}
	var text string
	switch notice.Kind {
	case adapter.PaymentTokens:
		text = fmt.Sprintf("Оплата получена. На бота зачислено %d токенов.", p.tokensPerPurchase)
	default:
		text = "Оплата получена. Подписка активна."
		if user.SubscriptionExpiresAt != nil {
			text = fmt.Sprintf("Оплата получена. Подписка активна до %s.", user.SubscriptionExpiresAt.Format("02.01.2006"))
		}
	}
	if err := p.notifier.NotifyOwner(ctx, notice.UserID, text); err != nil {
		p.log.Debug().Err(err).Int64("user_id", notice.UserID).Msg("payment confirmation failed")
	}
}

func (p *paymentUC) resolveTokenTarget(ctx context.Context, tx repository.Tx, notice *adapter.PaymentNotice) (string, error) {
	if notice.BotID != "" {
		return notice.BotID, nil
	}
	bots, err := p.bots.ListByOwner(ctx, tx, notice.UserID)
	if err != nil {
		return "", err
	}
	if len(bots) != 1 {
		return "", fmt.Errorf("token purchase without bot id, owner has %d bots: %w", len(bots), domain.ErrInvalidArgument)
	}
	return bots[0].BotID, nil
}

// creditReferrer runs after the payment committed: commission failures must
// never fail or retry the payment itself.
func (p *paymentUC) creditReferrer(ctx context.Context, user *model.User, notice *adapter.PaymentNotice) {
	if user == nil || user.ReferredBy == nil {
		return
	}
	kind := model.ReferralSubscription
	if notice.Kind == adapter.PaymentTokens {
		kind = model.ReferralTokens
	}
	txn, err := model.NewReferralTransaction(*user.ReferredBy, user.UserID, kind, notice.OutSum, notice.InvID)
	if err != nil {
		p.log.Warn().Err(err).Msg("referral transaction rejected")
		return
	}
	err = p.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := p.referrals.Save(ctx, tx, txn); err != nil {
			return err
		}
		return p.users.CreditReferralEarnings(ctx, tx, txn.ReferrerUserID, txn.CommissionAmount)
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return
		}
		p.log.Warn().Err(err).Int64("referrer", txn.ReferrerUserID).Msg("referral commission failed")
		return
	}
	if p.notifier != nil {
		text := fmt.Sprintf("Вам начислено %.2f ₽ по реферальной программе.", txn.CommissionAmount)
		if nerr := p.notifier.NotifyOwner(ctx, txn.ReferrerUserID, text); nerr != nil {
			p.log.Debug().Err(nerr).Msg("referral notification failed")
		}
	}
}
