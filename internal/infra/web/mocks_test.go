package web

import (
	"context"
	"net/url"

	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/usecase"
)

type fakeGateway struct {
	notice *adapter.PaymentNotice
	err    error
}

func (g *fakeGateway) ParseNotice(url.Values) (*adapter.PaymentNotice, error) {
	return g.notice, g.err
}

func (g *fakeGateway) PaymentURL(int64, adapter.PaymentKind, string, float64, int64) string {
	return "https://pay.example/checkout"
}

type fakePayments struct {
	applied []*adapter.PaymentNotice
	err     error
}

func (p *fakePayments) InvoiceURL(context.Context, int64, adapter.PaymentKind, string) (string, error) {
	return "https://pay.example/checkout", nil
}

func (p *fakePayments) Apply(_ context.Context, notice *adapter.PaymentNotice) error {
	if p.err != nil {
		return p.err
	}
	p.applied = append(p.applied, notice)
	return nil
}

type fakeStats struct {
	stats *usecase.PlatformStats
	err   error
}

func (s *fakeStats) Platform(context.Context) (*usecase.PlatformStats, error) {
	return s.stats, s.err
}
