package sched

import (
	"context"
	"strings"
	"testing"
	"time"

	"telegram-bot-hosting/internal/domain/model"
)

func TestExpirySweepFlipsStatusAndNotifies(t *testing.T) {
	started := time.Now().AddDate(0, 0, -10)
	users := &fakeUserRepo{expirable: []*model.User{
		{UserID: 1, Status: model.SubscriptionTrial, TrialStartedAt: &started},
		{UserID: 2, Status: model.SubscriptionPaid},
	}}
	notifier := &fakeNotifier{}

	w := NewExpiryWorker(time.Hour, users, notifier, 3, nopLogger())
	w.sweep(context.Background())

	if len(users.saved) != 2 {
		t.Fatalf("saved %d users, want 2", len(users.saved))
	}
	for _, u := range users.saved {
		if u.Status != model.SubscriptionExpired {
			t.Errorf("user %d status = %q, want expired", u.UserID, u.Status)
		}
	}
	if len(notifier.messages) != 2 {
		t.Fatalf("got %d notices, want 2", len(notifier.messages))
	}
	if !strings.Contains(notifier.messages[0], "Пробный период") {
		t.Errorf("trial user got %q, want trial wording", notifier.messages[0])
	}
	if !strings.Contains(notifier.messages[1], "подписка истекла") {
		t.Errorf("paid user got %q, want expiry wording", notifier.messages[1])
	}
}

func TestExpirySweepNilNotifier(t *testing.T) {
	users := &fakeUserRepo{expirable: []*model.User{{UserID: 3, Status: model.SubscriptionPaid}}}

	w := NewExpiryWorker(time.Hour, users, nil, 3, nopLogger())
	w.sweep(context.Background())

	if len(users.saved) != 1 || users.saved[0].Status != model.SubscriptionExpired {
		t.Fatalf("user not expired: %+v", users.saved)
	}
}
