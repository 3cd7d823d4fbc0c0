package model

import (
	"testing"
	"time"
)

func TestUserTrialAndPaidLifecycle(t *testing.T) {
	now := time.Now()
	u, err := NewUser(12345, 12345, nil)
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if u.Status != SubscriptionFree {
		t.Fatalf("new user status = %s, want free", u.Status)
	}
	if u.ReferralCode == "" {
		t.Fatal("referral code not assigned")
	}

	if !u.StartTrial(now) {
		t.Fatal("StartTrial refused for free user")
	}
	if got := u.EffectiveStatus(now.Add(time.Hour), 3); got != SubscriptionTrial {
		t.Fatalf("status 1h into trial = %s, want trial", got)
	}
	if got := u.EffectiveStatus(now.Add(4*24*time.Hour), 3); got != SubscriptionExpired {
		t.Fatalf("status after trial = %s, want expired", got)
	}
	// Trial is granted once.
	if u.StartTrial(now) {
		t.Fatal("StartTrial granted twice")
	}

	u.ExtendPaid(now, 30)
	if got := u.EffectiveStatus(now.Add(29*24*time.Hour), 3); got != SubscriptionPaid {
		t.Fatalf("status at day 29 = %s, want paid", got)
	}
	first := *u.SubscriptionExpiresAt
	// Second payment stacks on remaining time.
	u.ExtendPaid(now.Add(24*time.Hour), 30)
	if want := first.Add(30 * 24 * time.Hour); !u.SubscriptionExpiresAt.Equal(want) {
		t.Fatalf("stacked expiry = %v, want %v", u.SubscriptionExpiresAt, want)
	}
	if got := u.EffectiveStatus(now.Add(61*24*time.Hour), 3); got != SubscriptionExpired {
		t.Fatalf("status after paid = %s, want expired", got)
	}
}

func TestBroadcastMessageDelay(t *testing.T) {
	var m BroadcastMessage
	if err := m.SetDelayHours(1.5); err != nil {
		t.Fatalf("SetDelayHours: %v", err)
	}
	if m.DelaySeconds != 5400 {
		t.Fatalf("delay = %d s, want 5400", m.DelaySeconds)
	}
	// Rounded to minute resolution.
	if err := m.SetDelayHours(0.0169); err != nil { // ~61 seconds
		t.Fatalf("SetDelayHours: %v", err)
	}
	if m.DelaySeconds%60 != 0 {
		t.Fatalf("delay %d not minute-aligned", m.DelaySeconds)
	}
	if err := m.SetDelayHours(-1); err == nil {
		t.Fatal("negative delay accepted")
	}
	if err := m.SetDelayHours(9000); err == nil {
		t.Fatal("delay above one year accepted")
	}
}

func TestMassBroadcastScheduleFloor(t *testing.T) {
	now := time.Now()
	b, err := NewDraftBroadcast("bot-1", 99, "t", "hello")
	if err != nil {
		t.Fatalf("NewDraftBroadcast: %v", err)
	}
	if err := b.Schedule(now.Add(2*time.Minute), now); err == nil {
		t.Fatal("schedule under 5-minute floor accepted")
	}
	if err := b.Schedule(now.Add(10*time.Minute), now); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if b.Status != BroadcastStatusScheduled || b.Type != BroadcastScheduled {
		t.Fatalf("status=%s type=%s after schedule", b.Status, b.Type)
	}
}

func TestReferralCommission(t *testing.T) {
	tx, err := NewReferralTransaction(1, 2, ReferralSubscription, 349.00, 1700000000)
	if err != nil {
		t.Fatalf("NewReferralTransaction: %v", err)
	}
	if tx.CommissionAmount != 52.35 {
		t.Fatalf("commission = %v, want 52.35", tx.CommissionAmount)
	}
}

func TestSubscriberSubstitutions(t *testing.T) {
	s := &Subscriber{BotID: "b", UserID: 42, FirstName: "Ann", LastName: "Lee", Username: "ann"}
	got := s.RenderSubstitutions("Hi {first_name} ({username}, {user_id}): {full_name} / {mention}")
	want := `Hi Ann (ann, 42): Ann Lee / <a href="tg://user?id=42">Ann</a>`
	if got != want {
		t.Fatalf("render = %q, want %q", got, want)
	}
}

func TestMediaTypeCaptionSupport(t *testing.T) {
	for _, m := range []MediaType{MediaVoice, MediaVideoNote, MediaSticker} {
		if m.SupportsCaption() {
			t.Fatalf("%s should not support captions", m)
		}
	}
	for _, m := range []MediaType{MediaPhoto, MediaVideo, MediaDocument, MediaAudio, MediaAnimation} {
		if !m.SupportsCaption() {
			t.Fatalf("%s should support captions", m)
		}
	}
}

func TestParseAISettingsRejectsUnknownKeys(t *testing.T) {
	if _, err := ParseAISettings([]byte(`{"enable_file_search":true}`)); err != nil {
		t.Fatalf("known key rejected: %v", err)
	}
	if _, err := ParseAISettings([]byte(`{"bogus":1}`)); err == nil {
		t.Fatal("unknown key accepted")
	}
}
