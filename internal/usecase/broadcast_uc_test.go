package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

func newBroadcastFixture(t *testing.T, audience int) (*broadcastUC, *memBroadcastRepo, *model.MassBroadcast) {
	t.Helper()
	ctx := context.Background()
	broadcasts := newMemBroadcastRepo()
	subs := newMemSubscriberRepo()
	for i := 0; i < audience; i++ {
		s, _ := model.NewSubscriber("bot-1", int64(1000+i), int64(1000+i), "A", "", "")
		subs.Save(ctx, repository.NoTX, s)
	}
	uc := NewBroadcastUseCase(broadcasts, subs, nopTM{}, nopLogger())

	m, err := model.NewDraftBroadcast("bot-1", 100, "hello", "text")
	if err != nil {
		t.Fatal(err)
	}
	if err := uc.CreateDraft(ctx, m); err != nil {
		t.Fatal(err)
	}
	return uc, broadcasts, m
}

func TestSendNowMaterialises(t *testing.T) {
	ctx := context.Background()
	uc, broadcasts, m := newBroadcastFixture(t, 3)

	n, err := uc.SendNow(ctx, m.ID)
	if err != nil || n != 3 {
		t.Fatalf("SendNow = %d, %v", n, err)
	}
	got, _ := broadcasts.FindByID(ctx, repository.NoTX, m.ID)
	if got.Status != model.BroadcastSending {
		t.Fatalf("status = %s", got.Status)
	}

	// A second send loses the status guard.
	if _, err := uc.SendNow(ctx, m.ID); err == nil {
		t.Fatal("double SendNow succeeded")
	}
}

func TestScheduleFloor(t *testing.T) {
	ctx := context.Background()
	uc, _, m := newBroadcastFixture(t, 1)

	if err := uc.Schedule(ctx, m.ID, time.Now().Add(time.Minute)); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("near schedule err = %v", err)
	}
	if err := uc.Schedule(ctx, m.ID, time.Now().Add(10*time.Minute)); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
}

func TestPromoteDue(t *testing.T) {
	ctx := context.Background()
	uc, broadcasts, m := newBroadcastFixture(t, 2)

	at := time.Now().Add(6 * time.Minute)
	if err := uc.Schedule(ctx, m.ID, at); err != nil {
		t.Fatal(err)
	}

	// Not due yet.
	n, err := uc.PromoteDue(ctx, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("early promote = %d, %v", n, err)
	}

	n, err = uc.PromoteDue(ctx, at.Add(time.Second))
	if err != nil || n != 1 {
		t.Fatalf("promote = %d, %v", n, err)
	}
	got, _ := broadcasts.FindByID(ctx, repository.NoTX, m.ID)
	if got.Status != model.BroadcastSending {
		t.Fatalf("status = %s", got.Status)
	}
	st, _ := uc.Stats(ctx, m.ID)
	if st.Pending != 2 {
		t.Fatalf("pending = %d", st.Pending)
	}
}

func TestCancelMidSendDropsPendingDeliveries(t *testing.T) {
	ctx := context.Background()
	uc, broadcasts, m := newBroadcastFixture(t, 3)

	if _, err := uc.SendNow(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	// One recipient already got the message.
	claimed, _ := broadcasts.ClaimDueDeliveries(ctx, repository.NoTX, 1)
	if err := broadcasts.MarkDelivery(ctx, repository.NoTX, claimed[0].ID, model.DeliverySent, nil, ""); err != nil {
		t.Fatal(err)
	}

	if err := uc.Cancel(ctx, m.ID); err != nil {
		t.Fatalf("cancel while sending: %v", err)
	}
	got, _ := broadcasts.FindByID(ctx, repository.NoTX, m.ID)
	if got.Status != model.BroadcastCancelled || got.FinishedAt == nil {
		t.Fatalf("broadcast = %+v", got)
	}
	st, _ := uc.Stats(ctx, m.ID)
	if st.Pending != 0 || st.Sent != 1 {
		t.Fatalf("stats = %+v, want the queue drained and the sent row kept", st)
	}

	// A finished broadcast cannot be cancelled again.
	if err := uc.Cancel(ctx, m.ID); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("repeat cancel err = %v", err)
	}
}

func TestFinishIfDone(t *testing.T) {
	ctx := context.Background()
	uc, broadcasts, m := newBroadcastFixture(t, 2)

	if _, err := uc.SendNow(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	done, err := uc.FinishIfDone(ctx, m.ID)
	if err != nil || done {
		t.Fatalf("finish with pending = %v, %v", done, err)
	}

	claimed, _ := broadcasts.ClaimDueDeliveries(ctx, repository.NoTX, 10)
	for _, d := range claimed {
		if err := broadcasts.MarkDelivery(ctx, repository.NoTX, d.ID, model.DeliverySent, nil, ""); err != nil {
			t.Fatal(err)
		}
	}

	done, err = uc.FinishIfDone(ctx, m.ID)
	if err != nil || !done {
		t.Fatalf("finish = %v, %v", done, err)
	}
	got, _ := broadcasts.FindByID(ctx, repository.NoTX, m.ID)
	if got.Status != model.BroadcastCompleted || got.FinishedAt == nil {
		t.Fatalf("broadcast = %+v", got)
	}
}
