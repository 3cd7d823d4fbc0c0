package usecase

import (
	"context"
	"testing"
	"time"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

func newFunnelFixture() (*funnelUC, *memFunnelRepo, *memScheduledRepo, *memSubscriberRepo) {
	funnel := newMemFunnelRepo()
	scheduled := newMemScheduledRepo()
	subs := newMemSubscriberRepo()
	uc := NewFunnelUseCase(funnel, scheduled, subs, nopTM{}, nopLogger())
	return uc, funnel, scheduled, subs
}

func mkStep(t *testing.T, uc *funnelUC, botID string, number int, delayHours float64) *model.BroadcastMessage {
	t.Helper()
	step := &model.BroadcastMessage{MessageNumber: number, MessageText: "step", MediaType: model.MediaNone}
	if err := step.SetDelayHours(delayHours); err != nil {
		t.Fatal(err)
	}
	created, err := uc.CreateStep(context.Background(), botID, step)
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func addSubscriber(t *testing.T, subs *memSubscriberRepo, botID string, userID int64) {
	t.Helper()
	s, err := model.NewSubscriber(botID, userID, userID, "Ann", "", "ann")
	if err != nil {
		t.Fatal(err)
	}
	if err := subs.Save(context.Background(), repository.NoTX, s); err != nil {
		t.Fatal(err)
	}
}

func TestCreateStepSlidesToFreeNumber(t *testing.T) {
	uc, _, _, _ := newFunnelFixture()

	s1 := mkStep(t, uc, "bot-1", 1, 0)
	s2 := mkStep(t, uc, "bot-1", 1, 1)
	if s1.MessageNumber != 1 || s2.MessageNumber != 2 {
		t.Fatalf("numbers = %d, %d", s1.MessageNumber, s2.MessageNumber)
	}

	steps, err := uc.ListSteps(context.Background(), "bot-1")
	if err != nil || len(steps) != 2 {
		t.Fatalf("steps = %d, %v", len(steps), err)
	}
}

func TestEnterMaterialisesAllSteps(t *testing.T) {
	ctx := context.Background()
	uc, _, scheduled, subs := newFunnelFixture()

	mkStep(t, uc, "bot-1", 1, 0)
	s2 := mkStep(t, uc, "bot-1", 2, 2)
	addSubscriber(t, subs, "bot-1", 42)

	now := time.Now()
	n, err := uc.Enter(ctx, "bot-1", 42, now)
	if err != nil || n != 2 {
		t.Fatalf("Enter = %d, %v", n, err)
	}

	rows, _ := scheduled.ListBySubscriber(ctx, repository.NoTX, "bot-1", 42)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	want := now.Add(2 * time.Hour)
	if !rows[1].ScheduledAt.Equal(want) {
		t.Fatalf("step2 at %v, want %v", rows[1].ScheduledAt, want)
	}
	_ = s2

	sub, _ := subs.Find(ctx, repository.NoTX, "bot-1", 42)
	if sub.FunnelStartedAt == nil {
		t.Fatal("funnel start not recorded")
	}

	// Re-entry inserts nothing.
	n, err = uc.Enter(ctx, "bot-1", 42, now.Add(time.Hour))
	if err != nil || n != 0 {
		t.Fatalf("re-enter = %d, %v", n, err)
	}
}

func TestEnterDisabledSequence(t *testing.T) {
	ctx := context.Background()
	uc, _, _, subs := newFunnelFixture()

	mkStep(t, uc, "bot-1", 1, 0)
	addSubscriber(t, subs, "bot-1", 42)
	if err := uc.SetEnabled(ctx, "bot-1", false); err != nil {
		t.Fatal(err)
	}

	n, err := uc.Enter(ctx, "bot-1", 42, time.Now())
	if err != nil || n != 0 {
		t.Fatalf("Enter on disabled = %d, %v", n, err)
	}
}

func TestUpdateStepReanchorsPending(t *testing.T) {
	ctx := context.Background()
	uc, _, scheduled, subs := newFunnelFixture()

	step := mkStep(t, uc, "bot-1", 1, 1)
	addSubscriber(t, subs, "bot-1", 42)
	activation := time.Now()
	if _, err := uc.Enter(ctx, "bot-1", 42, activation); err != nil {
		t.Fatal(err)
	}

	// 1h -> 30m.
	if err := step.SetDelayHours(0.5); err != nil {
		t.Fatal(err)
	}
	if err := uc.UpdateStep(ctx, "bot-1", step); err != nil {
		t.Fatal(err)
	}

	rows, _ := scheduled.ListBySubscriber(ctx, repository.NoTX, "bot-1", 42)
	want := activation.Add(30 * time.Minute)
	if !rows[0].ScheduledAt.Equal(want) {
		t.Fatalf("rescheduled to %v, want %v", rows[0].ScheduledAt, want)
	}
}

func TestDeleteStepCancelsPending(t *testing.T) {
	ctx := context.Background()
	uc, _, scheduled, subs := newFunnelFixture()

	step := mkStep(t, uc, "bot-1", 1, 1)
	addSubscriber(t, subs, "bot-1", 42)
	if _, err := uc.Enter(ctx, "bot-1", 42, time.Now()); err != nil {
		t.Fatal(err)
	}

	if err := uc.DeleteStep(ctx, "bot-1", step.MessageID); err != nil {
		t.Fatal(err)
	}
	n, _ := scheduled.CountByStatus(ctx, repository.NoTX, "bot-1", model.ScheduledCancelled)
	if n != 1 {
		t.Fatalf("cancelled = %d", n)
	}
	steps, _ := uc.ListSteps(ctx, "bot-1")
	if len(steps) != 0 {
		t.Fatalf("steps = %d", len(steps))
	}
}
