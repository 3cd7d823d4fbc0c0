package sched

import (
	"context"
	"testing"
	"time"

	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
)

func testBroadcastFixture(sender adapter.Sender) (*BroadcastDispatcher, *fakeBroadcastRepo, *fakeBroadcastUC, *model.BroadcastDelivery) {
	b := &model.MassBroadcast{
		ID:          "bc-1",
		BotID:       testBotID,
		MessageText: "Большая новость!",
		ButtonText:  "Подробнее",
		ButtonURL:   "https://example.com",
	}
	row := model.NewBroadcastDelivery(b.ID, 200)

	repo := newFakeBroadcastRepo(row)
	uc := &fakeBroadcastUC{broadcast: b}
	resolver := fakeResolver{}
	if sender != nil {
		resolver[testBotID] = sender
	}

	d := NewBroadcastDispatcher(repo, uc, resolver, time.Second, 50, 1000, nopLogger())
	return d, repo, uc, row
}

func TestBroadcastTickPromotesAndDelivers(t *testing.T) {
	sender := &fakeSender{}
	d, repo, uc, row := testBroadcastFixture(sender)

	d.tick(context.Background())

	if uc.promoted != 1 {
		t.Errorf("promoted %d times, want 1", uc.promoted)
	}
	if repo.marked[row.ID] != model.DeliverySent {
		t.Fatalf("status = %q, want sent", repo.marked[row.ID])
	}
	if len(sender.requests) != 1 {
		t.Fatalf("got %d sends, want 1", len(sender.requests))
	}
	req := sender.requests[0]
	if req.ChatID != 200 || req.Text != "Большая новость!" {
		t.Errorf("unexpected request %+v", req)
	}
	if len(req.Buttons) != 1 || req.Buttons[0][0].URL != "https://example.com" {
		t.Errorf("buttons = %v, want single url button", req.Buttons)
	}
	if len(uc.finished) != 1 || uc.finished[0] != "bc-1" {
		t.Errorf("finish check ran for %v, want [bc-1]", uc.finished)
	}
}

func TestBroadcastBlockedRecipientMarked(t *testing.T) {
	sender := &fakeSender{errs: []error{adapter.ErrRecipientBlocked}}
	d, repo, _, row := testBroadcastFixture(sender)

	d.tick(context.Background())

	if repo.marked[row.ID] != model.DeliveryBlocked {
		t.Fatalf("status = %q, want blocked", repo.marked[row.ID])
	}
}

func TestBroadcastWithoutRunningBotFails(t *testing.T) {
	d, repo, _, row := testBroadcastFixture(nil)

	d.tick(context.Background())

	if repo.marked[row.ID] != model.DeliveryFailed {
		t.Fatalf("status = %q, want failed", repo.marked[row.ID])
	}
}

func TestBroadcastRetriesAfterFloodWait(t *testing.T) {
	sender := &fakeSender{errs: []error{&adapter.FloodWaitError{RetryAfter: time.Millisecond}, nil}}
	d, repo, _, row := testBroadcastFixture(sender)

	d.tick(context.Background())

	if len(sender.requests) != 2 {
		t.Fatalf("got %d sends, want 2 (retry after flood wait)", len(sender.requests))
	}
	if repo.marked[row.ID] != model.DeliverySent {
		t.Errorf("status = %q, want sent", repo.marked[row.ID])
	}
}

func TestBroadcastVideoNoteSendsTextThenMedia(t *testing.T) {
	sender := &fakeSender{}
	d, repo, uc, row := testBroadcastFixture(sender)
	uc.broadcast.MediaFileID = "note-file"
	uc.broadcast.MediaType = model.MediaVideoNote

	d.tick(context.Background())

	if len(sender.requests) != 2 {
		t.Fatalf("got %d sends, want 2 (video note has no caption)", len(sender.requests))
	}
	if sender.requests[0].MediaFileID != "" || sender.requests[0].Text == "" {
		t.Errorf("first send must be text only, got %+v", sender.requests[0])
	}
	second := sender.requests[1]
	if second.MediaFileID != "note-file" || len(second.Buttons) != 1 {
		t.Errorf("second send must carry media and button, got %+v", second)
	}
	if repo.marked[row.ID] != model.DeliverySent {
		t.Errorf("status = %q, want sent", repo.marked[row.ID])
	}
}

func TestBroadcastSharedContentFetchedOnce(t *testing.T) {
	sender := &fakeSender{}
	d, repo, uc, _ := testBroadcastFixture(sender)
	repo.due = append(repo.due,
		model.NewBroadcastDelivery("bc-1", 201),
		model.NewBroadcastDelivery("bc-1", 202),
	)

	d.tick(context.Background())

	if len(sender.requests) != 3 {
		t.Fatalf("got %d sends, want 3", len(sender.requests))
	}
	if len(uc.finished) != 1 {
		t.Errorf("finish check ran %d times, want once per broadcast", len(uc.finished))
	}
}
