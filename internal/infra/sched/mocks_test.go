package sched

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
	"telegram-bot-hosting/internal/usecase"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.New(os.Stderr).Level(zerolog.Disabled)
	return &l
}

func subKey(botID string, userID int64) string {
	return fmt.Sprintf("%s/%d", botID, userID)
}

// ---- scheduled message repo ----

type fakeScheduled struct {
	mu       sync.Mutex
	due      []*model.ScheduledMessage
	sent     []string
	failed   map[string]string
	released []string
}

func newFakeScheduled(rows ...*model.ScheduledMessage) *fakeScheduled {
	return &fakeScheduled{due: rows, failed: map[string]string{}}
}

func (f *fakeScheduled) InsertMany(context.Context, repository.Tx, []*model.ScheduledMessage) (int, error) {
	return 0, nil
}

func (f *fakeScheduled) ClaimDue(context.Context, repository.Tx, time.Time, int) ([]*model.ScheduledMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.due
	f.due = nil
	return rows, nil
}

func (f *fakeScheduled) ReleaseClaim(_ context.Context, _ repository.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	return nil
}

func (f *fakeScheduled) MarkSent(_ context.Context, _ repository.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeScheduled) MarkFailed(_ context.Context, _ repository.Tx, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[id] = reason
	return nil
}

func (f *fakeScheduled) RescheduleByMessage(context.Context, repository.Tx, string, int64, int64) (int, error) {
	return 0, nil
}

func (f *fakeScheduled) CancelByMessage(context.Context, repository.Tx, string) (int, error) {
	return 0, nil
}

func (f *fakeScheduled) ListBySubscriber(context.Context, repository.Tx, string, int64) ([]*model.ScheduledMessage, error) {
	return nil, nil
}

func (f *fakeScheduled) CountByStatus(context.Context, repository.Tx, string, model.ScheduledStatus) (int, error) {
	return 0, nil
}

// ---- funnel repo ----

type fakeFunnelRepo struct {
	seq      *model.BroadcastSequence
	messages map[string]*model.BroadcastMessage
}

func (f *fakeFunnelRepo) SaveSequence(context.Context, repository.Tx, *model.BroadcastSequence) error {
	return nil
}

func (f *fakeFunnelRepo) FindSequenceByBot(context.Context, repository.Tx, string) (*model.BroadcastSequence, error) {
	if f.seq == nil {
		return nil, domain.ErrNotFound
	}
	return f.seq, nil
}

func (f *fakeFunnelRepo) SetSequenceEnabled(context.Context, repository.Tx, string, bool) error {
	return nil
}

func (f *fakeFunnelRepo) SaveMessage(context.Context, repository.Tx, *model.BroadcastMessage) error {
	return nil
}

func (f *fakeFunnelRepo) DeleteMessage(context.Context, repository.Tx, string) error { return nil }

func (f *fakeFunnelRepo) FindMessage(_ context.Context, _ repository.Tx, id string) (*model.BroadcastMessage, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeFunnelRepo) ListMessages(context.Context, repository.Tx, string) ([]*model.BroadcastMessage, error) {
	return nil, nil
}

func (f *fakeFunnelRepo) NextFreeNumber(_ context.Context, _ repository.Tx, _ string, requested int) (int, error) {
	return requested, nil
}

// ---- subscriber repo ----

type fakeSubs struct {
	mu          sync.Mutex
	subs        map[string]*model.Subscriber
	deactivated []int64
	lastMsg     map[string]int
}

func newFakeSubs(subs ...*model.Subscriber) *fakeSubs {
	m := map[string]*model.Subscriber{}
	for _, s := range subs {
		m[subKey(s.BotID, s.UserID)] = s
	}
	return &fakeSubs{subs: m, lastMsg: map[string]int{}}
}

func (f *fakeSubs) Save(context.Context, repository.Tx, *model.Subscriber) error { return nil }

func (f *fakeSubs) Find(_ context.Context, _ repository.Tx, botID string, userID int64) (*model.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[subKey(botID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (f *fakeSubs) ListActive(context.Context, repository.Tx, string) ([]*model.Subscriber, error) {
	return nil, nil
}

func (f *fakeSubs) SetActive(_ context.Context, _ repository.Tx, _ string, userID int64, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !active {
		f.deactivated = append(f.deactivated, userID)
	}
	return nil
}

func (f *fakeSubs) SetFunnelStarted(context.Context, repository.Tx, string, int64, time.Time) error {
	return nil
}

func (f *fakeSubs) SetLastBroadcastMessage(_ context.Context, _ repository.Tx, botID string, userID int64, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMsg[subKey(botID, userID)] = number
	return nil
}

func (f *fakeSubs) CountActive(context.Context, repository.Tx, string) (int, error) { return 0, nil }

// ---- sender and resolver ----

type fakeSender struct {
	mu       sync.Mutex
	requests []adapter.SendRequest
	errs     []error // popped per call; nil entries mean success
}

func (f *fakeSender) Send(_ context.Context, req adapter.SendRequest) (adapter.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return adapter.SendResult{}, err
		}
	}
	return adapter.SendResult{MessageID: len(f.requests)}, nil
}

type fakeResolver map[string]adapter.Sender

func (f fakeResolver) SenderFor(botID string) (adapter.Sender, bool) {
	s, ok := f[botID]
	return s, ok
}

// ---- broadcast repo and usecase ----

type fakeBroadcastRepo struct {
	mu       sync.Mutex
	due      []*model.BroadcastDelivery
	marked   map[string]model.DeliveryStatus
	released []string
}

func newFakeBroadcastRepo(rows ...*model.BroadcastDelivery) *fakeBroadcastRepo {
	return &fakeBroadcastRepo{due: rows, marked: map[string]model.DeliveryStatus{}}
}

func (f *fakeBroadcastRepo) Save(context.Context, repository.Tx, *model.MassBroadcast) error {
	return nil
}

func (f *fakeBroadcastRepo) FindByID(context.Context, repository.Tx, string) (*model.MassBroadcast, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeBroadcastRepo) ListByBot(context.Context, repository.Tx, string, int) ([]*model.MassBroadcast, error) {
	return nil, nil
}

func (f *fakeBroadcastRepo) UpdateStatus(context.Context, repository.Tx, string, model.BroadcastStatus, model.BroadcastStatus) error {
	return nil
}

func (f *fakeBroadcastRepo) ListDueScheduled(context.Context, repository.Tx, time.Time, int) ([]*model.MassBroadcast, error) {
	return nil, nil
}

func (f *fakeBroadcastRepo) InsertDeliveries(context.Context, repository.Tx, []*model.BroadcastDelivery) (int, error) {
	return 0, nil
}

func (f *fakeBroadcastRepo) ClaimDueDeliveries(context.Context, repository.Tx, int) ([]*model.BroadcastDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.due
	f.due = nil
	return rows, nil
}

func (f *fakeBroadcastRepo) ReleaseDeliveryClaim(_ context.Context, _ repository.Tx, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, id)
	return nil
}

func (f *fakeBroadcastRepo) MarkDelivery(_ context.Context, _ repository.Tx, id string, status model.DeliveryStatus, _ *int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[id] = status
	return nil
}

func (f *fakeBroadcastRepo) CancelPendingDeliveries(context.Context, repository.Tx, string) (int, error) {
	return 0, nil
}

func (f *fakeBroadcastRepo) CountPendingDeliveries(context.Context, repository.Tx, string) (int, error) {
	return 0, nil
}

func (f *fakeBroadcastRepo) Stats(context.Context, repository.Tx, string) (*repository.BroadcastStats, error) {
	return &repository.BroadcastStats{}, nil
}

type fakeBroadcastUC struct {
	mu        sync.Mutex
	broadcast *model.MassBroadcast
	promoted  int
	finished  []string
}

var _ usecase.BroadcastUseCase = (*fakeBroadcastUC)(nil)

func (f *fakeBroadcastUC) CreateDraft(context.Context, *model.MassBroadcast) error { return nil }
func (f *fakeBroadcastUC) Schedule(context.Context, string, time.Time) error       { return nil }
func (f *fakeBroadcastUC) SendNow(context.Context, string) (int, error)            { return 0, nil }
func (f *fakeBroadcastUC) Cancel(context.Context, string) error                    { return nil }

func (f *fakeBroadcastUC) PromoteDue(context.Context, time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoted++
	return 0, nil
}

func (f *fakeBroadcastUC) FinishIfDone(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, id)
	return true, nil
}

func (f *fakeBroadcastUC) Get(_ context.Context, id string) (*model.MassBroadcast, error) {
	if f.broadcast == nil || f.broadcast.ID != id {
		return nil, domain.ErrNotFound
	}
	return f.broadcast, nil
}

func (f *fakeBroadcastUC) List(context.Context, string, int) ([]*model.MassBroadcast, error) {
	return nil, nil
}

func (f *fakeBroadcastUC) Stats(context.Context, string) (*repository.BroadcastStats, error) {
	return &repository.BroadcastStats{}, nil
}

// ---- user repo (expiry worker) ----

type fakeUserRepo struct {
	mu        sync.Mutex
	expirable []*model.User
	saved     []*model.User
}

func (f *fakeUserRepo) Save(_ context.Context, _ repository.Tx, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, u)
	return nil
}

func (f *fakeUserRepo) FindByID(context.Context, repository.Tx, int64) (*model.User, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) FindByReferralCode(context.Context, repository.Tx, string) (*model.User, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) CreditReferralEarnings(context.Context, repository.Tx, int64, float64) error {
	return nil
}

func (f *fakeUserRepo) CountUsers(context.Context, repository.Tx) (int, error) { return 0, nil }

func (f *fakeUserRepo) CountByStatus(context.Context, repository.Tx, model.SubscriptionStatus) (int, error) {
	return 0, nil
}

func (f *fakeUserRepo) ListExpirable(context.Context, repository.Tx, int, int) ([]*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.expirable
	f.expirable = nil
	return rows, nil
}

func (f *fakeUserRepo) ListAll(context.Context, repository.Tx, int64, int) ([]*model.User, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	targets  []int64
	messages []string
}

func (f *fakeNotifier) NotifyOwner(_ context.Context, ownerUserID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, ownerUserID)
	f.messages = append(f.messages, text)
	return nil
}
