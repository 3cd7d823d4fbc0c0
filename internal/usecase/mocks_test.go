// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"telegram-bot-hosting/internal/domain"
	"telegram-bot-hosting/internal/domain/model"
	"telegram-bot-hosting/internal/domain/ports/adapter"
	"telegram-bot-hosting/internal/domain/ports/repository"
)

// nopTM runs the callback without a real transaction.
type nopTM struct{}

func (nopTM) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

// ---- users ----

type memUserRepo struct {
	mu      sync.RWMutex
	store   map[int64]*model.User
	saveErr error
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[int64]*model.User)}
}

func (m *memUserRepo) Save(ctx context.Context, _ repository.Tx, u *model.User) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.UserID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, _ repository.Tx, userID int64) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByReferralCode(ctx context.Context, _ repository.Tx, code string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) CreditReferralEarnings(ctx context.Context, _ repository.Tx, userID int64, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ReferralEarnings += amount
	u.TotalReferrals++
	return nil
}

func (m *memUserRepo) CountUsers(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

func (m *memUserRepo) CountByStatus(ctx context.Context, _ repository.Tx, status model.SubscriptionStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, u := range m.store {
		if u.Status == status {
			n++
		}
	}
	return n, nil
}

func (m *memUserRepo) ListExpirable(ctx context.Context, _ repository.Tx, trialDays, limit int) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := time.Now()
	var out []*model.User
	for _, u := range m.store {
		if (u.Status == model.SubscriptionTrial || u.Status == model.SubscriptionPaid) &&
			u.EffectiveStatus(now, trialDays) == model.SubscriptionExpired {
			cp := *u
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memUserRepo) ListAll(ctx context.Context, _ repository.Tx, afterUserID int64, limit int) ([]*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.User
	for _, u := range m.store {
		if u.UserID > afterUserID {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- user bots ----

type memBotRepo struct {
	mu    sync.RWMutex
	store map[string]*model.UserBot
}

func newMemBotRepo() *memBotRepo {
	return &memBotRepo{store: make(map[string]*model.UserBot)}
}

func (m *memBotRepo) Save(ctx context.Context, _ repository.Tx, b *model.UserBot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.store[b.BotID] = &cp
	return nil
}

func (m *memBotRepo) Delete(ctx context.Context, _ repository.Tx, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, botID)
	return nil
}

func (m *memBotRepo) FindByID(ctx context.Context, _ repository.Tx, botID string) (*model.UserBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.store[botID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBotRepo) ListByOwner(ctx context.Context, _ repository.Tx, ownerUserID int64) ([]*model.UserBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserBot
	for _, b := range m.store {
		if b.OwnerUserID == ownerUserID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBotRepo) ListRunnable(ctx context.Context, _ repository.Tx) ([]*model.UserBot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.UserBot
	for _, b := range m.store {
		if b.Status == model.BotStatusActive && b.IsRunning {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memBotRepo) SetRunState(ctx context.Context, _ repository.Tx, botID string, status model.BotStatus, isRunning bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[botID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	b.IsRunning = isRunning
	return nil
}

func (m *memBotRepo) AddTokenUsage(ctx context.Context, _ repository.Tx, botID string, input, output int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[botID]
	if !ok {
		return domain.ErrNotFound
	}
	b.TokensInputUsed += input
	b.TokensOutputUsed += output
	return nil
}

func (m *memBotRepo) AddTokenLimit(ctx context.Context, _ repository.Tx, botID string, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[botID]
	if !ok {
		return domain.ErrNotFound
	}
	if b.TokensLimitTotal == nil {
		b.TokensLimitTotal = new(int64)
	}
	*b.TokensLimitTotal += tokens
	b.TokenNotificationSent = false
	return nil
}

func (m *memBotRepo) SetTokenNotificationSent(ctx context.Context, _ repository.Tx, botID string, sent bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.store[botID]
	if !ok {
		return domain.ErrNotFound
	}
	b.TokenNotificationSent = sent
	return nil
}

func (m *memBotRepo) CountBots(ctx context.Context, _ repository.Tx) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

// ---- subscribers ----

type memSubscriberRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Subscriber
}

func newMemSubscriberRepo() *memSubscriberRepo {
	return &memSubscriberRepo{store: make(map[string]*model.Subscriber)}
}

func subKey(botID string, userID int64) string {
	return fmt.Sprintf("%s/%d", botID, userID)
}

func (m *memSubscriberRepo) Save(ctx context.Context, _ repository.Tx, s *model.Subscriber) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.store[subKey(s.BotID, s.UserID)] = &cp
	return nil
}

func (m *memSubscriberRepo) Find(ctx context.Context, _ repository.Tx, botID string, userID int64) (*model.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.store[subKey(botID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSubscriberRepo) ListActive(ctx context.Context, _ repository.Tx, botID string) ([]*model.Subscriber, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscriber
	for _, s := range m.store {
		if s.BotID == botID && s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memSubscriberRepo) SetActive(ctx context.Context, _ repository.Tx, botID string, userID int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[subKey(botID, userID)]
	if !ok {
		return domain.ErrNotFound
	}
	s.IsActive = active
	return nil
}

func (m *memSubscriberRepo) SetFunnelStarted(ctx context.Context, _ repository.Tx, botID string, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[subKey(botID, userID)]
	if !ok {
		return domain.ErrNotFound
	}
	s.FunnelStartedAt = &at
	return nil
}

func (m *memSubscriberRepo) SetLastBroadcastMessage(ctx context.Context, _ repository.Tx, botID string, userID int64, number int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.store[subKey(botID, userID)]
	if !ok {
		return domain.ErrNotFound
	}
	s.LastBroadcastMessage = number
	return nil
}

func (m *memSubscriberRepo) CountActive(ctx context.Context, _ repository.Tx, botID string) (int, error) {
	subs, _ := m.ListActive(ctx, repository.NoTX, botID)
	return len(subs), nil
}

// ---- funnel ----

type memFunnelRepo struct {
	mu        sync.RWMutex
	sequences map[string]*model.BroadcastSequence // by bot id
	messages  map[string]*model.BroadcastMessage  // by message id
}

func newMemFunnelRepo() *memFunnelRepo {
	return &memFunnelRepo{
		sequences: make(map[string]*model.BroadcastSequence),
		messages:  make(map[string]*model.BroadcastMessage),
	}
}

func (m *memFunnelRepo) SaveSequence(ctx context.Context, _ repository.Tx, s *model.BroadcastSequence) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sequences[s.BotID] = &cp
	return nil
}

func (m *memFunnelRepo) FindSequenceByBot(ctx context.Context, _ repository.Tx, botID string) (*model.BroadcastSequence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sequences[botID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memFunnelRepo) SetSequenceEnabled(ctx context.Context, _ repository.Tx, sequenceID string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sequences {
		if s.SequenceID == sequenceID {
			s.IsEnabled = enabled
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memFunnelRepo) SaveMessage(ctx context.Context, _ repository.Tx, msg *model.BroadcastMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *msg
	m.messages[msg.MessageID] = &cp
	return nil
}

func (m *memFunnelRepo) DeleteMessage(ctx context.Context, _ repository.Tx, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, messageID)
	return nil
}

func (m *memFunnelRepo) FindMessage(ctx context.Context, _ repository.Tx, messageID string) (*model.BroadcastMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *msg
	return &cp, nil
}

func (m *memFunnelRepo) ListMessages(ctx context.Context, _ repository.Tx, sequenceID string) ([]*model.BroadcastMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.BroadcastMessage
	for _, msg := range m.messages {
		if msg.SequenceID == sequenceID && msg.IsActive {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageNumber < out[j].MessageNumber })
	return out, nil
}

func (m *memFunnelRepo) NextFreeNumber(ctx context.Context, _ repository.Tx, sequenceID string, requested int) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if requested < 1 {
		requested = 1
	}
	taken := map[int]bool{}
	for _, msg := range m.messages {
		if msg.SequenceID == sequenceID {
			taken[msg.MessageNumber] = true
		}
	}
	n := requested
	for taken[n] {
		n++
	}
	return n, nil
}

// ---- scheduled messages ----

type memScheduledRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ScheduledMessage
}

func newMemScheduledRepo() *memScheduledRepo {
	return &memScheduledRepo{store: make(map[string]*model.ScheduledMessage)}
}

func (m *memScheduledRepo) InsertMany(ctx context.Context, _ repository.Tx, rows []*model.ScheduledMessage) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, r := range rows {
		dup := false
		for _, existing := range m.store {
			if existing.BotID == r.BotID && existing.SubscriberID == r.SubscriberID && existing.MessageID == r.MessageID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := *r
		m.store[r.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (m *memScheduledRepo) ClaimDue(ctx context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.ScheduledMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ScheduledMessage
	for _, r := range m.store {
		if r.Status == model.ScheduledPending && !r.ScheduledAt.After(now) {
			cp := *r
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memScheduledRepo) ReleaseClaim(ctx context.Context, _ repository.Tx, id string) error {
	return nil
}

func (m *memScheduledRepo) MarkSent(ctx context.Context, _ repository.Tx, id string) error {
	return m.setStatus(id, model.ScheduledSent, "")
}

func (m *memScheduledRepo) MarkFailed(ctx context.Context, _ repository.Tx, id, reason string) error {
	return m.setStatus(id, model.ScheduledFailed, reason)
}

func (m *memScheduledRepo) setStatus(id string, status model.ScheduledStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.ErrorMessage = reason
	return nil
}

func (m *memScheduledRepo) RescheduleByMessage(ctx context.Context, _ repository.Tx, messageID string, oldDelaySeconds, newDelaySeconds int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	shift := time.Duration(newDelaySeconds-oldDelaySeconds) * time.Second
	n := 0
	for _, r := range m.store {
		if r.MessageID == messageID && r.Status == model.ScheduledPending {
			r.ScheduledAt = r.ScheduledAt.Add(shift)
			n++
		}
	}
	return n, nil
}

func (m *memScheduledRepo) CancelByMessage(ctx context.Context, _ repository.Tx, messageID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.store {
		if r.MessageID == messageID && r.Status == model.ScheduledPending {
			r.Status = model.ScheduledCancelled
			n++
		}
	}
	return n, nil
}

func (m *memScheduledRepo) ListBySubscriber(ctx context.Context, _ repository.Tx, botID string, subscriberID int64) ([]*model.ScheduledMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ScheduledMessage
	for _, r := range m.store {
		if r.BotID == botID && r.SubscriberID == subscriberID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *memScheduledRepo) CountByStatus(ctx context.Context, _ repository.Tx, botID string, status model.ScheduledStatus) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.store {
		if r.BotID == botID && r.Status == status {
			n++
		}
	}
	return n, nil
}

// ---- broadcasts ----

type memBroadcastRepo struct {
	mu         sync.RWMutex
	broadcasts map[string]*model.MassBroadcast
	deliveries map[string]*model.BroadcastDelivery
}

func newMemBroadcastRepo() *memBroadcastRepo {
	return &memBroadcastRepo{
		broadcasts: make(map[string]*model.MassBroadcast),
		deliveries: make(map[string]*model.BroadcastDelivery),
	}
}

func (m *memBroadcastRepo) Save(ctx context.Context, _ repository.Tx, b *model.MassBroadcast) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.broadcasts[b.ID] = &cp
	return nil
}

func (m *memBroadcastRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.MassBroadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.broadcasts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBroadcastRepo) ListByBot(ctx context.Context, _ repository.Tx, botID string, limit int) ([]*model.MassBroadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.MassBroadcast
	for _, b := range m.broadcasts {
		if b.BotID == botID {
			cp := *b
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memBroadcastRepo) UpdateStatus(ctx context.Context, _ repository.Tx, id string, expect, next model.BroadcastStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.broadcasts[id]
	if !ok || b.Status != expect {
		return domain.ErrNotFound
	}
	b.Status = next
	now := time.Now()
	if next == model.BroadcastSending {
		b.StartedAt = &now
	}
	if next == model.BroadcastCompleted || next == model.BroadcastCancelled || next == model.BroadcastFailed {
		b.FinishedAt = &now
	}
	return nil
}

func (m *memBroadcastRepo) ListDueScheduled(ctx context.Context, _ repository.Tx, now time.Time, limit int) ([]*model.MassBroadcast, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.MassBroadcast
	for _, b := range m.broadcasts {
		if b.Status == model.BroadcastStatusScheduled && b.ScheduledAt != nil && !b.ScheduledAt.After(now) {
			cp := *b
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memBroadcastRepo) InsertDeliveries(ctx context.Context, _ repository.Tx, rows []*model.BroadcastDelivery) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, r := range rows {
		dup := false
		for _, existing := range m.deliveries {
			if existing.BroadcastID == r.BroadcastID && existing.UserID == r.UserID {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := *r
		m.deliveries[r.ID] = &cp
		inserted++
	}
	return inserted, nil
}

func (m *memBroadcastRepo) ClaimDueDeliveries(ctx context.Context, _ repository.Tx, limit int) ([]*model.BroadcastDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BroadcastDelivery
	for _, r := range m.deliveries {
		b, ok := m.broadcasts[r.BroadcastID]
		if !ok || b.Status != model.BroadcastSending {
			continue
		}
		if r.Status == model.DeliveryPending {
			cp := *r
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memBroadcastRepo) ReleaseDeliveryClaim(ctx context.Context, _ repository.Tx, id string) error {
	return nil
}

func (m *memBroadcastRepo) MarkDelivery(ctx context.Context, _ repository.Tx, id string, status model.DeliveryStatus, telegramMessageID *int, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.deliveries[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	r.Status = status
	r.TelegramMessageID = telegramMessageID
	r.ErrorMessage = errMsg
	r.AttemptedAt = &now
	return nil
}

func (m *memBroadcastRepo) CancelPendingDeliveries(ctx context.Context, _ repository.Tx, broadcastID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.deliveries {
		if r.BroadcastID == broadcastID && r.Status == model.DeliveryPending {
			r.Status = model.DeliveryCancelled
			n++
		}
	}
	return n, nil
}

func (m *memBroadcastRepo) CountPendingDeliveries(ctx context.Context, _ repository.Tx, broadcastID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.deliveries {
		if r.BroadcastID == broadcastID && r.Status == model.DeliveryPending {
			n++
		}
	}
	return n, nil
}

func (m *memBroadcastRepo) Stats(ctx context.Context, _ repository.Tx, broadcastID string) (*repository.BroadcastStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := &repository.BroadcastStats{}
	for _, r := range m.deliveries {
		if r.BroadcastID != broadcastID {
			continue
		}
		st.Total++
		switch r.Status {
		case model.DeliveryPending:
			st.Pending++
		case model.DeliverySent:
			st.Sent++
		case model.DeliveryBlocked:
			st.Blocked++
		case model.DeliveryFailed:
			st.Failed++
		}
	}
	return st, nil
}

// ---- conversations ----

type memConversationRepo struct {
	mu    sync.RWMutex
	store map[string]*model.Conversation
}

func newMemConversationRepo() *memConversationRepo {
	return &memConversationRepo{store: make(map[string]*model.Conversation)}
}

func (m *memConversationRepo) Save(ctx context.Context, _ repository.Tx, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.store[subKey(c.BotID, c.UserID)] = &cp
	return nil
}

func (m *memConversationRepo) Find(ctx context.Context, _ repository.Tx, botID string, userID int64) (*model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.store[subKey(botID, userID)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConversationRepo) Delete(ctx context.Context, _ repository.Tx, botID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, subKey(botID, userID))
	return nil
}

// ---- referrals ----

type memReferralRepo struct {
	mu    sync.RWMutex
	store map[string]*model.ReferralTransaction
}

func newMemReferralRepo() *memReferralRepo {
	return &memReferralRepo{store: make(map[string]*model.ReferralTransaction)}
}

func (m *memReferralRepo) Save(ctx context.Context, _ repository.Tx, t *model.ReferralTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.ReferrerUserID == t.ReferrerUserID && existing.InvoiceID == t.InvoiceID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *t
	m.store[t.ID] = &cp
	return nil
}

func (m *memReferralRepo) ListByReferrer(ctx context.Context, _ repository.Tx, referrerUserID int64, limit int) ([]*model.ReferralTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.ReferralTransaction
	for _, t := range m.store {
		if t.ReferrerUserID == referrerUserID {
			cp := *t
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memReferralRepo) SumEarnings(ctx context.Context, _ repository.Tx, referrerUserID int64) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var sum float64
	for _, t := range m.store {
		if t.ReferrerUserID == referrerUserID {
			sum += t.CommissionAmount
		}
	}
	return sum, nil
}

// ---- redis ----

type memRedis struct {
	mu    sync.Mutex
	kv    map[string]string
	seq   map[string]int64
}

func newMemRedis() *memRedis {
	return &memRedis{kv: make(map[string]string), seq: make(map[string]int64)}
}

func (m *memRedis) Ping(ctx context.Context) error { return nil }

func (m *memRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = fmt.Sprint(value)
	return nil
}

func (m *memRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.kv[key]; ok {
		return false, nil
	}
	m.kv[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memRedis) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return "", fmt.Errorf("redis: nil")
	}
	return v, nil
}

func (m *memRedis) Incr(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[key]++
	return m.seq[key], nil
}

func (m *memRedis) Expire(ctx context.Context, key string, _ time.Duration) error { return nil }

func (m *memRedis) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.kv, k)
	}
	return nil
}

func (m *memRedis) Close() error { return nil }

// ---- adapters ----

type stubGateway struct{}

func (stubGateway) ParseNotice(form url.Values) (*adapter.PaymentNotice, error) {
	return nil, domain.ErrBadSignature
}

func (stubGateway) PaymentURL(userID int64, kind adapter.PaymentKind, botID string, amount float64, invID int64) string {
	return fmt.Sprintf("https://pay.example/%d/%s/%d", userID, kind, invID)
}

type stubBridge struct {
	detectResult model.AIProvider
	detectErr    error
	respond      func(req adapter.AIRequest) (*adapter.AIResponse, error)
	calls        []adapter.AIRequest
}

func (s *stubBridge) Detect(ctx context.Context, apiKey, assistantID string) (model.AIProvider, error) {
	if s.detectErr != nil {
		return model.AIProviderNone, s.detectErr
	}
	return s.detectResult, nil
}

func (s *stubBridge) Respond(ctx context.Context, provider model.AIProvider, req adapter.AIRequest) (*adapter.AIResponse, error) {
	s.calls = append(s.calls, req)
	return s.respond(req)
}

type stubNotifier struct {
	mu       sync.Mutex
	messages []string
	targets  []int64
}

func (s *stubNotifier) NotifyOwner(ctx context.Context, ownerUserID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, text)
	s.targets = append(s.targets, ownerUserID)
	return nil
}

func (s *stubNotifier) contains(substr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

type stubVerifier struct {
	username string
	err      error
}

func (s stubVerifier) VerifyToken(ctx context.Context, token string) (string, error) {
	return s.username, s.err
}

type fakeFleet struct {
	started   []string
	stopped   []string
	restarted []string
}

func (f *fakeFleet) StartBot(_ context.Context, bot *model.UserBot) error {
	f.started = append(f.started, bot.BotID)
	return nil
}

func (f *fakeFleet) StopBot(botID string) { f.stopped = append(f.stopped, botID) }

func (f *fakeFleet) RestartBot(_ context.Context, botID string) error {
	f.restarted = append(f.restarted, botID)
	return nil
}
