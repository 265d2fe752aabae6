package moderation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iamwavecut/ngmod/internal/db"
)

var errFake = errors.New("fake failure")

type pairKey struct{ chat, user int64 }

type fakeStore struct {
	mu         sync.Mutex
	now        func() time.Time
	counts     map[pairKey]int
	history    map[pairKey][]db.ViolationRecord
	bans       map[pairKey][]db.BanRecord
	unbans     map[pairKey][]db.UnbanRecord
	addErr     error
	resetErr   error
	banErr     error
	unbanErr   error
	addCalls   int
	resetCalls int
}

func newFakeStore(now func() time.Time) *fakeStore {
	return &fakeStore{
		now:     now,
		counts:  map[pairKey]int{},
		history: map[pairKey][]db.ViolationRecord{},
		bans:    map[pairKey][]db.BanRecord{},
		unbans:  map[pairKey][]db.UnbanRecord{},
	}
}

func (s *fakeStore) AddViolation(_ context.Context, v *db.ViolationRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addCalls++
	if s.addErr != nil {
		return 0, s.addErr
	}
	key := pairKey{v.ChatID, v.UserID}
	s.counts[key]++
	v.CreatedAt = s.now()
	s.history[key] = append(s.history[key], *v)
	return s.counts[key], nil
}

func (s *fakeStore) GetViolationCount(_ context.Context, chatID, userID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[pairKey{chatID, userID}], nil
}

func (s *fakeStore) ResetViolations(_ context.Context, chatID, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	if s.resetErr != nil {
		return s.resetErr
	}
	delete(s.counts, pairKey{chatID, userID})
	delete(s.history, pairKey{chatID, userID})
	return nil
}

func (s *fakeStore) GetViolations(_ context.Context, chatID, userID int64, limit int) ([]db.ViolationEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.history[pairKey{chatID, userID}]
	entries := make([]db.ViolationEntry, 0, limit)
	for i := len(records) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, db.ViolationEntry{Text: records[i].Text, CreatedAt: records[i].CreatedAt})
	}
	return entries, nil
}

func (s *fakeStore) AddBan(_ context.Context, chatID, userID, bannedBy int64, reason string, duration time.Duration) (*db.BanRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.banErr != nil {
		return nil, s.banErr
	}
	ban := db.NewBanRecord(chatID, userID, bannedBy, reason, duration, s.now())
	key := pairKey{chatID, userID}
	ban.ID = int64(len(s.bans[key]) + 1)
	s.bans[key] = append(s.bans[key], *ban)
	return ban, nil
}

func (s *fakeStore) AddUnban(_ context.Context, chatID, userID, unbannedBy int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unbanErr != nil {
		return s.unbanErr
	}
	key := pairKey{chatID, userID}
	s.unbans[key] = append(s.unbans[key], db.UnbanRecord{
		ChatID: chatID, UserID: userID, UnbannedBy: unbannedBy, UnbannedAt: s.now(),
	})
	return nil
}

func (s *fakeStore) IsBanned(_ context.Context, chatID, userID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{chatID, userID}
	bans := s.bans[key]
	if len(bans) == 0 {
		return false, nil
	}
	latest := bans[len(bans)-1]
	if !latest.ActiveAt(s.now()) {
		return false, nil
	}
	if unbans := s.unbans[key]; len(unbans) > 0 && latest.LiftedBy(&unbans[len(unbans)-1]) {
		return false, nil
	}
	return true, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) banRecords(chatID, userID int64) []db.BanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]db.BanRecord(nil), s.bans[pairKey{chatID, userID}]...)
}

type fakeExecutor struct {
	mu         sync.Mutex
	directives []Directive
	fail       map[DirectiveKind]error
	nextID     int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{fail: map[DirectiveKind]error{}, nextID: 1000}
}

func (x *fakeExecutor) Execute(_ context.Context, d Directive) Result {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.directives = append(x.directives, d)
	if err := x.fail[d.Kind()]; err != nil {
		return Result{Err: err}
	}
	if d.Kind() == KindSendMessage {
		x.nextID++
		return Result{MessageID: x.nextID}
	}
	return Result{}
}

func (x *fakeExecutor) ofKind(kind DirectiveKind) []Directive {
	x.mu.Lock()
	defer x.mu.Unlock()
	var out []Directive
	for _, d := range x.directives {
		if d.Kind() == kind {
			out = append(out, d)
		}
	}
	return out
}

type fakeAuthz struct {
	admins      map[int64]bool
	exempt      map[int64]bool
	canRestrict bool
	exemptErr   error
}

func (a *fakeAuthz) IsAdmin(_ context.Context, _, userID int64) (bool, error) {
	return a.admins[userID], nil
}

func (a *fakeAuthz) IsExempt(_ context.Context, _, userID int64) (bool, error) {
	if a.exemptErr != nil {
		return false, a.exemptErr
	}
	return a.admins[userID] || a.exempt[userID], nil
}

func (a *fakeAuthz) CanRestrict(context.Context, int64) (bool, error) {
	return a.canRestrict, nil
}

type scheduledJob struct {
	delay time.Duration
	name  string
	job   func(ctx context.Context)
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (s *fakeScheduler) After(delay time.Duration, name string, job func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, scheduledJob{delay: delay, name: name, job: job})
}

type fakeObserver struct {
	mu           sync.Mutex
	outcomes     []Outcome
	storeFailure []string
}

func (o *fakeObserver) MessageHandled(outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *fakeObserver) StoreFailed(op string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.storeFailure = append(o.storeFailure, op)
}
