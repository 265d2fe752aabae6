package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

const (
	adminID    int64 = 10
	memberID   int64 = 20
	operatorID int64 = 30
)

type fakeMembers struct {
	mu       sync.Mutex
	statuses map[int64]api.ChatMember
	calls    int
	err      error
}

func (f *fakeMembers) GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return api.ChatMember{}, f.err
	}
	if member, ok := f.statuses[config.UserID]; ok {
		return member, nil
	}
	return api.ChatMember{Status: "member"}, nil
}

func (f *fakeMembers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newFakeMembers() *fakeMembers {
	return &fakeMembers{statuses: map[int64]api.ChatMember{
		adminID:   {Status: "administrator"},
		testBotID: {Status: "administrator", CanRestrictMembers: true},
	}}
}

func TestAuthorizerAdminAndExemption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	authz := NewAuthorizer(newFakeMembers(), testBotID, operatorID, time.Second, 0)

	cases := []struct {
		name   string
		userID int64
		admin  bool
		exempt bool
	}{
		{name: "administrator", userID: adminID, admin: true, exempt: true},
		{name: "member", userID: memberID, admin: false, exempt: false},
		{name: "operator", userID: operatorID, admin: false, exempt: true},
		{name: "bot itself", userID: testBotID, admin: true, exempt: true},
		{name: "anonymous admin", userID: GroupAnonymousBotID, admin: true, exempt: true},
		{name: "linked channel", userID: TelegramServiceID, admin: false, exempt: true},
		{name: "no user", userID: 0, admin: false, exempt: false},
	}
	for _, tc := range cases {
		admin, err := authz.IsAdmin(ctx, testChatID, tc.userID)
		if err != nil {
			t.Fatalf("%s: is admin: %v", tc.name, err)
		}
		if admin != tc.admin {
			t.Fatalf("%s: admin = %v, want %v", tc.name, admin, tc.admin)
		}
		exempt, err := authz.IsExempt(ctx, testChatID, tc.userID)
		if err != nil {
			t.Fatalf("%s: is exempt: %v", tc.name, err)
		}
		if exempt != tc.exempt {
			t.Fatalf("%s: exempt = %v, want %v", tc.name, exempt, tc.exempt)
		}
	}
}

func TestAuthorizerOperatorZeroIsNotExempt(t *testing.T) {
	t.Parallel()

	authz := NewAuthorizer(newFakeMembers(), testBotID, 0, time.Second, 0)
	exempt, err := authz.IsExempt(context.Background(), testChatID, memberID)
	if err != nil {
		t.Fatalf("is exempt: %v", err)
	}
	if exempt {
		t.Fatalf("unset operator must not exempt anyone")
	}
}

func TestAuthorizerCanRestrict(t *testing.T) {
	t.Parallel()

	members := newFakeMembers()
	authz := NewAuthorizer(members, testBotID, 0, time.Second, 0)
	ok, err := authz.CanRestrict(context.Background(), testChatID)
	if err != nil || !ok {
		t.Fatalf("expected restrict privilege, got %v, %v", ok, err)
	}

	members.statuses[testBotID] = api.ChatMember{Status: "administrator"}
	ok, err = authz.CanRestrict(context.Background(), testChatID)
	if err != nil || ok {
		t.Fatalf("expected no restrict privilege, got %v, %v", ok, err)
	}
}

func TestAuthorizerCachesLookups(t *testing.T) {
	t.Parallel()

	members := newFakeMembers()
	authz := NewAuthorizer(members, testBotID, 0, time.Second, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := authz.IsAdmin(ctx, testChatID, adminID); err != nil {
			t.Fatalf("is admin: %v", err)
		}
	}
	if members.callCount() != 1 {
		t.Fatalf("expected a single lookup, got %d", members.callCount())
	}

	if _, err := authz.IsAdmin(ctx, testChatID-1, adminID); err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if members.callCount() != 2 {
		t.Fatalf("another chat must be looked up separately, got %d calls", members.callCount())
	}
}

func TestAuthorizerCacheExpires(t *testing.T) {
	t.Parallel()

	members := newFakeMembers()
	authz := NewAuthorizer(members, testBotID, 0, time.Second, 20*time.Millisecond)
	ctx := context.Background()

	if _, err := authz.IsAdmin(ctx, testChatID, adminID); err != nil {
		t.Fatalf("is admin: %v", err)
	}
	time.Sleep(60 * time.Millisecond)
	if _, err := authz.IsAdmin(ctx, testChatID, adminID); err != nil {
		t.Fatalf("is admin: %v", err)
	}
	if members.callCount() != 2 {
		t.Fatalf("expected the expired entry to be looked up again, got %d calls", members.callCount())
	}
}

func TestAuthorizerDoesNotCacheErrors(t *testing.T) {
	t.Parallel()

	members := newFakeMembers()
	members.err = errors.New("Bad Gateway")
	authz := NewAuthorizer(members, testBotID, 0, time.Second, time.Minute)
	ctx := context.Background()

	if _, err := authz.IsExempt(ctx, testChatID, memberID); err == nil {
		t.Fatalf("expected lookup error")
	}

	members.mu.Lock()
	members.err = nil
	members.mu.Unlock()

	exempt, err := authz.IsExempt(ctx, testChatID, memberID)
	if err != nil {
		t.Fatalf("is exempt: %v", err)
	}
	if exempt {
		t.Fatalf("member must not be exempt")
	}
	if members.callCount() != 2 {
		t.Fatalf("expected a retry after the failure, got %d calls", members.callCount())
	}
}
