package bot

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngmod/internal/moderation"
	"github.com/iamwavecut/ngmod/internal/policy/permissions"
)

// Telegram service accounts that post on behalf of someone else. They are
// never moderated as individuals.
const (
	TelegramServiceID   int64 = 777000
	GroupAnonymousBotID int64 = 1087968824
	ChannelBotID        int64 = 136817688

	memberCacheSize = 4096
)

// MemberGetter is the part of *api.BotAPI the authorizer needs.
type MemberGetter interface {
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
}

type memberKey struct {
	chatID int64
	userID int64
}

// Authorizer answers admin and exemption questions from chat membership. It is
// the only place that decides who is exempt, for both the filter and the
// admin commands.
type Authorizer struct {
	client     MemberGetter
	selfID     int64
	operatorID int64
	timeout    time.Duration
	cache      *expirable.LRU[memberKey, api.ChatMember]
}

var _ moderation.Authorizer = (*Authorizer)(nil)

// NewAuthorizer caches membership lookups for cacheTTL. A non-positive TTL
// disables the cache.
func NewAuthorizer(client MemberGetter, selfID, operatorID int64, timeout, cacheTTL time.Duration) *Authorizer {
	a := &Authorizer{
		client:     client,
		selfID:     selfID,
		operatorID: operatorID,
		timeout:    timeout,
	}
	if cacheTTL > 0 {
		a.cache = expirable.NewLRU[memberKey, api.ChatMember](memberCacheSize, nil, cacheTTL)
	}
	return a
}

func (a *Authorizer) IsAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	if userID == GroupAnonymousBotID {
		// Only administrators can post as the group itself.
		return true, nil
	}
	member, err := a.member(ctx, chatID, userID)
	if err != nil {
		return false, err
	}
	return permissions.IsAdmin(&member), nil
}

func (a *Authorizer) IsExempt(ctx context.Context, chatID, userID int64) (bool, error) {
	switch {
	case userID == 0:
		return false, nil
	case userID == a.selfID,
		a.operatorID != 0 && userID == a.operatorID,
		userID == TelegramServiceID,
		userID == GroupAnonymousBotID,
		userID == ChannelBotID:
		return true, nil
	}
	return a.IsAdmin(ctx, chatID, userID)
}

func (a *Authorizer) CanRestrict(ctx context.Context, chatID int64) (bool, error) {
	member, err := a.member(ctx, chatID, a.selfID)
	if err != nil {
		return false, err
	}
	return permissions.CanRestrict(&member), nil
}

func (a *Authorizer) member(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	key := memberKey{chatID: chatID, userID: userID}
	if a.cache != nil {
		if member, ok := a.cache.Get(key); ok {
			return member, nil
		}
	}

	member, err := withTimeout(ctx, a.timeout, func() (api.ChatMember, error) {
		return a.client.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				ChatConfig: api.ChatConfig{ChatID: chatID},
				UserID:     userID,
			},
		})
	})
	if err != nil {
		return api.ChatMember{}, errors.WithMessagef(err, "get chat member %d in %d", userID, chatID)
	}
	if a.cache != nil {
		a.cache.Add(key, member)
	}
	return member, nil
}
