package permissions

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
)

func TestIsAdmin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		member *api.ChatMember
		want   bool
	}{
		{name: "nil", member: nil, want: false},
		{name: "creator", member: &api.ChatMember{Status: "creator"}, want: true},
		{name: "administrator", member: &api.ChatMember{Status: "administrator"}, want: true},
		{name: "member", member: &api.ChatMember{Status: "member"}, want: false},
		{name: "restricted", member: &api.ChatMember{Status: "restricted"}, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsAdmin(tc.member); got != tc.want {
				t.Fatalf("IsAdmin() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanRestrict(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		member *api.ChatMember
		want   bool
	}{
		{name: "nil", member: nil, want: false},
		{name: "creator", member: &api.ChatMember{Status: "creator"}, want: true},
		{name: "admin with right", member: &api.ChatMember{Status: "administrator", CanRestrictMembers: true}, want: true},
		{name: "admin without right", member: &api.ChatMember{Status: "administrator"}, want: false},
		{name: "member flag ignored", member: &api.ChatMember{Status: "member", CanRestrictMembers: true}, want: false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CanRestrict(tc.member); got != tc.want {
				t.Fatalf("CanRestrict() = %v, want %v", got, tc.want)
			}
		})
	}
}
