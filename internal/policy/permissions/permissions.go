package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsAdmin reports whether member administers the chat. The creator always does.
func IsAdmin(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

// CanRestrict reports whether member may ban and restrict other members.
func CanRestrict(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers
}
