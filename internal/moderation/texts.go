package moderation

import (
	"fmt"
	"html"
	"time"

	"github.com/iamwavecut/ngmod/internal/i18n"
)

// FormatBanDuration renders a ban length the way announcements show it.
func FormatBanDuration(lang string, d time.Duration) string {
	switch {
	case d <= 0:
		return i18n.Get("forever", lang)
	case d%time.Hour == 0:
		return fmt.Sprintf(i18n.Get("for %d h.", lang), int64(d/time.Hour))
	case d%time.Minute == 0:
		return fmt.Sprintf(i18n.Get("for %d min.", lang), int64(d/time.Minute))
	default:
		return fmt.Sprintf(i18n.Get("for %d s.", lang), int64(d/time.Second))
	}
}

func warningText(lang string, target Member, count int, term string, threshold int) string {
	return fmt.Sprintf(
		i18n.Get("⚠️ <b>%s</b>, violation #%d!\n📝 Prohibited word found: <code>%s</code>\n🚫 A ban follows after %d violations.", lang),
		html.EscapeString(target.DisplayName()), count, html.EscapeString(term), threshold,
	)
}

func escalationText(lang string, target Member, d time.Duration, threshold int) string {
	return fmt.Sprintf(
		i18n.Get("🚫 <b>%s</b> is banned %s\nReason: violation limit exceeded (%d)", lang),
		html.EscapeString(target.DisplayName()), FormatBanDuration(lang, d), threshold,
	)
}

func escalationReason(lang string, threshold int) string {
	return fmt.Sprintf(i18n.Get("Violation limit exceeded (%d)", lang), threshold)
}

func noRightsText(lang string) string {
	return i18n.Get("❌ The bot has no rights to ban users!", lang)
}

func banFailedText(lang string, err error) string {
	return fmt.Sprintf(i18n.Get("❌ Failed to ban the user: %s", lang), html.EscapeString(err.Error()))
}

func manualWarningSnippet(lang string) string {
	return i18n.Get("Warning from administrator", lang)
}

func manualBanReason(lang string) string {
	return i18n.Get("Ban by administrator", lang)
}
