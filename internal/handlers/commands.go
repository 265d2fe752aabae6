package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/iamwavecut/tool"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/bot"
	ngerrors "github.com/iamwavecut/ngmod/internal/errors"
	"github.com/iamwavecut/ngmod/internal/i18n"
	"github.com/iamwavecut/ngmod/internal/moderation"
)

const (
	CommandWarn       = "warn"
	CommandUnwarn     = "unwarn"
	CommandWarns      = "warns"
	CommandBan        = "ban"
	CommandUnban      = "unban"
	CommandViolations = "violations"
	CommandHelp       = "help"

	violationsLimit = 10
)

const violationLineTemplate = `{{ .n }}. <i>{{ .at }}</i> {{ .text }}`

// Commands serves the administrator command surface. Every target is taken
// from the replied-to message.
type Commands struct {
	engine Moderator
	exec   moderation.Executor
	logger *log.Entry
}

var _ bot.Handler = (*Commands)(nil)

func NewCommands(engine Moderator, exec moderation.Executor) *Commands {
	return &Commands{
		engine: engine,
		exec:   exec,
		logger: log.WithField("object", "Commands"),
	}
}

func (c *Commands) Handle(ctx context.Context, in *bot.Inbound) (bool, error) {
	if in.Command == "" {
		return true, nil
	}
	msg := in.Message
	if in.Command == CommandHelp {
		c.send(ctx, msg, c.helpText())
		return false, nil
	}
	if !msg.IsGroup() {
		return true, nil
	}

	var err error
	switch in.Command {
	case CommandWarn:
		err = c.warn(ctx, msg)
	case CommandUnwarn:
		err = c.unwarn(ctx, msg)
	case CommandWarns:
		err = c.warns(ctx, msg)
	case CommandBan:
		err = c.ban(ctx, msg, in.Args)
	case CommandUnban:
		err = c.unban(ctx, msg)
	case CommandViolations:
		err = c.violations(ctx, msg)
	default:
		return true, nil
	}
	if err == nil {
		return false, nil
	}

	entry := c.logger.WithFields(log.Fields{
		"command": in.Command,
		"chat_id": msg.ChatID,
		"user_id": msg.Sender.ID,
	})
	if ngerrors.IsUserFacing(err) {
		entry.WithField("reason", err.Error()).Debug("command rejected")
		c.send(ctx, msg, c.rejectionText(in.Command, err))
		return false, nil
	}
	c.send(ctx, msg, c.failureText(err))
	return false, pkgerrors.WithMessagef(err, "command %s", in.Command)
}

func (c *Commands) warn(ctx context.Context, msg moderation.Message) error {
	target := targetOf(msg)
	report, err := c.engine.Warn(ctx, msg.ChatID, msg.Sender.ID, target)
	if err != nil {
		return err
	}
	if report.Outcome == moderation.OutcomeEscalated {
		// The engine has announced the ban.
		return nil
	}
	c.send(ctx, msg, fmt.Sprintf(
		i18n.Get("⚠️ <b>%s</b> received a warning!\n📊 Total violations: %d/%d", c.lang()),
		html.EscapeString(target.DisplayName()), report.Count, report.Threshold,
	))
	return nil
}

func (c *Commands) unwarn(ctx context.Context, msg moderation.Message) error {
	target := targetOf(msg)
	if err := c.engine.Unwarn(ctx, msg.ChatID, msg.Sender.ID, target); err != nil {
		return err
	}
	c.send(ctx, msg, fmt.Sprintf(
		i18n.Get("✅ All warnings removed from <b>%s</b>", c.lang()),
		html.EscapeString(target.DisplayName()),
	))
	return nil
}

// warns shows the standing of the replied-to member, or of the sender.
func (c *Commands) warns(ctx context.Context, msg moderation.Message) error {
	target, ok := msg.Target()
	if !ok {
		target = msg.Sender
	}
	standing, err := c.engine.Warns(ctx, msg.ChatID, target)
	if err != nil {
		return err
	}
	text := fmt.Sprintf(
		i18n.Get("📊 <b>%s</b>\nWarnings: %d/%d", c.lang()),
		html.EscapeString(target.DisplayName()), standing.Count, standing.Threshold,
	)
	if standing.Banned {
		text += "\n" + i18n.Get("🚫 Currently banned", c.lang())
	}
	c.send(ctx, msg, text)
	return nil
}

func (c *Commands) ban(ctx context.Context, msg moderation.Message, reason string) error {
	target := targetOf(msg)
	err := c.engine.Ban(ctx, msg.ChatID, msg.Sender.ID, target, reason)
	if err != nil && !errors.Is(err, ngerrors.ErrStoreUnavailable) {
		return err
	}
	// A store failure here means the platform ban went through unrecorded.
	c.send(ctx, msg, fmt.Sprintf(
		i18n.Get("🚫 <b>%s</b> is banned", c.lang()),
		html.EscapeString(target.DisplayName()),
	))
	if err != nil {
		c.logger.WithField("error", err.Error()).Error("ban applied but not recorded")
	}
	return nil
}

func (c *Commands) unban(ctx context.Context, msg moderation.Message) error {
	target := targetOf(msg)
	if err := c.engine.Unban(ctx, msg.ChatID, msg.Sender.ID, target); err != nil {
		return err
	}
	c.send(ctx, msg, fmt.Sprintf(
		i18n.Get("✅ <b>%s</b> is unbanned", c.lang()),
		html.EscapeString(target.DisplayName()),
	))
	return nil
}

func (c *Commands) violations(ctx context.Context, msg moderation.Message) error {
	target := targetOf(msg)
	entries, err := c.engine.Violations(ctx, msg.ChatID, msg.Sender.ID, target, violationsLimit)
	if err != nil {
		return err
	}
	name := html.EscapeString(target.DisplayName())
	if len(entries) == 0 {
		c.send(ctx, msg, fmt.Sprintf(i18n.Get("No violations recorded for <b>%s</b>", c.lang()), name))
		return nil
	}

	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, fmt.Sprintf(i18n.Get("📜 Recent violations of <b>%s</b>:", c.lang()), name))
	for i, entry := range entries {
		lines = append(lines, tool.ExecTemplate(violationLineTemplate, map[string]any{
			"n":    i + 1,
			"at":   entry.CreatedAt.UTC().Format("2006-01-02 15:04"),
			"text": html.EscapeString(entry.Text),
		}))
	}
	c.send(ctx, msg, strings.Join(lines, "\n"))
	return nil
}

func (c *Commands) helpText() string {
	lang := c.lang()
	settings := c.engine.Settings()
	return strings.Join([]string{
		i18n.Get("🤖 <b>Moderation bot commands</b>", lang),
		"",
		i18n.Get("<b>For everyone:</b>", lang),
		i18n.Get("/warns — show your warnings", lang),
		i18n.Get("/help — this help", lang),
		"",
		i18n.Get("<b>For administrators:</b>", lang),
		i18n.Get("/warn — issue a warning (reply to a message)", lang),
		i18n.Get("/unwarn — remove warnings (reply to a message)", lang),
		i18n.Get("/ban — ban the user (reply to a message)", lang),
		i18n.Get("/unban — unban the user (reply to a message)", lang),
		i18n.Get("/violations — recent violations (reply to a message)", lang),
		"",
		i18n.Get("⚙️ <b>Settings:</b>", lang),
		fmt.Sprintf(i18n.Get("• Max violations: %d", lang), settings.MaxViolations),
		fmt.Sprintf(i18n.Get("• Ban duration: %s", lang), moderation.FormatBanDuration(lang, settings.BanDuration)),
		fmt.Sprintf(i18n.Get("• Prohibited words: %d", lang), c.engine.TermCount()),
	}, "\n")
}

func (c *Commands) rejectionText(command string, err error) string {
	lang := c.lang()
	switch {
	case errors.Is(err, ngerrors.ErrNotAdmin):
		return i18n.Get("❌ This command is available to administrators only!", lang)
	case errors.Is(err, ngerrors.ErrMissingTarget):
		return fmt.Sprintf(i18n.Get("↩️ Reply to the user's message with /%s", lang), command)
	case errors.Is(err, ngerrors.ErrTargetExempt) && command == CommandBan:
		return i18n.Get("❌ You cannot ban an administrator!", lang)
	case errors.Is(err, ngerrors.ErrTargetExempt):
		return i18n.Get("❌ You cannot warn an administrator!", lang)
	}
	return c.failureText(err)
}

func (c *Commands) failureText(err error) string {
	if errors.Is(err, ngerrors.ErrInsufficientPrivilege) {
		return i18n.Get("❌ The bot has no rights to ban users!", c.lang())
	}
	return fmt.Sprintf(i18n.Get("❌ Error: %s", c.lang()), html.EscapeString(err.Error()))
}

func (c *Commands) send(ctx context.Context, msg moderation.Message, text string) {
	if res := reply(ctx, c.exec, msg, text); !res.OK() {
		c.logger.WithField("error", res.Err.Error()).Warn("failed to reply")
	}
}

func (c *Commands) lang() string {
	return c.engine.Settings().Language
}

func targetOf(msg moderation.Message) *moderation.Member {
	target, ok := msg.Target()
	if !ok {
		return nil
	}
	return &target
}
