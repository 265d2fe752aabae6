package bot

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngmod/internal/moderation"
)

const (
	UpdateTimeout = 5 * time.Minute
)

type (
	// Inbound is a converted chat message together with the bot command it
	// carries, if any.
	Inbound struct {
		Message moderation.Message
		Command string
		Args    string
		Edited  bool
	}

	// Handler processes an inbound message. Returning proceed=false stops the
	// handler chain for this update.
	Handler interface {
		Handle(ctx context.Context, in *Inbound) (proceed bool, err error)
	}

	UpdateProcessor struct {
		botName  string
		handlers []Handler
		now      func() time.Time
		logger   *log.Entry
	}
)

// NewUpdateProcessor runs handlers in order. botName is the bot username used
// to ignore commands addressed to other bots.
func NewUpdateProcessor(botName string, handlers ...Handler) *UpdateProcessor {
	enabled := make([]Handler, 0, len(handlers))
	for _, handler := range handlers {
		if handler != nil {
			enabled = append(enabled, handler)
		}
	}
	return &UpdateProcessor{
		botName:  botName,
		handlers: enabled,
		now:      time.Now,
		logger:   log.WithField("object", "UpdateProcessor"),
	}
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	msg, edited := u.Message, false
	if msg == nil && u.EditedMessage != nil {
		msg, edited = u.EditedMessage, true
	}
	if msg == nil {
		return nil
	}

	updateTime := time.Unix(int64(msg.Date), 0)
	if edited && msg.EditDate != 0 {
		updateTime = time.Unix(int64(msg.EditDate), 0)
	}
	if age := up.now().Sub(updateTime); age > UpdateTimeout {
		up.logger.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         age,
		}).Debug("Skipping outdated update")
		return nil
	}

	in := &Inbound{Message: MessageFromAPI(msg), Edited: edited}
	if !edited && msg.IsCommand() {
		command, mention, _ := strings.Cut(msg.CommandWithAt(), "@")
		if mention == "" || strings.EqualFold(mention, up.botName) {
			in.Command = strings.ToLower(command)
			in.Args = strings.TrimSpace(msg.CommandArguments())
		}
	}

	for _, handler := range up.handlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		proceed, err := handler.Handle(ctx, in)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			up.logger.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

// MessageFromAPI converts a Bot API message. A reply to the root of a forum
// topic is not treated as a reply.
func MessageFromAPI(msg *api.Message) moderation.Message {
	if msg == nil {
		return moderation.Message{}
	}
	m := moderation.Message{
		ChatID:    msg.Chat.ID,
		ChatType:  moderation.ChatType(msg.Chat.Type),
		MessageID: msg.MessageID,
		Sender:    MemberFromUser(msg.From),
		Text:      ExtractContent(msg),
	}
	if msg.Chat.IsForum {
		m.ThreadID = msg.MessageThreadID
	}
	if reply := msg.ReplyToMessage; reply != nil && (msg.MessageThreadID == 0 || reply.MessageID != msg.MessageThreadID) {
		replied := MessageFromAPI(reply)
		replied.ReplyTo = nil
		m.ReplyTo = &replied
	}
	return m
}

func MemberFromUser(user *api.User) moderation.Member {
	if user == nil {
		return moderation.Member{}
	}
	return moderation.Member{
		ID:        user.ID,
		Username:  user.UserName,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		IsBot:     user.IsBot,
	}
}

// ExtractContent joins the message text and media caption, the two places a
// member can type words.
func ExtractContent(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	return strings.TrimSpace(msg.Text + " " + msg.Caption)
}

// UpdatesSource is the part of *api.BotAPI used for long polling.
type UpdatesSource interface {
	GetUpdates(config api.UpdateConfig) ([]api.Update, error)
}

// GetUpdatesChans long-polls source until ctx is done or a request fails. The
// error channel receives exactly one value before both channels close.
func GetUpdatesChans(ctx context.Context, source UpdatesSource, buffer int, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := source.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}
