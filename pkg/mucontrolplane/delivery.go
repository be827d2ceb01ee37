package mucontrolplane

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	goslack "github.com/slack-go/slack"

	"github.com/femtomc/mu-controlplane/pkg/mucore"
)

// Delivery renders and sends an OutboundEnvelope back through the
// originating channel's SDK, grounded on the teacher's pkg/slack.Client
// (thin goslack.Client wrapper). It is the DeliverFunc the outbox
// dispatcher calls per spec §4.5.
type Delivery struct {
	Slack    *goslack.Client
	Discord  *discordgo.Session
	Telegram *tgbotapi.BotAPI
}

// Deliver implements muoutbox.DeliverFunc.
func (d *Delivery) Deliver(ctx context.Context, rec *mucore.OutboxRecord) error {
	env := rec.Envelope
	switch env.Channel {
	case "slack":
		if d.Slack == nil {
			return fmt.Errorf("mucontrolplane: slack delivery not configured")
		}
		_, _, err := d.Slack.PostMessageContext(ctx, env.ConversationID, goslack.MsgOptionText(env.Body, false))
		return err
	case "discord":
		if d.Discord == nil {
			return fmt.Errorf("mucontrolplane: discord delivery not configured")
		}
		_, err := d.Discord.ChannelMessageSend(env.ConversationID, env.Body)
		return err
	case "telegram":
		if d.Telegram == nil {
			return fmt.Errorf("mucontrolplane: telegram delivery not configured")
		}
		chatID, err := strconv.ParseInt(env.ConversationID, 10, 64)
		if err != nil {
			return fmt.Errorf("mucontrolplane: invalid telegram chat id %q: %w", env.ConversationID, err)
		}
		_, err = d.Telegram.Send(tgbotapi.NewMessage(chatID, env.Body))
		return err
	case "neovim", "vscode":
		// Editor surfaces reply over the synchronous session-turn path,
		// not the outbox; nothing to deliver here.
		return nil
	default:
		return fmt.Errorf("mucontrolplane: unknown delivery channel %q", env.Channel)
	}
}
