// Package telegram adapts the Telegram Bot API to the conversation flow:
// it classifies inbound updates into flow events, renders reply keyboards,
// and delivers composed documents to the user and the shared group.
package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/mkarpov/mergerbot/internal/dispatch"
	"github.com/mkarpov/mergerbot/internal/errs"
	"github.com/mkarpov/mergerbot/internal/flow"
	"github.com/mkarpov/mergerbot/internal/model"
)

const pollTimeoutSeconds = 30

// Bot receives updates over long polling and hands events to the engine
// through the dispatcher, one in-flight event per user.
type Bot struct {
	api        *tgbotapi.BotAPI
	engine     *flow.Engine
	dispatcher *dispatch.Dispatcher
	groupChat  string
	log        *zap.Logger
}

// New constructs the transport. groupChat is the channel username (with or
// without the leading @) that receives a copy of every composed image.
// The engine is attached separately because it needs the bot as its
// broadcast collaborator.
func New(api *tgbotapi.BotAPI, dispatcher *dispatch.Dispatcher, groupChat string, log *zap.Logger) *Bot {
	if groupChat != "" && groupChat[0] != '@' {
		groupChat = "@" + groupChat
	}
	return &Bot{api: api, dispatcher: dispatcher, groupChat: groupChat, log: log}
}

// SetEngine attaches the conversation engine. Must be called before Run.
func (b *Bot) SetEngine(engine *flow.Engine) { b.engine = engine }

// Run polls for updates until ctx is cancelled. Each message is submitted to
// the dispatcher, so media download and composition never block this loop.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds
	updates := b.api.GetUpdatesChan(cfg)

	b.log.Info("polling for updates", zap.String("bot", b.api.Self.UserName))
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			msg := update.Message
			if msg == nil || msg.From == nil {
				continue
			}
			b.dispatcher.Submit(msg.From.ID, func(jctx context.Context) {
				b.handleMessage(jctx, msg)
			})
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	ev, err := b.eventFromMessage(ctx, msg)
	if err != nil {
		b.log.Error("preparing event", zap.Int64("user", msg.From.ID), zap.Error(err))
		b.Notify(ctx, msg.Chat.ID, "Error: could not read your image. Please try again.")
		return
	}

	reply := b.engine.Handle(ctx, ev)
	b.send(msg.Chat.ID, reply)
}

// eventFromMessage classifies one inbound message. Media bytes are fetched
// here, inside the dispatched job, under the job deadline.
func (b *Bot) eventFromMessage(ctx context.Context, msg *tgbotapi.Message) (flow.Event, error) {
	ev := flow.Event{
		UserID:    msg.From.ID,
		FirstName: msg.From.FirstName,
		Username:  msg.From.UserName,
	}

	switch {
	case msg.IsCommand():
		ev.Kind = flow.EventCommand
		ev.Command = msg.Command()

	case len(msg.Photo) > 0:
		// Telegram sends several resolutions; the last is the largest.
		best := msg.Photo[len(msg.Photo)-1]
		data, err := b.downloadFile(ctx, best.FileID)
		if err != nil {
			return flow.Event{}, fmt.Errorf("download photo: %w", err)
		}
		ev.Kind = flow.EventPhoto
		ev.Media = &model.MediaItem{Data: data, MIME: "image/jpeg", AsDocument: false}

	case msg.Document != nil && isImageMIME(msg.Document.MimeType):
		data, err := b.downloadFile(ctx, msg.Document.FileID)
		if err != nil {
			return flow.Event{}, fmt.Errorf("download document: %w", err)
		}
		ev.Kind = flow.EventDocument
		ev.Media = &model.MediaItem{Data: data, MIME: msg.Document.MimeType, AsDocument: true}

	default:
		// Anything else, non-image documents included, reaches the engine
		// as text so awaiting states can re-prompt.
		ev.Text = msg.Text
		action, key, name := flow.ClassifyText(msg.Text)
		if action != flow.ActionNone {
			ev.Kind = flow.EventAction
			ev.Action = action
			ev.Key = key
			ev.Name = name
		} else {
			ev.Kind = flow.EventText
		}
	}
	return ev, nil
}

// send delivers a reply's messages in order.
func (b *Bot) send(chatID int64, reply flow.Reply) {
	for _, out := range reply.Msgs {
		var c tgbotapi.Chattable
		switch {
		case out.Document != nil:
			c = tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
				Name:  out.Document.Filename,
				Bytes: out.Document.Data,
			})
		default:
			m := tgbotapi.NewMessage(chatID, out.Text)
			if len(out.Menu) > 0 {
				m.ReplyMarkup = keyboard(out.Menu)
			} else if out.RemoveMenu {
				m.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
			}
			c = m
		}
		if _, err := b.api.Send(c); err != nil {
			b.log.Error("sending reply", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}

// Broadcast sends a composed document to the shared group chat.
func (b *Bot) Broadcast(_ context.Context, res model.CompositionResult, caption string) error {
	if b.groupChat == "" {
		return nil
	}
	doc := tgbotapi.DocumentConfig{
		BaseFile: tgbotapi.BaseFile{
			BaseChat: tgbotapi.BaseChat{ChannelUsername: b.groupChat},
			File: tgbotapi.FileBytes{
				Name:  res.Filename,
				Bytes: res.Data,
			},
		},
	}
	doc.Caption = caption
	if _, err := b.api.Send(doc); err != nil {
		return fmt.Errorf("send to %s: %w (%w)", b.groupChat, err, errs.ErrBroadcast)
	}
	b.log.Info("shared composed image", zap.String("chat", b.groupChat))
	return nil
}

// Notify sends a transient text message without touching the keyboard.
func (b *Bot) Notify(_ context.Context, chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.log.Error("sending notice", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// keyboard renders labels as a one-button-per-row reply keyboard.
func keyboard(labels []string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(labels))
	for _, label := range labels {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}
