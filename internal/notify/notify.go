// Package notify delivers reminder notifications over push, email and SMS
// and records every attempt in the notification log.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/remind/internal/model"
	"github.com/dukerupert/remind/internal/notify/email"
	"github.com/dukerupert/remind/internal/notify/push"
	"github.com/dukerupert/remind/internal/notify/sms"
)

var (
	ErrUnknownChannel = errors.New("unknown notification channel")
	ErrNotConfigured  = errors.New("notification channel not configured")
	ErrNoRecipient    = errors.New("user has no address for this channel")
)

// Message is channel-neutral notification content.
type Message struct {
	Title string
	Body  string
	URL   string
	Tag   string
}

type Channel interface {
	Name() string
	Configured() bool
	Send(ctx context.Context, user *model.User, msg Message) error
}

// DeliveryLog records attempts. Satisfied by store.NotificationLogStore.
type DeliveryLog interface {
	Record(userID int64, reminderID *int64, channel, status, errMsg string) error
}

type Dispatcher struct {
	channels map[string]Channel
	log      DeliveryLog
	logger   *slog.Logger
}

func NewDispatcher(log DeliveryLog, logger *slog.Logger, channels ...Channel) *Dispatcher {
	d := &Dispatcher{channels: make(map[string]Channel), log: log, logger: logger}
	for _, c := range channels {
		d.channels[c.Name()] = c
	}
	return d
}

// Configured reports whether the named channel exists and has credentials.
func (d *Dispatcher) Configured(name string) bool {
	c, ok := d.channels[name]
	return ok && c.Configured()
}

// Send delivers msg on one channel and logs the outcome.
func (d *Dispatcher) Send(ctx context.Context, user *model.User, reminderID *int64, channel string, msg Message) error {
	c, ok := d.channels[channel]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if !c.Configured() {
		return fmt.Errorf("%s: %w", channel, ErrNotConfigured)
	}

	err := c.Send(ctx, user, msg)
	status, errMsg := model.DeliverySent, ""
	if err != nil {
		status, errMsg = model.DeliveryFailed, err.Error()
	}
	if logErr := d.log.Record(user.ID, reminderID, channel, status, errMsg); logErr != nil {
		d.logger.Error("record delivery", "user_id", user.ID, "channel", channel, "error", logErr)
	}
	return err
}

// Outcome summarizes a Dispatch across channels.
type Outcome struct {
	Delivered int
	// Retryable is set when at least one channel failed in a way that may
	// succeed later. Missing recipients and unconfigured or unknown channels
	// are permanent.
	Retryable bool
}

// Permanent reports that nothing was delivered and retrying cannot help.
func (o Outcome) Permanent() bool { return o.Delivered == 0 && !o.Retryable }

// Dispatch sends msg on each channel. Failures are logged and do not stop
// the remaining channels.
func (d *Dispatcher) Dispatch(ctx context.Context, user *model.User, reminderID *int64, channels model.Channels, msg Message) Outcome {
	var out Outcome
	for _, ch := range channels {
		err := d.Send(ctx, user, reminderID, ch, msg)
		if err == nil {
			out.Delivered++
			continue
		}
		d.logger.Warn("notification failed", "user_id", user.ID, "channel", ch, "error", err)
		if !permanent(err) {
			out.Retryable = true
		}
	}
	return out
}

func permanent(err error) bool {
	return errors.Is(err, ErrNoRecipient) || errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrUnknownChannel)
}

// Subscriptions is the push subscription storage the push channel needs.
type Subscriptions interface {
	ListByUser(userID int64) ([]model.PushSubscription, error)
	DeleteByEndpoint(endpoint string) error
}

type PushChannel struct {
	svc    *push.Service
	subs   Subscriptions
	logger *slog.Logger
}

func NewPushChannel(svc *push.Service, subs Subscriptions, logger *slog.Logger) *PushChannel {
	return &PushChannel{svc: svc, subs: subs, logger: logger}
}

func (p *PushChannel) Name() string     { return model.ChannelPush }
func (p *PushChannel) Configured() bool { return p.svc.Configured() }

// Send pushes to every device of the user. It succeeds if any device
// accepted the message; expired subscriptions are removed.
func (p *PushChannel) Send(ctx context.Context, user *model.User, msg Message) error {
	subs, err := p.subs.ListByUser(user.ID)
	if err != nil {
		return fmt.Errorf("list push subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return ErrNoRecipient
	}

	payload := push.Payload{Title: msg.Title, Body: msg.Body, URL: msg.URL, Tag: msg.Tag}
	var errs []error
	delivered := 0
	for i := range subs {
		err := p.svc.Send(ctx, &subs[i], payload)
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, push.ErrExpired):
			p.logger.Info("removing expired push subscription", "user_id", user.ID, "subscription_id", subs[i].ID)
			if delErr := p.subs.DeleteByEndpoint(subs[i].Endpoint); delErr != nil {
				p.logger.Error("delete expired subscription", "error", delErr)
			}
			errs = append(errs, err)
		default:
			errs = append(errs, err)
		}
	}
	if delivered > 0 {
		return nil
	}
	return errors.Join(errs...)
}

type EmailChannel struct {
	client *email.Client
}

func NewEmailChannel(client *email.Client) *EmailChannel {
	return &EmailChannel{client: client}
}

func (e *EmailChannel) Name() string     { return model.ChannelEmail }
func (e *EmailChannel) Configured() bool { return e.client.Configured() }

func (e *EmailChannel) Send(ctx context.Context, user *model.User, msg Message) error {
	if user.Email == "" {
		return ErrNoRecipient
	}
	text := msg.Body
	if msg.URL != "" {
		text += "\n\n" + msg.URL
	}
	_, err := e.client.Send(ctx, email.Message{
		To:       user.Email,
		Subject:  msg.Title,
		TextBody: text,
		Tag:      tagPrefix(msg.Tag),
	})
	return err
}

type SMSChannel struct {
	client *sms.Client
}

func NewSMSChannel(client *sms.Client) *SMSChannel {
	return &SMSChannel{client: client}
}

func (s *SMSChannel) Name() string     { return model.ChannelSMS }
func (s *SMSChannel) Configured() bool { return s.client.Configured() }

func (s *SMSChannel) Send(ctx context.Context, user *model.User, msg Message) error {
	if user.Phone == "" {
		return ErrNoRecipient
	}
	body := msg.Title
	if msg.Body != "" {
		body += ": " + msg.Body
	}
	_, err := s.client.Send(ctx, user.Phone, body)
	return err
}

// tagPrefix turns "reminder-12" into "reminder" so Postmark groups by kind.
func tagPrefix(tag string) string {
	if i := strings.LastIndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
