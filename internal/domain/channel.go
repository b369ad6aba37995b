package domain

import (
	"fmt"
	"strings"
)

// Channel represents the delivery channel of a notification.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelPush     Channel = "PUSH"
	ChannelVoice    Channel = "VOICE"
	ChannelWebhook  Channel = "WEBHOOK"
	ChannelQueue    Channel = "QUEUE"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelPush, ChannelVoice, ChannelWebhook, ChannelQueue:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every delivery channel in a stable order.
func Channels() []Channel {
	return []Channel{
		ChannelEmail,
		ChannelSMS,
		ChannelWhatsApp,
		ChannelPush,
		ChannelVoice,
		ChannelWebhook,
		ChannelQueue,
	}
}
