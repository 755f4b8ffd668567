package model

import (
	"fmt"
	"strings"
)

// Channel names a delivery path for a notification.
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
	ChannelInApp   Channel = "in_app"
)

// DefaultChannels is used for subscribers that do not list any.
var DefaultChannels = []Channel{ChannelEmail}

// ParseChannel maps a configured channel name to a Channel. The older
// names "discord" and "dashboard" are accepted.
func ParseChannel(s string) (Channel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email", "mail":
		return ChannelEmail, nil
	case "webhook", "discord":
		return ChannelWebhook, nil
	case "in_app", "inapp", "dashboard":
		return ChannelInApp, nil
	default:
		return "", &ConfigurationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", s)}
	}
}

// ParseChannels parses a list of channel names, dropping duplicates while
// keeping the first occurrence order.
func ParseChannels(names []string) ([]Channel, error) {
	out := make([]Channel, 0, len(names))
	seen := make(map[Channel]bool, len(names))
	for _, n := range names {
		ch, err := ParseChannel(n)
		if err != nil {
			return nil, err
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}

// JoinChannels renders channels as a comma-separated list for storage.
func JoinChannels(chs []Channel) string {
	parts := make([]string, len(chs))
	for i, c := range chs {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}

// SplitChannels is the inverse of JoinChannels. Unknown names are kept
// as-is so the dispatcher can report them.
func SplitChannels(s string) []Channel {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []Channel
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ch, err := ParseChannel(p); err == nil {
			out = append(out, ch)
		} else {
			out = append(out, Channel(p))
		}
	}
	return out
}
