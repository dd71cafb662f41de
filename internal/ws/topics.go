package ws

import (
	"strings"

	"github.com/leafsii/leafsii-vault/internal/account"
	"github.com/leafsii/leafsii-vault/internal/store"
	"github.com/leafsii/leafsii-vault/internal/vault"
)

// Topics a client may subscribe to. An event type name ("SharesMinted") or
// its channel selects a single event stream.
const (
	TopicEvents  = "events"
	TopicUpdates = "updates"

	eventWildcard = store.ChannelVaultEvents + ":*"
)

// allChannels is what the hub listens on.
func allChannels() []string {
	return append(store.EventChannels(), store.ChannelVaultUpdates)
}

// channelsFor maps topics to channels. Unknown topics are dropped.
func channelsFor(topics []string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(chs ...string) {
		for _, ch := range chs {
			if !seen[ch] {
				seen[ch] = true
				out = append(out, ch)
			}
		}
	}

	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		switch topic {
		case TopicEvents, eventWildcard:
			add(store.EventChannels()...)
		case TopicUpdates, store.ChannelVaultUpdates:
			add(store.ChannelVaultUpdates)
		default:
			for _, t := range vault.EventTypes() {
				if topic == string(t) || topic == store.EventChannel(t) || strings.EqualFold(topic, snake(string(t))) {
					add(store.EventChannel(t))
				}
			}
		}
	}
	return out
}

// eventName is the SSE event name for a channel, e.g. "shares_minted".
func eventName(channel string) string {
	if channel == store.ChannelVaultUpdates {
		return "vault_update"
	}
	if t, ok := strings.CutPrefix(channel, store.ChannelVaultEvents+":"); ok {
		return snake(t)
	}
	return "update"
}

// mentions reports whether a JSON payload carries addr anywhere.
func mentions(payload string, addr account.Address) bool {
	return strings.Contains(payload, addr.String())
}

func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
