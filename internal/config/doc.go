// Package config handles configuration loading for chat-sync.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension)
// with environment variable expansion. Unset fields get defaults and the
// result is validated before use.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from CHAT_SYNC_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/chat-sync/config.yaml
//  4. ~/.config/chat-sync/config.yaml
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	auth:
//	  token: "${CHAT_SYNC_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  typing_ttl: "3s"
//	  typing_stop_delay: "2500ms"
//	  send_ack_timeout: "10s"
//	push:
//	  reconnect_interval: "2s"
//	  ping_interval: "25s"   # negative disables keepalive pings
//
// # Ordering
//
// sync.ordering selects how conversation updates are merged. "last-write"
// (the default) applies updates in arrival order. "sequence" drops an update
// whose seq field is lower than the one already stored.
package config
