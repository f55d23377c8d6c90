package schema

import "time"

// DefaultMaxEntries caps the visible chat log per conversation; the
// oldest entries are evicted past the cap.
const DefaultMaxEntries = 500

// DefaultReconnectDelay is the fixed backoff before a scheduled
// reconnection attempt.
const DefaultReconnectDelay = 800 * time.Millisecond

// DefaultNotifyMinSeconds is the minimum run duration before a
// completion notification fires. Zero means always notify.
const DefaultNotifyMinSeconds = 30

// DefaultSandbox is the sandbox mode sent when none is configured.
const DefaultSandbox = "workspace-write"
