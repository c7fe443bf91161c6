package events

import "time"

// DataSourceTier names the tier that produced a repository value.
type DataSourceTier string

const (
	TierCache   DataSourceTier = "cache"
	TierNetwork DataSourceTier = "network"
	TierLocal   DataSourceTier = "local"
	TierStale   DataSourceTier = "stale"
	TierSave    DataSourceTier = "save"
)

// AuthenticationFailedEvent is published when the auth token could not be refreshed.
// UI layers subscribe to it to redirect to login.
type AuthenticationFailedEvent struct {
	Endpoint string    `json:"endpoint"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// DataUpdatedEvent signals that a repository refreshed a key from a non-cache tier.
type DataUpdatedEvent struct {
	Repository string         `json:"repository"`
	Key        string         `json:"key"`
	Source     DataSourceTier `json:"source"`
}

// StaleDataServedEvent is a warning: an expired cache entry was returned as a last resort.
type StaleDataServedEvent struct {
	Repository string `json:"repository"`
	Key        string `json:"key"`
}

// ConnectivityChangedEvent is published on online/offline transitions.
type ConnectivityChangedEvent struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

// ItemObtainedEvent is raised by game-facing layers when the player receives an item.
type ItemObtainedEvent struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// PrefetchCompletedEvent reports the outcome of a background prefetch.
type PrefetchCompletedEvent struct {
	Repository string   `json:"repository"`
	Loaded     []string `json:"loaded"`
	Missing    []string `json:"missing"`
}
