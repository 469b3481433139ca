package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Hub Metrics
var (
	// ConnectionsActive tracks the number of currently open client connections
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_connections_active",
			Help: "Number of currently open client connections",
		},
	)

	// ConnectionsRejectedTotal tracks rejected connection attempts by reason
	ConnectionsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_connections_rejected_total",
			Help: "Rejected connection attempts by reason",
		},
		[]string{"reason"},
	)

	// ChannelsActive tracks the number of channels with at least one listener
	ChannelsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hub_channels_active",
			Help: "Number of channels with at least one listener",
		},
	)

	// BroadcastsTotal tracks broadcast operations by kind (channel/state)
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hub_broadcasts_total",
			Help: "Broadcast operations by kind",
		},
		[]string{"kind"},
	)

	// MessagesSentTotal tracks messages written to individual connections
	MessagesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_messages_sent_total",
			Help: "Messages written to individual client connections",
		},
	)

	// SlowClientsDisconnectedTotal tracks clients dropped because their send queue filled
	SlowClientsDisconnectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hub_slow_clients_disconnected_total",
			Help: "Clients disconnected because their send queue was full",
		},
	)
)

// Bridge Metrics
var (
	// BridgePublishedTotal tracks envelopes published to the distributed transport
	BridgePublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_messages_published_total",
			Help: "Envelopes published to the distributed transport",
		},
	)

	// BridgeReceivedTotal tracks envelopes received from the distributed transport
	BridgeReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_messages_received_total",
			Help: "Envelopes received from the distributed transport",
		},
	)

	// BridgeDiscardedTotal tracks envelopes dropped on receive by reason (self/malformed)
	BridgeDiscardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_messages_discarded_total",
			Help: "Envelopes dropped on receive by reason",
		},
		[]string{"reason"},
	)

	// BridgePublishErrorsTotal tracks failed publishes to the distributed transport
	BridgePublishErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_publish_errors_total",
			Help: "Failed publishes to the distributed transport",
		},
	)
)

// State Metrics
var (
	// StateUpdatesTotal tracks local reactive state value changes
	StateUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "state_updates_total",
			Help: "Local reactive state value changes",
		},
	)

	// StateRemoteUpdatesTotal tracks reactive state changes applied from remote processes
	StateRemoteUpdatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "state_remote_updates_total",
			Help: "Reactive state changes applied from remote processes",
		},
	)

	// SerializationFailuresTotal tracks message payloads dropped because they could not be serialized
	SerializationFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "state_serialization_failures_total",
			Help: "Message payloads dropped because they could not be serialized",
		},
	)
)
