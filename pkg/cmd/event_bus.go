// Package cmd provides common initialization for the command-line binaries.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/probeflow/probeflow/pkg/channels/gochannel"
	"github.com/probeflow/probeflow/pkg/channels/kafka"
	"github.com/probeflow/probeflow/pkg/eventbus"
)

// NewEventBus creates an event bus. provider "kafka" connects to the given
// brokers; "channel" runs in-process and only makes sense when API and
// worker share one binary.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) eventbus.EventBus {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(wmLogger, strings.Split(brokers, ","), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	case "channel":
		pub, sub, err := gochannel.CreateChannel(wmLogger)
		if err != nil {
			panic(fmt.Errorf("failed to create channel pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
