package bus

import (
	"fmt"
	"strings"

	"github.com/answergrid/answergrid/internal/config"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// NewBus creates an event bus from configuration.
func NewBus(cfg config.BusConfig, log *logger.Logger) (Bus, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryBus(), nil
	case "kafka":
		brokers := ParseBrokers(cfg.KafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("kafka bus requires at least one broker")
		}
		return NewKafkaBus(brokers, log)
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Type)
	}
}

// ParseBrokers splits a comma-separated broker list into addresses.
func ParseBrokers(brokers string) []string {
	if brokers == "" {
		return nil
	}
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
