package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/telekom/mailtask/pkg/audit"
	"github.com/telekom/mailtask/pkg/config"
)

// buildAuditSink assembles the configured audit sinks. Without any sink
// configured events are dropped.
func buildAuditSink(cfg config.Config, logger *zap.Logger) (audit.Sink, error) {
	var sinks []audit.Sink
	if cfg.AuditLogEnabled() {
		sinks = append(sinks, audit.NewLogSink(logger))
	}
	if k := cfg.Audit.Kafka; k != nil {
		kafkaCfg, err := audit.KafkaSinkConfigFrom(*k)
		if err != nil {
			return nil, err
		}
		sink, err := audit.NewKafkaSink(kafkaCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka audit sink: %w", err)
		}
		sinks = append(sinks, sink)
	}

	switch len(sinks) {
	case 0:
		return audit.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return audit.NewMultiSink(sinks...), nil
	}
}

func sinkNames(s audit.Sink) []string {
	if m, ok := s.(*audit.MultiSink); ok {
		return m.Names()
	}
	return []string{s.Name()}
}
