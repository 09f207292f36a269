// Package telemetry provides the observability stack of a covenant node.
//
// It integrates structured logging (zerolog), distributed tracing (OpenTelemetry), metrics
// (Prometheus) and governance event publishing behind a single Telemetry value:
//
//	tel, err := telemetry.NewTelemetry(telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	eng, err := engine.New(cfg, store, tel.EngineOptions()...)
//
// # Structured Logging
//
// Logger wraps zerolog with governance field helpers:
//
//	logger := tel.Logger.NewComponentLogger("cli")
//	logger.WithProposalID(7).WithCaller("erd1...").Info("Proposal executed")
//
// # Distributed Tracing
//
// NewTracer installs its provider globally. The engine opens one span per operation, named
// "governance.<operation>", under whatever span the caller's context carries. Supported
// exporters are otlp (gRPC), stdout and none.
//
// # Metrics
//
// Metrics implements engine.Metrics. Every collector is registered on a private registry and
// served by StartMetricsServer:
//
//	covenant_operations_total{operation,outcome}
//	covenant_operation_duration_seconds{operation}
//	covenant_votes_total{type}
//	covenant_vote_weight_total{type}
//	covenant_signatures_total{role}
//	covenant_proposals_created_total
//	covenant_actions_executed_total{target}
//	covenant_errors_by_class_total{class}
//	covenant_errors_by_code_total{code}
//	covenant_events_dropped_total
//
// # Events
//
// EventPublisher implements engine.EventSink. Emit never blocks the engine: in async mode
// events are buffered and delivered in order from a background goroutine, and events that do
// not fit the buffer are dropped and counted.
//
//	tel.Events.Subscribe(telemetry.JSONSubscriber(os.Stdout),
//	    telemetry.FilterByType(engine.EventProposalExecuted))
package telemetry
