// Package dispatcher serializes access to a single stateful inference worker.
// It is structured into small files by concern:
//
//   - dispatcher.go: Dispatcher type, getters, inbound message routing.
//   - config.go: Config, package defaults and New.
//   - types.go: State, Call and Snapshot.
//   - errors.go: error values and predicates (IsModelLoadError, IsBackendError).
//   - initialize.go: the one-time loadModel handshake and its timeout.
//   - run.go: Submit/Wait/RunInference, the FIFO queue and the single in-flight slot.
//   - terminate.go: explicit teardown and unexpected channel loss.
//   - events.go, eventpub_memory.go: lifecycle events.
//   - metrics.go: Prometheus collectors.
//   - status_report.go: Status/Snapshot reporting.
//
// The worker is reached only through a channel.Channel, which offers no
// request/response correlation. The dispatcher keeps at most one run command
// outstanding, so the next run response always belongs to the call in the
// current slot.
package dispatcher
