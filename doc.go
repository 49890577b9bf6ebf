// Package visioncore implements the coordination layer between a vision
// system and an industrial PLC/robot cell.
//
// # Architecture
//
// The module is organized leaves-first:
//
//   - tagmap: whitelist translating logical tag names to device-level
//     names, types and read/write direction.
//   - plcclient: connection lifecycle, whitelisted tag I/O with retry,
//     heartbeat and degraded-mode reconnection, plus a reactive
//     SimulatedDevice used when no hardware is reachable.
//   - control: the pick-and-place handshake state machine driven by a
//     periodic tick, consuming detection events and emitting
//     notifications.
//   - notify: ordered in-process event bus with an optional NATS bridge
//     for external telemetry.
//   - config, errors, health, metric, pkg/retry: ambient infrastructure
//     shared by the above.
//
// The wire-level industrial protocol is deliberately out of scope: the
// client talks to an injected Driver and degrades to the simulator when
// none is available or reachable. Connection failure is never fatal; the
// system favors graceful degradation over halting an unattended line.
//
// cmd/visioncore wires everything together: configuration, structured
// logging, the Prometheus endpoint, health aggregation and the optional
// NATS detection intake.
package visioncore
