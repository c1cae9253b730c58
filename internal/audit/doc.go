// Package audit carries security events (logins, renewals, revocations) from
// the engine to pluggable sinks.
//
// [Dispatcher] decouples the request path from sink latency with a bounded
// buffer. Sinks in this package log through zap, write JSON lines or feed a
// channel for tests; the kafkasink package publishes to Kafka.
package audit
