// Package otel publishes authcore engine metrics as OpenTelemetry
// observable instruments.
//
// [NewExporter] creates one observable counter per engine counter and one
// observable gauge per latency bucket. A single callback reads the engine
// snapshot on each collection. The caller owns the MeterProvider.
package otel
