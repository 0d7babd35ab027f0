// Package audit records one event per mail delivery attempt and forwards it
// to the structured log and, when configured, a Kafka topic.
package audit
