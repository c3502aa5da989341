// Package exporter writes the latest snapshot to a Prometheus textfile for
// node_exporter's textfile collector.
package exporter
