// Package internaldefs holds the metric names and bucket bounds shared by the exporters.
//
// The Prometheus and OTel exporters both read from here, so a name or bound changed in
// this package changes on every exporter at once.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
