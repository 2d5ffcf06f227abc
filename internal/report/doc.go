// Package report provides the destinations a rotation run's summary is
// published to: the SNS topic operators subscribe to, Slack, generic
// webhooks, a local history store and Prometheus metrics.
//
// Every destination implements rotation.ReportSink. Multi combines several
// of them; a failing destination does not stop the others.
package report
