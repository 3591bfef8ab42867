// Package infra groups the adapters behind the core interfaces: the SQL
// store, attachment storage, SMTP mailer, PDF renderer, MQTT notifier,
// Redis lock, metrics sinks, audit trail and Sentry monitor.
package infra
