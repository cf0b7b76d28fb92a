// Package infra contains technical adapters: the MQTT queue transport,
// HTTP message transport, SQLite stores, participant directories and
// metrics exporters. These packages should depend only on the
// interfaces defined in the core packages.
package infra
