// Package scheduler provides the wall-clock trigger registry used by the
// PTU lifecycle and the delivery engine. Recurring triggers survive
// failures of individual firings; one-shot timers can be cancelled and
// report whether cancellation won against the firing.
package scheduler
