// Package poller runs the short and long poll cycles for every thermostat.
//
// Two tickers drive the cycles. Each tick queues a poll on every device
// worker. A worker owns one device and runs its polls one at a time, so
// polls of a device never overlap while different devices never wait on
// each other. Each worker has a single pending slot per cycle: a tick that
// arrives while a poll of the same cycle is queued is folded into it.
//
// Nothing is polled at Start; the first polls happen on the first tick or
// on Trigger.
package poller
