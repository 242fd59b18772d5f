// Package systemd reports the service state to systemd through sd_notify.
// Every call is a no-op when the process is not started by systemd.
package systemd
