// Package dedupe provides a time-based cache of recently seen keys so that
// repeated submissions within a window are recognised without a database
// round trip.
package dedupe
