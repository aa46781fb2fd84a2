// Package validator guards thermostat commands.
//
// Every thermostat is tracked as Normal, Away or Locked from what polling
// last observed. A command is checked against that state and the last
// snapshot, turned into the device writes that carry it out, and sent
// through the device proxy. Commands that fail the check never reach the
// device; they are logged and reported as CommandValidationFailure events.
//
// The validator never edits reflected state. A successful write asks the
// scheduler for a short poll and the change shows up from there.
package validator
