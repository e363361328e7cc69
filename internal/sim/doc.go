// Package sim implements the simulated stimulator transport used when test
// mode is enabled. It satisfies the full wss.Device and wss.Basic contracts
// without touching a serial port: parameters live in memory, persist to JSON
// files in the configured directory, and normalized stimulation maps a
// magnitude onto the channel's pulse-width window the same way the real
// params layer does.
package sim
