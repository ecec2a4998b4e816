// Package coordinator runs the drydock coordinator process: it opens the
// metadata and blob stores selected by the settings, wires them to the
// fleet HTTP API and serves it until the process is told to stop.
package coordinator
