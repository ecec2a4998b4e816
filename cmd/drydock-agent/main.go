// Command drydock-agent applies fleet updates on a device.
package main

import "github.com/fleetbay/drydock/cmd/drydock-agent/cmd"

func main() {
	cmd.Execute()
}
