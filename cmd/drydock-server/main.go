// Command drydock-server runs the fleet coordinator.
package main

import "github.com/fleetbay/drydock/cmd/drydock-server/cmd"

func main() {
	cmd.Execute()
}
