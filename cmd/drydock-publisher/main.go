// Command drydock-publisher packages and publishes releases.
package main

import "github.com/fleetbay/drydock/cmd/drydock-publisher/cmd"

func main() {
	cmd.Execute()
}
