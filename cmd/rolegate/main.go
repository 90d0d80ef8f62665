// Command rolegate runs the role-based transaction authorization service.
package main

import "github.com/Sentinel-Gate/rolegate/cmd/rolegate/cmd"

func main() {
	cmd.Execute()
}
