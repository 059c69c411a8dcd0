// The main package for the wiimonitor executable.
package main

import (
	"github.com/JakeFAU/wii-build-monitor/cmd"
)

func main() {
	cmd.Execute()
}
