package main

import "southwinds.dev/aegis/cli/cmd"

func main() {
	cmd.Execute()
}
