package main

import "socketmode/cmd/socketmode/cmd"

func main() {
	cmd.Execute()
}
