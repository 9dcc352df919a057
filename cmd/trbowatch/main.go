package main

import (
	"trbowatch/cmd/trbowatch/commands"
	"trbowatch/lib/util/serviceutil"
)

func main() {
	commands.ExecuteContext(serviceutil.SignalContext())
}
