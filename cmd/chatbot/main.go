package main

import (
	"os"

	"github.com/zhouzirui/z-tavern/chatbot/cmd/chatbot/cmds"
)

func main() {
	os.Exit(cmds.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
