package main

import (
	"github.com/weavemesh/weave/src/cmd/weave/command"
)

func main() {
	command.Execute()
}
