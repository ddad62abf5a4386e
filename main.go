package main

import "github.com/go-edhoc/edhoc-oscore/cmd"

func main() {
	cmd.Execute()
}
