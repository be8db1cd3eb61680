package main

import "github.com/ftl/bandwatch/cmd"

func main() {
	cmd.Execute()
}
