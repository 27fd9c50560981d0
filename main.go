package main

import "github.com/bashclaw/bashclaw/cmd"

func main() {
	cmd.Execute()
}
