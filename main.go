package main

import "github.com/cianaparrot/cianaparrot/cmd"

func main() {
	cmd.Execute()
}
