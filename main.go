package main

import "github.com/deploymenttheory/go-uffs/cmd"

func main() {
	cmd.Execute()
}
