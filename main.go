package main

import "linkchain/cmd"

func main() {
	cmd.Execute()
}
