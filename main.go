package main

import "baler/cmd"

func main() {
	cmd.Execute()
}
