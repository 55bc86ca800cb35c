package main

import "github.com/lunikdev/pledo/cmd"

func main() {
	cmd.Execute()
}
