package main

import "github.com/deep-saket/color-matching/cmd"

func main() {
	cmd.Execute()
}
