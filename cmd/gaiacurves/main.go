package main

import "github.com/gaiacurves/gaiacurves/cmd/gaiacurves/cmd"

func main() {
	cmd.Execute()
}
