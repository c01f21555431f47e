package main

import "github.com/stephnangue/chronicle/cmd"

func main() {
	cmd.Execute()
}
