package main

import "github.com/gmn-data-platform/gmntraj/cmd"

func main() {
	cmd.Execute()
}
