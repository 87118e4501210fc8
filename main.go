package main

import "github.com/Mohsinsiddi/zeroslip/cmd"

func main() {
	cmd.Execute()
}
