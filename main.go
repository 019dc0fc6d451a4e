package main

import "github.com/Mohsinsiddi/w3link/cmd"

func main() {
	cmd.Execute()
}
