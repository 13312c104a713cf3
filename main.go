package main

import "github.com/fulmenhq/scriptdepot/cmd"

func main() {
	cmd.Execute()
}
