package main

import "github.com/imovelprime/primegate/cmd/primegate/cmd"

func main() {
	cmd.Execute()
}
