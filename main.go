package main

import "tapfeed/cmd"

func main() {
	cmd.Execute()
}
