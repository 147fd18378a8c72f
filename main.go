package main

import "media-grab/cmd"

func main() {
	cmd.Execute()
}
