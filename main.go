package main

import "github.com/RyanBlaney/sonido-mosaic/cmd"

func main() {
	cmd.Execute()
}
