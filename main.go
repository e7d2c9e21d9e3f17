package main

import "github.com/tidal-downloader/tidal/cmd"

func main() {
	cmd.Execute()
}
