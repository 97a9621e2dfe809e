package main

import "go-flickr-fetch/cmd/flickr-fetch/cmd"

func main() {
	cmd.Execute()
}
