package main

import "github.com/oshokin/stream-notifier/cmd/stream-notifier/cmd"

func main() {
	cmd.Execute()
}
