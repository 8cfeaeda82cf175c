package main

import (
	"log"

	"EchoFM/cmd"
)

func main() {
	cmd.Execute()
	log.Println("Application command execution finished or server started.")
}
