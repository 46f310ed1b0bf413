// Command pulse runs the notification server.
package main

import (
	"log"

	"pulse/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
