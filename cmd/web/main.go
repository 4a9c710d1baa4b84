package main

import "mwork_attachments/internal/app"

func main() {
	app.Run()
}
