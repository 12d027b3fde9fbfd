package main

import (
	"github.com/shelfdb/shelf/cmd"
)

func main() {
	cmd.Execute()
}
