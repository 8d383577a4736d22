package main

import (
	"os"

	"github.com/prompthub/prompthub/internal/prompthub"
)

func main() {
	if err := prompthub.NewApp().Execute(); err != nil {
		os.Exit(1)
	}
}
