package main

import (
	"context"

	"github.com/maltedev/merchant-price-scraper/cmd/price-cli/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
