package main

import (
	"github.com/wumpus-archiver/archiver/src/cli"
	_ "github.com/wumpus-archiver/archiver/src/download/cmd"
	_ "github.com/wumpus-archiver/archiver/src/migration/cmd"
	_ "github.com/wumpus-archiver/archiver/src/schedule/cmd"
	_ "github.com/wumpus-archiver/archiver/src/scrape/cmd"
	_ "github.com/wumpus-archiver/archiver/src/transfer/cmd"
)

func main() {
	cli.Execute()
}
