// main is the entry point of the epss CLI.
package main

import (
	"github.com/huangsam/epss/cmd"
	"github.com/huangsam/epss/internal/contract"
	"github.com/huangsam/epss/internal/iocache"
)

func main() {
	err := cmd.Execute()

	cmd.CloseEngine()
	if terr := cmd.StopTracing(); terr != nil {
		contract.LogWarn("Cannot flush traces", terr)
	}
	iocache.CloseCaching()
	if perr := cmd.StopProfiling(); perr != nil {
		contract.LogWarn("Cannot stop profiling", perr)
	}

	if err != nil {
		contract.LogFatal("Command failed", err)
	}
}
