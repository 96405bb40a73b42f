// Command brminer trains Bagging Random Miner models and scores CSV files,
// packet captures and HTTP requests with them.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	a := &app{}
	if err := newRootCmd(a).Execute(); err != nil {
		if a.logger != nil {
			a.logger.Error("command failed", zap.Error(err))
			_ = a.logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
