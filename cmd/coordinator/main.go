package main

import (
	"context"
	"fmt"
	"os"

	"github.com/yungbote/bulkflow/internal/app"
	"github.com/yungbote/bulkflow/internal/platform/shutdown"
)

func main() {
	boot, cancelBoot := context.WithCancel(context.Background())
	a, err := app.New(boot)
	if err != nil {
		cancelBoot()
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := shutdown.NotifyContext(boot, a.Log)
	err = a.Run(ctx)
	stop()
	cancelBoot()
	a.Close()
	if err != nil {
		fmt.Printf("coordinator exited: %v\n", err)
		os.Exit(1)
	}
}
