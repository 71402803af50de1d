package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/yungbote/bulkflow/internal/app"
	"github.com/yungbote/bulkflow/internal/config"
	"github.com/yungbote/bulkflow/internal/data/aggregates"
	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

func main() {
	var ids idList
	var list, destroy, dryRun bool
	flag.Var(&ids, "bulk", "bulk transaction id (repeatable)")
	flag.BoolVar(&list, "list", false, "list stored bulk transactions with their state")
	flag.BoolVar(&destroy, "destroy", false, "remove the selected bulk transactions and their children")
	flag.BoolVar(&dryRun, "dry-run", false, "print what -destroy would remove")
	flag.Parse()

	if !list && !destroy {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()
	store, closeStore, err := app.OpenStore(ctx, log, cfg)
	if err != nil {
		fmt.Printf("open store: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	if len(ids) == 0 {
		all, err := store.ListIDs(ctx)
		if err != nil {
			fmt.Printf("list bulk transactions: %v\n", err)
			os.Exit(1)
		}
		ids = all
	}
	deps := aggregates.BaseDeps{
		Repo:                  store,
		Log:                   log,
		BatchMaxEntries:       cfg.Workflow.BatchMaxEntries,
		ChildWriteConcurrency: cfg.Workflow.ChildWriteConcurrency,
	}

	removed := 0
	for _, id := range ids {
		agg, err := aggregates.CreateFromRepo(ctx, id, deps)
		if err != nil {
			if domainagg.IsCode(err, domainagg.CodeAggregateNotFound) {
				fmt.Printf("bulk %s not found\n", id)
				continue
			}
			fmt.Printf("load bulk %s: %v\n", id, err)
			continue
		}
		if list {
			fmt.Printf("%s\t%s\n", id, agg.State())
		}
		if !destroy {
			continue
		}
		if dryRun {
			fmt.Printf("[dry-run] destroy bulk %s (state %s)\n", id, agg.State())
			continue
		}
		if err := agg.Destroy(ctx); err != nil {
			fmt.Printf("destroy bulk %s: %v\n", id, err)
			continue
		}
		removed++
		fmt.Printf("destroyed bulk %s\n", id)
	}
	if destroy && !dryRun {
		fmt.Printf("done; destroyed=%d\n", removed)
	}
}
