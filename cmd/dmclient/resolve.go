package main

import (
	"context"
	"fmt"
	"time"

	"github.com/douyudm/dmclient/internal/config"
	"github.com/douyudm/dmclient/internal/data"
	"github.com/douyudm/dmclient/internal/persist"
	"github.com/douyudm/dmclient/internal/resolver"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// cacheTTL bounds how long a cached name lookup is trusted.
const cacheTTL = 7 * 24 * time.Hour

func resolveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <room-name>...",
		Short: "Look up numeric room ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := g.setup()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			r, closeFn, err := newResolver(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			for _, name := range args {
				id, err := r.Resolve(ctx, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\t%d\n", padRight(name, nameColumns), id)
			}
			return nil
		},
	}
}

// newResolver builds the lookup chain: numeric ids, the static room table,
// then the room API behind the database cache when one is configured.
func newResolver(ctx context.Context, cfg *config.Config, log *zap.Logger) (resolver.Resolver, func(), error) {
	chain := resolver.Chain{resolver.Numeric{}}
	closeFn := func() {}

	if cfg.Resolver.RoomsFile != "" {
		tbl, err := data.LoadRoomTable(cfg.Resolver.RoomsFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("房間表已載入", zap.Int("rooms", tbl.Count()))
		chain = append(chain, resolver.NewTable(tbl))
	}

	var api resolver.Resolver = resolver.NewHTTP(cfg.Resolver.Endpoint, cfg.Resolver.Timeout)
	if cfg.Database.DSN != "" {
		db, err := persist.Open(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, err
		}
		closeFn = db.Close
		api = resolver.NewCached(persist.NewRoomRepo(db), api, cacheTTL, log)
	}
	return append(chain, api), closeFn, nil
}
