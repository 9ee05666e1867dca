package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/douyudm/dmclient/internal/config"
	"github.com/douyudm/dmclient/internal/persist"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// aliasCache is the part of persist.RoomRepo the cache commands use.
type aliasCache interface {
	List(ctx context.Context) ([]persist.RoomAliasRow, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, name string) error
}

var errNoDatabase = errors.New("no room cache: set database.dsn")

func cacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and prune the room alias cache",
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Drop entries resolved longer ago than --older-than",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd, g, func(ctx context.Context, c aliasCache) error {
				return purgeCache(ctx, cmd.OutOrStdout(), c, time.Now().Add(-olderThan))
			})
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", cacheTTL, "age of entries to drop")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every cached alias",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd, g, func(ctx context.Context, c aliasCache) error {
					return listCache(ctx, cmd.OutOrStdout(), c)
				})
			},
		},
		purge,
		&cobra.Command{
			Use:   "forget <room-name>...",
			Short: "Remove cached aliases so the next lookup asks the room API",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withCache(cmd, g, func(ctx context.Context, c aliasCache) error {
					return forgetCache(ctx, cmd.OutOrStdout(), c, args)
				})
			},
		},
	)
	return cmd
}

// withCache opens the configured database for the duration of fn.
func withCache(cmd *cobra.Command, g *globalFlags, fn func(context.Context, aliasCache) error) error {
	cfg, log, err := g.setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	db, err := openCache(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(ctx, persist.NewRoomRepo(db))
}

func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*persist.DB, error) {
	if cfg.Database.DSN == "" {
		return nil, errNoDatabase
	}
	return persist.Open(ctx, cfg.Database, log)
}

func listCache(ctx context.Context, out io.Writer, c aliasCache) error {
	rows, err := c.List(ctx)
	if err != nil {
		return fmt.Errorf("list room cache: %w", err)
	}
	for _, r := range rows {
		fmt.Fprintf(out, "%s\t%d\t%s\t%s\n",
			padRight(r.Name, nameColumns), r.RoomID, r.Source, r.ResolvedAt.Local().Format(time.DateTime))
	}
	printOK(out, fmt.Sprintf("共 %d 筆", len(rows)))
	return nil
}

func purgeCache(ctx context.Context, out io.Writer, c aliasCache, cutoff time.Time) error {
	n, err := c.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge room cache: %w", err)
	}
	printOK(out, fmt.Sprintf("已清除 %d 筆早於 %s 的快取", n, cutoff.Local().Format(time.DateTime)))
	return nil
}

func forgetCache(ctx context.Context, out io.Writer, c aliasCache, names []string) error {
	for _, name := range names {
		if err := c.Delete(ctx, name); err != nil {
			return fmt.Errorf("forget %q: %w", name, err)
		}
		printOK(out, "已移除 "+name)
	}
	return nil
}
