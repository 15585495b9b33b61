package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/great-insider/insightshield/internal/cache"
	"github.com/great-insider/insightshield/internal/config"
	"github.com/great-insider/insightshield/internal/observability"
)

// newCacheCmd groups cache maintenance subcommands.
func newCacheCmd() *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the enrichment cache",
	}
	cacheCmd.AddCommand(newCacheClearCmd())
	return cacheCmd
}

// newCacheClearCmd creates the explicit whole-cache invalidation command.
func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Removes every cached enrichment record",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			store, err := openCacheStore(ctx, cfg)
			if err != nil {
				return err
			}
			enrichCache := cache.New(store, cfg.Cache, logger)
			defer enrichCache.Close()

			if err := enrichCache.Clear(ctx); err != nil {
				return err
			}
			logger.Info("Enrichment cache cleared",
				zap.String("backend", cfg.Cache.Backend))
			return nil
		},
	}
}
