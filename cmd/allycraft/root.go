package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allycraft/allycraft/internal/config"
	"github.com/allycraft/allycraft/internal/game"
	"github.com/allycraft/allycraft/internal/logging"
	"github.com/allycraft/allycraft/internal/source"
	"github.com/allycraft/allycraft/internal/version"
)

// app carries what every command needs. It is filled in before a command
// runs.
type app struct {
	env     *config.Env
	log     *zap.Logger
	manager *game.Manager
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "allycraft",
		Short:         "Install and launch Minecraft Bedrock versions on handheld PCs",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.AddCommand(
		newVersionsCmd(a),
		newListCmd(a),
		newInstallCmd(a),
		newUninstallCmd(a),
		newLaunchCmd(a),
		newDataPathCmd(a),
		newSpaceCmd(a),
	)
	return root
}

func (a *app) open() error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(logging.Config{Level: env.LogLevel, Development: env.LogDev})
	if err != nil {
		return err
	}

	downloader, err := source.NewHTTPDownloader(source.HTTPConfig{
		URLTemplate: env.PackageURL,
		KeyringPath: env.Keyring,
		Logger:      log.Named("source"),
	})
	if err != nil {
		return fmt.Errorf("package source: %w", err)
	}

	opts := game.Options{
		BaseDir:    env.BaseDir,
		Downloader: downloader,
		Logger:     log,
	}
	if env.CatalogURL != "" {
		catalog, err := version.NewCatalog(version.CatalogConfig{
			URL:         env.CatalogURL,
			Minimum:     env.Minimum(),
			IncludeBeta: env.IncludeBeta,
			Logger:      log.Named("catalog"),
		})
		if err != nil {
			return err
		}
		opts.Catalog = catalog
	}

	m, err := game.Open(opts)
	if err != nil {
		return err
	}
	a.env, a.log, a.manager = env, log, m
	return nil
}

// descriptor looks v up in the catalog.
func (a *app) descriptor(ctx context.Context, s string) (version.Descriptor, error) {
	v, err := version.Parse(s)
	if err != nil {
		return version.Descriptor{}, err
	}
	available, err := a.manager.Available(ctx)
	if err != nil {
		return version.Descriptor{}, err
	}
	for _, d := range available {
		if d.Version == v {
			return d, nil
		}
	}
	return version.Descriptor{}, fmt.Errorf("version %s is not offered by the catalog", v)
}
