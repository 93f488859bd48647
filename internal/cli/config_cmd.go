package cli

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	videoaltitude "github.com/menta2k/video-altitude"
	"github.com/menta2k/video-altitude/internal/config"
	"github.com/menta2k/video-altitude/internal/server"
	"github.com/menta2k/video-altitude/internal/utils"
)

func newServeCmd(r *Root) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the estimator over HTTP",
		Long: `Start the HTTP API.

With --watch the config file is reloaded when it changes, so camera profiles
can be added without a restart. Estimates are recorded when history is
enabled in the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = r.cfg.Server.Addr
			}
			if !cmd.Flags().Changed("watch") {
				watch = r.cfg.Server.WatchConfig
			}
			if watch && r.cfgPath == "" {
				return fmt.Errorf("--watch needs a config file, create one with 'config init'")
			}

			store, err := r.openHistory(false)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return r.serveFn(ctx, server.Options{
				Addr:       addr,
				Config:     r.cfg,
				ConfigPath: r.cfgPath,
				Watch:      watch,
				Store:      store,
				Logger:     r.log,
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the config file when it changes")
	return cmd
}

func newConfigCmd(r *Root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if r.cfgPath != "" {
				fmt.Fprintf(w, "# %s\n", r.cfgPath)
			} else {
				fmt.Fprintln(w, "# built-in defaults")
			}
			return printJSON(w, r.cfg)
		},
	})

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default configuration file",
		Args:  cobra.MaximumNArgs(1),
		// the file being created may not exist or be valid yet
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			path := r.cfgPath
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				path = config.GetConfigPath()
			}
			if utils.FileExists(path) && !force {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			}
			if err := config.Default().SaveToFile(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}

func newHistoryCmd(r *Root) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "List recorded estimates",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			w := cmd.OutOrStdout()

			store, err := r.openHistory(true)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				rec, err := store.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(w, rec)
			}

			records, err := store.List(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(w, records)
			}
			if len(records) == 0 {
				fmt.Fprintln(w, "No estimates recorded")
				return nil
			}
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tCAMERA\tMETHOD\tGSD (cm/px)\tALTITUDE (cm)\tSOURCE\t")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.4f\t%.2f\t%s\t\n",
					rec.ID, rec.CreatedAt.Local().Format("2006-01-02 15:04"), rec.Camera, rec.Method,
					rec.GSDCmPerPx, rec.AltitudeCM, rec.Source)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of estimates to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newVersionCmd(r *Root) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "video-altitude %s (%s %s/%s)\n",
				videoaltitude.GetVersion(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
