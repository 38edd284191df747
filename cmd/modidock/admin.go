package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zpdzap/modidock/internal/broker"
	"github.com/zpdzap/modidock/internal/config"
	"github.com/zpdzap/modidock/internal/engine"
	"github.com/zpdzap/modidock/internal/pathguard"
	"github.com/zpdzap/modidock/internal/registry"
	"github.com/zpdzap/modidock/internal/tui"
)

func checkCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the registry document and report each declared file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Load(g.configPath)
			if err != nil {
				return err
			}

			problems := 0
			for _, e := range reg.Entries() {
				fmt.Printf("%s  (%s)\n", e.ID, e.VolumeRoot)
				if len(e.AllowedFiles) == 0 {
					fmt.Println("    no editable files")
				}
				for _, f := range e.AllowedFiles {
					state := "ok"
					res, err := pathguard.Resolve(e, f.RelativePath)
					switch {
					case errors.Is(err, pathguard.ErrForbidden):
						state = "escapes the volume root"
						problems++
					case err != nil:
						state = err.Error()
						problems++
					default:
						if info, err := os.Stat(res.AbsolutePath); err != nil {
							state = "missing"
							problems++
						} else if !info.Mode().IsRegular() {
							state = "not a regular file"
							problems++
						}
					}
					fmt.Printf("    %-30s %-24s %s\n", f.RelativePath, f.Label, state)
				}
			}

			if problems > 0 {
				return fmt.Errorf("%d declared files are not editable", problems)
			}
			fmt.Printf("\n%s: %d containers OK\n", g.configPath, reg.Len())
			return nil
		},
	}
}

func initCmd(g *globals) *cobra.Command {
	var displayName, icon string
	var files []string

	cmd := &cobra.Command{
		Use:   "init <container-id> <volume-root>",
		Short: "Add a container to the registry document, detecting well-known config files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			root, err := filepath.Abs(args[1])
			if err != nil {
				return err
			}

			doc := &config.Document{}
			if config.Exists(g.configPath) {
				if doc, err = config.Load(g.configPath); err != nil {
					return err
				}
			}

			entry := config.Container{ID: id, DisplayName: displayName, Icon: icon, VolumeRoot: root}
			if len(files) > 0 {
				for _, f := range files {
					entry.Files = append(entry.Files, config.File{Path: f, Label: f})
				}
			} else {
				entry.Files = config.Detect(root)
			}
			doc.Containers = append(doc.Containers, entry)

			if err := doc.Validate(); err != nil {
				return fmt.Errorf("adding %s: %w", id, err)
			}
			if err := config.Save(g.configPath, doc); err != nil {
				return fmt.Errorf("saving config: %w", err)
			}

			fmt.Printf("Added %s (%s) to %s\n", id, root, g.configPath)
			for _, f := range entry.Files {
				fmt.Printf("  %s\n", f.Path)
			}
			if len(entry.Files) == 0 {
				fmt.Println("  no well-known config files found; add paths with --file")
			}
			fmt.Println("\nRun `modidock serve` to start the web UI, or send SIGHUP to a running server.")
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "display-name", "", "Name shown in the UI")
	cmd.Flags().StringVar(&icon, "icon", "", "Icon URL or emoji")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Editable path relative to the volume root (repeatable; disables detection)")
	return cmd
}

func restartCmd(g *globals) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "restart <container-id>",
		Short: "Restart a registered container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg, err := registry.Load(g.configPath)
			if err != nil {
				return err
			}
			cli, err := engine.NewClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			ctrl := engine.New(cli, reg,
				engine.WithRestartTimeout(opts.restartTimeout),
				engine.WithStopTimeout(opts.stopTimeout),
			)
			if err := ctrl.Restart(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Restarted %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().DurationVar(&opts.restartTimeout, "restart-timeout", envDuration("MODIDOCK_RESTART_TIMEOUT", engine.DefaultRestartTimeout), "Upper bound on the restart")
	cmd.Flags().DurationVar(&opts.stopTimeout, "stop-timeout", envDuration("MODIDOCK_STOP_TIMEOUT", engine.DefaultStopTimeout), "Grace period before the engine kills the container")
	return cmd
}

func tuiCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Terminal dashboard: preview, edit and restart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM)
			defer stop()

			store, err := registry.NewStore(g.configPath)
			if err != nil {
				return fmt.Errorf("loading registry (run `modidock init` first): %w", err)
			}
			cli, err := engine.NewClient()
			if err != nil {
				return err
			}
			defer cli.Close()

			return tui.Run(ctx, tui.Backend{
				Catalog:    store,
				Files:      broker.New(store),
				Containers: engine.New(cli, store),
			})
		},
	}
}
