package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/caption-studio/internal/cli"
	"github.com/fpang/caption-studio/internal/dedupe"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/rename"
	"github.com/fpang/caption-studio/internal/status"
	"github.com/fpang/caption-studio/internal/workspace"
)

var (
	createFlag string
	deleteFlag string
	removeFlag bool
	yesFlag    bool
	dryRunFlag bool
	exportOut  string
)

// stored opens the durable workspace for a project subcommand.
func stored(ctx context.Context) (*workspace.Workspace, error) {
	if err := requireDurable(&cfg); err != nil {
		return nil, err
	}
	return openWorkspace(ctx, &cfg)
}

// report prints NoOp outcomes as plain status lines and returns other errors.
func report(err error) error {
	if status.IsNoOp(err) {
		fmt.Println(status.Message(err))
		return nil
	}
	return err
}

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List, create or delete stored projects",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		ws, err := stored(ctx)
		if err != nil {
			return err
		}
		defer ws.Close(ctx)

		switch {
		case createFlag != "":
			p, err := ws.CreateProject(ctx, createFlag)
			if err != nil {
				return err
			}
			fmt.Printf("Created project %s (%s)\n", p.Name, p.ID)
			return nil
		case deleteFlag != "":
			if !yesFlag && !cli.Confirm(os.Stdin, os.Stdout, fmt.Sprintf("Delete project %s and all its files?", deleteFlag)) {
				fmt.Println("Cancelled")
				return nil
			}
			if err := ws.DeleteProject(ctx, deleteFlag); err != nil {
				return err
			}
			fmt.Println("Project deleted")
			return nil
		}

		ps, err := ws.ListProjects(ctx)
		if err != nil {
			return err
		}
		for _, p := range ps {
			fmt.Printf("%s  %s  %s\n", p.ID, time.UnixMilli(p.CreatedAt).Format(time.DateTime), p.Name)
		}
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [directory]",
	Short: "Upload a directory of images and captions into a project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		ctx := context.Background()
		ws, err := stored(ctx)
		if err != nil {
			return err
		}
		defer ws.Close(ctx)

		items, err := scanItems(dirArg(args))
		if err != nil {
			return err
		}
		res, err := ws.Upload(ctx, projectID, items)
		if res != nil {
			fmt.Println(res.Summary())
			for _, s := range res.Skipped {
				fmt.Printf("  skipped %s: %s\n", s.Filename, s.Reason)
			}
		}
		if err != nil {
			return err
		}
		printElapsed(start)
		return nil
	},
}

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find (and optionally remove) duplicate images in a project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		strategy, err := dedupe.ParseStrategy(strategyFlag)
		if err != nil {
			return err
		}
		ws, err := stored(ctx)
		if err != nil {
			return err
		}
		defer ws.Close(ctx)

		groups, err := ws.FindDuplicates(ctx, projectID, strategy)
		if err != nil {
			return report(err)
		}
		fmt.Println(dedupe.Describe(groups))
		for i, g := range groups {
			fmt.Printf("Group %d:\n", i+1)
			for j, rec := range g {
				marker := "delete"
				if j == 0 {
					marker = "keep"
				}
				fmt.Printf("  [%s] %s (%s)\n", marker, rec.OriginalName, cli.FormatSize(rec.Size))
			}
		}

		if !removeFlag {
			return nil
		}
		if !yesFlag && !cli.Confirm(os.Stdin, os.Stdout, "Delete the marked files?") {
			fmt.Println("Cancelled")
			return nil
		}
		removed, err := ws.RemoveDuplicates(ctx, projectID, strategy)
		if err != nil {
			return report(err)
		}
		fmt.Println(dedupe.Summary(removed))
		return nil
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <base>",
	Short: "Renumber a project's files as <base>_NNN",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		order, err := rename.ParseOrder(orderFlag)
		if err != nil {
			return err
		}
		ws, err := stored(ctx)
		if err != nil {
			return err
		}
		defer ws.Close(ctx)

		plan, res, err := ws.Rename(ctx, projectID, args[0], order, dryRunFlag)
		if dryRunFlag && err == nil {
			for _, r := range plan {
				if r.Changed() {
					fmt.Printf("  %s -> %s\n", r.OldName, r.NewName)
				}
			}
			return nil
		}
		if err != nil {
			fmt.Printf("Renamed %d file(s) before stopping\n", res.Renamed)
			return err
		}
		fmt.Println(res.Summary())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a project's images and captions to a ZIP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		if layoutFlag == "" {
			layoutFlag = cfg.ExportLayout
		}
		layout, err := export.ParseLayout(layoutFlag)
		if err != nil {
			return err
		}
		compression, err := export.ParseCompression(compressionFlag)
		if err != nil {
			return err
		}
		ws, err := stored(ctx)
		if err != nil {
			return err
		}
		defer ws.Close(ctx)

		name := exportOut
		if name == "" {
			name = export.ArchiveName(projectID)
		}
		out, err := os.Create(name)
		if err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		sum, err := ws.Export(ctx, out, projectID, export.Options{Layout: layout, Compression: compression})
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close %s: %w", name, cerr)
		}
		if err != nil {
			os.Remove(name)
			return err
		}
		fmt.Printf("Wrote %s: %d image(s), %d caption(s)\n", name, sum.Images, sum.Captions)
		return nil
	},
}

func init() {
	projectsCmd.Flags().StringVar(&createFlag, "create", "", "Create a project with this name")
	projectsCmd.Flags().StringVar(&deleteFlag, "delete", "", "Delete the project with this ID")
	projectsCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Do not ask for confirmation")

	for _, c := range []*cobra.Command{ingestCmd, dupesCmd, renameCmd, exportCmd} {
		c.Flags().StringVarP(&projectID, "project", "p", "", "Project ID")
		c.MarkFlagRequired("project")
	}

	dupesCmd.Flags().StringVar(&strategyFlag, "strategy", "content", "Duplicate strategy: content or name")
	dupesCmd.Flags().BoolVar(&removeFlag, "remove", false, "Delete all but the first image of each group")
	dupesCmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Do not ask for confirmation")

	renameCmd.Flags().StringVar(&orderFlag, "order", "created", "Rename order: created, captured or name")
	renameCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Print the plan without renaming")

	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output ZIP path (default project-<id>.zip)")
	exportCmd.Flags().StringVar(&layoutFlag, "layout", "", "Archive layout: flat or split (default from config)")
	exportCmd.Flags().StringVar(&compressionFlag, "compression", "deflate", "Entry compression: deflate or zstd")
}
