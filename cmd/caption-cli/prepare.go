package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/caption-studio/internal/config"
	"github.com/fpang/caption-studio/internal/dedupe"
	"github.com/fpang/caption-studio/internal/export"
	"github.com/fpang/caption-studio/internal/rename"
	"github.com/fpang/caption-studio/internal/status"
)

var (
	outFlag          string
	dedupeFlag       bool
	strategyFlag     string
	prefixFlag       string
	renameFlag       string
	orderFlag        string
	layoutFlag       string
	compressionFlag  string
	skipExistingFlag bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [directory]",
	Short: "Ingest a directory, clean it up and write a dataset ZIP",
	Long: `Prepare runs the full pipeline in memory: images and .txt captions are
paired by name, duplicates are optionally removed, a trigger prefix is
optionally added, files are optionally renumbered, and the result is written
as a ZIP. Nothing is stored.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrepare,
}

func init() {
	f := prepareCmd.Flags()
	f.StringVarP(&outFlag, "out", "o", "dataset.zip", "Output ZIP path")
	f.BoolVar(&dedupeFlag, "dedupe", false, "Remove duplicate images, keeping the first of each group")
	f.StringVar(&strategyFlag, "strategy", "content", "Duplicate strategy: content or name")
	f.StringVar(&prefixFlag, "prefix", "", "Prefix added to every caption (e.g. a trigger word)")
	f.BoolVar(&skipExistingFlag, "skip-existing", true, "Leave captions that already start with --prefix")
	f.StringVar(&renameFlag, "rename", "", "Renumber files as <base>_NNN")
	f.StringVar(&orderFlag, "order", "created", "Rename order: created, captured or name")
	f.StringVar(&layoutFlag, "layout", "", "Archive layout: flat or split (default from config)")
	f.StringVar(&compressionFlag, "compression", "deflate", "Entry compression: deflate or zstd")
}

func runPrepare(cmd *cobra.Command, args []string) error {
	start := time.Now()
	ctx := context.Background()

	strategy, err := dedupe.ParseStrategy(strategyFlag)
	if err != nil {
		return err
	}
	order, err := rename.ParseOrder(orderFlag)
	if err != nil {
		return err
	}
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

	items, err := scanItems(dirArg(args))
	if err != nil {
		return err
	}

	local := cfg
	local.Records = config.RecordsMemory
	local.Blobs = config.BlobsMemory
	ws, err := openWorkspace(ctx, &local)
	if err != nil {
		return err
	}
	defer ws.Close(ctx)

	p, err := ws.CreateProject(ctx, "prepare")
	if err != nil {
		return err
	}
	res, err := ws.Upload(ctx, p.ID, items)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary())
	for _, s := range res.Skipped {
		fmt.Printf("  skipped %s: %s\n", s.Filename, s.Reason)
	}
	if pending, _ := ws.Pending(ctx, p.ID); len(pending) > 0 {
		fmt.Printf("  %d caption(s) had no matching image\n", len(pending))
	}

	if dedupeFlag {
		removed, err := ws.RemoveDuplicates(ctx, p.ID, strategy)
		switch {
		case status.IsNoOp(err):
			fmt.Println(status.Message(err))
		case err != nil:
			return err
		default:
			fmt.Println(dedupe.Summary(removed))
		}
	}

	if prefixFlag != "" {
		n, err := ws.AddPrefix(ctx, p.ID, nil, prefixFlag, skipExistingFlag)
		switch {
		case status.IsNoOp(err):
			fmt.Println(status.Message(err))
		case err != nil:
			return err
		default:
			fmt.Printf("Prefixed %d caption(s)\n", n)
		}
	}

	if renameFlag != "" {
		_, rres, err := ws.Rename(ctx, p.ID, renameFlag, order, false)
		if err != nil {
			return err
		}
		fmt.Println(rres.Summary())
	}

	out, err := os.Create(outFlag)
	if err != nil {
		return fmt.Errorf("create %s: %w", outFlag, err)
	}
	sum, err := ws.Export(ctx, out, p.ID, export.Options{Layout: layout, Compression: compression})
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", outFlag, cerr)
	}
	if err != nil {
		os.Remove(outFlag)
		return err
	}
	fmt.Printf("Wrote %s: %d image(s), %d caption(s)\n", outFlag, sum.Images, sum.Captions)
	printElapsed(start)
	return nil
}
