// Command caption-cli prepares captioned image datasets from the terminal.
//
// "prepare" runs the whole pipeline offline on a directory and writes a ZIP.
// The project subcommands work on stored projects and need durable backends
// (--records dynamo with --blobs s3 or dir).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/caption-studio/internal/boot"
	"github.com/fpang/caption-studio/internal/cli"
	"github.com/fpang/caption-studio/internal/config"
	"github.com/fpang/caption-studio/internal/filehandler"
	"github.com/fpang/caption-studio/internal/ingest"
	"github.com/fpang/caption-studio/internal/logging"
	"github.com/fpang/caption-studio/internal/workspace"
)

var (
	cfg       config.Config
	maxDepth  int
	limit     int
	projectID string
)

var rootCmd = &cobra.Command{
	Use:   "caption-cli",
	Short: "Prepare captioned image datasets",
	Long: `Caption CLI ingests directories of images and .txt captions, pairs them
by file name, finds duplicates, renumbers files and exports ZIP archives.

Examples:
  caption-cli prepare ./photos --out dataset.zip --dedupe --rename shot
  caption-cli projects --records dynamo --table captions --blobs s3 --bucket media
  caption-cli ingest ./more-photos --project <id> --records dynamo ...`,
	SilenceUsage: true,
}

func init() {
	logging.Init()

	var err error
	cfg, err = config.FromEnv(os.Getenv)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid environment configuration")
	}
	pf := rootCmd.PersistentFlags()
	cfg.BindStorageFlags(pf)
	cfg.BindIngestFlags(pf)
	pf.IntVar(&maxDepth, "max-depth", 0, "Maximum recursion depth when scanning (0 = unlimited)")
	pf.IntVar(&limit, "limit", 0, "Maximum files to read from a directory (0 = unlimited)")

	rootCmd.AddCommand(prepareCmd, projectsCmd, ingestCmd, dupesCmd, renameCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openWorkspace validates cfg and opens the configured backends.
func openWorkspace(ctx context.Context, c *config.Config) (*workspace.Workspace, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	backends, err := boot.Open(ctx, c)
	if err != nil {
		return nil, err
	}
	return boot.NewWorkspace(c, backends), nil
}

// requireDurable rejects the in-memory record store for commands whose
// results must outlive the process.
func requireDurable(c *config.Config) error {
	if c.Records == config.RecordsMemory || c.Blobs == config.BlobsMemory {
		return fmt.Errorf("this command needs durable storage; set --records dynamo and --blobs s3 or dir")
	}
	return nil
}

// scanItems reads a directory into upload items, captions first.
func scanItems(dir string) ([]ingest.UploadItem, error) {
	dir, err := cli.ResolveDirectory(dir)
	if err != nil {
		return nil, err
	}
	files, err := filehandler.ScanDirectoryWithOptions(dir, filehandler.ScanOptions{
		MaxDepth:        maxDepth,
		Limit:           limit,
		IncludeCaptions: true,
	})
	if err != nil {
		return nil, err
	}
	items := make([]ingest.UploadItem, 0, len(files))
	for _, f := range files {
		it, err := ingest.FromFile(f.Path)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// dirArg returns args[0] or asks for a directory interactively.
func dirArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return cli.PromptForDirectory(os.Stdin, os.Stdout)
}

func printElapsed(start time.Time) {
	fmt.Printf("Done in %s\n", cli.FormatDurationShort(time.Since(start)))
}
