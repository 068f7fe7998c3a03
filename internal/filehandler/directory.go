package filehandler

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// MediaFile is one dataset file found on disk.
type MediaFile struct {
	Path     string
	MIMEType string
	Size     int64
	Kind     Kind
}

// ScanOptions configures directory scanning behavior.
type ScanOptions struct {
	// MaxDepth limits recursion depth. 0 = unlimited, 1 = top-level only.
	MaxDepth int

	// Limit caps the number of files returned. 0 = unlimited.
	Limit int

	// IncludeCaptions adds .txt sidecar files to the result.
	IncludeCaptions bool
}

// ScanDirectory scans a directory for images and caption files.
func ScanDirectory(dirPath string) ([]*MediaFile, error) {
	return ScanDirectoryWithOptions(dirPath, ScanOptions{IncludeCaptions: true})
}

// ScanDirectoryWithOptions scans a directory for dataset files with
// configurable options. Recursive scanning is enabled by default (MaxDepth=0
// means unlimited). Symlinks to files are followed; symlinks to directories
// are skipped to prevent loops. Hidden files are ignored.
//
// Files are sorted with captions first and then by path, so a caption is
// always staged before its image is ingested from the same scan.
func ScanDirectoryWithOptions(dirPath string, opts ScanOptions) ([]*MediaFile, error) {
	log.Info().
		Str("path", dirPath).
		Int("max_depth", opts.MaxDepth).
		Int("limit", opts.Limit).
		Bool("captions", opts.IncludeCaptions).
		Msg("Scanning directory for dataset files")

	info, err := os.Stat(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("directory not found: %s", dirPath)
		}
		return nil, fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", dirPath)
	}

	// Convert to absolute path for consistent depth calculation
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	baseDepth := strings.Count(absPath, string(os.PathSeparator))

	var files []*MediaFile
	var imageCount, captionCount int
	limitReached := false

	err = filepath.WalkDir(absPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Error accessing path, skipping")
			return nil
		}

		if opts.MaxDepth > 0 {
			currentDepth := strings.Count(path, string(os.PathSeparator)) - baseDepth
			if d.IsDir() && currentDepth >= opts.MaxDepth {
				return fs.SkipDir
			}
		}

		if d.IsDir() {
			if path != absPath && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		// Follow file symlinks, skip directory symlinks
		if d.Type()&fs.ModeSymlink != 0 {
			targetInfo, err := os.Stat(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to stat symlink target, skipping")
				return nil
			}
			if targetInfo.IsDir() {
				log.Debug().Str("path", path).Msg("Skipping symlink to directory")
				return nil
			}
		}

		kind := Classify(d.Name(), "")
		switch kind {
		case KindImage:
		case KindCaption:
			if !opts.IncludeCaptions {
				return nil
			}
		default:
			return nil
		}

		if opts.Limit > 0 && len(files) >= opts.Limit {
			limitReached = true
			return fs.SkipAll
		}

		fi, err := os.Stat(path)
		if err != nil {
			log.Warn().Err(err).Str("file", d.Name()).Msg("Failed to stat file, skipping")
			return nil
		}
		mimeType, _ := GetMIMEType(filepath.Ext(d.Name()))

		if kind == KindImage {
			imageCount++
		} else {
			captionCount++
		}
		files = append(files, &MediaFile{
			Path:     path,
			MIMEType: mimeType,
			Size:     fi.Size(),
			Kind:     kind,
		})
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].Kind != files[j].Kind {
			return files[i].Kind == KindCaption
		}
		return files[i].Path < files[j].Path
	})

	logEvent := log.Info().
		Int("total_files", len(files)).
		Int("images", imageCount).
		Int("captions", captionCount).
		Str("directory", dirPath)

	if limitReached {
		logEvent.Bool("limit_reached", true)
	}

	logEvent.Msg("Directory scan complete")

	return files, nil
}
