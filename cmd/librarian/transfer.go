package main

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/librarian-dev/librarian/internal/errs"
)

// workspacePlaceholder stands in for the source workspace's absolute path
// inside an export archive, per spec.md §6's round-trip law: paths are
// rewritten to the placeholder on export and back to the target workspace's
// absolute path on import.
const workspacePlaceholder = "<workspace>"

type exportManifest struct {
	FormatVersion int       `json:"formatVersion"`
	ExportedAt    time.Time `json:"exportedAt"`
	SourceMarker  string    `json:"sourceMarker"`
}

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a relocatable gzipped tarball of the workspace's .librarian state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if !isBootstrapped(ws) {
			return errs.Wrap(errs.KindNotBootstrapped, "nothing to export: workspace not bootstrapped", nil)
		}

		out := exportOutput
		if out == "" {
			out = filepath.Join(ws, "librarian-export.tar.gz")
		}

		if err := writeExportArchive(ws, out); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "export failed", err)
		}

		return printResult(map[string]interface{}{"archive": out}, func() {
			fmt.Printf("exported %s\n", out)
		})
	},
}

var importSourceArchive string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore a workspace's .librarian state from an export archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if importSourceArchive == "" {
			return errs.Wrap(errs.KindInvalidArgument, "--archive is required", nil)
		}
		if isBootstrapped(ws) && !confirm(fmt.Sprintf("Workspace %s already has an index; overwrite it?", ws)) {
			return errs.Wrap(errs.KindCancelled, "import cancelled by operator", nil)
		}

		if err := readImportArchive(importSourceArchive, ws); err != nil {
			return errs.Wrap(errs.KindValidationFailed, "import failed", err)
		}

		return printResult(map[string]interface{}{"workspace": ws}, func() {
			fmt.Printf("imported into %s\n", ws)
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output archive path (default: <workspace>/librarian-export.tar.gz)")
	importCmd.Flags().StringVar(&importSourceArchive, "archive", "", "Path to a previously exported archive")
}

func writeExportArchive(ws, out string) error {
	stateDir := filepath.Join(ws, ".librarian")

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	manifest, err := json.Marshal(exportManifest{
		FormatVersion: 1,
		ExportedAt:    time.Now(),
		SourceMarker:  workspacePlaceholder,
	})
	if err != nil {
		return err
	}
	if err := tw.WriteHeader(&tar.Header{Name: "manifest.json", Size: int64(len(manifest)), Mode: 0644}); err != nil {
		return err
	}
	if _, err := tw.Write(manifest); err != nil {
		return err
	}

	return filepath.Walk(stateDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(stateDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		// The advisory lock directory is a live concurrency primitive, not
		// durable state: it is never part of an export.
		if rel == "lock" || strings.HasPrefix(rel, "lock"+string(filepath.Separator)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if rel == "config.yaml" {
			content = []byte(strings.ReplaceAll(string(content), ws, workspacePlaceholder))
		}

		if err := tw.WriteHeader(&tar.Header{Name: filepath.Join("librarian", rel), Size: int64(len(content)), Mode: 0644}); err != nil {
			return err
		}
		_, err = tw.Write(content)
		return err
	})
}

func readImportArchive(archivePath, targetWorkspace string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream: %w", err)
	}
	defer gz.Close()
	tr := tar.NewReader(gz)

	destDir := filepath.Join(targetWorkspace, ".librarian")
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to prepare destination: %w", err)
	}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive entry: %w", err)
		}
		if hdr.Name == "manifest.json" {
			continue
		}
		rel := strings.TrimPrefix(hdr.Name, "librarian"+string(filepath.Separator))
		if rel == hdr.Name {
			continue // skip anything outside the librarian/ prefix
		}

		content, err := io.ReadAll(tr)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", hdr.Name, err)
		}
		if rel == "config.yaml" {
			content = []byte(strings.ReplaceAll(string(content), workspacePlaceholder, targetWorkspace))
		}

		dest := filepath.Join(destDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(dest, content, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
	}
}
