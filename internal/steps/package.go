package steps

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"

	"github.com/aristath/docforge/internal/orchestrator"
	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/workspace"
)

// PackageStep bundles the documents into a ZIP archive and completes the task.
type PackageStep struct {
	deps Deps
}

func (s *PackageStep) Name() string { return "Package deliverables" }

func (s *PackageStep) Run(ctx context.Context, taskID string, pc *project.Context) (orchestrator.Outcome, error) {
	if len(pc.OutputFiles) == 0 {
		return orchestrator.Failed("no downloadable files were generated"), nil
	}

	rel := path.Join(workspace.DocsPath, documentName(pc.SoftwareName)+"_软著材料.zip")
	if err := s.bundle(taskID, rel, pc.OutputFiles); err != nil {
		return orchestrator.Outcome{}, err
	}
	if err := ctx.Err(); err != nil {
		return orchestrator.Outcome{}, err
	}

	files := maps.Clone(pc.OutputFiles)
	files[DocBundle] = rel
	pc.OutputFiles = files

	s.deps.Completer.CompleteTask(taskID, files)
	return orchestrator.Succeeded("packaging complete"), nil
}

// bundle writes every document of docs into the archive at rel under its base name.
func (s *PackageStep) bundle(taskID, rel string, docs map[string]string) error {
	dest, err := s.deps.Workspace.Resolve(taskID, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create bundle directory: %w", err)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, key := range sortedKeys(docs) {
		if key == DocBundle {
			continue
		}
		if err := s.addFile(zw, taskID, docs[key]); err != nil {
			zw.Close()
			return fmt.Errorf("failed to add %s to bundle: %w", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finish bundle: %w", err)
	}
	return out.Close()
}

func (s *PackageStep) addFile(zw *zip.Writer, taskID, rel string) error {
	src, err := s.deps.Workspace.Resolve(taskID, rel)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.CreateHeader(&zip.FileHeader{Name: path.Base(rel), Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
