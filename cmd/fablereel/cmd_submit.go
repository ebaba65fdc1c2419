package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/fablereel/fablereel/internal/script"
	"github.com/fablereel/fablereel/internal/task"
)

var (
	submitRoot    string
	submitKind    string
	submitChapter string
)

func newSubmitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit generation jobs for chapter scenes",
		Long: `Submit image or video generation jobs for every scene of a chapter.

Each chapter directory carries a scenes.json listing its visual beats.
For images, one job is submitted per scene. For videos, each scene's
rendered image is animated into a clip. Scenes whose artifact already
exists are skipped, so resubmitting a chapter is safe.`,
		RunE: submitCommandE,
	}

	cmd.Flags().StringVar(&submitRoot, "root", ".", "Content root directory")
	cmd.Flags().StringVar(&submitKind, "kind", "image", "Job kind: image or video")
	cmd.Flags().StringVar(&submitChapter, "chapter", "", "Submit only this chapter (default: all)")

	return cmd
}

func submitCommandE(cmd *cobra.Command, args []string) error {
	kind := task.Kind(submitKind)
	if kind != task.KindImage && kind != task.KindVideo {
		return fmt.Errorf("invalid kind %q: must be image or video", submitKind)
	}

	a, err := setup(submitRoot)
	if err != nil {
		return err
	}
	defer a.close()

	services, err := a.services()
	if err != nil {
		return err
	}
	submitter := task.NewSubmitter(a.store, services, task.SubmitterConfig{
		MaxRetries:     a.cfg.Poll.SubmitRetries,
		RetryBaseDelay: a.cfg.Poll.SubmitRetryDelay,
	}, a.logger)

	units, err := discoverUnits(submitRoot, false)
	if err != nil {
		return err
	}

	var submitted, skipped int
	for _, unit := range units {
		if submitChapter != "" && unit.Name != submitChapter {
			continue
		}
		s, k, err := submitUnit(cmd, submitter, unit, kind, a)
		if err != nil {
			return err
		}
		submitted += s
		skipped += k
	}

	fmt.Printf("submitted %d jobs, skipped %d existing artifacts\n", submitted, skipped)
	return nil
}

// submitUnit submits one job per scene of the unit, skipping scenes whose
// artifact already exists on disk.
func submitUnit(cmd *cobra.Command, submitter *task.Submitter, unit task.WorkUnit, kind task.Kind, a *app) (int, int, error) {
	scenes, err := script.LoadScenes(unit.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn("unit has no scene list, skipping", "unit", unit.Name)
			return 0, 0, nil
		}
		return 0, 0, err
	}
	if err := unit.EnsureLayout(); err != nil {
		return 0, 0, err
	}

	var submitted, skipped int
	for _, scene := range scenes {
		filename := artifactName(unit.Name, kind, scene.Index)
		outputPath := unit.ArtifactPath(filename)

		if _, err := os.Stat(outputPath); err == nil {
			skipped++
			continue
		}

		in := task.JobInput{
			Unit:       unit.Key,
			Kind:       kind,
			OutputPath: outputPath,
			Filename:   filename,
			Inputs: task.Inputs{
				Prompt: scene.Prompt,
			},
		}
		if kind == task.KindVideo {
			in.Inputs.ImageRef = unit.ArtifactPath(artifactName(unit.Name, task.KindImage, scene.Index))
			in.Inputs.DurationSeconds = scene.DurationSeconds
			if in.Inputs.DurationSeconds == 0 {
				in.Inputs.DurationSeconds = a.cfg.Video.Duration
			}
		}

		d, err := submitter.Submit(cmd.Context(), in)
		if err != nil {
			return submitted, skipped, fmt.Errorf("failed to submit scene %d of %s: %w",
				scene.Index, unit.Name, err)
		}
		fmt.Printf("%s scene %d -> task %s\n", unit.Name, scene.Index, d.TaskID)
		submitted++
	}
	return submitted, skipped, nil
}

// artifactName builds the on-disk name for a scene's artifact.
func artifactName(unit string, kind task.Kind, index int) string {
	if kind == task.KindVideo {
		return fmt.Sprintf("%s_video_%d.mp4", unit, index)
	}
	return fmt.Sprintf("%s_image_%02d.jpeg", unit, index)
}
