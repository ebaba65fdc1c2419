package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fablereel/fablereel/internal/script"
)

var (
	scriptRoot    string
	scriptOutput  string
	scriptChapter string
)

func newScriptCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script <chapter.txt>",
		Short: "Generate a narration script from chapter text",
		Long: `Generate a narration script from a chapter text file.

The chapter is split into chunks that are rewritten concurrently by the
language model, then joined in order and written next to the source file
(or to --output).`,
		Args: cobra.ExactArgs(1),
		RunE: scriptCommandE,
	}

	cmd.Flags().StringVar(&scriptRoot, "root", ".", "Content root directory")
	cmd.Flags().StringVarP(&scriptOutput, "output", "o", "", "Output file (default: <chapter>_script.txt)")
	cmd.Flags().StringVar(&scriptChapter, "chapter-dir", "", "Chapter directory to seed with a scenes.json derived from the narration")

	return cmd
}

func scriptCommandE(cmd *cobra.Command, args []string) error {
	a, err := setup(scriptRoot)
	if err != nil {
		return err
	}
	defer a.close()

	source := args[0]
	text, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("failed to read chapter file: %w", err)
	}

	gen, err := script.NewGenerator(cmd.Context(), script.Config{
		APIKey:    a.cfg.Script.APIKey,
		Model:     a.cfg.Script.Model,
		ChunkSize: a.cfg.Script.ChunkSize,
		Workers:   a.cfg.Script.Workers,
	}, a.logger)
	if err != nil {
		return err
	}

	narration, err := gen.GenerateScript(cmd.Context(), string(text))
	if err != nil {
		return fmt.Errorf("script generation failed: %w", err)
	}

	out := scriptOutput
	if out == "" {
		base := source[:len(source)-len(filepath.Ext(source))]
		out = base + "_script.txt"
	}
	if err := os.WriteFile(out, []byte(narration), 0o644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	fmt.Printf("script written to %s\n", out)

	if scriptChapter != "" {
		if err := os.MkdirAll(scriptChapter, 0o755); err != nil {
			return fmt.Errorf("failed to create chapter directory: %w", err)
		}
		scenes := script.ScenesFromNarration(narration, a.cfg.Video.Duration)
		if err := script.WriteScenes(scriptChapter, scenes); err != nil {
			return err
		}
		fmt.Printf("%d scenes written to %s\n", len(scenes), scriptChapter)
	}
	return nil
}
