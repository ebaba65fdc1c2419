package script

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenesFilename is the per-chapter scene list consumed by job submission.
const ScenesFilename = "scenes.json"

// Scene is one visual beat of a chapter: the prompt that renders its image
// and, for video, how long the clip should run.
type Scene struct {
	Index           int    `json:"index"`
	Prompt          string `json:"prompt"`
	Narration       string `json:"narration,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// ScenesFromNarration derives an initial scene list from narration text,
// one scene per paragraph. The narration doubles as the starting prompt;
// authors refine prompts in scenes.json afterwards.
func ScenesFromNarration(narration string, durationSeconds int) []Scene {
	var scenes []Scene
	for _, para := range strings.Split(narration, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		scenes = append(scenes, Scene{
			Index:           len(scenes) + 1,
			Prompt:          para,
			Narration:       para,
			DurationSeconds: durationSeconds,
		})
	}
	return scenes
}

// LoadScenes reads a chapter's scene list, sorted by index.
func LoadScenes(dir string) ([]Scene, error) {
	path := filepath.Join(dir, ScenesFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var scenes []Scene
	if err := json.Unmarshal(data, &scenes); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Index < scenes[j].Index })
	return scenes, nil
}

// WriteScenes writes a chapter's scene list.
func WriteScenes(dir string, scenes []Scene) error {
	data, err := json.MarshalIndent(scenes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode scenes: %w", err)
	}
	path := filepath.Join(dir, ScenesFilename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
