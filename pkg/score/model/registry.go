package model

import "path/filepath"

// Info holds metadata for one end-of-utterance model revision.
type Info struct {
	Name     string
	Repo     string
	Revision string
	Size     int64
	Files    []string
}

var (
	// EnglishModel is the compact English-only EOU model.
	EnglishModel = Info{
		Name:     "english",
		Repo:     "livekit/turn-detector",
		Revision: "v1.2.2-en",
		Size:     66 * 1024 * 1024,
		Files: []string{
			"onnx/model_q8.onnx",
			"tokenizer.json",
		},
	}

	// MultilingualModel covers the full language set at ~4x the size.
	MultilingualModel = Info{
		Name:     "multilingual",
		Repo:     "livekit/turn-detector",
		Revision: "v0.3.0-intl",
		Size:     281 * 1024 * 1024,
		Files: []string{
			"onnx/model_q8.onnx",
			"tokenizer.json",
		},
	}

	// AllModels enumerates every model the downloader handles.
	AllModels = []Info{EnglishModel, MultilingualModel}
)

// Path returns the directory where a revision is stored.
func Path(basePath, revision string) string {
	return filepath.Join(basePath, "eou", revision)
}

// FilePath returns the absolute path to a specific file of a revision.
func FilePath(basePath, revision, filename string) string {
	return filepath.Join(Path(basePath, revision), filename)
}
