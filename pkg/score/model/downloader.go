package model

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

// Downloader fetches EOU model files from the hosting repo.
type Downloader struct {
	modelPath string
	client    *http.Client
}

// NewDownloader creates a downloader rooted at modelPath (default path if empty).
func NewDownloader(modelPath string) *Downloader {
	if modelPath == "" {
		modelPath = DefaultModelPath()
	}
	return &Downloader{modelPath: modelPath, client: &http.Client{}}
}

// DownloadAll downloads every known model.
func (d *Downloader) DownloadAll() error {
	for _, m := range AllModels {
		if err := d.Download(m); err != nil {
			return fmt.Errorf("failed to download model %s: %w", m.Name, err)
		}
	}
	return nil
}

// Download fetches one model's files, skipping files already present.
func (d *Downloader) Download(m Info) error {
	dir := Path(d.modelPath, m.Revision)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	for _, name := range m.Files {
		dest := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return fmt.Errorf("failed to create directories for %s: %w", name, err)
		}
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		url := fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", m.Repo, m.Revision, name)
		if err := d.fetch(url, dest); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
	}
	return nil
}

func (d *Downloader) fetch(url, dest string) error {
	resp, err := d.client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
