package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Archive is the published dataset dump format: voxel grid dimensions plus
// one record per study.
type Archive struct {
	Dims    [3]int         `json:"dims"`
	Studies []ArchiveStudy `json:"studies"`
}

type ArchiveStudy struct {
	ID       string             `json:"id"`
	Features map[string]float64 `json:"features"`
	Image    []float64          `json:"image"`
}

// Fetcher downloads dataset archives over HTTP.
type Fetcher struct {
	rest *resty.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	return &Fetcher{rest: r}
}

// FetchArchive downloads the archive at url to dest.
func (f *Fetcher) FetchArchive(ctx context.Context, url, dest string) error {
	resp, err := f.rest.R().
		SetContext(ctx).
		SetOutput(dest).
		Get(url)
	if err != nil {
		return fmt.Errorf("fetch dataset archive: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch dataset archive: %s returned %s", url, resp.Status())
	}
	log.Info().Str("url", url).Str("dest", dest).Msg("dataset archive downloaded")
	return nil
}

// ImportArchive loads a downloaded archive file into the store.
func ImportArchive(s *Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read dataset archive %s: %w", path, err)
	}
	var arc Archive
	if err := json.Unmarshal(data, &arc); err != nil {
		return fmt.Errorf("parse dataset archive %s: %w", path, err)
	}
	if err := s.SetDims(arc.Dims); err != nil {
		return err
	}
	for _, study := range arc.Studies {
		if err := s.AddStudy(study.ID, study.Features, study.Image); err != nil {
			return err
		}
	}
	log.Info().Int("studies", len(arc.Studies)).Str("path", path).Msg("dataset archive imported")
	return nil
}
