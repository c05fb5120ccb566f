package universe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/dotcommander/continuity/internal/narrative"
	"github.com/dotcommander/continuity/internal/storage"
)

// FileBackend stores one JSON document per universe through a storage.Storage.
type FileBackend struct {
	store storage.Storage
}

func NewFileBackend(store storage.Storage) *FileBackend {
	return &FileBackend{store: store}
}

const (
	documentDir = "universes/"
	documentExt = ".json"
)

func documentKey(id string) string {
	return documentDir + url.PathEscape(id) + documentExt
}

func (f *FileBackend) Load(ctx context.Context, id string) (*narrative.NarrativeUniverse, error) {
	data, err := f.store.Load(ctx, documentKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading universe %s: %w", id, err)
	}
	return decode(data)
}

func (f *FileBackend) Save(ctx context.Context, u *narrative.NarrativeUniverse) error {
	data, err := encode(u)
	if err != nil {
		return err
	}
	if err := f.store.Save(ctx, documentKey(u.ID), data); err != nil {
		return fmt.Errorf("saving universe %s: %w", u.ID, err)
	}
	return nil
}

func (f *FileBackend) IDs(ctx context.Context) ([]string, error) {
	keys, err := f.store.List(ctx, documentDir+"*"+documentExt)
	if err != nil {
		return nil, fmt.Errorf("listing universes: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, err := url.PathUnescape(strings.TrimSuffix(strings.TrimPrefix(k, documentDir), documentExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func (f *FileBackend) Close() error { return nil }
