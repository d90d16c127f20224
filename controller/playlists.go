package controller

import "djmaow/models"

type PlaylistAction int

const (
	// PlaylistUntracked means the track's playlist has no progress record.
	PlaylistUntracked PlaylistAction = iota
	// PlaylistAdvanced means the record moved forward and needs nothing else.
	PlaylistAdvanced
	// PlaylistExhausted means the record reached its last track and was removed.
	PlaylistExhausted
	// PlaylistFetchNext means the consumer crossed a page boundary and the
	// next page should be fetched.
	PlaylistFetchNext
)

func (a PlaylistAction) String() string {
	switch a {
	case PlaylistAdvanced:
		return "advanced"
	case PlaylistExhausted:
		return "exhausted"
	case PlaylistFetchNext:
		return "fetch-next"
	default:
		return "untracked"
	}
}

// PlaylistTable holds the progress of every playlist with tracks still queued
// or playing.
type PlaylistTable struct {
	records map[string]*models.PlaylistProgress
}

func NewPlaylistTable() *PlaylistTable {
	return &PlaylistTable{records: make(map[string]*models.PlaylistProgress)}
}

// Track starts tracking progress, replacing any earlier record for the id.
func (t *PlaylistTable) Track(progress *models.PlaylistProgress) {
	t.records[progress.ID] = progress
}

func (t *PlaylistTable) Get(id string) (*models.PlaylistProgress, bool) {
	progress, ok := t.records[id]
	return progress, ok
}

func (t *PlaylistTable) Remove(id string) {
	delete(t.records, id)
}

func (t *PlaylistTable) Clear() {
	clear(t.records)
}

func (t *PlaylistTable) Len() int {
	return len(t.records)
}

// Advance records that one more track of playlist id was consumed.
func (t *PlaylistTable) Advance(id string) (PlaylistAction, *models.PlaylistProgress) {
	if id == "" {
		return PlaylistUntracked, nil
	}
	progress, ok := t.records[id]
	if !ok {
		return PlaylistUntracked, nil
	}

	progress.CurrentIndex++
	if progress.CurrentIndex >= progress.TotalSongs-1 {
		delete(t.records, id)
		return PlaylistExhausted, progress
	}
	if progress.AutoFetch && progress.VideosPerPage > 0 &&
		progress.CurrentIndex%progress.VideosPerPage == 0 {
		return PlaylistFetchNext, progress
	}
	return PlaylistAdvanced, progress
}
