package controller

import "djmaow/models"

// Queue is the ordered list of tracks waiting to play. Positions taken by its
// methods are 1-based. It does no locking; the Session serializes access.
type Queue struct {
	items []models.Track
}

func (q *Queue) Append(tracks ...models.Track) {
	q.items = append(q.items, tracks...)
}

func (q *Queue) PopFront() (models.Track, bool) {
	if len(q.items) == 0 {
		return models.Track{}, false
	}
	next := q.items[0]
	q.items[0] = models.Track{}
	q.items = q.items[1:]
	return next, true
}

// RemoveAt removes the track at position, shifting later tracks left.
func (q *Queue) RemoveAt(position int) (models.Track, bool) {
	if position < 1 || position > len(q.items) {
		return models.Track{}, false
	}
	removed := q.items[position-1]
	q.items = append(q.items[:position-1], q.items[position:]...)
	return removed, true
}

// SkipForward discards the position-1 tracks in front of position so that
// it becomes the head of the queue.
func (q *Queue) SkipForward(position int) bool {
	if position < 1 || position-1 >= len(q.items) {
		return false
	}
	q.items = q.items[position-1:]
	return true
}

func (q *Queue) Clear() {
	q.items = nil
}

func (q *Queue) Len() int {
	return len(q.items)
}

// Snapshot returns a copy of the queue in play order.
func (q *Queue) Snapshot() []models.Track {
	snapshot := make([]models.Track, len(q.items))
	copy(snapshot, q.items)
	return snapshot
}
