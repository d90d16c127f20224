package audio

type PlaybackNotificationType string

const (
	PlaybackStarted PlaybackNotificationType = "started"
	PlaybackPaused  PlaybackNotificationType = "paused"
	PlaybackResumed PlaybackNotificationType = "resumed"
	PlaybackError   PlaybackNotificationType = "error"
	// PlaybackIdle is sent once per resource when it stops producing audio,
	// whether it finished, failed or was stopped.
	PlaybackIdle PlaybackNotificationType = "idle"
)

type PlaybackNotification struct {
	Event    PlaybackNotificationType
	Resource *Resource
	Error    error
}
