package main

// Event names pushed to the frontend through the Wails runtime.
const (
	EventFileStatus  = "ingest:file-status"
	EventTextStatus  = "ingest:text-status"
	EventChannelMode = "dnd:channel"
	EventCaptureRead = "dnd:capture-read"
	EventBackendURL  = "backend:url"
)

// eventSink publishes one event to the frontend. It is nil in headless runs.
type eventSink func(name string, data ...any)

// emit is nil-safe. It runs synchronously so status events keep their order.
func (s eventSink) emit(name string, data ...any) {
	if s != nil {
		s(name, data...)
	}
}

func (s eventSink) fileStatus(snap IngestSnapshot) {
	s.emit(EventFileStatus, snap)
}

func (s eventSink) textStatus(snap IngestSnapshot) {
	s.emit(EventTextStatus, snap)
}

func (s eventSink) channelMode(mode ChannelMode) {
	s.emit(EventChannelMode, mode.String())
}
