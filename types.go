package main

import "time"

// AppName is used for the window title, tray tooltip and notifications.
const AppName = "Nooforge"

// AppVersion is shown in the tray tooltip and by "nooforge version".
const AppVersion = "0.4.0-dev"

// Origin tags where a raw candidate string entered the drop pipeline.
type Origin string

const (
	OriginDrop     Origin = "drop"     // DOM drop payload line
	OriginNative   Origin = "native"   // host-native drop notification
	OriginPaste    Origin = "paste"    // clipboard paste line
	OriginFallback Origin = "fallback" // contenteditable capture surface
	OriginPicker   Origin = "picker"   // native file dialog
)

// RawCandidate is an untyped path-like string captured from any ingress.
// It lives only until the batch it belongs to is flushed.
type RawCandidate struct {
	Text   string
	Origin Origin
	At     time.Time
}

// DropResult is what a flushed batch resolves to.
type DropResult struct {
	BatchID      string
	Path         string   // the single winning canonical path
	Alternatives []string // other canonical paths in the batch, discarded
	Candidates   int      // distinct raw strings that were in the batch
}

// IngestStatus is the status enum shown next to each ingestion panel.
type IngestStatus string

const (
	StatusIdle    IngestStatus = "idle"
	StatusLoading IngestStatus = "loading"
	StatusOK      IngestStatus = "ok"
	StatusError   IngestStatus = "error"
)

// IngestSnapshot is the observable state of one ingestion panel.
type IngestSnapshot struct {
	Busy   bool         `json:"busy"`
	Status IngestStatus `json:"status"`
	Title  string       `json:"title"`
	Result string       `json:"result"` // raw backend result or formatted error
	Input  string       `json:"input,omitempty"`
}

// DomDropPayload is the drop event's DataTransfer as serialised by the
// frontend drop surface.
type DomDropPayload struct {
	Types []string          `json:"types"`
	Data  map[string]string `json:"data"`  // standard slots: text/uri-list, text/plain, text
	Items []DomDropItem     `json:"items"` // items, string kinds already read via getAsString
}

// DomDropItem is one DataTransferItem.
type DomDropItem struct {
	Kind string `json:"kind"` // "string" or "file"
	Type string `json:"type"`
	Text string `json:"text"`
}
