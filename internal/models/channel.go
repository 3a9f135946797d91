package models

// Channel is a catalog entry. Number is the navigation key; the remaining
// fields are display payload copied verbatim into the current-channel pointer.
type Channel struct {
	Number int64   `json:"number"`
	Name   string  `json:"name"`
	Logo   *string `json:"logo,omitempty"`
	URL    string  `json:"url,omitempty"`
	Group  *string `json:"group,omitempty"`
}
