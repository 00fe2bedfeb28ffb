package models

// Stats is a point-in-time count of session documents.
type Stats struct {
	Total   int64 `json:"total"`
	Active  int64 `json:"active"`
	Expired int64 `json:"expired"`
	// Cutoff is the unix timestamp the active/expired split was computed against.
	Cutoff int64 `json:"cutoff"`
}
