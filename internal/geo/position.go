package geo

// RepPosition pairs a rep with their latest fix for the live-location feed.
// Active is cleared on graceful sign-off instead of deleting the record.
type RepPosition struct {
	RepID  string `json:"repId"`
	Fix    Fix    `json:"fix"`
	Active bool   `json:"active"`
}
