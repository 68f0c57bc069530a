package domain

// Listing is the read-only view of a rentable unit needed to price and
// authorize bookings.
type Listing struct {
	ID          string
	LandlordID  string
	Title       string
	NightlyRate int64
	Currency    string
	MaxGuests   int
	Active      bool
}
