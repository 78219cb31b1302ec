package models

import "time"

type Trip struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	CoverURL    string     `json:"cover_url,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (x Trip) EntityID() string { return x.ID }
func (x Trip) Kind() EntityKind { return KindTrip }

type Location struct {
	ID        string   `json:"id"`
	TripID    string   `json:"trip_id"`
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

func (x Location) EntityID() string { return x.ID }
func (x Location) Kind() EntityKind { return KindLocation }

// HasCoordinates reports whether both coordinates are set.
func (x Location) HasCoordinates() bool {
	return x.Latitude != nil && x.Longitude != nil
}

type Activity struct {
	ID         string     `json:"id"`
	TripID     string     `json:"trip_id"`
	LocationID string     `json:"location_id,omitempty"`
	Title      string     `json:"title"`
	StartsAt   *time.Time `json:"starts_at,omitempty"`
	EndsAt     *time.Time `json:"ends_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

func (x Activity) EntityID() string { return x.ID }
func (x Activity) Kind() EntityKind { return KindActivity }

type Transportation struct {
	ID        string     `json:"id"`
	TripID    string     `json:"trip_id"`
	Mode      string     `json:"mode"`
	From      string     `json:"from"`
	To        string     `json:"to"`
	DepartsAt *time.Time `json:"departs_at,omitempty"`
	ArrivesAt *time.Time `json:"arrives_at,omitempty"`
	Reference string     `json:"reference,omitempty"`
}

func (x Transportation) EntityID() string { return x.ID }
func (x Transportation) Kind() EntityKind { return KindTransportation }

type Lodging struct {
	ID           string     `json:"id"`
	TripID       string     `json:"trip_id"`
	Name         string     `json:"name"`
	Address      string     `json:"address,omitempty"`
	CheckIn      *time.Time `json:"check_in,omitempty"`
	CheckOut     *time.Time `json:"check_out,omitempty"`
	Confirmation string     `json:"confirmation,omitempty"`
}

func (x Lodging) EntityID() string { return x.ID }
func (x Lodging) Kind() EntityKind { return KindLodging }

type JournalEntry struct {
	ID        string    `json:"id"`
	TripID    string    `json:"trip_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	EntryDate time.Time `json:"entry_date"`
}

func (x JournalEntry) EntityID() string { return x.ID }
func (x JournalEntry) Kind() EntityKind { return KindJournal }

type Photo struct {
	ID           string     `json:"id"`
	TripID       string     `json:"trip_id"`
	AlbumID      string     `json:"album_id,omitempty"`
	Caption      string     `json:"caption,omitempty"`
	URL          string     `json:"url"`
	ThumbnailURL string     `json:"thumbnail_url,omitempty"`
	Latitude     *float64   `json:"latitude,omitempty"`
	Longitude    *float64   `json:"longitude,omitempty"`
	TakenAt      *time.Time `json:"taken_at,omitempty"`
}

func (x Photo) EntityID() string { return x.ID }
func (x Photo) Kind() EntityKind { return KindPhoto }

type PhotoAlbum struct {
	ID       string   `json:"id"`
	TripID   string   `json:"trip_id"`
	Title    string   `json:"title"`
	PhotoIDs []string `json:"photo_ids,omitempty"`
}

func (x PhotoAlbum) EntityID() string { return x.ID }
func (x PhotoAlbum) Kind() EntityKind { return KindPhotoAlbum }

// TripData is everything cached for one trip besides the trip record.
type TripData struct {
	Locations      []Location       `json:"locations"`
	Activities     []Activity       `json:"activities"`
	Transportation []Transportation `json:"transportation"`
	Lodging        []Lodging        `json:"lodging"`
	Journals       []JournalEntry   `json:"journals"`
	Photos         []Photo          `json:"photos"`
	Albums         []PhotoAlbum     `json:"albums"`
}

// Entities flattens d in kind order.
func (d TripData) Entities() []Entity {
	out := make([]Entity, 0, len(d.Locations)+len(d.Activities)+len(d.Transportation)+
		len(d.Lodging)+len(d.Journals)+len(d.Photos)+len(d.Albums))
	for _, v := range d.Locations {
		out = append(out, v)
	}
	for _, v := range d.Activities {
		out = append(out, v)
	}
	for _, v := range d.Transportation {
		out = append(out, v)
	}
	for _, v := range d.Lodging {
		out = append(out, v)
	}
	for _, v := range d.Journals {
		out = append(out, v)
	}
	for _, v := range d.Photos {
		out = append(out, v)
	}
	for _, v := range d.Albums {
		out = append(out, v)
	}
	return out
}
