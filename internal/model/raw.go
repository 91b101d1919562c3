package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RawDate is a date field as it arrives from the store: text in one of the
// accepted encodings, or a timestamp (Firestore {seconds,nanoseconds}
// object, or Unix milliseconds).
type RawDate struct {
	Text string
	Time *time.Time
}

func TextDate(s string) RawDate { return RawDate{Text: s} }

func TimeDate(t time.Time) RawDate { return RawDate{Time: &t} }

func (d RawDate) IsZero() bool {
	return d.Text == "" && d.Time == nil
}

type firestoreTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

// UnmarshalJSON never fails on an unexpected shape; the field just stays
// empty and the normalizer treats it as missing.
func (d *RawDate) UnmarshalJSON(b []byte) error {
	*d = RawDate{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			d.Text = s
		}
	case '{':
		var ts firestoreTimestamp
		if err := json.Unmarshal(b, &ts); err != nil {
			return nil
		}
		switch {
		case ts.Seconds != nil:
			t := time.Unix(*ts.Seconds, ts.Nanoseconds).UTC()
			d.Time = &t
		case ts.USeconds != nil:
			t := time.Unix(*ts.USeconds, ts.UNanoseconds).UTC()
			d.Time = &t
		}
	default:
		var ms float64
		if err := json.Unmarshal(b, &ms); err == nil {
			t := time.UnixMilli(int64(ms)).UTC()
			d.Time = &t
		}
	}
	return nil
}

func (d RawDate) MarshalJSON() ([]byte, error) {
	switch {
	case d.Text != "":
		return json.Marshal(d.Text)
	case d.Time != nil:
		return []byte(fmt.Sprintf(`{"seconds":%d,"nanoseconds":%d}`, d.Time.Unix(), d.Time.Nanosecond())), nil
	}
	return []byte("null"), nil
}

// RawEvent mirrors a stored event document. Field names follow the
// document schema of the community app.
type RawEvent struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Location        string   `json:"location,omitempty"`
	StartDate       RawDate  `json:"startDate,omitzero"`
	EndDate         RawDate  `json:"endDate,omitzero"`
	Date            RawDate  `json:"date,omitzero"`
	TimeFrom        string   `json:"timeFrom,omitempty"`
	TimeTo          string   `json:"timeTo,omitempty"`
	CategoryID      string   `json:"categoryId,omitempty"`
	LegacyCategory  string   `json:"category,omitempty"`
	Status          string   `json:"status,omitempty"`
	CreatedBy       string   `json:"createdBy,omitempty"`
	Participants    []string `json:"participants,omitempty"`
	Settlement      string   `json:"settlement,omitempty"`
	Capacity        int      `json:"capacity,omitempty"`
	MaxParticipants int      `json:"maxParticipants,omitempty"`
	CreatedAt       RawDate  `json:"createdAt,omitzero"`
}

// Raw renders a normalized event back into its stored shape using canonical
// encodings. Normalizing the result yields the same event again.
func (e Event) Raw() RawEvent {
	r := RawEvent{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		StartDate:   TextDate(e.StartDate.String()),
		EndDate:     TextDate(e.EndDate.String()),
		TimeFrom:    e.TimeFrom,
		TimeTo:      e.TimeTo,
		CategoryID:  e.CategoryID,
		Status:      string(e.Status),
		CreatedBy:   e.CreatedBy,
		Settlement:  e.Settlement,
		Capacity:    e.Capacity,
	}
	if len(e.Participants) > 0 {
		r.Participants = append([]string(nil), e.Participants...)
	}
	if e.CreatedAt != nil {
		r.CreatedAt = TimeDate(*e.CreatedAt)
	}
	return r
}
