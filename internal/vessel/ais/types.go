package ais

import (
	"strings"
	"time"
)

// Message kinds carried by the stream's discriminator field.
const (
	msgPositionReport = "PositionReport"
	msgShipStaticData = "ShipStaticData"
)

// subscription is the first frame sent after the socket opens. The
// provider streams nothing until it arrives.
type subscription struct {
	APIKey             string        `json:"apiKey"`
	BoundingBoxes      [][][]float64 `json:"boundingBoxes"`
	FilterMessageTypes []string      `json:"filterMessageTypes,omitempty"`
}

type envelope struct {
	MessageType string   `json:"MessageType"`
	MetaData    metaData `json:"MetaData"`
	Message     payload  `json:"Message"`
}

type metaData struct {
	MMSI      int64   `json:"MMSI"`
	ShipName  string  `json:"ShipName"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	TimeUTC   string  `json:"time_utc"`
}

type payload struct {
	PositionReport *positionReport `json:"PositionReport,omitempty"`
	ShipStaticData *shipStaticData `json:"ShipStaticData,omitempty"`
}

type positionReport struct {
	Latitude           float64 `json:"Latitude"`
	Longitude          float64 `json:"Longitude"`
	Sog                float64 `json:"Sog"`
	Cog                float64 `json:"Cog"`
	TrueHeading        int     `json:"TrueHeading"`
	NavigationalStatus int     `json:"NavigationalStatus"`
}

type shipStaticData struct {
	ImoNumber            int64     `json:"ImoNumber"`
	CallSign             string    `json:"CallSign"`
	Name                 string    `json:"Name"`
	Type                 int       `json:"Type"`
	MaximumStaticDraught float64   `json:"MaximumStaticDraught"`
	Dimension            dimension `json:"Dimension"`
}

// Dimension carries the four hull offsets from the transponder's
// reference point: A forward, B aft, C port, D starboard. Length is
// A+B and beam is C+D.
type dimension struct {
	A float64 `json:"A"`
	B float64 `json:"B"`
	C float64 `json:"C"`
	D float64 `json:"D"`
}

// timeLayouts covers the provider's observed time_utc encodings.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	time.RFC3339,
}

// observedAt parses the metadata timestamp, falling back to the given
// receive time when the field is absent or malformed.
func observedAt(raw string, received time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return received
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return received
}

// cleanName trims AIS '@' fill characters and surrounding whitespace.
func cleanName(raw string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(raw), "@"))
}
