// Package missions seeds audit missions and HIT route assignments that
// simulate task creation for routes on Mechanical Turk.
package missions

import (
	"sidewalkd/model"
)

// MturkMissionLabel tags missions created for Mechanical Turk workers.
const MturkMissionLabel = "mturk-mission"

// Level is one rung of the per-region mission ladder.
type Level struct {
	Level      int
	Distance   float64 // meters
	DistanceFt float64
	DistanceMi float64
}

// Levels are the distance targets every mturk region receives, shortest first.
var Levels = []Level{
	{Level: 1, Distance: 304.8, DistanceFt: 1000, DistanceMi: 0.189394},
	{Level: 2, Distance: 609.6, DistanceFt: 2000, DistanceMi: 0.378788},
	{Level: 3, Distance: 1219.2, DistanceFt: 4000, DistanceMi: 0.757576},
}

// ForRegion returns the missions to create for a region without any.
func ForRegion(regionID int) []model.Mission {
	missions := make([]model.Mission, 0, len(Levels))
	for _, l := range Levels {
		missions = append(missions, model.Mission{
			RegionID:   regionID,
			Label:      MturkMissionLabel,
			Level:      l.Level,
			Deleted:    false,
			Coverage:   nil,
			Distance:   l.Distance,
			DistanceFt: l.DistanceFt,
			DistanceMi: l.DistanceMi,
		})
	}
	return missions
}
