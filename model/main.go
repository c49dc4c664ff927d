package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
)

var ErrInvalidLabelType = errors.New("invalid label type")

type LabelType int

const (
	CurbRamp       LabelType = 1
	NoCurbRamp     LabelType = 2
	Obstacle       LabelType = 3
	SurfaceProblem LabelType = 4
	Other          LabelType = 5
	Occlusion      LabelType = 6
	NoSidewalk     LabelType = 7
)

// LabelTypes lists every known label type in id order.
var LabelTypes = []LabelType{CurbRamp, NoCurbRamp, Obstacle, SurfaceProblem, Other, Occlusion, NoSidewalk}

var labelTypeNames = map[LabelType]string{
	CurbRamp:       "CurbRamp",
	NoCurbRamp:     "NoCurbRamp",
	Obstacle:       "Obstacle",
	SurfaceProblem: "SurfaceProblem",
	Other:          "Other",
	Occlusion:      "Occlusion",
	NoSidewalk:     "NoSidewalk",
}

// IsValid returns true if LabelType is known
func (t LabelType) IsValid() bool {
	_, ok := labelTypeNames[t]
	return ok
}

func (t LabelType) String() string {
	if name, ok := labelTypeNames[t]; ok {
		return name
	}
	return "LabelType(" + strconv.Itoa(int(t)) + ")"
}

// Index returns the zero-based column of t in per-type tables.
func (t LabelType) Index() (int, error) {
	if !t.IsValid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidLabelType, int(t))
	}
	return int(t) - 1, nil
}

// ParseLabelType accepts either the numeric id or the name of a label type.
func ParseLabelType(s string) (LabelType, error) {
	if n, err := strconv.Atoi(s); err == nil {
		t := LabelType(n)
		if !t.IsValid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidLabelType, n)
		}
		return t, nil
	}
	for t, name := range labelTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidLabelType, s)
}

func (t *LabelType) Scan(value interface{ any }) error {
	var n int64
	switch v := value.(type) {
	case int64:
		n = v
	case int32:
		n = int64(v)
	case []byte:
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("cannot scan %q into LabelType: %w", v, err)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("cannot scan %q into LabelType: %w", v, err)
		}
		n = parsed
	default:
		return fmt.Errorf("cannot scan %T into LabelType", value)
	}
	*t = LabelType(n)
	return nil
}

func (t LabelType) Value() (driver.Value, error) {
	if !t.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLabelType, int(t))
	}
	return int64(t), nil
}

// A Label is a single accessibility annotation placed by a user on a panorama.
// Its severity and map point live in ProblemSeverity and LabelPoint.
type Label struct {
	LabelID     int       `gorm:"primaryKey"`
	LabelTypeID LabelType `gorm:"index;not null"`
	PanoramaLat float64
	PanoramaLng float64
	Deleted     bool `gorm:"default:false"`
}

type ProblemSeverity struct {
	ProblemSeverityID int `gorm:"primaryKey"`
	LabelID           int `gorm:"index;not null"`
	Severity          int
}

type LabelPoint struct {
	LabelPointID int `gorm:"primaryKey"`
	LabelID      int `gorm:"index;not null"`
	Lat          float64
	Lng          float64
}

// LabelPresampled records that a label is visible at ZoomLevel.
type LabelPresampled struct {
	LabelID   int `gorm:"primaryKey;autoIncrement:false"`
	ZoomLevel int `gorm:"primaryKey;autoIncrement:false;index"`
}

type Region struct {
	RegionID    int `gorm:"primaryKey"`
	Description string
}

type Route struct {
	RouteID     int `gorm:"primaryKey"`
	RegionID    int `gorm:"index"`
	StreetCount int
}

// Mission is a distance target for auditing a region. Label names the
// mission kind, e.g. "mturk-mission".
type Mission struct {
	MissionID  int    `gorm:"primaryKey"`
	RegionID   int    `gorm:"index"`
	Label      string `gorm:"size:255;index"`
	Level      int
	Deleted    bool `gorm:"default:false"`
	Coverage   *float64
	Distance   float64
	DistanceFt float64
	DistanceMi float64
}

type AmtRouteAssignment struct {
	AmtRouteAssignmentID int    `gorm:"primaryKey"`
	HitID                string `gorm:"size:255;index"`
	RouteID              int    `gorm:"index"`
}

// All returns every model in the schema, in creation order.
func All() []any {
	return []any{
		&Label{},
		&ProblemSeverity{},
		&LabelPoint{},
		&LabelPresampled{},
		&Region{},
		&Route{},
		&Mission{},
		&AmtRouteAssignment{},
	}
}

// RankedLabel is a label together with the severity used to order it
// within its label type.
type RankedLabel struct {
	LabelID  int
	Severity int
}

// BoundingBox is an exclusive latitude/longitude window.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}
