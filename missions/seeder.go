package missions

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"sidewalkd/model"
)

type Store interface {
	ListRoutes(ctx context.Context) ([]model.Route, error)
	ListMissionRegionIDs(ctx context.Context, label string) ([]int, error)
	CreateMissions(ctx context.Context, missions []model.Mission) error
	ListAssignedHitIDs(ctx context.Context) (map[string]bool, error)
	CreateRouteAssignments(ctx context.Context, assignments []model.AmtRouteAssignment) error
}

// Seeder creates mturk missions and HIT assignments for routes that lack them.
type Seeder struct {
	Store  Store
	Logger *zap.SugaredLogger
}

func NewSeeder(store Store, logger *zap.SugaredLogger) *Seeder {
	return &Seeder{Store: store, Logger: logger}
}

type SeedResult struct {
	Routes          int
	SeededRegions   []int
	MissionsCreated int
}

// SeedMissions creates the mission ladder for every region that has a route
// but no mturk mission yet. Routes without a usable region are skipped and
// reported in the returned error alongside a non-nil result; every valid
// region is still written in a single transaction.
func (s *Seeder) SeedMissions(ctx context.Context) (*SeedResult, error) {
	routes, err := s.Store.ListRoutes(ctx)
	if err != nil {
		return nil, err
	}
	existing, err := s.Store.ListMissionRegionIDs(ctx, MturkMissionLabel)
	if err != nil {
		return nil, err
	}
	covered := make(map[int]bool, len(existing))
	for _, id := range existing {
		covered[id] = true
	}

	var skipped *multierror.Error
	res := &SeedResult{Routes: len(routes)}
	var toInsert []model.Mission
	for _, route := range routes {
		if route.RegionID <= 0 {
			skipped = multierror.Append(skipped, fmt.Errorf("route %d has no region", route.RouteID))
			continue
		}
		if covered[route.RegionID] {
			continue
		}
		covered[route.RegionID] = true
		toInsert = append(toInsert, ForRegion(route.RegionID)...)
		res.SeededRegions = append(res.SeededRegions, route.RegionID)
		s.Logger.Infow("mission created for region", "region_id", route.RegionID, "route_id", route.RouteID)
	}

	if err := s.Store.CreateMissions(ctx, toInsert); err != nil {
		return nil, err
	}
	res.MissionsCreated = len(toInsert)
	return res, skipped.ErrorOrNil()
}

// AssignRoutesToHits maps every route to a HIT whose id is the route id,
// skipping HITs that already have an assignment. It returns the number of
// assignments created.
func (s *Seeder) AssignRoutesToHits(ctx context.Context) (int, error) {
	routes, err := s.Store.ListRoutes(ctx)
	if err != nil {
		return 0, err
	}
	assigned, err := s.Store.ListAssignedHitIDs(ctx)
	if err != nil {
		return 0, err
	}
	s.Logger.Infow("total HITs", "routes", len(routes))

	var toInsert []model.AmtRouteAssignment
	for _, route := range routes {
		hitID := strconv.Itoa(route.RouteID)
		if assigned[hitID] {
			continue
		}
		assigned[hitID] = true
		toInsert = append(toInsert, model.AmtRouteAssignment{HitID: hitID, RouteID: route.RouteID})
	}
	if err := s.Store.CreateRouteAssignments(ctx, toInsert); err != nil {
		return 0, err
	}
	return len(toInsert), nil
}
