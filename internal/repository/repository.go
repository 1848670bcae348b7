package repository

import (
	"context"
	"errors"

	"recon-flyover/internal/mission"
)

// ErrMissionNotFound is returned when no mission has the requested id
var ErrMissionNotFound = errors.New("mission not found")

type Filter struct {
	Limit  int
	Offset int
	Status *mission.Status
	POI    string
}

type MissionRepository interface {
	Save(ctx context.Context, r *mission.Result) error
	GetByID(ctx context.Context, id string) (*mission.Result, error)
	ListMissions(ctx context.Context, opts Filter) ([]mission.Result, error)
}
