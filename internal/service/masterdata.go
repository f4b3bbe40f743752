package service

import (
	"context"

	"github.com/roach88/fieldsync/internal/model"
)

// MasterData journals catalogue edits. Catalogues are not kept in the
// aggregate, so these calls only enqueue.
type MasterData struct {
	*core
}

// Create journals a new catalogue entry. An empty id is generated.
func (s *MasterData) Create(ctx context.Context, kind model.MasterDataKind, item model.MasterData) (model.MasterData, error) {
	item.Kind = kind
	if err := validateMasterData(item, false); err != nil {
		return model.MasterData{}, err
	}
	item.ID = s.newID(item.ID)

	if err := s.journalOnly(ctx, change{model.ObjectKindFor(kind), model.OpCreate, item}); err != nil {
		return model.MasterData{}, err
	}
	s.log.Info().Str("kind", string(kind)).Str("id", item.ID).Msg("master data created")
	return item, nil
}

// Update journals a change to an existing catalogue entry.
func (s *MasterData) Update(ctx context.Context, kind model.MasterDataKind, item model.MasterData) (model.MasterData, error) {
	item.Kind = kind
	if err := validateMasterData(item, true); err != nil {
		return model.MasterData{}, err
	}

	if err := s.journalOnly(ctx, change{model.ObjectKindFor(kind), model.OpUpdate, item}); err != nil {
		return model.MasterData{}, err
	}
	s.log.Info().Str("kind", string(kind)).Str("id", item.ID).Msg("master data updated")
	return item, nil
}

func validateMasterData(item model.MasterData, needID bool) error {
	switch item.Kind {
	case model.KindMaterial, model.KindPackage, model.KindPoint,
		model.KindThirdParty, model.KindTreatment, model.KindVehicle:
	default:
		return invalidf("kind", "unknown master data kind %q", item.Kind)
	}
	if needID && item.ID == "" {
		return invalid("id", "is required")
	}
	if item.Name == "" {
		return invalid("name", "is required")
	}
	return nil
}
