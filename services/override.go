package services

import (
	"context"
	"fmt"

	"propsync/models"
	"propsync/storage"
)

// OverridePreserver keeps operator-set flags alive across re-syncs.
type OverridePreserver struct {
	store *storage.Store
}

func NewOverridePreserver(store *storage.Store) *OverridePreserver {
	return &OverridePreserver{store: store}
}

// CaptureDefaults returns the flags a listing must carry after this sync:
// a stored override wins, then the flags of the existing row, then defaults.
func (p *OverridePreserver) CaptureDefaults(ctx context.Context, ref int64, syncCode string, existing *models.Listing) (models.Flags, error) {
	o, err := p.store.GetOverride(ctx, ref, syncCode)
	if err != nil {
		return models.Flags{}, err
	}
	if o != nil {
		return o.Flags(), nil
	}
	if existing != nil {
		return existing.Flags(), nil
	}
	return models.DefaultFlags(), nil
}

// ReconcileAfterWrite stores non-default flags and prunes the row once the
// flags are back to defaults.
func (p *OverridePreserver) ReconcileAfterWrite(ctx context.Context, ref int64, syncCode string, flags models.Flags) error {
	if flags.IsDefault() {
		return p.store.DeleteOverride(ctx, ref, syncCode)
	}
	return p.store.UpsertOverride(ctx, &models.OverrideState{
		Ref:      ref,
		SyncCode: syncCode,
		Active:   flags.Active,
		Featured: flags.Featured,
		Hot:      flags.Hot,
	})
}

// SetFlags applies an operator change to a listing and records it so the
// next sync restores it.
func (p *OverridePreserver) SetFlags(ctx context.Context, ref int64, flags models.Flags) error {
	l, err := p.store.GetListingByRef(ctx, ref)
	if err != nil {
		return err
	}
	if l == nil {
		return fmt.Errorf("listing %d not found", ref)
	}
	if err := p.store.UpdateListingFlags(ctx, l.ID, flags); err != nil {
		return fmt.Errorf("update flags: %w", err)
	}
	return p.ReconcileAfterWrite(ctx, ref, l.SyncCode, flags)
}
