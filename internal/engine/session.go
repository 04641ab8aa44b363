package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/piwi3910/KitPlacer/internal/model"
)

// Session errors.
var (
	ErrApplyInProgress = errors.New("apply already in progress")
	ErrNoDestination   = errors.New("no destination plate chosen")
)

// ApplyRequest is the body of the apply-kit call.
type ApplyRequest struct {
	Materials        []model.Material    `json:"materials"`
	Design           []model.DesignEntry `json:"design"`
	Position         PlacementDescriptor `json:"position"`
	KitSize          model.KitSize       `json:"kit_size"`
	DestinationPlate model.PlateType     `json:"destination_plate"`
}

// ApplyResult is the acknowledgement of a successful apply.
type ApplyResult struct {
	Message               string `json:"message"`
	AddedMaterials        int    `json:"added_materials"`
	SkippedMaterials      int    `json:"skipped_materials"`
	ProcedureWellsUpdated int    `json:"procedure_wells_updated"`
}

// Applier is the write boundary a session hands its placement to.
type Applier interface {
	ApplyKit(ctx context.Context, req ApplyRequest) (ApplyResult, error)
	UpdatePlateType(ctx context.Context, plate model.PlateType) error
}

// Session is one operator placing one kit. It owns the destination plate,
// the resolved strategy and the selection, and allows at most one apply in
// flight. A Session is safe for concurrent use.
type Session struct {
	id  string
	kit model.KitDescriptor

	mu        sync.Mutex
	plate     model.PlateType
	strategy  Strategy
	selection Selection
	applying  bool
}

// NewSession starts a placement session for a validated kit.
func NewSession(kit model.KitDescriptor) (*Session, error) {
	if err := kit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kit: %w", err)
	}
	return &Session{
		id:  uuid.New().String()[:8],
		kit: kit,
	}, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string {
	return s.id
}

// Kit returns the kit being placed.
func (s *Session) Kit() model.KitDescriptor {
	return s.kit
}

// SetDestination resolves the strategy for a destination plate and resets
// the selection. Unsupported placements are not an error here; check
// Strategy().Supported().
func (s *Session) SetDestination(plate model.PlateType) (Strategy, error) {
	layout, err := model.LookupPlate(plate)
	if err != nil {
		return Strategy{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applying {
		return s.strategy, ErrApplyInProgress
	}
	s.plate = plate
	s.strategy = Resolve(s.kit.Rows, s.kit.Cols, layout)
	s.selection = DefaultSelection(s.strategy)
	return s.strategy, nil
}

// Destination returns the chosen plate, zero if none.
func (s *Session) Destination() model.PlateType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plate
}

// Strategy returns the current strategy.
func (s *Session) Strategy() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.strategy
}

// Selection returns a copy of the current selection.
func (s *Session) Selection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(Selection(nil), s.selection...)
}

// Toggle applies a block click to the selection.
func (s *Session) Toggle(blockID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plate == 0 {
		return ErrNoDestination
	}
	sel, err := Toggle(s.strategy, s.selection, blockID)
	if err != nil {
		return err
	}
	s.selection = sel
	return nil
}

// ClearSelection drops every user choice, keeping forced blocks.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = DefaultSelection(s.strategy)
}

// Applying reports whether an apply is in flight.
func (s *Session) Applying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applying
}

// CanApply reports whether Apply would send a request right now.
func (s *Session) CanApply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plate != 0 && !s.applying && Validate(s.strategy, s.selection) == nil
}

// Descriptor encodes the current placement.
func (s *Session) Descriptor() (PlacementDescriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.descriptorLocked()
}

// Assignment previews the well assignment of the current placement.
func (s *Session) Assignment() (WellAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.plate == 0 {
		return nil, ErrNoDestination
	}
	return BuildAssignment(s.kit, s.strategy, s.selection)
}

func (s *Session) descriptorLocked() (PlacementDescriptor, error) {
	if s.plate == 0 {
		return PlacementDescriptor{}, ErrNoDestination
	}
	return Encode(s.strategy, s.selection, s.plate, s.kit.Size())
}

// Apply sends the placement to the applier. Only one apply may be in
// flight; a concurrent call fails with ErrApplyInProgress and sends
// nothing. The selection survives a failed apply so it can be retried.
// After a successful apply the experiment's plate type is updated on a
// best-effort basis.
func (s *Session) Apply(ctx context.Context, a Applier) (ApplyResult, error) {
	logger := klog.FromContext(ctx).WithValues("session", s.id)

	s.mu.Lock()
	if s.applying {
		s.mu.Unlock()
		return ApplyResult{}, ErrApplyInProgress
	}
	desc, err := s.descriptorLocked()
	if err != nil {
		s.mu.Unlock()
		return ApplyResult{}, err
	}
	req := ApplyRequest{
		Materials:        s.kit.Materials,
		Design:           s.kit.Design,
		Position:         desc,
		KitSize:          s.kit.Size(),
		DestinationPlate: s.plate,
	}
	s.applying = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.applying = false
		s.mu.Unlock()
	}()

	logger.V(2).Info("Applying kit", "strategy", desc.Strategy, "plate", desc.DestinationPlate.String(), "positions", desc.Positions)
	result, err := a.ApplyKit(ctx, req)
	if err != nil {
		return ApplyResult{}, err
	}

	if err := a.UpdatePlateType(ctx, req.DestinationPlate); err != nil {
		logger.Error(err, "Failed to update procedure plate type", "plate", req.DestinationPlate.String())
	}
	logger.V(1).Info("Kit applied", "wellsUpdated", result.ProcedureWellsUpdated, "addedMaterials", result.AddedMaterials)
	return result, nil
}
