// Package experiment holds the active experiment and applies placed kits to
// it. A Store implements engine.Applier so a session can apply in-process
// as well as over HTTP.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"k8s.io/klog/v2"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// AppliedMessage acknowledges a successful apply.
const AppliedMessage = "Kit applied successfully"

var (
	// ErrMissingKitData is returned when an apply request lacks materials,
	// design or position.
	ErrMissingKitData = errors.New("missing required data: materials, design, or position")
	// ErrInvalidRequest wraps every rejection caused by the request content.
	ErrInvalidRequest = errors.New("invalid apply request")
)

// AssignmentRecorder is told how many plate wells each apply filled.
type AssignmentRecorder interface {
	RecordAssignment(wells int)
}

// Option configures a Store.
type Option func(*Store)

// WithRecorder reports applied assignments to r.
func WithRecorder(r AssignmentRecorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// Store is the in-memory active experiment. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	exp      model.Experiment
	recorder AssignmentRecorder
}

// NewStore returns a store holding an empty experiment.
func NewStore(opts ...Option) *Store {
	return NewStoreFrom(model.NewExperiment(), opts...)
}

// NewStoreFrom returns a store seeded with exp, as loaded from a snapshot.
func NewStoreFrom(exp model.Experiment, opts ...Option) *Store {
	if exp.Materials == nil {
		exp.Materials = []model.Material{}
	}
	if exp.Procedure == nil {
		exp.Procedure = []model.ProcedureWell{}
	}
	if _, err := model.LookupPlate(exp.Context.PlateType); err != nil {
		exp.Context.PlateType = model.Plate96
	}
	s := &Store{exp: exp}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a deep copy of the experiment.
func (s *Store) Get() model.Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneExperiment(s.exp)
}

// Reset drops every material and procedure well.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exp = model.NewExperiment()
}

// Context returns the experiment context.
func (s *Store) Context() model.ExperimentContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exp.Context
}

// SetContext replaces the experiment context.
func (s *Store) SetContext(c model.ExperimentContext) error {
	return s.UpdateContext(func(cur *model.ExperimentContext) error {
		*cur = c
		return nil
	})
}

// UpdateContext edits the context in place under the write lock. The edit
// is discarded if fn fails or leaves an unknown plate type.
func (s *Store) UpdateContext(fn func(*model.ExperimentContext) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.exp.Context
	if err := fn(&next); err != nil {
		return err
	}
	if _, err := model.LookupPlate(next.PlateType); err != nil {
		return err
	}
	s.exp.Context = next
	return nil
}

// UpdatePlateType sets the procedure plate type, keeping the rest of the
// context.
func (s *Store) UpdatePlateType(ctx context.Context, plate model.PlateType) error {
	err := s.UpdateContext(func(c *model.ExperimentContext) error {
		c.PlateType = plate
		return nil
	})
	if err != nil {
		return err
	}
	klog.FromContext(ctx).V(2).Info("Updated plate type", "plate", plate.String())
	return nil
}

// ApplyKit adds the kit's materials to the experiment and dispenses the
// design into every selected block. The placement is rebuilt from the
// descriptor rather than trusted, so a request naming blocks that the kit
// cannot occupy on the destination plate is rejected before anything is
// written.
func (s *Store) ApplyKit(ctx context.Context, req engine.ApplyRequest) (engine.ApplyResult, error) {
	logger := klog.FromContext(ctx)

	if len(req.Materials) == 0 || len(req.Design) == 0 || req.Position.Strategy == "" {
		return engine.ApplyResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, ErrMissingKitData)
	}
	if req.DestinationPlate == 0 {
		req.DestinationPlate = req.Position.DestinationPlate
	}
	if req.Position.DestinationPlate == 0 {
		req.Position.DestinationPlate = req.DestinationPlate
	}
	if req.DestinationPlate != req.Position.DestinationPlate {
		return engine.ApplyResult{}, fmt.Errorf("%w: destination plate %s does not match position plate %s",
			ErrInvalidRequest, req.DestinationPlate, req.Position.DestinationPlate)
	}

	kit := model.KitDescriptor{
		Rows:       req.KitSize.Rows,
		Cols:       req.KitSize.Columns,
		TotalWells: req.KitSize.Rows * req.KitSize.Columns,
		Materials:  req.Materials,
		Design:     req.Design,
	}
	if err := kit.Validate(); err != nil {
		return engine.ApplyResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	strategy, sel, err := engine.Decode(req.Position, req.KitSize)
	if err != nil {
		return engine.ApplyResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	assignment, err := engine.BuildAssignment(kit, strategy, sel)
	if err != nil {
		return engine.ApplyResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if blocks, err := engine.SelectedBlocks(strategy, sel); err == nil {
		if stacked := overlappingBlocks(blocks); len(stacked) > 0 {
			logger.V(1).Info("Selected blocks overlap, contributions stack", "blocks", stacked)
		}
	}

	s.mu.Lock()
	added, skipped := s.mergeMaterialsLocked(req.Materials)
	s.dispenseLocked(kit.Materials, assignment)
	updated := 0
	for _, pw := range s.exp.Procedure {
		if pw.HasKitMaterial() {
			updated++
		}
	}
	s.mu.Unlock()

	if s.recorder != nil {
		s.recorder.RecordAssignment(len(assignment))
	}
	logger.V(1).Info("Applied kit", "strategy", strategy.Kind, "blocks", []string(sel),
		"wells", len(assignment), "addedMaterials", added, "skippedMaterials", skipped)
	return engine.ApplyResult{
		Message:               AppliedMessage,
		AddedMaterials:        added,
		SkippedMaterials:      skipped,
		ProcedureWellsUpdated: updated,
	}, nil
}

// overlappingBlocks lists, in selection order, the IDs of the selected
// blocks that share a well with another selected block.
func overlappingBlocks(blocks []engine.Block) []string {
	var ids []string
	for i, b := range blocks {
		for j, o := range blocks {
			if i != j && b.Overlaps(o) {
				ids = append(ids, b.ID)
				break
			}
		}
	}
	return ids
}

// isDuplicate reports whether two materials share a non-empty name, CAS
// number or SMILES string.
func isDuplicate(a, b model.Material) bool {
	return (a.Name != "" && a.Name == b.Name) ||
		(a.CAS != "" && a.CAS == b.CAS) ||
		(a.SMILES != "" && a.SMILES == b.SMILES)
}

func (s *Store) mergeMaterialsLocked(materials []model.Material) (added, skipped int) {
	for _, m := range materials {
		dup := false
		for _, existing := range s.exp.Materials {
			if isDuplicate(existing, m) {
				dup = true
				break
			}
		}
		if dup {
			skipped++
			continue
		}
		if m.Source == "" {
			m.Source = model.SourceKitUpload
		}
		s.exp.Materials = append(s.exp.Materials, m)
		added++
	}
	return added, skipped
}

func (s *Store) dispenseLocked(materials []model.Material, a engine.WellAssignment) {
	byRef := make(map[string]model.Material, len(materials)*2)
	for _, m := range materials {
		if m.Alias != "" {
			byRef[m.Alias] = m
		}
	}
	for _, m := range materials {
		if m.Name != "" {
			byRef[m.Name] = m
		}
	}

	index := make(map[model.WellID]int, len(s.exp.Procedure))
	for i, pw := range s.exp.Procedure {
		index[pw.Well] = i
	}
	for _, well := range a.Wells() {
		i, ok := index[well]
		if !ok {
			s.exp.Procedure = append(s.exp.Procedure, model.ProcedureWell{Well: well, ID: well.String()})
			i = len(s.exp.Procedure) - 1
			index[well] = i
		}
		for _, c := range a[well] {
			m := byRef[c.Material]
			name := m.Name
			if name == "" {
				name = c.Material
			}
			s.exp.Procedure[i].Materials = append(s.exp.Procedure[i].Materials, model.WellMaterial{
				Name:   name,
				Alias:  m.Alias,
				CAS:    m.CAS,
				SMILES: m.SMILES,
				Role:   m.Role,
				Amount: c.Amount,
				Unit:   c.Unit,
				Source: model.SourceKitUpload,
			})
		}
	}
	sort.SliceStable(s.exp.Procedure, func(i, j int) bool {
		return s.exp.Procedure[i].Well.Less(s.exp.Procedure[j].Well)
	})
}

func cloneExperiment(e model.Experiment) model.Experiment {
	out := model.Experiment{
		Context:   e.Context,
		Materials: append([]model.Material{}, e.Materials...),
		Procedure: make([]model.ProcedureWell, len(e.Procedure)),
	}
	for i, pw := range e.Procedure {
		pw.Materials = append([]model.WellMaterial{}, pw.Materials...)
		out.Procedure[i] = pw
	}
	return out
}
