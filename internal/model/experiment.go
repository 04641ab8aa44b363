package model

// ExperimentContext holds the procedure-wide settings of the active experiment.
type ExperimentContext struct {
	Author    string    `json:"author,omitempty"`
	Project   string    `json:"project,omitempty"`
	ELN       string    `json:"eln,omitempty"`
	Objective string    `json:"objective,omitempty"`
	PlateType PlateType `json:"plate_type"`
}

// WellMaterial is one material dispensed into a procedure well.
type WellMaterial struct {
	Name   string  `json:"name"`
	Alias  string  `json:"alias,omitempty"`
	CAS    string  `json:"cas,omitempty"`
	SMILES string  `json:"smiles,omitempty"`
	Role   string  `json:"role,omitempty"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
	Source string  `json:"source,omitempty"`
}

// ProcedureWell lists the materials dispensed into one plate well.
type ProcedureWell struct {
	Well      WellID         `json:"well"`
	ID        string         `json:"id,omitempty"`
	Materials []WellMaterial `json:"materials"`
}

// HasKitMaterial reports whether any material came from a kit upload.
func (pw ProcedureWell) HasKitMaterial() bool {
	for _, m := range pw.Materials {
		if m.Source == SourceKitUpload {
			return true
		}
	}
	return false
}

// Experiment is the design being edited: its materials and the
// per-well procedure.
type Experiment struct {
	Context   ExperimentContext `json:"context"`
	Materials []Material        `json:"materials"`
	Procedure []ProcedureWell   `json:"procedure"`
}

// NewExperiment returns an empty experiment on a 96-well plate.
func NewExperiment() Experiment {
	return Experiment{
		Context:   ExperimentContext{PlateType: Plate96},
		Materials: []Material{},
		Procedure: []ProcedureWell{},
	}
}
