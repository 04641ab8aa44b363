package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/experiment"
	"github.com/piwi3910/KitPlacer/internal/importer"
	"github.com/piwi3910/KitPlacer/internal/model"
)

// UploadField is the multipart field carrying the kit workbook.
const UploadField = "file"

// PlateInfo describes one catalog plate.
type PlateInfo struct {
	PlateType model.PlateType `json:"plate_type"`
	Name      string          `json:"name"`
	Rows      int             `json:"rows"`
	Cols      int             `json:"cols"`
	Wells     int             `json:"wells"`
}

// AnalyzeResponse is returned by the analyze endpoint.
type AnalyzeResponse struct {
	Materials        []model.Material    `json:"materials"`
	Design           []model.DesignEntry `json:"design"`
	KitSize          model.KitFootprint  `json:"kit_size"`
	Filename         string              `json:"filename"`
	Shape            model.KitShape      `json:"shape,omitempty"`
	CompatiblePlates []model.PlateType   `json:"compatible_plates,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// PlanRequest asks for the strategy of a kit on a destination plate.
type PlanRequest struct {
	KitSize          model.KitSize   `json:"kit_size"`
	DestinationPlate model.PlateType `json:"destination_plate"`
}

// PlanResponse is the resolved strategy and its selection rule.
type PlanResponse struct {
	Strategy         engine.Strategy  `json:"strategy"`
	BaseStrategy     engine.Kind      `json:"base_strategy"` // Tiling a named layout is built on
	Cardinality      string           `json:"cardinality"`
	DefaultSelection engine.Selection `json:"default_selection"`
}

func (s *Server) listPlates(c *gin.Context) {
	plates := []PlateInfo{}
	for _, pt := range model.PlateTypes() {
		layout, err := model.LookupPlate(pt)
		if err != nil {
			continue
		}
		plates = append(plates, PlateInfo{
			PlateType: pt,
			Name:      layout.Name,
			Rows:      layout.Rows,
			Cols:      layout.Cols,
			Wells:     layout.Wells(),
		})
	}
	c.JSON(http.StatusOK, plates)
}

func (s *Server) getExperiment(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Get())
}

func (s *Server) resetExperiment(c *gin.Context) {
	s.store.Reset()
	s.saveSnapshot(c)
	c.JSON(http.StatusOK, gin.H{"message": "Experiment reset successfully"})
}

// updateContext merges the fields present in the body into the context, so
// a body of {"plate_type": "48"} only changes the plate type.
func (s *Server) updateContext(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid context: %v", err))
		return
	}
	err = s.store.UpdateContext(func(cur *model.ExperimentContext) error {
		return json.Unmarshal(raw, cur)
	})
	if err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid context: %v", err))
		return
	}
	s.saveSnapshot(c)
	c.JSON(http.StatusOK, s.store.Context())
}

func (s *Server) analyzeKit(c *gin.Context) {
	start := time.Now()
	logger := klog.FromContext(c.Request.Context())

	resp, err := s.analyze(c)
	s.observer.RecordAnalyze(time.Since(start), err)
	if err != nil {
		status := http.StatusInternalServerError
		var apiErr *apiError
		if errors.As(err, &apiErr) {
			status = apiErr.status
		}
		logger.V(1).Info("Kit analysis rejected", "status", status, "err", err)
		abortWithError(c, status, err.Error())
		return
	}
	logger.V(1).Info("Analyzed kit", "filename", resp.Filename,
		"rows", resp.KitSize.Rows, "columns", resp.KitSize.Columns, "warnings", len(resp.Warnings))
	c.JSON(http.StatusOK, resp)
}

// apiError is a request failure with the status and message it is reported
// with.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string {
	return e.msg
}

func badRequest(msg string) error {
	return &apiError{status: http.StatusBadRequest, msg: msg}
}

func (s *Server) analyze(c *gin.Context) (AnalyzeResponse, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	header, err := c.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return AnalyzeResponse{}, &apiError{
				status: http.StatusRequestEntityTooLarge,
				msg:    fmt.Sprintf("File too large. Maximum size is %d bytes", s.cfg.MaxUploadBytes),
			}
		}
		return AnalyzeResponse{}, badRequest("No file provided")
	}
	if header.Filename == "" {
		return AnalyzeResponse{}, badRequest("No file selected")
	}
	if err := importer.CheckExtension(header.Filename); err != nil {
		return AnalyzeResponse{}, badRequest(fmt.Sprintf("Invalid file type. Allowed: %s",
			strings.Join(importer.AllowedExtensions, ", ")))
	}

	f, err := header.Open()
	if err != nil {
		return AnalyzeResponse{}, fmt.Errorf("kit analysis failed: %w", err)
	}
	defer f.Close()

	result := importer.ImportKitFromReader(f, header.Filename)
	if !result.OK() {
		return AnalyzeResponse{}, badRequest(strings.Join(result.Errors, "; "))
	}

	kit := result.Kit
	resp := AnalyzeResponse{
		Materials: kit.Materials,
		Design:    kit.Design,
		KitSize:   kit.Footprint(),
		Filename:  kit.Filename,
		Warnings:  result.Warnings,
	}
	if shape, ok := model.ClassifyKit(kit.Rows, kit.Cols); ok {
		resp.Shape = shape
		resp.CompatiblePlates = model.CompatiblePlates(shape)
	}
	return resp, nil
}

func (s *Server) planKit(c *gin.Context) {
	start := time.Now()
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.observer.RecordPlan(time.Since(start), err)
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}
	if req.DestinationPlate == 0 {
		req.DestinationPlate = s.cfg.DefaultPlate
	}

	strategy, err := engine.ResolveForPlate(req.KitSize.Rows, req.KitSize.Columns, req.DestinationPlate)
	s.observer.RecordPlan(time.Since(start), err)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}
	sel := engine.DefaultSelection(strategy)
	if sel == nil {
		sel = engine.Selection{}
	}
	c.JSON(http.StatusOK, PlanResponse{
		Strategy:         strategy,
		BaseStrategy:     strategy.Kind.Base(),
		Cardinality:      strategy.Cardinality().String(),
		DefaultSelection: sel,
	})
}

func (s *Server) applyKit(c *gin.Context) {
	start := time.Now()
	logger := klog.FromContext(c.Request.Context())

	var req engine.ApplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.observer.RecordApply(time.Since(start), err)
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	result, err := s.store.ApplyKit(c.Request.Context(), req)
	s.observer.RecordApply(time.Since(start), err)
	if err != nil {
		if errors.Is(err, experiment.ErrMissingKitData) {
			abortWithError(c, http.StatusBadRequest, "Missing required data: materials, design, or position")
			return
		}
		if errors.Is(err, experiment.ErrInvalidRequest) {
			abortWithError(c, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error(err, "Kit application failed")
		abortWithError(c, http.StatusInternalServerError, fmt.Sprintf("Kit application failed: %v", err))
		return
	}
	s.saveSnapshot(c)
	c.JSON(http.StatusOK, result)
}
