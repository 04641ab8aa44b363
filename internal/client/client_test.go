package client

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/experiment"
	"github.com/piwi3910/KitPlacer/internal/model"
	"github.com/piwi3910/KitPlacer/internal/server"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func rowKit() model.KitDescriptor {
	kit := model.KitDescriptor{
		Rows: 1, Cols: 12, TotalWells: 12,
		Materials: []model.Material{{Name: "amine", SMILES: "CN"}},
	}
	for c := 0; c < 12; c++ {
		kit.Design = append(kit.Design, model.DesignEntry{Well: model.WellID{Col: c}, Material: "amine", Amount: float64(c + 1)})
	}
	return kit
}

func newAPI(t *testing.T) (*Client, *experiment.Store) {
	t.Helper()
	store := experiment.NewStore()
	srv := httptest.NewServer(server.New(server.Config{App: model.DefaultAppConfig(), Store: store}).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second), store
}

func TestClient_SessionApplyEndToEnd(t *testing.T) {
	c, store := newAPI(t)
	var _ engine.Applier = c

	s, err := engine.NewSession(rowKit())
	require.NoError(t, err)
	_, err = s.SetDestination(model.Plate96)
	require.NoError(t, err)
	require.NoError(t, s.Toggle("row_B"))
	require.NoError(t, s.Toggle("row_G"))

	result, err := s.Apply(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, "Kit applied successfully", result.Message)
	assert.Equal(t, 1, result.AddedMaterials)
	assert.Equal(t, 24, result.ProcedureWellsUpdated)

	exp, err := c.Experiment(context.Background())
	require.NoError(t, err)
	assert.Len(t, exp.Procedure, 24)
	assert.Equal(t, "B1", exp.Procedure[0].Well.String())
	assert.Equal(t, model.Plate96, store.Context().PlateType)
}

func TestClient_UpdatePlateType(t *testing.T) {
	c, store := newAPI(t)
	require.NoError(t, c.UpdatePlateType(context.Background(), model.Plate24))
	assert.Equal(t, model.Plate24, store.Context().PlateType)
}

func TestClient_Plan(t *testing.T) {
	c, _ := newAPI(t)
	resp, err := c.Plan(context.Background(), model.KitSize{Rows: 2, Columns: 12}, model.Plate96)
	require.NoError(t, err)
	assert.Equal(t, engine.KindRowPairSelection, resp.Strategy.Kind)
	assert.Len(t, resp.Strategy.Blocks, 4)
}

func TestClient_Analyze(t *testing.T) {
	c, _ := newAPI(t)

	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Materials"))
	_, err := f.NewSheet("Design")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Materials", "A1", &[]interface{}{"ID", "Name"}))
	require.NoError(t, f.SetSheetRow("Materials", "A2", &[]interface{}{"1", "Toluene"}))
	require.NoError(t, f.SetSheetRow("Design", "A1", &[]interface{}{"Well", "ID", "Name", "Amount"}))
	require.NoError(t, f.SetSheetRow("Design", "A2", &[]interface{}{"A1", "1", "Toluene", 2}))
	require.NoError(t, f.SetSheetRow("Design", "A3", &[]interface{}{"B2", "2", "Toluene", 3}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	resp, err := c.Analyze(context.Background(), "kit.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, resp.KitSize.Rows)
	assert.Equal(t, 2, resp.KitSize.Columns)
	assert.Len(t, resp.Design, 2)

	_, err = c.Analyze(context.Background(), "kit.txt", bytes.NewReader([]byte("x")))
	var failed *ApplyFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusBadRequest, failed.StatusCode)
}

func TestClient_SurfacesBackendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Kit application failed: database locked"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).ApplyKit(context.Background(), engine.ApplyRequest{})
	var failed *ApplyFailedError
	require.True(t, errors.As(err, &failed))
	assert.Equal(t, "Kit application failed: database locked", failed.Message)
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
}

func TestClient_NonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, time.Second).UpdatePlateType(context.Background(), model.Plate48)
	var failed *ApplyFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, http.StatusBadGateway, failed.StatusCode)
	assert.Contains(t, failed.Message, "502")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := New(srv.URL, 50*time.Millisecond).ApplyKit(context.Background(), engine.ApplyRequest{})
	var failed *ApplyFailedError
	require.ErrorAs(t, err, &failed)
	assert.Zero(t, failed.StatusCode)
}

func TestClient_SessionKeepsSelectionOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "Missing required data: materials, design, or position"}`))
	}))
	defer srv.Close()

	s, err := engine.NewSession(rowKit())
	require.NoError(t, err)
	_, err = s.SetDestination(model.Plate96)
	require.NoError(t, err)
	require.NoError(t, s.Toggle("row_A"))

	_, err = s.Apply(context.Background(), New(srv.URL, time.Second))
	require.Error(t, err)
	assert.Equal(t, "Missing required data: materials, design, or position", err.Error())
	assert.Equal(t, engine.Selection{"row_A"}, s.Selection())
}
