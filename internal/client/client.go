// Package client talks to the kit placement API. A Client implements
// engine.Applier so a placement session can apply against a remote
// experiment.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/piwi3910/KitPlacer/internal/engine"
	"github.com/piwi3910/KitPlacer/internal/model"
	"github.com/piwi3910/KitPlacer/internal/server"
)

// ApplyFailedError is a failed API call. Message is the backend's error
// text when it sent one, otherwise a description of the transport failure.
type ApplyFailedError struct {
	StatusCode int // 0 when no response was received
	Message    string
}

func (e *ApplyFailedError) Error() string {
	return e.Message
}

// Client is an HTTP client for the kit placement API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the API at baseURL. A zero timeout disables the
// per-request deadline.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// NewFromConfig builds a client from the application config.
func NewFromConfig(cfg model.AppConfig) *Client {
	return New(cfg.ServerURL, time.Duration(cfg.RequestTimeout)*time.Second)
}

// ApplyKit posts the placement to the apply endpoint.
func (c *Client) ApplyKit(ctx context.Context, req engine.ApplyRequest) (engine.ApplyResult, error) {
	var result engine.ApplyResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/experiment/kit/apply", req, &result); err != nil {
		return engine.ApplyResult{}, err
	}
	return result, nil
}

// UpdatePlateType sets the procedure plate type through the context
// endpoint.
func (c *Client) UpdatePlateType(ctx context.Context, plate model.PlateType) error {
	body := map[string]model.PlateType{"plate_type": plate}
	return c.doJSON(ctx, http.MethodPut, "/api/experiment/context", body, nil)
}

// Plan asks the server to resolve the strategy for a kit size.
func (c *Client) Plan(ctx context.Context, size model.KitSize, plate model.PlateType) (server.PlanResponse, error) {
	var resp server.PlanResponse
	req := server.PlanRequest{KitSize: size, DestinationPlate: plate}
	if err := c.doJSON(ctx, http.MethodPost, "/api/experiment/kit/plan", req, &resp); err != nil {
		return server.PlanResponse{}, err
	}
	return resp, nil
}

// Experiment fetches the active experiment.
func (c *Client) Experiment(ctx context.Context) (model.Experiment, error) {
	var exp model.Experiment
	if err := c.doJSON(ctx, http.MethodGet, "/api/experiment", nil, &exp); err != nil {
		return model.Experiment{}, err
	}
	return exp, nil
}

// Analyze uploads a kit workbook for analysis.
func (c *Client) Analyze(ctx context.Context, filename string, r io.Reader) (server.AnalyzeResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(server.UploadField, filename)
	if err != nil {
		return server.AnalyzeResponse{}, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return server.AnalyzeResponse{}, fmt.Errorf("read kit workbook: %w", err)
	}
	if err := mw.Close(); err != nil {
		return server.AnalyzeResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/experiment/kit/analyze", &buf)
	if err != nil {
		return server.AnalyzeResponse{}, err
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp server.AnalyzeResponse
	if err := c.do(httpReq, &resp); err != nil {
		return server.AnalyzeResponse{}, err
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &ApplyFailedError{Message: fmt.Sprintf("request to %s failed: %v", req.URL.Path, err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ApplyFailedError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("read response: %v", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			return &ApplyFailedError{StatusCode: resp.StatusCode, Message: payload.Error}
		}
		return &ApplyFailedError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("%s %s: %s", req.Method, req.URL.Path, resp.Status)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ApplyFailedError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}
