// Package mantys is the HTTP client for the Mantys eligibility-automation
// service. It creates check tasks and polls their raw status; lifecycle
// classification of the raw status happens in the eligibility domain.
package mantys

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// CheckRequest creates an eligibility automation task. IDType is one of
// EMIRATESID, CARDNUMBER or DHAMEMBERID.
type CheckRequest struct {
	IDValue   string `json:"id_value"`
	IDType    string `json:"id_type"`
	TPAName   string `json:"tpa_name"`
	VisitType string `json:"visit_type"`

	MPI           string `json:"mpi,omitempty"`
	PatientID     string `json:"patientId,omitempty"`
	PatientName   string `json:"patientName,omitempty"`
	AppointmentID int    `json:"appointmentId,omitempty"`
	EncounterID   int    `json:"encounterId,omitempty"`
}

// TaskCreated is the accepted-task response.
type TaskCreated struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// DataDump is the free-text result block attached to completed tasks. Message
// is inspected for failure keywords during classification.
type DataDump struct {
	Message string          `json:"message"`
	Fields  json.RawMessage `json:"fields,omitempty"`
}

// EligibilityResult is the payload of a finished automation run.
type EligibilityResult struct {
	DataDump DataDump        `json:"data_dump"`
	Network  string          `json:"network,omitempty"`
	Raw      json.RawMessage `json:"raw,omitempty"`
}

// TaskStatus is the raw polling response for a task. Screenshot and
// Documents are interim artifacts the automation uploads while the run is
// still in flight.
type TaskStatus struct {
	TaskID            string             `json:"task_id"`
	Status            string             `json:"status"`
	Screenshot        string             `json:"screenshot,omitempty"`
	Documents         []string           `json:"documents,omitempty"`
	EligibilityResult *EligibilityResult `json:"eligibility_result,omitempty"`
}

// UpstreamError is returned for non-2xx Mantys responses.
type UpstreamError struct {
	StatusCode int
	RawBody    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("mantys: upstream status %d: %s", e.StatusCode, e.RawBody)
}

// ErrTimeout marks calls that exceeded the client deadline.
var ErrTimeout = errors.New("mantys: request timed out")

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// Client calls the Mantys REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL, apiKey string, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mantys: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mantys: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return ErrTimeout
		}
		return fmt.Errorf("mantys: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("mantys: read response: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("mantys call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &UpstreamError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	return nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// CreateCheck submits an eligibility automation task.
func (c *Client) CreateCheck(ctx context.Context, req CheckRequest) (*TaskCreated, error) {
	var created TaskCreated
	if err := c.post(ctx, "/eligibility/check", req, &created); err != nil {
		return nil, err
	}
	if created.TaskID == "" {
		return nil, fmt.Errorf("mantys: create check returned no task_id")
	}
	return &created, nil
}

// CheckStatus polls the raw status of a task.
func (c *Client) CheckStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	var status TaskStatus
	if err := c.post(ctx, "/eligibility/status", map[string]string{"task_id": taskID}, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
