// Package lifetrenz is the HTTP client for the Aster/Lifetrenz hospital
// information system. Every response arrives in the HIS envelope shape
// {head:{StatusValue,StatusText}, body:{Data,RecordCount,TotalRecords}};
// callers decode body.Data into the record type they expect.
package lifetrenz

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

// Head is the HIS response status block. StatusValue 1 means success.
type Head struct {
	StatusValue int    `json:"StatusValue"`
	StatusText  string `json:"StatusText"`
}

// Body carries the result rows. Data stays raw until the caller decodes it
// into the endpoint's record type.
type Body struct {
	Data         json.RawMessage `json:"Data"`
	RecordCount  int             `json:"RecordCount"`
	TotalRecords int             `json:"TotalRecords"`
}

// Envelope is the fixed HIS response wrapper.
type Envelope struct {
	Head Head `json:"head"`
	Body Body `json:"body"`
}

// OK reports whether the HIS marked the call successful.
func (e *Envelope) OK() bool {
	return e.Head.StatusValue == 1
}

// OrderPayload is the save-eligibility order document. CreatedBy, VendorID,
// SiteID and CustomerID carry the deployment identity the HIS expects on
// every write.
type OrderPayload struct {
	PatientID          int    `json:"patientId"`
	AppointmentID      int    `json:"appointmentId"`
	EncounterID        int    `json:"encounterId"`
	PhysicianID        int    `json:"physicianId,omitempty"`
	InsuranceMappingID int    `json:"insuranceMappingId"`
	Remarks            string `json:"remarks,omitempty"`
	CreatedBy          int    `json:"createdBy"`
	VendorID           int    `json:"vendorId"`
	SiteID             int    `json:"siteId"`
	CustomerID         int    `json:"customerId"`
}

// AttachmentPayload attaches a document to an encounter. FileContent is the
// base64-encoded file body.
type AttachmentPayload struct {
	PatientID     int    `json:"patientId"`
	AppointmentID int    `json:"appointmentId"`
	EncounterID   int    `json:"encounterId"`
	FileName      string `json:"fileName"`
	FileContent   string `json:"fileContent"`
	DocumentType  string `json:"documentType,omitempty"`
	CreatedBy     int    `json:"createdBy"`
	SiteID        int    `json:"siteId"`
	CustomerID    int    `json:"customerId"`
}

// PolicyPayload writes a verified insurance policy back to the HIS.
type PolicyPayload struct {
	PatientID          int    `json:"patientId"`
	AppointmentID      int    `json:"appointmentId"`
	EncounterID        int    `json:"encounterId"`
	InsuranceMappingID int    `json:"insuranceMappingId"`
	PolicyNumber       string `json:"policyNumber"`
	NetworkName        string `json:"networkName,omitempty"`
	ValidFrom          string `json:"validFrom,omitempty"`
	ValidTo            string `json:"validTo,omitempty"`
	CreatedBy          int    `json:"createdBy"`
	VendorID           int    `json:"vendorId"`
	SiteID             int    `json:"siteId"`
	CustomerID         int    `json:"customerId"`
}

// UpstreamError is returned for non-2xx HIS responses. The raw body is kept
// so handlers can attach it as diagnostic details.
type UpstreamError struct {
	StatusCode int
	RawBody    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("lifetrenz: upstream status %d: %s", e.StatusCode, e.RawBody)
}

// ErrTimeout marks calls that exceeded the client deadline. Handlers map it
// to 408.
var ErrTimeout = errors.New("lifetrenz: request timed out")

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// Client calls the HIS REST API.
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
			Timeout: 55 * time.Second,
		},
		logger: logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) (*Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("lifetrenz: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("lifetrenz: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("lifetrenz: %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("lifetrenz: read response: %w", err)
	}

	c.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("lifetrenz call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, RawBody: string(raw)}
	}
	return &env, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// PatientDetails fetches a patient record by HIS patient id.
func (c *Client) PatientDetails(ctx context.Context, patientID int) (*Envelope, error) {
	return c.post(ctx, "/patient/details", map[string]interface{}{"patientId": patientID})
}

// SearchByMPI looks up patients by Master Patient Index.
func (c *Client) SearchByMPI(ctx context.Context, mpi string) (*Envelope, error) {
	return c.post(ctx, "/patient/search", map[string]interface{}{"mpi": mpi})
}

// SearchByPhone looks up patients by phone number.
func (c *Client) SearchByPhone(ctx context.Context, phone string) (*Envelope, error) {
	return c.post(ctx, "/patient/search", map[string]interface{}{"phone": phone})
}

// SearchAppointments lists a patient's appointments.
func (c *Client) SearchAppointments(ctx context.Context, patientID int) (*Envelope, error) {
	return c.post(ctx, "/appointment/search", map[string]interface{}{"patientId": patientID})
}

// TodayAppointments lists the clinic site's appointments for the current day.
func (c *Client) TodayAppointments(ctx context.Context, customerSiteID int, date string) (*Envelope, error) {
	return c.post(ctx, "/appointment/today", map[string]interface{}{
		"customerSiteId": customerSiteID,
		"date":           date,
	})
}

// InsuranceDetails fetches a patient's insurance policies.
func (c *Client) InsuranceDetails(ctx context.Context, patientID int) (*Envelope, error) {
	return c.post(ctx, "/patient/insurance-details", map[string]interface{}{"patientId": patientID})
}

// TPAInsuranceMapping fetches the HIS TPA-to-insurance mapping list for a
// clinic site. This endpoint fails transiently, so callers wrap it in retry.
func (c *Client) TPAInsuranceMapping(ctx context.Context, customerSiteID int) (*Envelope, error) {
	return c.post(ctx, "/insurance/tpa-mapping", map[string]interface{}{"customerSiteId": customerSiteID})
}

// SaveEligibilityOrder submits an eligibility order document to the HIS.
func (c *Client) SaveEligibilityOrder(ctx context.Context, payload OrderPayload) (*Envelope, error) {
	return c.post(ctx, "/order/save-eligibility", payload)
}

// UploadAttachment attaches an eligibility document to an encounter.
func (c *Client) UploadAttachment(ctx context.Context, payload AttachmentPayload) (*Envelope, error) {
	return c.post(ctx, "/order/upload-attachment", payload)
}

// SavePolicy writes a verified insurance policy back to the HIS.
func (c *Client) SavePolicy(ctx context.Context, payload PolicyPayload) (*Envelope, error) {
	return c.post(ctx, "/policy/save", payload)
}
