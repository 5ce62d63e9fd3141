package autocheck

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/eligibility"
	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
)

// HISClient fetches the day's appointment list.
type HISClient interface {
	TodayAppointments(ctx context.Context, customerSiteID int, date string) (*lifetrenz.Envelope, error)
}

// Checker launches eligibility checks. The eligibility service satisfies it.
type Checker interface {
	StartCheck(ctx context.Context, req eligibility.CheckRequest) (*eligibility.CheckCreated, error)
}

// NameIndexer resolves insurance display names to TPA codes. The tpaconfig
// service satisfies it.
type NameIndexer interface {
	InsuranceNameIndex(ctx context.Context, clinicID string) (map[string]string, error)
}

// Processor walks today's appointments and launches a check for every
// claimable one.
type Processor struct {
	his      HISClient
	checker  Checker
	names    NameIndexer
	tracker  Tracker
	clinicID string
	siteID   int
	logger   zerolog.Logger

	now func() time.Time
}

func NewProcessor(his HISClient, checker Checker, names NameIndexer, tracker Tracker, clinicID string, customerSiteID int, logger zerolog.Logger) *Processor {
	return &Processor{
		his:      his,
		checker:  checker,
		names:    names,
		tracker:  tracker,
		clinicID: clinicID,
		siteID:   customerSiteID,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one processing pass and reports its metrics. Per-appointment
// failures are counted, not fatal; only fetch failures abort the pass.
func (p *Processor) Run(ctx context.Context) (Metrics, error) {
	var m Metrics

	date := p.now().Format("2006-01-02")
	env, err := p.his.TodayAppointments(ctx, p.siteID, date)
	if err != nil {
		return m, fmt.Errorf("fetch today's appointments: %w", err)
	}
	if !env.OK() {
		return m, fmt.Errorf("appointment fetch rejected: %s", env.Head.StatusText)
	}

	var appointments []Appointment
	if len(env.Body.Data) > 0 {
		if err := json.Unmarshal(env.Body.Data, &appointments); err != nil {
			return m, fmt.Errorf("decode appointments: %w", err)
		}
	}
	m.Fetched = len(appointments)
	if m.Fetched == 0 {
		p.logMetrics(m)
		return m, nil
	}

	nameIndex, err := p.names.InsuranceNameIndex(ctx, p.clinicID)
	if err != nil {
		p.logger.Warn().Err(err).Msg("insurance name index unavailable, code matching only")
		nameIndex = nil
	}

	for i := range appointments {
		p.processOne(ctx, &appointments[i], nameIndex, &m)
	}

	p.logMetrics(m)
	return m, nil
}

func (p *Processor) processOne(ctx context.Context, a *Appointment, nameIndex map[string]string, m *Metrics) {
	log := p.logger.With().Int("appointment_id", a.AppointmentID).Logger()

	if a.AppointmentID == 0 {
		log.Warn().Msg("appointment without id, skipping")
		m.Errors++
		return
	}

	fresh, err := p.tracker.ShouldProcess(ctx, a.AppointmentID)
	if err != nil {
		log.Warn().Err(err).Msg("claim check failed, will retry next pass")
		m.Errors++
		return
	}
	if !fresh {
		m.SkippedProcessed++
		return
	}

	tpaOverride := ""
	if !a.HasInsuranceInfo() {
		if !a.HasEmiratesID() {
			m.SkippedNoPayer++
			return
		}
		// Self-pay row with a national id: search every configured TPA.
		tpaOverride = TPACodeBoth
	}

	claimed, err := p.tracker.Claim(ctx, a.AppointmentID)
	if err != nil {
		log.Warn().Err(err).Msg("could not claim appointment")
		m.Errors++
		return
	}
	if !claimed {
		m.SkippedProcessed++
		return
	}

	tpaCode := tpaOverride
	if tpaCode == "" {
		tpaCode = ExtractTPACode(a, nameIndex)
	}
	if !IsValidTPACode(tpaCode) {
		log.Warn().Str("receiver_code", a.ReceiverCode).Str("payer_code", a.PayerCode).
			Msg("no valid tpa code for appointment")
		m.SkippedNoTPA++
		p.markError(ctx, a.AppointmentID, "no valid TPA code found")
		return
	}

	idType, idValue, ok := ResolveID(a)
	if !ok {
		log.Warn().Msg("no usable identifier on appointment")
		m.SkippedNoID++
		p.markError(ctx, a.AppointmentID, "no usable patient identifier")
		return
	}

	req := eligibility.CheckRequest{
		ClinicID:      p.clinicID,
		IDValue:       idValue,
		IDType:        idType,
		TPAName:       tpaCode,
		VisitType:     DetermineVisitType(a),
		MPI:           a.MPI,
		PatientName:   a.PatientName,
		EncounterID:   a.EncounterID,
		AppointmentID: strconv.Itoa(a.AppointmentID),
	}
	if a.PatientID != 0 {
		req.PatientID = strconv.Itoa(a.PatientID)
	}

	created, err := p.checker.StartCheck(ctx, req)
	if err != nil {
		log.Error().Err(err).Msg("could not create eligibility check")
		m.Errors++
		p.markError(ctx, a.AppointmentID, err.Error())
		return
	}

	if err := p.tracker.MarkCompleted(ctx, a.AppointmentID, created.TaskID); err != nil {
		log.Warn().Err(err).Msg("could not finalize appointment claim")
	}
	log.Info().Str("task_id", created.TaskID).Str("tpa_code", tpaCode).Msg("eligibility check created")
	m.Processed++
	m.ChecksCreated++
}

func (p *Processor) markError(ctx context.Context, appointmentID int, reason string) {
	if err := p.tracker.MarkError(ctx, appointmentID, reason); err != nil {
		p.logger.Warn().Err(err).Int("appointment_id", appointmentID).Msg("could not record claim error")
	}
}

func (p *Processor) logMetrics(m Metrics) {
	p.logger.Info().
		Int("fetched", m.Fetched).
		Int("processed", m.Processed).
		Int("checks_created", m.ChecksCreated).
		Int("skipped_processed", m.SkippedProcessed).
		Int("skipped_no_payer", m.SkippedNoPayer).
		Int("skipped_no_tpa", m.SkippedNoTPA).
		Int("skipped_no_id", m.SkippedNoID).
		Int("errors", m.Errors).
		Msg("auto-check pass finished")
}

// RunContinuous repeats Run until the context is cancelled, sleeping the
// interval between passes.
func (p *Processor) RunContinuous(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := p.Run(ctx); err != nil {
			p.logger.Error().Err(err).Msg("auto-check pass failed")
		}
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("auto-check worker stopping")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
