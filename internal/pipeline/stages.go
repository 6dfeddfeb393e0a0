package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/import-engine/internal/coords"
	"github.com/sells-group/import-engine/internal/mapping"
	"github.com/sells-group/import-engine/internal/model"
	"github.com/sells-group/import-engine/internal/schema"
)

// detectDataset inspects the file, validates the requested sheet and captures
// the header. Single-shot: the stage completes in one invocation.
func (o *Orchestrator) detectDataset(ctx context.Context, job *model.Job) (bool, error) {
	r, err := o.readerFor(job.FileHandle)
	if err != nil {
		return false, err
	}

	sheets, err := r.Sheets(ctx, job.FileHandle)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: list sheets")
	}
	if job.SheetIndex < 0 || job.SheetIndex >= len(sheets) {
		return false, eris.Errorf("pipeline: sheet index %d out of range (file has %d)", job.SheetIndex, len(sheets))
	}
	sheet := sheets[job.SheetIndex]
	if sheet.Rows == 0 {
		return false, eris.Errorf("pipeline: sheet %q has no data rows", sheet.Name)
	}

	header, err := r.Header(ctx, job.FileHandle, job.SheetIndex)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: read header")
	}
	if len(header) == 0 {
		return false, eris.New("pipeline: empty header row")
	}

	job.SheetName = sheet.Name
	job.TotalRows = sheet.Rows
	job.Columns = header

	zap.L().Info("pipeline: dataset detected",
		zap.String("job_id", job.ID),
		zap.String("sheet", sheet.Name),
		zap.Int("rows", sheet.Rows),
		zap.Int("columns", len(header)),
	)
	return true, nil
}

// detectSchema feeds one batch into the progressive schema builder. The
// builder snapshot lives on the job, so a crashed invocation that already
// folded this batch is detected by comparing batch counters and skipped
// rather than double-counted.
func (o *Orchestrator) detectSchema(ctx context.Context, job *model.Job) (bool, error) {
	builder := schema.NewBuilder(schema.Config{
		ReservoirCap: o.cfg.Schema.ReservoirCap,
		SampleCap:    o.cfg.Schema.SampleCap,
	})
	if len(job.SchemaState) > 0 {
		if err := builder.Restore(job.SchemaState); err != nil {
			return false, eris.Wrap(err, "pipeline: restore schema state")
		}
	}

	rows, exhausted, err := o.readBatch(ctx, job)
	if err != nil {
		return false, err
	}

	if builder.Batches() > job.Batch {
		zap.L().Debug("pipeline: batch already folded into schema",
			zap.String("job_id", job.ID), zap.Int("batch", job.Batch))
	} else if err := builder.ProcessBatch(job.Columns, rows); err != nil {
		return false, eris.Wrap(err, "pipeline: process schema batch")
	}

	job.RowsProcessed = int(builder.Rows())

	if !exhausted {
		snap, snapErr := builder.Snapshot()
		if snapErr != nil {
			return false, eris.Wrap(snapErr, "pipeline: snapshot schema state")
		}
		job.SchemaState = snap
		return false, nil
	}

	// Finalize before the last snapshot so the enum verdict persists.
	enums := builder.DetectEnumFields()
	lang := schema.DetectLanguage(builder.TextSamples())
	job.Mappings = mapping.Detect(builder.Fields(), lang, job.Overrides)

	snap, err := builder.Snapshot()
	if err != nil {
		return false, eris.Wrap(err, "pipeline: snapshot schema state")
	}
	job.SchemaState = snap

	zap.L().Info("pipeline: schema detected",
		zap.String("job_id", job.ID),
		zap.Int64("rows", builder.Rows()),
		zap.Int("enum_fields", len(enums)),
		zap.String("language", lang.String()),
		zap.Int("mappings", len(job.Mappings)),
	)
	return true, nil
}

// analyzeDuplicates hashes the identity columns of every row and flags
// repeats. Hashes seen so far persist on the job between invocations and are
// dropped once the stage completes.
func (o *Orchestrator) analyzeDuplicates(ctx context.Context, job *model.Job) (bool, error) {
	rows, exhausted, err := o.readBatch(ctx, job)
	if err != nil {
		return false, err
	}

	if job.DupHashes == nil {
		job.DupHashes = make(map[string]int)
	}
	if job.Duplicates == nil {
		job.Duplicates = model.NewRowSet()
	}

	titleIdx := columnIndex(job, model.RoleTitle)
	dateIdx := columnIndex(job, model.RoleDate)
	locIdx := columnIndex(job, model.RoleLocation)

	for _, row := range rows {
		h := contentHash(row, titleIdx, dateIdx, locIdx)
		if first, seen := job.DupHashes[h]; seen {
			if first != row.Index {
				job.Duplicates.Add(row.Index)
			}
			continue
		}
		job.DupHashes[h] = row.Index
	}

	if !exhausted {
		return false, nil
	}

	job.DupHashes = nil
	zap.L().Info("pipeline: duplicate analysis complete",
		zap.String("job_id", job.ID),
		zap.Int("duplicates", len(job.Duplicates)),
	)
	return true, nil
}

// contentHash derives a row identity from the mapped title, date and location
// cells, falling back to the whole row when none of those are mapped.
// Matching is case- and whitespace-insensitive.
func contentHash(row model.Row, titleIdx, dateIdx, locIdx int) string {
	var parts []string
	for _, idx := range []int{titleIdx, dateIdx, locIdx} {
		if idx >= 0 {
			parts = append(parts, normalizeCell(row.Cell(idx)))
		}
	}
	if len(parts) == 0 {
		for _, cell := range row.Cells {
			parts = append(parts, normalizeCell(cell))
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

func normalizeCell(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}

// validateSchema checks every row against the detected mappings, recording
// per-row errors without aborting the run. The first batch doubles as the
// swap preflight: when most sampled coordinate pairs look exchanged, the
// auto-fix decision is latched for the whole dataset.
func (o *Orchestrator) validateSchema(ctx context.Context, job *model.Job) (bool, error) {
	rows, exhausted, err := o.readBatch(ctx, job)
	if err != nil {
		return false, err
	}

	if _, ok := job.EffectiveMappings()[model.RoleTitle]; !ok {
		return false, eris.New("pipeline: no title column detected and no override provided")
	}

	titleIdx := columnIndex(job, model.RoleTitle)
	latIdx := columnIndex(job, model.RoleLatitude)
	lonIdx := columnIndex(job, model.RoleLongitude)
	combIdx := columnIndex(job, model.RoleCombined)

	var samples []coords.LatLon

	for _, row := range rows {
		if strings.TrimSpace(row.Cell(titleIdx)) == "" {
			job.RecordError(row.Index, "validate: missing title")
		}

		if latIdx >= 0 && lonIdx >= 0 {
			latRaw := strings.TrimSpace(row.Cell(latIdx))
			lonRaw := strings.TrimSpace(row.Cell(lonIdx))
			if latRaw == "" && lonRaw == "" {
				continue
			}
			lat, latOK := coords.ParseCoordinate(latRaw)
			lon, lonOK := coords.ParseCoordinate(lonRaw)
			if !latOK || !lonOK {
				job.RecordError(row.Index, "validate: unparseable coordinate pair")
				continue
			}
			// Swapped pairs are left to the dataset-level preflight
			// below; only a generically bad range is a row error.
			if coords.Validate(lat, lon, false).Status == coords.StatusOutOfRange {
				job.RecordError(row.Index, "validate: coordinate out of range")
			}
			if len(samples) < o.cfg.Import.SwapSampleSize {
				samples = append(samples, coords.LatLon{Lat: lat, Lon: lon})
			}
		} else if combIdx >= 0 {
			raw := strings.TrimSpace(row.Cell(combIdx))
			if raw == "" {
				continue
			}
			ex, exErr := coords.ExtractFromCombined(raw, coords.FormatUnknown)
			if exErr != nil {
				job.RecordError(row.Index, "validate: unparseable combined coordinate")
				continue
			}
			if ex.Status == coords.StatusOutOfRange {
				job.RecordError(row.Index, "validate: coordinate out of range")
			}
			if len(samples) < o.cfg.Import.SwapSampleSize {
				samples = append(samples, coords.LatLon{Lat: ex.Latitude, Lon: ex.Longitude})
			}
		}
	}

	if job.Batch == 0 && len(samples) > 0 {
		job.SwapAutoFix = coords.DetectSwapped(samples, o.cfg.Import.SwapThreshold)
		if job.SwapAutoFix {
			zap.L().Warn("pipeline: coordinate columns appear swapped, enabling auto-fix",
				zap.String("job_id", job.ID), zap.Int("sampled", len(samples)))
		}
	}

	return exhausted, nil
}

// geocodeRows resolves coordinates for rows that carry a location string but
// no usable inline pair. Results persist on the job keyed by row index so a
// replayed batch skips rows already resolved. At stage end the failure-rate
// gate can fail the whole job when the configured ceiling is exceeded.
func (o *Orchestrator) geocodeRows(ctx context.Context, job *model.Job) (bool, error) {
	mappings := job.EffectiveMappings()
	_, hasLoc := mappings[model.RoleLocation]
	_, hasLat := mappings[model.RoleLatitude]
	_, hasComb := mappings[model.RoleCombined]
	if !hasLoc {
		zap.L().Info("pipeline: no location column, skipping geocode",
			zap.String("job_id", job.ID))
		return true, nil
	}

	rows, exhausted, err := o.readBatch(ctx, job)
	if err != nil {
		return false, err
	}

	locIdx := columnIndex(job, model.RoleLocation)
	latIdx := columnIndex(job, model.RoleLatitude)
	lonIdx := columnIndex(job, model.RoleLongitude)
	combIdx := columnIndex(job, model.RoleCombined)

	if job.Geocoded == nil {
		job.Geocoded = make(map[int]model.GeoPoint)
	}

	for _, row := range rows {
		if _, done := job.Geocoded[row.Index]; done {
			continue
		}
		if hasLat && hasInlinePair(row, latIdx, lonIdx) {
			continue
		}
		if hasComb && strings.TrimSpace(row.Cell(combIdx)) != "" {
			continue
		}

		address := strings.TrimSpace(row.Cell(locIdx))
		if address == "" {
			continue
		}

		result, gcErr := o.geocoder.Geocode(ctx, address)
		if gcErr != nil {
			if ctx.Err() != nil {
				return false, eris.Wrap(gcErr, "pipeline: geocode")
			}
			job.GeocodeFailed++
			job.RecordError(row.Index, "geocode: "+gcErr.Error())
			continue
		}
		if !result.Matched {
			job.GeocodeFailed++
			job.RecordError(row.Index, "geocode: no match")
			continue
		}

		job.Geocoded[row.Index] = model.GeoPoint{
			Lat:        result.Latitude,
			Lon:        result.Longitude,
			Confidence: result.Confidence,
		}
		job.GeocodeOK++
	}

	if !exhausted {
		return false, nil
	}

	total := job.GeocodeOK + job.GeocodeFailed
	if maxRate := o.cfg.Geocode.MaxFailureRate; maxRate < 1.0 && total > 0 {
		rate := float64(job.GeocodeFailed) / float64(total)
		if rate > maxRate {
			return false, eris.Errorf("pipeline: geocode failure rate %.2f exceeds limit %.2f (%d of %d failed)",
				rate, maxRate, job.GeocodeFailed, total)
		}
	}

	zap.L().Info("pipeline: geocoding complete",
		zap.String("job_id", job.ID),
		zap.Int("ok", job.GeocodeOK),
		zap.Int("failed", job.GeocodeFailed),
	)
	return true, nil
}

func hasInlinePair(row model.Row, latIdx, lonIdx int) bool {
	if latIdx < 0 || lonIdx < 0 {
		return false
	}
	return strings.TrimSpace(row.Cell(latIdx)) != "" && strings.TrimSpace(row.Cell(lonIdx)) != ""
}

// createEvents materializes one event per surviving row and upserts the
// batch. Row failures are isolated: a bad row is recorded and skipped, the
// batch continues. The store upserts on (job, row), so a replayed batch
// overwrites instead of duplicating.
func (o *Orchestrator) createEvents(ctx context.Context, job *model.Job) (bool, error) {
	rows, exhausted, err := o.readBatch(ctx, job)
	if err != nil {
		return false, err
	}

	titleIdx := columnIndex(job, model.RoleTitle)
	descIdx := columnIndex(job, model.RoleDescription)
	dateIdx := columnIndex(job, model.RoleDate)
	locIdx := columnIndex(job, model.RoleLocation)
	latIdx := columnIndex(job, model.RoleLatitude)
	lonIdx := columnIndex(job, model.RoleLongitude)

	events := make([]model.Event, 0, len(rows))
	now := time.Now().UTC()

	for _, row := range rows {
		title := strings.TrimSpace(row.Cell(titleIdx))
		if title == "" {
			job.RecordError(row.Index, "create_events: missing title")
			continue
		}

		ev := model.Event{
			ID:        uuid.New().String(),
			JobID:     job.ID,
			RowIndex:  row.Index,
			Title:     title,
			CreatedAt: now,
		}
		if descIdx >= 0 {
			ev.Description = strings.TrimSpace(row.Cell(descIdx))
		}
		if locIdx >= 0 {
			ev.Location = strings.TrimSpace(row.Cell(locIdx))
		}
		if dateIdx >= 0 {
			if t, ok := schema.ParseDate(row.Cell(dateIdx)); ok {
				ev.Date = &t
			}
		}

		if err := o.resolveCoordinates(job, row, latIdx, lonIdx, &ev); err != nil {
			job.RecordError(row.Index, err.Error())
			continue
		}

		events = append(events, ev)
	}

	n, err := o.store.InsertEvents(ctx, events)
	if err != nil {
		return false, eris.Wrap(err, "pipeline: insert events")
	}
	job.EventsCreated += n

	if !exhausted {
		return false, nil
	}

	// Replayed batches inflate the running counter; the stored count is
	// authoritative.
	if total, countErr := o.store.CountEvents(ctx, job.ID); countErr == nil {
		job.EventsCreated = total
	}
	job.Geocoded = nil

	zap.L().Info("pipeline: events created",
		zap.String("job_id", job.ID),
		zap.Int("events", job.EventsCreated),
	)
	return true, nil
}

// resolveCoordinates fills the event's coordinates from, in order of
// preference, the mapped latitude/longitude columns, a combined column, or a
// geocoder result carried over from the previous stage. A row with no
// location signal at all is still a valid event; it just carries no point.
func (o *Orchestrator) resolveCoordinates(job *model.Job, row model.Row, latIdx, lonIdx int, ev *model.Event) error {
	combIdx := columnIndex(job, model.RoleCombined)

	var validated coords.Validated
	resolved := false

	switch {
	case hasInlinePair(row, latIdx, lonIdx):
		lat, latOK := coords.ParseCoordinate(row.Cell(latIdx))
		lon, lonOK := coords.ParseCoordinate(row.Cell(lonIdx))
		if !latOK || !lonOK {
			return eris.New("create_events: unparseable coordinate pair")
		}
		validated = coords.Validate(lat, lon, job.SwapAutoFix)
		resolved = true

	case combIdx >= 0 && strings.TrimSpace(row.Cell(combIdx)) != "":
		ex, err := coords.ExtractFromCombined(row.Cell(combIdx), coords.FormatUnknown)
		if err != nil {
			return eris.New("create_events: unparseable combined coordinate")
		}
		validated = ex.Validated
		resolved = true

	default:
		if geo, ok := job.Geocoded[row.Index]; ok {
			ev.Latitude = &geo.Lat
			ev.Longitude = &geo.Lon
			ev.Confidence = geo.Confidence
			return attachGeometry(ev, geo.Lat, geo.Lon)
		}
	}

	if !resolved {
		return nil
	}
	if !validated.IsValid {
		ev.Confidence = validated.Confidence
		return nil
	}

	ev.Latitude = &validated.Latitude
	ev.Longitude = &validated.Longitude
	ev.Confidence = validated.Confidence * coords.Confidence(validated.Latitude, validated.Longitude)
	return attachGeometry(ev, validated.Latitude, validated.Longitude)
}

func attachGeometry(ev *model.Event, lat, lon float64) error {
	geoJSON, err := geojson.Marshal(coords.Validated{Latitude: lat, Longitude: lon, IsValid: true}.Point())
	if err != nil {
		return eris.Wrap(err, "create_events: encode geometry")
	}
	ev.Geometry = geoJSON
	return nil
}
