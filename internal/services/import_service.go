package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/stwalsh4118/schoolmap/api/internal/logger"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
	"github.com/stwalsh4118/schoolmap/api/internal/parser"
	"github.com/stwalsh4118/schoolmap/api/internal/repository"
)

// InsertMaxRows caps one school write call. Backend payload/row limits
// make larger writes unreliable, so chunks are split into sub-chunks of
// this size.
const InsertMaxRows = 250

// Service-level errors
var (
	ErrRunNotFound = errors.New("import run not found")
	ErrRunTerminal = errors.New("import run already finished")
	ErrEmptyFile   = errors.New("no importable rows in file")
)

// BatchRequest is one chunk of an import run, delivered either by an
// external orchestrator or by the internal file-run loop. Districts may
// be pre-extracted by the caller; when absent they are derived from the
// chunk's schools.
type BatchRequest struct {
	RunID        uuid.UUID
	Schools      []models.SchoolRow
	Districts    []models.DistrictData
	BatchIndex   int
	TotalBatches int
	IsLastBatch  bool
}

// BatchResult reports one chunk's outcome.
type BatchResult struct {
	Success            bool  `json:"success"`
	Inserted           int   `json:"inserted"`
	Errors             int   `json:"errors"`
	CumulativeInserted int64 `json:"cumulative_inserted"`
	IsLastBatch        bool  `json:"is_last_batch"`
	Cancelled          bool  `json:"cancelled,omitempty"`
}

// ParseResult is the outcome of a pure parse with no writes.
type ParseResult struct {
	Format    string
	Rows      []models.SchoolRow
	Districts []models.DistrictData
}

// ImportService defines the interface for import pipeline operations.
type ImportService interface {
	// CreateRun creates a new pending import ledger.
	CreateRun(ctx context.Context) (*models.ImportRun, error)

	// GetRun returns the ledger for the given run.
	// Returns ErrRunNotFound if it does not exist.
	GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)

	// CancelRun marks the run cancelled. Chunks already committed stay
	// committed; the coordinator observes the flag at the next chunk
	// boundary. Returns ErrRunTerminal if the run already finished.
	CancelRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error)

	// Parse turns raw CSV text into rows and their referenced districts
	// without touching the store.
	Parse(text string) (*ParseResult, error)

	// ProcessBatch runs one chunk: upsert districts, re-read the district
	// id map, insert schools in capped sub-chunks, merge the counters
	// into the ledger, and finish the run on the last chunk. If the run
	// was cancelled, it returns immediately without any writes.
	ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)

	// RunFile parses a whole CSV and processes it chunk by chunk to
	// completion or cancellation, returning the terminal ledger.
	RunFile(ctx context.Context, runID uuid.UUID, csvText string) (*models.ImportRun, error)
}

// importService is the concrete implementation of ImportService.
type importService struct {
	districts repository.DistrictRepository
	schools   repository.SchoolRepository
	runs      repository.ImportRunRepository
	chunkSize int
	log       *logger.Logger
}

// NewImportService creates a new instance of ImportService.
func NewImportService(
	districts repository.DistrictRepository,
	schools repository.SchoolRepository,
	runs repository.ImportRunRepository,
	chunkSize int,
	log *logger.Logger,
) ImportService {
	return &importService{
		districts: districts,
		schools:   schools,
		runs:      runs,
		chunkSize: chunkSize,
		log:       log,
	}
}

func (s *importService) CreateRun(ctx context.Context) (*models.ImportRun, error) {
	run, err := s.runs.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create import run: %w", err)
	}

	s.log.Info("Import run created", map[string]interface{}{
		"run_id": run.ID.String(),
	})
	return run, nil
}

func (s *importService) GetRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query import run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}
	return run, nil
}

func (s *importService) CancelRun(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	applied, err := s.runs.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel import run: %w", err)
	}

	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query import run: %w", err)
	}
	if run == nil {
		return nil, ErrRunNotFound
	}

	if !applied {
		return run, ErrRunTerminal
	}

	s.log.Info("Import run cancelled", map[string]interface{}{
		"run_id": id.String(),
	})
	return run, nil
}

func (s *importService) Parse(text string) (*ParseResult, error) {
	rows, format, err := parser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}

	districts := parser.ExtractDistricts(rows, parser.DistrictOptions{})

	s.log.Info("CSV parsed", map[string]interface{}{
		"format":    format,
		"rows":      len(rows),
		"districts": len(districts),
	})

	return &ParseResult{
		Format:    format,
		Rows:      rows,
		Districts: districts,
	}, nil
}

func (s *importService) ProcessBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	log := s.log.WithRunID(req.RunID.String())

	// Re-check the ledger before any writes: an out-of-band cancellation
	// between chunks must stop the pipeline cleanly.
	status, err := s.runs.Status(ctx, req.RunID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, req.RunID)
		}
		return nil, fmt.Errorf("failed to read run status: %w", err)
	}

	switch status {
	case models.StatusCancelled:
		log.Info("Skipping chunk for cancelled run", map[string]interface{}{
			"batch_index": req.BatchIndex,
		})
		return &BatchResult{
			Success:     true,
			IsLastBatch: req.IsLastBatch,
			Cancelled:   true,
		}, nil
	case models.StatusCompleted, models.StatusFailed:
		return nil, fmt.Errorf("%w: status %s", ErrRunTerminal, status)
	case models.StatusPending:
		if err := s.runs.Start(ctx, req.RunID); err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
	}

	districts := req.Districts
	if len(districts) == 0 {
		districts = parser.ExtractDistricts(req.Schools, parser.DistrictOptions{})
	}

	// Districts commit before any school insert so a school can never
	// reference a district id absent from the map at insert time. A failed
	// district phase moves its districts from the processed count to the
	// error tally; the chunk's school inserts still proceed.
	districtsProcessed := len(districts)
	districtErrors := 0
	if err := s.districts.Upsert(ctx, districts); err != nil {
		districtsProcessed = 0
		districtErrors = len(districts)
		log.Error("District upsert failed", err, map[string]interface{}{
			"batch_index": req.BatchIndex,
			"districts":   len(districts),
		})
	}

	// Full re-read rather than an incremental patch: districts may have
	// been inserted by a prior run or an earlier chunk.
	idMap, err := s.districts.IDMap(ctx)
	if err != nil {
		log.Error("District id map read failed", err, map[string]interface{}{
			"batch_index": req.BatchIndex,
		})
		idMap = map[string]int64{}
	}

	inserted := 0
	insertErrors := 0
	statusBreakdown := make(map[string]int)
	stateBreakdown := make(map[string]int)

	for start := 0; start < len(req.Schools); start += InsertMaxRows {
		end := start + InsertMaxRows
		if end > len(req.Schools) {
			end = len(req.Schools)
		}
		sub := req.Schools[start:end]

		batch := make([]repository.SchoolInsert, 0, len(sub))
		for _, row := range sub {
			batch = append(batch, repository.SchoolInsert{
				Row:        row,
				DistrictID: resolveDistrictID(idMap, row.DistrictNCESID),
			})
		}

		// A failed sub-chunk is logged and tallied; the run goes on.
		if err := s.schools.InsertBatch(ctx, batch); err != nil {
			insertErrors += len(sub)
			log.Error("School sub-chunk insert failed", err, map[string]interface{}{
				"batch_index": req.BatchIndex,
				"offset":      start,
				"rows":        len(sub),
			})
			continue
		}

		inserted += len(sub)
		for _, row := range sub {
			statusBreakdown[row.StatusKey()]++
			stateBreakdown[row.StateKey()]++
		}
	}

	chunkErrors := districtErrors + insertErrors

	delta := models.ProgressDelta{
		RowsInserted:       int64(inserted),
		DistrictsProcessed: int64(districtsProcessed),
		ErrorCount:         int64(chunkErrors),
		StatusBreakdown:    statusBreakdown,
		StateBreakdown:     stateBreakdown,
	}
	if err := s.runs.MergeProgress(ctx, req.RunID, delta); err != nil {
		return nil, fmt.Errorf("failed to update ledger: %w", err)
	}

	if req.IsLastBatch {
		if err := s.runs.Complete(ctx, req.RunID); err != nil {
			return nil, fmt.Errorf("failed to complete run: %w", err)
		}
	}

	run, err := s.runs.Get(ctx, req.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to query import run: %w", err)
	}

	var cumulative int64
	if run != nil {
		cumulative = run.RowsInserted
	}

	log.Info("Chunk processed", map[string]interface{}{
		"batch_index":   req.BatchIndex,
		"total_batches": req.TotalBatches,
		"inserted":      inserted,
		"errors":        chunkErrors,
		"districts":     districtsProcessed,
		"cumulative":    cumulative,
		"is_last":       req.IsLastBatch,
	})

	return &BatchResult{
		Success:            true,
		Inserted:           inserted,
		Errors:             chunkErrors,
		CumulativeInserted: cumulative,
		IsLastBatch:        req.IsLastBatch,
	}, nil
}

func (s *importService) RunFile(ctx context.Context, runID uuid.UUID, csvText string) (*models.ImportRun, error) {
	log := s.log.WithRunID(runID.String())

	parsed, err := s.Parse(csvText)
	if err != nil {
		if failErr := s.runs.Fail(ctx, runID); failErr != nil {
			log.Error("Failed to mark run failed", failErr, nil)
		}
		return nil, err
	}

	rows := parsed.Rows
	if len(rows) == 0 {
		if failErr := s.runs.Fail(ctx, runID); failErr != nil {
			log.Error("Failed to mark run failed", failErr, nil)
		}
		return nil, ErrEmptyFile
	}

	totalBatches := (len(rows) + s.chunkSize - 1) / s.chunkSize

	log.Info("Starting file import", map[string]interface{}{
		"format":        parsed.Format,
		"rows":          len(rows),
		"total_batches": totalBatches,
		"chunk_size":    s.chunkSize,
	})

	for i := 0; i < totalBatches; i++ {
		start := i * s.chunkSize
		end := start + s.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		result, err := s.ProcessBatch(ctx, BatchRequest{
			RunID:        runID,
			Schools:      chunk,
			Districts:    parser.ExtractDistricts(chunk, parser.DistrictOptions{}),
			BatchIndex:   i,
			TotalBatches: totalBatches,
			IsLastBatch:  i == totalBatches-1,
		})
		if err != nil {
			// The ledger must not stay in_progress forever when a chunk
			// write dies mid-file.
			if failErr := s.runs.Fail(ctx, runID); failErr != nil {
				log.Error("Failed to mark run failed", failErr, nil)
			}
			return nil, err
		}
		if result.Cancelled {
			break
		}
	}

	return s.GetRun(ctx, runID)
}

// resolveDistrictID looks up the internal district id for an external
// NCES id. Unresolved references persist as NULL; that is not an error.
func resolveDistrictID(idMap map[string]int64, ncesID string) *int64 {
	if ncesID == "" {
		return nil
	}
	id, ok := idMap[ncesID]
	if !ok {
		return nil
	}
	return &id
}
