package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/schoolmap/api/internal/logger"
	"github.com/stwalsh4118/schoolmap/api/internal/models"
	"github.com/stwalsh4118/schoolmap/api/internal/repository"
)

// MockDistrictRepository is a mock implementation of DistrictRepository for testing
type MockDistrictRepository struct {
	mock.Mock
}

func (m *MockDistrictRepository) Upsert(ctx context.Context, districts []models.DistrictData) error {
	args := m.Called(ctx, districts)
	return args.Error(0)
}

func (m *MockDistrictRepository) IDMap(ctx context.Context) (map[string]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

// MockSchoolRepository is a mock implementation of SchoolRepository for testing
type MockSchoolRepository struct {
	mock.Mock
}

func (m *MockSchoolRepository) InsertBatch(ctx context.Context, schools []repository.SchoolInsert) error {
	args := m.Called(ctx, schools)
	return args.Error(0)
}

// MockImportRunRepository is a mock implementation of ImportRunRepository for testing
type MockImportRunRepository struct {
	mock.Mock
}

func (m *MockImportRunRepository) Create(ctx context.Context) (*models.ImportRun, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockImportRunRepository) Get(ctx context.Context, id uuid.UUID) (*models.ImportRun, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportRun), args.Error(1)
}

func (m *MockImportRunRepository) Status(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *MockImportRunRepository) Start(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockImportRunRepository) MergeProgress(ctx context.Context, id uuid.UUID, delta models.ProgressDelta) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

func (m *MockImportRunRepository) Complete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockImportRunRepository) Fail(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockImportRunRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func newTestService(districts *MockDistrictRepository, schools *MockSchoolRepository, runs *MockImportRunRepository, chunkSize int) ImportService {
	return NewImportService(districts, schools, runs, chunkSize, logger.New("test"))
}

func makeSchools(n int, districtID string) []models.SchoolRow {
	rows := make([]models.SchoolRow, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, models.SchoolRow{
			Name:           "School",
			State:          "TX",
			SYStatus:       "Open",
			DistrictNCESID: districtID,
			DistrictName:   "Test District",
		})
	}
	return rows
}

func TestProcessBatch_Success(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()
	districts := []models.DistrictData{{NCESID: "001", Name: "Unified District", State: "TX"}}

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, districts).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{"001": 7}, nil)
	mockSchools.On("InsertBatch", ctx, mock.MatchedBy(func(batch []repository.SchoolInsert) bool {
		if len(batch) != 2 {
			return false
		}
		for _, s := range batch {
			if s.DistrictID == nil || *s.DistrictID != 7 {
				return false
			}
		}
		return true
	})).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.MatchedBy(func(delta models.ProgressDelta) bool {
		return delta.RowsInserted == 2 &&
			delta.DistrictsProcessed == 1 &&
			delta.ErrorCount == 0 &&
			delta.StatusBreakdown["Open"] == 2 &&
			delta.StateBreakdown["TX"] == 2
	})).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusInProgress, RowsInserted: 2}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:        runID,
		Schools:      makeSchools(2, "001"),
		Districts:    districts,
		BatchIndex:   0,
		TotalBatches: 2,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 0, result.Errors)
	assert.Equal(t, int64(2), result.CumulativeInserted)
	assert.False(t, result.Cancelled)
	mockDistricts.AssertExpectations(t)
	mockSchools.AssertExpectations(t)
	mockRuns.AssertExpectations(t)
}

func TestProcessBatch_CancelledRun_NoWrites(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusCancelled, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:       runID,
		Schools:     makeSchools(10, "001"),
		IsLastBatch: true,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, 0, result.Inserted)
	mockDistricts.AssertNotCalled(t, "Upsert")
	mockSchools.AssertNotCalled(t, "InsertBatch")
	mockRuns.AssertNotCalled(t, "MergeProgress")
	mockRuns.AssertNotCalled(t, "Complete")
}

func TestProcessBatch_PendingRunStarts(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusPending, nil)
	mockRuns.On("Start", ctx, runID).Return(nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusInProgress, RowsInserted: 1}, nil)

	// Act
	_, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:   runID,
		Schools: makeSchools(1, "001"),
	})

	// Assert
	require.NoError(t, err)
	mockRuns.AssertCalled(t, "Start", ctx, runID)
}

func TestProcessBatch_TerminalRun(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusCompleted, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{RunID: runID})

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRunTerminal)
}

func TestProcessBatch_RunNotFound(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return("", repository.ErrRunNotFound)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{RunID: runID})

	// Assert
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestProcessBatch_StatusReadError(t *testing.T) {
	// Arrange: a failing status query is an internal error, not a 404
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return("", errors.New("connection refused"))

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{RunID: runID})

	// Assert
	assert.Nil(t, result)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRunNotFound)
}

func TestProcessBatch_SubChunkCap(t *testing.T) {
	// Arrange: 600 schools must go out as 250 + 250 + 100
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	var sizes []int
	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Run(func(args mock.Arguments) {
		sizes = append(sizes, len(args.Get(1).([]repository.SchoolInsert)))
	}).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, RowsInserted: 600}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:   runID,
		Schools: makeSchools(600, "001"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []int{250, 250, 100}, sizes)
	assert.Equal(t, 600, result.Inserted)
}

func TestProcessBatch_SubChunkErrorContinues(t *testing.T) {
	// Arrange: first sub-chunk fails, run keeps going
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(errors.New("write failed")).Once()
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.MatchedBy(func(delta models.ProgressDelta) bool {
		return delta.RowsInserted == 50 && delta.ErrorCount == 250
	})).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, RowsInserted: 50}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:   runID,
		Schools: makeSchools(300, "001"),
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 50, result.Inserted)
	assert.Equal(t, 250, result.Errors)
	mockRuns.AssertExpectations(t)
}

func TestProcessBatch_DistrictUpsertFailureTallied(t *testing.T) {
	// Arrange: the district phase fails; its districts count as errors,
	// not as processed, and the school inserts still go ahead
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()
	districts := []models.DistrictData{{NCESID: "001", Name: "Unified District", State: "TX"}}

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, districts).Return(errors.New("write failed"))
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.MatchedBy(func(delta models.ProgressDelta) bool {
		return delta.RowsInserted == 2 &&
			delta.DistrictsProcessed == 0 &&
			delta.ErrorCount == 1
	})).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, RowsInserted: 2, ErrorCount: 1}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:     runID,
		Schools:   makeSchools(2, "001"),
		Districts: districts,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Errors)
	mockSchools.AssertCalled(t, "InsertBatch", ctx, mock.Anything)
	mockRuns.AssertExpectations(t)
}

func TestProcessBatch_LastBatchCompletes(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Complete", ctx, runID).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusCompleted, RowsInserted: 1}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:       runID,
		Schools:     makeSchools(1, "001"),
		IsLastBatch: true,
	})

	// Assert
	require.NoError(t, err)
	assert.True(t, result.IsLastBatch)
	mockRuns.AssertCalled(t, "Complete", ctx, runID)
}

func TestProcessBatch_DerivesDistrictsWhenAbsent(t *testing.T) {
	// Arrange: no districts in the request; they come from the schools
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.MatchedBy(func(districts []models.DistrictData) bool {
		return len(districts) == 1 && districts[0].NCESID == "001"
	})).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID}, nil)

	// Act
	_, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:   runID,
		Schools: makeSchools(3, "001"),
	})

	// Assert
	require.NoError(t, err)
	mockDistricts.AssertExpectations(t)
}

func TestProcessBatch_UnresolvedDistrictInsertsNull(t *testing.T) {
	// Arrange: district id absent from the map; school persists unlinked
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{"other": 9}, nil)
	mockSchools.On("InsertBatch", ctx, mock.MatchedBy(func(batch []repository.SchoolInsert) bool {
		return len(batch) == 1 && batch[0].DistrictID == nil
	})).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, RowsInserted: 1}, nil)

	// Act
	result, err := service.ProcessBatch(ctx, BatchRequest{
		RunID:   runID,
		Schools: makeSchools(1, "missing"),
	})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	mockSchools.AssertExpectations(t)
}

func TestCancelRun_AlreadyTerminal(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Cancel", ctx, runID).Return(false, nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusCompleted}, nil)

	// Act
	run, err := service.CancelRun(ctx, runID)

	// Assert
	assert.ErrorIs(t, err, ErrRunTerminal)
	require.NotNil(t, run)
	assert.Equal(t, models.StatusCompleted, run.Status)
}

func TestRunFile_EndToEnd(t *testing.T) {
	// Arrange: two schools in one district import as one chunk
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	csv := strings.Join([]string{
		"SCH_NAME,ST,LCITY,LEAID,LEA_NAME",
		"Oak St Elementary,TX,Conroe,001,Unified District",
		"Pine Rd Middle,TX,Conroe,001,Unified District",
	}, "\n")

	mockRuns.On("Status", ctx, runID).Return(models.StatusPending, nil)
	mockRuns.On("Start", ctx, runID).Return(nil)
	mockDistricts.On("Upsert", ctx, mock.MatchedBy(func(districts []models.DistrictData) bool {
		return len(districts) == 1 && districts[0].NCESID == "001" && districts[0].Name == "Unified District"
	})).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{"001": 42}, nil)
	mockSchools.On("InsertBatch", ctx, mock.MatchedBy(func(batch []repository.SchoolInsert) bool {
		if len(batch) != 2 {
			return false
		}
		for _, s := range batch {
			if s.DistrictID == nil || *s.DistrictID != 42 {
				return false
			}
		}
		return batch[0].Row.Name == "Oak St Elementary" && batch[1].Row.Name == "Pine Rd Middle"
	})).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Complete", ctx, runID).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusCompleted, RowsInserted: 2, DistrictsProcessed: 1}, nil)

	// Act
	run, err := service.RunFile(ctx, runID, csv)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, run.Status)
	assert.Equal(t, int64(2), run.RowsInserted)
	assert.Equal(t, int64(1), run.DistrictsProcessed)
	mockDistricts.AssertExpectations(t)
	mockSchools.AssertExpectations(t)
	mockRuns.AssertExpectations(t)
}

func TestRunFile_CancellationStopsRemainingChunks(t *testing.T) {
	// Arrange: chunk size 1, cancellation lands after the first chunk
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1)

	ctx := context.Background()
	runID := uuid.New()

	csv := strings.Join([]string{
		"SCH_NAME,ST,LCITY,LEAID,LEA_NAME",
		"Oak St Elementary,TX,Conroe,001,Unified District",
		"Pine Rd Middle,TX,Conroe,001,Unified District",
	}, "\n")

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil).Once()
	mockRuns.On("Status", ctx, runID).Return(models.StatusCancelled, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(nil)
	mockRuns.On("Get", ctx, runID).Return(&models.ImportRun{ID: runID, Status: models.StatusCancelled, RowsInserted: 1}, nil)

	// Act
	run, err := service.RunFile(ctx, runID, csv)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, run.Status)
	// Earlier chunk's writes stay committed; no writes for the second chunk
	mockSchools.AssertNumberOfCalls(t, "InsertBatch", 1)
	mockRuns.AssertNotCalled(t, "Complete", ctx, runID)
}

func TestRunFile_SchemaMismatchFailsRun(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Fail", ctx, runID).Return(nil)

	// Act
	run, err := service.RunFile(ctx, runID, "2023-2024,too,few,columns")

	// Assert
	assert.Error(t, err)
	assert.Nil(t, run)
	mockRuns.AssertCalled(t, "Fail", ctx, runID)
	mockSchools.AssertNotCalled(t, "InsertBatch")
}

func TestRunFile_ChunkFailureFailsRun(t *testing.T) {
	// Arrange: the ledger merge dies mid-file; the run must end failed
	// rather than sit in_progress forever
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	csv := strings.Join([]string{
		"SCH_NAME,ST,LCITY,LEAID,LEA_NAME",
		"Oak St Elementary,TX,Conroe,001,Unified District",
	}, "\n")

	mockRuns.On("Status", ctx, runID).Return(models.StatusInProgress, nil)
	mockDistricts.On("Upsert", ctx, mock.Anything).Return(nil)
	mockDistricts.On("IDMap", ctx).Return(map[string]int64{}, nil)
	mockSchools.On("InsertBatch", ctx, mock.Anything).Return(nil)
	mockRuns.On("MergeProgress", ctx, runID, mock.Anything).Return(errors.New("ledger write failed"))
	mockRuns.On("Fail", ctx, runID).Return(nil)

	// Act
	run, err := service.RunFile(ctx, runID, csv)

	// Assert
	assert.Error(t, err)
	assert.Nil(t, run)
	mockRuns.AssertCalled(t, "Fail", ctx, runID)
	mockRuns.AssertNotCalled(t, "Complete", ctx, runID)
}

func TestRunFile_EmptyFile(t *testing.T) {
	// Arrange
	mockDistricts := new(MockDistrictRepository)
	mockSchools := new(MockSchoolRepository)
	mockRuns := new(MockImportRunRepository)
	service := newTestService(mockDistricts, mockSchools, mockRuns, 1000)

	ctx := context.Background()
	runID := uuid.New()

	mockRuns.On("Fail", ctx, runID).Return(nil)

	// Act
	run, err := service.RunFile(ctx, runID, "SCH_NAME,ST\n")

	// Assert
	assert.ErrorIs(t, err, ErrEmptyFile)
	assert.Nil(t, run)
	mockRuns.AssertCalled(t, "Fail", ctx, runID)
}
