package migration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/temirov/ticketbridge/internal/registry"
)

const (
	sagaMissingMessageConstant                  = "migration saga not configured"
	coordinatorRegistryMissingMessageConstant   = "coordinator registry not configured"
	coordinatorStatisticsMissingMessageConstant = "coordinator statistics not configured"
	defaultWorkerCountConstant                  = 4
	defaultGracePeriodConstant                  = 30 * time.Second
	runStartedMessageConstant                   = "Migration run started"
	runInterruptedMessageConstant               = "Migration run interrupted, draining in-flight sagas"
	runCompletedMessageConstant                 = "Migration run completed"
	pendingRollbackMessageConstant              = "Rolling back pending remote issues"
	pendingRollbackFailedMessageConstant        = "Pending issue rollback failed"
	logFieldRunIDConstant                       = "run_id"
	logFieldWorkerCountConstant                 = "workers"
	logFieldRecordCountConstant                 = "records"
	logFieldPendingCountConstant                = "pending"
	logFieldSucceededConstant                   = "succeeded"
	logFieldFailedConstant                      = "failed"
	coordinatorDeleteOperationNameConstant      = "delete_issue"
)

// RecordSuccess pairs a migrated record with its remote issue key.
type RecordSuccess struct {
	RecordID string
	RemoteID string
}

// RecordFailure pairs a failed record with the terminal failure reason.
type RecordFailure struct {
	RecordID string
	Reason   string
}

// RunReport is the final accounting of one coordinator run.
type RunReport struct {
	RunID             string
	Statistics        StatisticsSnapshot
	Successes         []RecordSuccess
	Failures          []RecordFailure
	RolledBackPending []registry.Marker
	Interrupted       bool
}

// CoordinatorDependencies describes required collaborators for a run.
type CoordinatorDependencies struct {
	Logger     *zap.Logger
	Saga       SagaExecutor
	Gateway    IssueGateway
	Registry   PendingIssueRegistry
	Retrier    CallRetrier
	Statistics *RunStatistics
}

// SagaExecutor migrates a single record to a terminal outcome.
type SagaExecutor interface {
	Migrate(executionContext context.Context, record Record) Outcome
}

// RunOptions bounds the worker pool and the interruption grace period.
type RunOptions struct {
	WorkerCount int
	GracePeriod time.Duration
}

// Coordinator dispatches one saga per record over a bounded worker pool and
// owns interruption handling and the final pending-issue rollback sweep.
type Coordinator struct {
	logger     *zap.Logger
	saga       SagaExecutor
	gateway    IssueGateway
	registry   PendingIssueRegistry
	retrier    CallRetrier
	statistics *RunStatistics
}

var (
	errSagaMissing                  = errors.New(sagaMissingMessageConstant)
	errCoordinatorRegistryMissing   = errors.New(coordinatorRegistryMissingMessageConstant)
	errCoordinatorStatisticsMissing = errors.New(coordinatorStatisticsMissingMessageConstant)
)

// NewCoordinator constructs a Coordinator with the provided dependencies.
func NewCoordinator(dependencies CoordinatorDependencies) (*Coordinator, error) {
	if dependencies.Saga == nil {
		return nil, errSagaMissing
	}
	if dependencies.Gateway == nil {
		return nil, errGatewayMissing
	}
	if dependencies.Registry == nil {
		return nil, errCoordinatorRegistryMissing
	}
	if dependencies.Retrier == nil {
		return nil, errRetrierMissing
	}
	if dependencies.Statistics == nil {
		return nil, errCoordinatorStatisticsMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	coordinator := &Coordinator{
		logger:     logger,
		saga:       dependencies.Saga,
		gateway:    dependencies.Gateway,
		registry:   dependencies.Registry,
		retrier:    dependencies.Retrier,
		statistics: dependencies.Statistics,
	}

	return coordinator, nil
}

// Run migrates every record and returns the final report. An interruption of
// runContext stops dispatch, lets in-flight sagas finish within the grace
// period, rolls back everything still pending, and surfaces the context error
// alongside the report.
func (coordinator *Coordinator) Run(runContext context.Context, records []Record, options RunOptions) (RunReport, error) {
	workerCount := options.WorkerCount
	if workerCount <= 0 {
		workerCount = defaultWorkerCountConstant
	}
	gracePeriod := options.GracePeriod
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriodConstant
	}

	coordinator.statistics.Reset()

	runReport := RunReport{RunID: uuid.NewString()}
	uniqueRecords := dedupeRecords(records)

	coordinator.logger.Info(
		runStartedMessageConstant,
		zap.String(logFieldRunIDConstant, runReport.RunID),
		zap.Int(logFieldWorkerCountConstant, workerCount),
		zap.Int(logFieldRecordCountConstant, len(uniqueRecords)),
	)

	// In-flight sagas run on a context that survives interruption so remote
	// calls finish or time out instead of being killed mid-call; the grace
	// timer below is the only thing that cancels them early.
	sagaContext, cancelSagas := context.WithCancel(context.WithoutCancel(runContext))
	defer cancelSagas()

	runFinished := make(chan struct{})
	defer close(runFinished)
	go func() {
		select {
		case <-runFinished:
		case <-runContext.Done():
			coordinator.logger.Warn(runInterruptedMessageConstant, zap.String(logFieldRunIDConstant, runReport.RunID))
			graceTimer := time.NewTimer(gracePeriod)
			defer graceTimer.Stop()
			select {
			case <-runFinished:
			case <-graceTimer.C:
				cancelSagas()
			}
		}
	}()

	workerSemaphore := semaphore.NewWeighted(int64(workerCount))
	var waitGroup sync.WaitGroup
	var outcomeMutex sync.Mutex
	var outcomes []Outcome

	for _, record := range uniqueRecords {
		if runContext.Err() != nil {
			break
		}
		if acquireError := workerSemaphore.Acquire(runContext, 1); acquireError != nil {
			break
		}

		coordinator.statistics.RecordAttempt()
		waitGroup.Add(1)
		go func(dispatchedRecord Record) {
			defer waitGroup.Done()
			defer workerSemaphore.Release(1)

			outcome := coordinator.saga.Migrate(sagaContext, dispatchedRecord)

			outcomeMutex.Lock()
			outcomes = append(outcomes, outcome)
			outcomeMutex.Unlock()
		}(record)
	}

	waitGroup.Wait()

	for _, outcome := range outcomes {
		if outcome.Succeeded() {
			coordinator.statistics.RecordSuccess()
			runReport.Successes = append(runReport.Successes, RecordSuccess{RecordID: outcome.RecordID, RemoteID: outcome.RemoteID})
			continue
		}
		coordinator.statistics.RecordFailure()
		runReport.Failures = append(runReport.Failures, RecordFailure{RecordID: outcome.RecordID, Reason: outcome.FailureReason})
	}

	runReport.RolledBackPending = coordinator.rollbackPendingIssues(runReport.RunID)
	runReport.Interrupted = runContext.Err() != nil
	runReport.Statistics = coordinator.statistics.Snapshot()

	coordinator.logger.Info(
		runCompletedMessageConstant,
		zap.String(logFieldRunIDConstant, runReport.RunID),
		zap.Int64(logFieldSucceededConstant, runReport.Statistics.Succeeded),
		zap.Int64(logFieldFailedConstant, runReport.Statistics.Failed),
	)

	if runReport.Interrupted {
		return runReport, runContext.Err()
	}
	return runReport, nil
}

// rollbackPendingIssues deletes every remote issue still present in the
// registry. Sagas clear their own markers on every terminal path, so a
// non-empty snapshot here means the run was interrupted before they could.
func (coordinator *Coordinator) rollbackPendingIssues(runID string) []registry.Marker {
	pendingMarkers := coordinator.registry.Snapshot()
	if len(pendingMarkers) == 0 {
		return nil
	}

	coordinator.logger.Warn(
		pendingRollbackMessageConstant,
		zap.String(logFieldRunIDConstant, runID),
		zap.Int(logFieldPendingCountConstant, len(pendingMarkers)),
	)

	// Rollback must proceed even after interruption; it gets its own bounded context.
	rollbackContext, cancelRollback := context.WithTimeout(context.Background(), defaultGracePeriodConstant)
	defer cancelRollback()

	for _, pendingMarker := range pendingMarkers {
		deletionError := coordinator.retrier.Execute(rollbackContext, coordinatorDeleteOperationNameConstant, func(callContext context.Context) error {
			return coordinator.gateway.DeleteIssue(callContext, pendingMarker.RemoteID)
		})
		if deletionError != nil {
			coordinator.statistics.RecordCleanupFailure()
			coordinator.logger.Error(
				pendingRollbackFailedMessageConstant,
				zap.String(logFieldRecordIDConstant, pendingMarker.RecordID),
				zap.String(logFieldRemoteIDConstant, pendingMarker.RemoteID),
				zap.Error(deletionError),
			)
		} else {
			coordinator.statistics.RecordOrphanCleaned()
		}
		coordinator.registry.Clear(pendingMarker.RecordID)
	}

	return pendingMarkers
}

func dedupeRecords(records []Record) []Record {
	seenRecordIdentifiers := make(map[string]struct{}, len(records))
	uniqueRecords := make([]Record, 0, len(records))
	for _, record := range records {
		if _, alreadySeen := seenRecordIdentifiers[record.RecordID]; alreadySeen {
			continue
		}
		seenRecordIdentifiers[record.RecordID] = struct{}{}
		uniqueRecords = append(uniqueRecords, record)
	}
	return uniqueRecords
}
