package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"soarify/internal/metrics"
	"soarify/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Execution states. COMPLETED and FAILED are terminal; no transition ever
// leaves them.
const (
	ExecutionPending   = "PENDING"
	ExecutionRunning   = "RUNNING"
	ExecutionCompleted = "COMPLETED"
	ExecutionFailed    = "FAILED"
)

const (
	StepCompleted = "COMPLETED"
	StepFailed    = "FAILED"
)

// Trigger source tags carried on executions.
const (
	TriggeredManual    = "MANUAL"
	TriggeredEvent     = "EVENT"
	TriggeredScheduled = "SCHEDULED"
)

// ExecutionService is the playbook execution engine: it creates execution
// records, runs the step sequence asynchronously on a worker pool, applies
// per-step failure policy and keeps playbook rolling statistics current.
type ExecutionService struct {
	db          *gorm.DB
	logger      *logrus.Logger
	registry    *ActionRegistry
	pool        *WorkerPool
	hub         *EventHub
	stepTimeout time.Duration

	// statsMu serializes the read-modify-write of one playbook's counters
	// across concurrently completing executions.
	statsMu sync.Mutex
	statsBy map[uint]*sync.Mutex
}

func NewExecutionService(db *gorm.DB, logger *logrus.Logger, registry *ActionRegistry, pool *WorkerPool) *ExecutionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ExecutionService{
		db:          db,
		logger:      logger,
		registry:    registry,
		pool:        pool,
		stepTimeout: 300 * time.Second,
		statsBy:     make(map[uint]*sync.Mutex),
	}
}

// SetDefaultStepTimeout overrides the bound applied to steps that declare no
// timeout of their own.
func (s *ExecutionService) SetDefaultStepTimeout(d time.Duration) {
	if d > 0 {
		s.stepTimeout = d
	}
}

// SetEventHub attaches a hub that receives execution state transitions.
func (s *ExecutionService) SetEventHub(hub *EventHub) {
	s.hub = hub
}

// ExecutionRequest asks for one run of a playbook.
type ExecutionRequest struct {
	PlaybookID     uint                   `json:"playbook_id" binding:"required"`
	TriggeredBy    string                 `json:"triggered_by"`
	TriggerContext map[string]interface{} `json:"trigger_context"`
}

// Execute creates a PENDING execution and hands the run to the worker pool.
// The caller never blocks on workflow completion; progress is observed by
// reading the execution record.
func (s *ExecutionService) Execute(ctx context.Context, req *ExecutionRequest) (*models.PlaybookExecution, error) {
	if req == nil || req.PlaybookID == 0 {
		return nil, validationErrorf("playbook_id required")
	}

	var playbook models.Playbook
	err := s.db.WithContext(ctx).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC") }).
		First(&playbook, req.PlaybookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("playbook %d: %w", req.PlaybookID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !playbook.IsActive {
		return nil, validationErrorf("playbook %q is not active", playbook.Name)
	}

	triggeredBy := req.TriggeredBy
	switch triggeredBy {
	case "":
		triggeredBy = TriggeredManual
	case TriggeredManual, TriggeredEvent, TriggeredScheduled:
	default:
		return nil, validationErrorf("unknown trigger source: %s", triggeredBy)
	}

	ctxJSON := "{}"
	if req.TriggerContext != nil {
		raw, err := json.Marshal(req.TriggerContext)
		if err != nil {
			return nil, validationErrorf("invalid trigger context: %v", err)
		}
		ctxJSON = string(raw)
	}

	execution := &models.PlaybookExecution{
		PlaybookID:     playbook.ID,
		PlaybookName:   playbook.Name,
		Status:         ExecutionPending,
		TriggeredBy:    triggeredBy,
		TriggerContext: ctxJSON,
		StartedAt:      time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(execution).Error; err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}
	s.broadcast("execution_pending", execution)

	steps := append([]models.PlaybookStep(nil), playbook.Steps...)
	trigCtx := req.TriggerContext
	execID := execution.ID
	playbookID := playbook.ID
	if err := s.pool.Submit(func() { s.run(execID, playbookID, steps, trigCtx) }); err != nil {
		// Queue full: the record exists, so fail it rather than lose the run.
		// The rejection still counts toward the playbook's rolling stats.
		s.finish(execID, playbookID, time.Now(), nil, ExecutionFailed, err.Error())
		s.logger.Warnf("execution %d rejected: %v", execID, err)
	}

	return execution, nil
}

// run owns the state machine of one execution. Steps are strictly serial;
// step N+1 never starts before step N's outcome is recorded.
func (s *ExecutionService) run(execID, playbookID uint, steps []models.PlaybookStep, trigCtx map[string]interface{}) {
	started := time.Now()
	ctx := context.Background()

	// PENDING -> RUNNING, guarded so a terminal record is never revived.
	res := s.db.Model(&models.PlaybookExecution{}).
		Where("id = ? AND status = ?", execID, ExecutionPending).
		Update("status", ExecutionRunning)
	if res.Error != nil || res.RowsAffected == 0 {
		s.logger.Warnf("execution %d: not in PENDING, skipping run", execID)
		return
	}
	s.broadcastID(execID)

	sort.Slice(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })

	var results []models.StepResult
	for _, step := range steps {
		stepStart := time.Now()
		payload, err := s.runStep(ctx, step, trigCtx, results)

		if err == nil {
			results = append(results, models.StepResult{
				StepNumber: step.StepNumber,
				Name:       step.Name,
				Status:     StepCompleted,
				Duration:   time.Since(stepStart).Milliseconds(),
				Result:     payload,
			})
			continue
		}

		results = append(results, models.StepResult{
			StepNumber: step.StepNumber,
			Name:       step.Name,
			Status:     StepFailed,
			Duration:   time.Since(stepStart).Milliseconds(),
			Error:      err.Error(),
		})
		s.logger.Warnf("execution %d step %d (%s) failed: %v", execID, step.StepNumber, step.Name, err)

		if !step.ContinueOnFail {
			s.finish(execID, playbookID, started, results, ExecutionFailed, err.Error())
			return
		}
	}

	s.finish(execID, playbookID, started, results, ExecutionCompleted, "")
}

// runStep bounds one handler invocation by the step's timeout and retries a
// failed attempt up to RetryCount additional times. Unknown action tags are
// never retried.
func (s *ExecutionService) runStep(ctx context.Context, step models.PlaybookStep, trigCtx map[string]interface{}, prior []models.StepResult) (map[string]interface{}, error) {
	config := map[string]interface{}{}
	if step.Config != "" {
		if err := json.Unmarshal([]byte(step.Config), &config); err != nil {
			return nil, fmt.Errorf("invalid step config: %w", err)
		}
	}
	in := ActionInput{Config: config, TriggerContext: trigCtx, PriorResults: prior}

	timeout := time.Duration(step.Timeout) * time.Second
	if timeout <= 0 {
		timeout = s.stepTimeout
	}

	var lastErr error
	for attempt := 0; attempt <= step.RetryCount; attempt++ {
		payload, err := s.invoke(ctx, step.ActionType, in, timeout)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		var unknown *UnknownActionError
		if errors.As(err, &unknown) {
			break
		}
	}
	return nil, lastErr
}

// invoke dispatches to the registry on a separate goroutine so a handler that
// never returns cannot stall the execution past its timeout.
func (s *ExecutionService) invoke(ctx context.Context, actionType string, in ActionInput, timeout time.Duration) (map[string]interface{}, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		payload map[string]interface{}
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		payload, err := s.registry.Execute(cctx, actionType, in)
		done <- outcome{payload, err}
	}()

	select {
	case o := <-done:
		return o.payload, o.err
	case <-cctx.Done():
		return nil, fmt.Errorf("step timed out after %s", timeout)
	}
}

// finish performs the terminal transition: stamp completion, persist the step
// results, then fold the outcome into the playbook's rolling statistics.
func (s *ExecutionService) finish(execID, playbookID uint, started time.Time, results []models.StepResult, status, errMsg string) {
	duration := int(time.Since(started).Seconds())
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		s.logger.Errorf("execution %d: marshal step results: %v", execID, err)
		resultsJSON = []byte("[]")
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":        status,
		"completed_at":  &now,
		"duration":      duration,
		"step_results":  string(resultsJSON),
		"error_message": errMsg,
	}
	res := s.db.Model(&models.PlaybookExecution{}).
		Where("id = ? AND status IN ?", execID, []string{ExecutionPending, ExecutionRunning}).
		Updates(updates)
	if res.Error != nil {
		s.logger.Errorf("execution %d: terminal update failed: %v", execID, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		s.logger.Warnf("execution %d: already terminal, not updating", execID)
		return
	}

	metrics.IncExecution(status)
	s.updatePlaybookStats(playbookID, status == ExecutionCompleted, duration)
	s.broadcastID(execID)
}

// updatePlaybookStats applies the O(1) incremental count/rate/duration update.
// The per-playbook lock prevents lost updates when executions of the same
// playbook complete concurrently. Rounding is half away from zero.
func (s *ExecutionService) updatePlaybookStats(playbookID uint, success bool, duration int) {
	mu := s.playbookLock(playbookID)
	mu.Lock()
	defer mu.Unlock()

	var playbook models.Playbook
	err := s.db.Select("id", "execution_count", "success_rate", "avg_duration").
		First(&playbook, playbookID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Playbook deleted while the execution ran; history is kept, stats are gone.
		return
	}
	if err != nil {
		s.logger.Errorf("playbook %d: load stats: %v", playbookID, err)
		return
	}

	n := playbook.ExecutionCount
	successCount := math.Round(playbook.SuccessRate * float64(n) / 100)
	if success {
		successCount++
	}
	newCount := n + 1
	newRate := successCount / float64(newCount) * 100

	newAvg := playbook.AvgDuration
	if newAvg == 0 {
		newAvg = duration
	} else {
		newAvg = int(math.Round(float64(playbook.AvgDuration*n+duration) / float64(newCount)))
	}

	err = s.db.Model(&models.Playbook{}).Where("id = ?", playbookID).Updates(map[string]interface{}{
		"execution_count": newCount,
		"success_rate":    newRate,
		"avg_duration":    newAvg,
	}).Error
	if err != nil {
		s.logger.Errorf("playbook %d: update stats: %v", playbookID, err)
	}
}

func (s *ExecutionService) playbookLock(playbookID uint) *sync.Mutex {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	mu, ok := s.statsBy[playbookID]
	if !ok {
		mu = &sync.Mutex{}
		s.statsBy[playbookID] = mu
	}
	return mu
}

// ListExecutions returns executions most-recent-first, optionally filtered by
// playbook and/or state.
func (s *ExecutionService) ListExecutions(ctx context.Context, playbookID uint, status string, limit int) ([]models.PlaybookExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&models.PlaybookExecution{})
	if playbookID != 0 {
		q = q.Where("playbook_id = ?", playbookID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var executions []models.PlaybookExecution
	if err := q.Order("started_at DESC").Limit(limit).Find(&executions).Error; err != nil {
		return nil, err
	}
	return executions, nil
}

func (s *ExecutionService) GetExecution(ctx context.Context, id uint) (*models.PlaybookExecution, error) {
	var execution models.PlaybookExecution
	err := s.db.WithContext(ctx).First(&execution, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("execution %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &execution, nil
}

func (s *ExecutionService) broadcast(event string, execution *models.PlaybookExecution) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ExecutionEvent{
		Type:      event,
		Execution: execution,
		Timestamp: time.Now(),
	})
}

// broadcastID re-reads the record so subscribers see the persisted state.
func (s *ExecutionService) broadcastID(execID uint) {
	if s.hub == nil {
		return
	}
	var execution models.PlaybookExecution
	if err := s.db.First(&execution, execID).Error; err != nil {
		return
	}
	s.broadcast("execution_"+lowerStatus(execution.Status), &execution)
}

func lowerStatus(status string) string {
	switch status {
	case ExecutionPending:
		return "pending"
	case ExecutionRunning:
		return "running"
	case ExecutionCompleted:
		return "completed"
	case ExecutionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
