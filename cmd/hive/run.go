package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/hive/internal/config"
	"github.com/ShayCichocki/hive/internal/dispatch"
	"github.com/ShayCichocki/hive/internal/graph"
	"github.com/ShayCichocki/hive/internal/queue"
	"github.com/ShayCichocki/hive/internal/session"
	"github.com/ShayCichocki/hive/internal/state"
	"github.com/ShayCichocki/hive/internal/supervisor"
	"github.com/ShayCichocki/hive/internal/workflow"
	"github.com/ShayCichocki/hive/pkg/models"
)

var (
	runConfigPath string
	runResume     string
	runSerial     bool
	runClass      string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task across the agent fleet",
	Long: `Start the orchestration core for one task: spawn and supervise the
agent fleet, admit work through the quota-bounded queue, and checkpoint at
phase boundaries so an interrupted run can be resumed.

Use --resume <session-id> to re-enter an interrupted session at the phase
its last checkpoint allows. 'hive status' lists resumable sessions.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (overrides discovery)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Resume an interrupted session by ID")
	runCmd.Flags().BoolVar(&runSerial, "serial", false, "Serial validation mode: one instance at a time everywhere")
	runCmd.Flags().StringVar(&runClass, "class", "", "Agent class to dispatch to (default: first in fleet)")
}

func runTask(cmd *cobra.Command, args []string) error {
	taskText := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	db, err := state.OpenProject(cwd)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate state database: %w", err)
	}

	if cfg.Checkpoints.Retention > 0 {
		if purged, err := db.PurgeOldCheckpoints(cfg.Checkpoints.Retention); err == nil && purged > 0 {
			log.Printf("[run] purged %d expired checkpoints", purged)
		}
	}

	engine := session.NewEngine(db)
	sessionID, taskText, resumePhase, err := resolveSession(engine, taskText)
	if err != nil {
		return err
	}

	fleetPath := cfg.Fleet.Path
	if !filepath.IsAbs(fleetPath) {
		fleetPath = filepath.Join(cwd, fleetPath)
	}
	fleet, err := config.LoadFleet(fleetPath)
	if err != nil {
		return err
	}

	sup := supervisor.New(supervisor.Options{
		Spawner:            supervisor.NewExecSpawner(),
		Checker:            &supervisor.TCPHealthChecker{},
		History:            db,
		WorkDir:            cfg.Supervisor.WorkDir,
		StopTimeout:        cfg.Supervisor.StopTimeout,
		HealthCheckTimeout: cfg.Supervisor.HealthCheckTimeout,
	})
	for _, agent := range fleet {
		if err := sup.Register(agent); err != nil {
			return fmt.Errorf("register agent %s: %w", agent.ID, err)
		}
		if err := sup.Start(agent.ID); err != nil {
			log.Printf("[run] agent %s failed to start: %v", agent.ID, err)
		}
	}
	defer func() {
		if err := sup.StopAll(); err != nil {
			log.Printf("[run] stopping agents: %v", err)
		}
	}()

	// Fleet edits take effect without a restart; known agents keep their
	// restart budgets.
	watcher, err := config.WatchFleet(fleetPath, func(updated []models.AgentConfig) {
		for _, agent := range updated {
			if err := sup.Register(agent); err != nil {
				continue
			}
			if err := sup.Start(agent.ID); err != nil {
				log.Printf("[run] agent %s failed to start: %v", agent.ID, err)
			}
		}
	})
	if err != nil {
		log.Printf("[run] fleet watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	policy := queue.DefaultPolicy()
	policy.GlobalMaxConcurrency = cfg.Orchestrator.MaxConcurrent
	if runSerial || cfg.Orchestrator.SerialValidation {
		ids := make([]string, len(fleet))
		for i, agent := range fleet {
			ids[i] = agent.ID
		}
		policy = queue.SerialValidationPolicy(ids)
	}

	dlog := dispatch.NopLogger()
	if cfg.Orchestrator.DebugLog {
		dlog = dispatch.NewDebugLoggerForProject(cwd)
	}
	defer dlog.Close()
	dispatcher := dispatch.New(policy, fleet, dlog)

	return drive(engine, dispatcher, fleet, sessionID, taskText, resumePhase)
}

// resolveSession picks the session to run in: a fresh one, or the session
// named by --resume re-entered at the phase its last checkpoint allows. It
// returns the task text to run with, which on resume defaults to the
// checkpointed task.
func resolveSession(engine *session.Engine, taskText string) (string, string, session.Phase, error) {
	if runResume == "" {
		resumable, err := engine.CheckForResumableSessions()
		if err == nil && len(resumable) > 0 {
			yellow := color.New(color.FgYellow)
			yellow.Printf("Found %d resumable session(s); latest: %s (%d/%d tasks done)\n",
				len(resumable), resumable[0].SessionID,
				resumable[0].CompletedTasks, resumable[0].TotalTasks)
			yellow.Println("Use 'hive run --resume <session-id>' to continue one.")
		}
		return uuid.NewString(), taskText, session.PhaseUnderstanding, nil
	}

	cp, err := engine.FindLatestCheckpoint(runResume)
	if err != nil {
		return "", "", "", err
	}
	if cp == nil {
		return "", "", "", fmt.Errorf("session %s has no checkpoints", runResume)
	}

	recovery := session.BuildRecoveryContext(cp, nil)
	color.New(color.FgGreen).Printf("Resuming session %s at phase %s (%.0f%% complete)\n",
		runResume, recovery.ResumePhase, recovery.EstimatedProgress)
	if taskText == "" {
		taskText = recovery.OriginalTask
	}
	return runResume, taskText, recovery.ResumePhase, nil
}

// drive walks the workflow machine through intake and planning, dispatches
// the plan's tasks, and checkpoints at every phase boundary the allow-list
// permits. It runs until interrupted.
func drive(engine *session.Engine, dispatcher *dispatch.Dispatcher, fleet []models.AgentConfig, sessionID, taskText string, resumePhase session.Phase) error {
	wf := workflow.New(uuid.NewString(), sessionID)

	checkpoint := func(progress []models.TaskProgress) {
		phase := session.PhaseForWorkflowState(wf.State())
		if !session.ShouldCheckpointAtPhase(phase) {
			return
		}
		_, err := engine.CreateCheckpoint(sessionID, taskText, progress, nil, map[string]any{
			"phase":       string(phase),
			"resumePhase": string(resumePhase),
		})
		if err != nil {
			log.Printf("[run] checkpoint failed: %v", err)
		}
	}

	// Intake path: the plan loop is the only state PlanCreated is legal
	// from, so routing goes through a full replan.
	intake := []workflow.Event{
		workflow.UserInputReceived{Input: taskText},
		workflow.IntentAnalyzed{},
		workflow.RoutingDecided{Route: workflow.RouteFullReplan},
	}
	for _, ev := range intake {
		if !wf.Trigger(ev) {
			return fmt.Errorf("workflow rejected %T in state %s", ev, wf.State())
		}
	}
	checkpoint(nil)

	class := runClass
	if class == "" && len(fleet) > 0 {
		class = fleet[0].ID
	}
	task := &models.Task{
		ID:          uuid.NewString(),
		WorkflowID:  wf.ID(),
		Description: taskText,
		Type:        class,
		Status:      models.TaskCreated,
	}

	g := graph.New()
	if err := g.Build([]*models.Task{task}); err != nil {
		return fmt.Errorf("build task graph: %w", err)
	}
	if !wf.Trigger(workflow.PlanCreated{}) {
		return fmt.Errorf("workflow rejected plan in state %s", wf.State())
	}

	for _, ready := range g.ReleaseReady() {
		res, err := dispatcher.Dispatch(wf.ID(), ready)
		if err != nil {
			return fmt.Errorf("dispatch task %s: %w", ready.ID, err)
		}
		if res.Admitted {
			log.Printf("[run] task %s admitted as instance %s", ready.ID, res.InstanceID)
		} else {
			log.Printf("[run] task %s queued at position %d", ready.ID, res.QueuePosition)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Println("Orchestrator running. Press Ctrl-C to stop.")
	<-ctx.Done()

	log.Printf("[run] shutting down")
	if !wf.Trigger(workflow.PauseRequested{}) {
		log.Printf("[run] workflow rejected pause in state %s", wf.State())
	}
	checkpoint([]models.TaskProgress{{
		TaskID:      task.ID,
		Description: task.Description,
		Status:      progressFor(task.Status),
	}})
	return dispatcher.Control(dispatch.ControlStop, "")
}

// progressFor maps a task's machine state onto the checkpoint progress
// vocabulary.
func progressFor(s models.TaskState) models.ProgressStatus {
	switch s {
	case models.TaskDone, models.TaskExecutionSucceeded, models.TaskReviewing:
		return models.ProgressCompleted
	case models.TaskExecutionFailed, models.TaskDispatchFailed:
		return models.ProgressFailed
	case models.TaskRunning, models.TaskDispatched, models.TaskDispatching:
		return models.ProgressInProgress
	default:
		return models.ProgressPending
	}
}

func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}
