package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/aristath/docforge/internal/project"
	"github.com/aristath/docforge/internal/task"
)

// Progress values reported around a step.
const (
	stepStartedProgress = 5
	stepDoneProgress    = 100
)

// Pipeline runs the fixed sequence of generation steps for a task.
// Steps run strictly in order and each completed step is checkpointed
// before the next one starts, so a resumed run skips finished work.
type Pipeline struct {
	reporter    Reporter
	checkpoints Checkpoints
	steps       []Step
	tracer      trace.Tracer
}

// New creates a pipeline over exactly task.TotalSteps steps.
func New(reporter Reporter, checkpoints Checkpoints, steps []Step) (*Pipeline, error) {
	if len(steps) != task.TotalSteps {
		return nil, fmt.Errorf("pipeline needs %d steps, got %d", task.TotalSteps, len(steps))
	}
	for i, s := range steps {
		if s == nil {
			return nil, fmt.Errorf("step %d is nil", i+1)
		}
	}
	return &Pipeline{
		reporter:    reporter,
		checkpoints: checkpoints,
		steps:       steps,
		tracer:      otel.Tracer("github.com/aristath/docforge/internal/orchestrator"),
	}, nil
}

// Run executes the pipeline for taskID, mutating pc as steps complete.
//
// A cooperative cancellation marks the task cancelled and returns nil. A fatal
// step marks the task failed and returns the step error. If ctx itself is
// cancelled (shutdown) the task status is left untouched and ctx's error is
// returned, so the task can be resumed after a restart.
func (p *Pipeline) Run(ctx context.Context, taskID string, pc *project.Context) error {
	ctx, span := p.tracer.Start(ctx, "docforge.run", trace.WithAttributes(
		attribute.String("task.id", taskID),
	))
	defer span.End()

	start := p.restore(ctx, taskID, pc)
	if start > 1 {
		span.SetAttributes(attribute.Int("resume.from_step", start))
	}

	for i, step := range p.steps {
		k := i + 1
		name := step.Name()

		if p.reporter.IsCancelRequested(taskID) {
			return p.cancelled(span, taskID, fmt.Sprintf("task cancelled before step %d: %s", k, name))
		}
		if k < start {
			p.log(taskID, fmt.Sprintf("skipping completed step %d: %s", k, name))
			span.AddEvent("step.skipped", trace.WithAttributes(attribute.Int("step.index", k)))
			continue
		}
		if err := ctx.Err(); err != nil {
			return p.interrupted(span, taskID, k, err)
		}

		started := fmt.Sprintf("step %d started: %s", k, name)
		p.reporter.UpdateProgress(taskID, k, name, stepStartedProgress, started)
		p.log(taskID, started)

		outcome, err := p.runStep(ctx, taskID, k, step, pc)
		if err != nil {
			if errors.Is(err, ErrCancelled) {
				return p.cancelled(span, taskID, fmt.Sprintf("task cancelled during step %d: %s", k, name))
			}
			if ctx.Err() != nil {
				return p.interrupted(span, taskID, k, ctx.Err())
			}
			return p.fail(span, taskID, k, name, err.Error())
		}

		switch outcome.Kind {
		case Fatal:
			return p.fail(span, taskID, k, name, outcome.Message)
		case Warning:
			p.reporter.AddWarning(taskID, outcome.Message)
			span.AddEvent("step.warning", trace.WithAttributes(
				attribute.Int("step.index", k),
				attribute.String("warning", outcome.Message),
			))
			p.reporter.UpdateProgress(taskID, k, name, stepDoneProgress, outcome.Message)
			p.log(taskID, fmt.Sprintf("step %d finished with warnings: %s", k, outcome.Message))
		default:
			msg := outcome.Message
			if msg == "" {
				msg = fmt.Sprintf("step %d completed: %s", k, name)
			}
			p.reporter.UpdateProgress(taskID, k, name, stepDoneProgress, msg)
		}

		if err := p.checkpoint(ctx, taskID, k, pc); err != nil {
			return p.fail(span, taskID, k, name, err.Error())
		}
		p.log(taskID, fmt.Sprintf("step %d completed: %s", k, name))

		if k < len(p.steps) && p.reporter.IsCancelRequested(taskID) {
			return p.cancelled(span, taskID, fmt.Sprintf("task cancelled after step %d: %s", k, name))
		}
	}

	p.log(taskID, "all steps completed")
	span.SetStatus(codes.Ok, "")
	return nil
}

// restore overlays a saved checkpoint onto pc and returns the first step to run.
func (p *Pipeline) restore(ctx context.Context, taskID string, pc *project.Context) int {
	cp, found, err := p.checkpoints.Load(ctx, taskID)
	if err != nil {
		log.Printf("WARNING: [%s] %v, starting from step 1", taskID, err)
		return 1
	}
	if !found || cp.CompletedStep < 1 {
		return 1
	}
	if err := pc.Restore(cp.Context); err != nil {
		p.log(taskID, fmt.Sprintf("checkpoint context unreadable, starting from step 1: %v", err))
		return 1
	}

	start := cp.CompletedStep + 1
	if start > len(p.steps) {
		// Every step is checkpointed but the task is still running, so the final
		// transition was lost. Packaging is re-runnable and completes the task again.
		start = len(p.steps)
		p.log(taskID, fmt.Sprintf("all steps checkpointed without completion, re-running step %d", start))
		return start
	}
	p.log(taskID, fmt.Sprintf("resuming from checkpoint, next step %d", start))
	return start
}

// runStep executes one step in its own span. A panic becomes an error.
func (p *Pipeline) runStep(ctx context.Context, taskID string, k int, step Step, pc *project.Context) (outcome Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, "docforge.step", trace.WithAttributes(
		attribute.String("task.id", taskID),
		attribute.Int("step.index", k),
		attribute.String("step.name", step.Name()),
	))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case outcome.Kind == Fatal:
			span.SetStatus(codes.Error, outcome.Message)
		default:
			span.SetAttributes(attribute.String("step.outcome", outcome.Kind.String()))
			span.SetStatus(codes.Ok, "")
		}
	}()

	return step.Run(ctx, taskID, pc)
}

func (p *Pipeline) checkpoint(ctx context.Context, taskID string, k int, pc *project.Context) error {
	snapshot, err := pc.Snapshot()
	if err != nil {
		return fmt.Errorf("failed to snapshot context: %w", err)
	}
	// A finished step is recorded even when shutdown has already begun.
	if err := p.checkpoints.Save(context.WithoutCancel(ctx), taskID, Checkpoint{CompletedStep: k, Context: snapshot}); err != nil {
		return err
	}
	p.reporter.UpdateContext(taskID, snapshot)
	return nil
}

func (p *Pipeline) cancelled(span trace.Span, taskID, message string) error {
	p.log(taskID, message)
	p.reporter.MarkCancelled(taskID, task.CancelledMessage)
	span.AddEvent("task.cancelled")
	span.SetStatus(codes.Ok, "cancelled")
	return nil
}

func (p *Pipeline) fail(span trace.Span, taskID string, k int, name, reason string) error {
	msg := fmt.Sprintf("step %d %s failed: %s", k, name, reason)
	log.Printf("ERROR: [%s] %s", taskID, msg)
	p.reporter.AddLog(taskID, msg)
	p.reporter.FailTask(taskID, msg)
	span.AddEvent("step.fatal", trace.WithAttributes(attribute.Int("step.index", k)))
	span.SetStatus(codes.Error, msg)
	return errors.New(msg)
}

func (p *Pipeline) interrupted(span trace.Span, taskID string, k int, cause error) error {
	log.Printf("WARNING: [%s] run interrupted at step %d: %v", taskID, k, cause)
	span.AddEvent("task.interrupted", trace.WithAttributes(attribute.Int("step.index", k)))
	return fmt.Errorf("task %s interrupted at step %d: %w", taskID, k, cause)
}

func (p *Pipeline) log(taskID, message string) {
	log.Printf("[%s] %s", taskID, message)
	p.reporter.AddLog(taskID, message)
}
