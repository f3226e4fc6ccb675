package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	alerts "plantwatch/internal/alerts/domain"
	historyapp "plantwatch/internal/history/application"
	history "plantwatch/internal/history/domain"
	"plantwatch/internal/observability/metrics"
	rotationapp "plantwatch/internal/rotation/application"
	rotation "plantwatch/internal/rotation/domain"
	scheduleapp "plantwatch/internal/schedule/application"
	schedule "plantwatch/internal/schedule/domain"
	"plantwatch/internal/ticker"
)

const (
	capturePageAutomatic    = "Configuration"
	captureElementAutomatic = "(Clock)"
	capturePageManual       = "AHU 09"
	captureElementManual    = "(Button)"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Deps lists the components the coordinator connects.
type Deps struct {
	Rotator   *rotationapp.Rotator
	Ledger    *historyapp.Ledger
	Scheduler *scheduleapp.Scheduler
	Engine    *alerts.Engine
	Sink      alerts.Sink
	Logger    *log.Logger
	Clock     Clock
}

// Coordinator routes committed rows to the alert engine and capture times to the ledger.
type Coordinator struct {
	rotator   *rotationapp.Rotator
	ledger    *historyapp.Ledger
	scheduler *scheduleapp.Scheduler
	engine    *alerts.Engine
	sink      alerts.Sink
	logger    *log.Logger
	clock     Clock
}

// NewCoordinator validates deps and subscribes to the rotator and scheduler.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	switch {
	case deps.Rotator == nil:
		return nil, errors.New("acquisition: nil rotator")
	case deps.Ledger == nil:
		return nil, errors.New("acquisition: nil ledger")
	case deps.Scheduler == nil:
		return nil, errors.New("acquisition: nil scheduler")
	case deps.Engine == nil:
		return nil, errors.New("acquisition: nil engine")
	case deps.Sink == nil:
		return nil, errors.New("acquisition: nil alert sink")
	}
	c := &Coordinator{
		rotator:   deps.Rotator,
		ledger:    deps.Ledger,
		scheduler: deps.Scheduler,
		engine:    deps.Engine,
		sink:      deps.Sink,
		logger:    deps.Logger,
		clock:     deps.Clock,
	}
	if c.logger == nil {
		c.logger = log.Default()
	}
	if c.clock == nil {
		c.clock = systemClock{}
	}
	c.rotator.OnCommit(c.evaluate)
	c.scheduler.RegisterCallback(c.captureScheduled)
	return c, nil
}

// Register adds the rotator and scheduler as independent ticker tasks.
func (c *Coordinator) Register(driver *ticker.Driver) error {
	if err := driver.Register("rotator", func(ctx context.Context, now time.Time) {
		c.rotator.Tick(ctx, now)
	}); err != nil {
		return err
	}
	return driver.Register("scheduler", func(ctx context.Context, now time.Time) {
		c.scheduler.Tick(ctx, now)
	})
}

// Tick runs one rotator step followed by one scheduler step.
func (c *Coordinator) Tick(ctx context.Context, now time.Time) {
	c.rotator.Tick(ctx, now)
	c.scheduler.Tick(ctx, now)
}

// CaptureManual appends the live snapshot to the ledger on operator request.
func (c *Coordinator) CaptureManual(ctx context.Context) history.Entry {
	live := c.rotator.Current()
	position := live.Cursor.Position()
	label := fmt.Sprintf("Manual %s - %s", c.clock.Now().Format(history.TimeLayout), position)
	return c.capture(ctx, live, history.OriginManual, label, capturePageManual, captureElementManual)
}

func (c *Coordinator) captureScheduled(ctx context.Context, at schedule.TimeOfDay) error {
	live := c.rotator.Current()
	label := fmt.Sprintf("Alarm %s - %s", at.Display(), live.Cursor.Position())
	c.capture(ctx, live, history.OriginAutomatic, label, capturePageAutomatic, captureElementAutomatic)
	return nil
}

func (c *Coordinator) capture(ctx context.Context, live rotation.Live, origin history.Origin, label, page, element string) history.Entry {
	entry := c.ledger.Append(ctx, live.Snapshot, origin, label)

	if err := c.rotator.WriteBack(ctx, live.Snapshot); err != nil {
		metrics.IncWriteBack(metrics.ResultError)
		c.logger.Printf("acquisition write back error: %v", err)
	} else {
		metrics.IncWriteBack(metrics.ResultSuccess)
	}

	var cause string
	if origin == history.OriginAutomatic {
		cause = fmt.Sprintf("Automatic capture executed (%s)", live.Cursor.Position())
	} else {
		cause = fmt.Sprintf("Manual capture executed (%s)", live.Cursor.Position())
	}
	c.sink.Record(ctx, cause, page, element)
	return entry
}

func (c *Coordinator) evaluate(ctx context.Context, live rotation.Live) {
	if live.Outcome != rotation.OutcomeData {
		return
	}
	for _, v := range c.engine.Evaluate(live.Snapshot, live.Cursor.Position()) {
		c.sink.Record(ctx, v.Cause, v.Rule.Page, v.Rule.Element)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
