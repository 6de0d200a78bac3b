package migration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Gofven/flowback-backend-sub001/pkg/apperror"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Zero as a target name unapplies every migration of the app.
const Zero = "zero"

// Target selects how far to migrate. The zero value means every migration.
// With only App set, every migration of that app and its dependencies. With
// Name set, the database ends with exactly that migration as the app's last
// applied one; Name Zero unapplies the whole app.
type Target struct {
	App  string
	Name string
}

// PlanStep is one migration to apply or unapply.
type PlanStep struct {
	Key      Key
	Backward bool
}

func (p PlanStep) String() string {
	if p.Backward {
		return "unapply " + p.Key.String()
	}
	return "apply " + p.Key.String()
}

// MigrationStatus reports whether one migration is applied.
type MigrationStatus struct {
	Key       Key
	Applied   bool
	AppliedAt time.Time
}

// Executor applies and unapplies migrations, one transaction each.
type Executor struct {
	db       *gorm.DB
	graph    *Graph
	editor   SchemaEditor
	recorder *Recorder
	log      zerolog.Logger
}

func NewExecutor(db *gorm.DB, graph *Graph, log zerolog.Logger) (*Executor, error) {
	editor, err := NewEditor(db)
	if err != nil {
		return nil, err
	}
	return &Executor{
		db:       db,
		graph:    graph,
		editor:   editor,
		recorder: NewRecorder(db),
		log:      log,
	}, nil
}

func (e *Executor) Graph() *Graph { return e.graph }

// Plan lists the steps Migrate would run for target.
func (e *Executor) Plan(ctx context.Context, target Target) ([]PlanStep, error) {
	if err := e.recorder.Ensure(ctx); err != nil {
		return nil, err
	}
	applied, err := e.recorder.Applied(ctx)
	if err != nil {
		return nil, err
	}
	return e.plan(target, applied)
}

func (e *Executor) plan(target Target, applied map[Key]time.Time) ([]PlanStep, error) {
	isApplied := func(k Key) bool {
		_, ok := applied[k]
		return ok
	}

	forward := func(goals []Key) []PlanStep {
		need := map[Key]bool{}
		for _, g := range goals {
			need[g] = true
			for _, anc := range e.graph.Ancestors(g) {
				need[anc] = true
			}
		}
		var steps []PlanStep
		for _, k := range e.graph.order {
			if need[k] && !isApplied(k) {
				steps = append(steps, PlanStep{Key: k})
			}
		}
		return steps
	}
	backward := func(roots []Key) []PlanStep {
		undo := map[Key]bool{}
		for _, r := range roots {
			if !isApplied(r) {
				continue
			}
			undo[r] = true
			for _, d := range e.graph.Descendants(r) {
				if isApplied(d) {
					undo[d] = true
				}
			}
		}
		var steps []PlanStep
		for _, k := range slices.Backward(e.graph.order) {
			if undo[k] {
				steps = append(steps, PlanStep{Key: k, Backward: true})
			}
		}
		return steps
	}

	switch {
	case target.App == "":
		return forward(e.graph.order), nil
	case target.Name == "":
		keys := e.graph.AppKeys(target.App)
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: no migrations for app %q", ErrUnknownMigration, target.App)
		}
		return forward(keys), nil
	case target.Name == Zero:
		keys := e.graph.AppKeys(target.App)
		if len(keys) == 0 {
			return nil, fmt.Errorf("%w: no migrations for app %q", ErrUnknownMigration, target.App)
		}
		return backward(keys), nil
	}

	k := Key{App: target.App, Name: target.Name}
	if _, ok := e.graph.Migration(k); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMigration, k)
	}
	if !isApplied(k) {
		return forward([]Key{k}), nil
	}
	appKeys := e.graph.AppKeys(k.App)
	later := appKeys[slices.Index(appKeys, k)+1:]
	return backward(later), nil
}

// Migrate brings the database to target.
func (e *Executor) Migrate(ctx context.Context, target Target) error {
	steps, err := e.Plan(ctx, target)
	if err != nil {
		return err
	}
	if err := e.checkReversible(steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		e.log.Info().Msg("no migrations to apply")
		return nil
	}
	for _, step := range steps {
		if err := e.run(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// Rollback unapplies every migration of app after name, plus whatever
// depends on them. Name Zero unapplies the whole app.
func (e *Executor) Rollback(ctx context.Context, app, name string) error {
	if name == "" {
		return fmt.Errorf("%w: rollback needs a migration name or %q", ErrUnknownMigration, Zero)
	}
	return e.Migrate(ctx, Target{App: app, Name: name})
}

// RollbackAll unapplies every applied migration.
func (e *Executor) RollbackAll(ctx context.Context) error {
	apps := map[string]bool{}
	for _, k := range e.graph.order {
		apps[k.App] = true
	}
	for _, k := range slices.Backward(e.graph.order) {
		if !apps[k.App] {
			continue
		}
		delete(apps, k.App)
		if err := e.Rollback(ctx, k.App, Zero); err != nil {
			return err
		}
	}
	return nil
}

// Status lists every known migration in execution order.
func (e *Executor) Status(ctx context.Context) ([]MigrationStatus, error) {
	if err := e.recorder.Ensure(ctx); err != nil {
		return nil, err
	}
	applied, err := e.recorder.Applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(e.graph.order))
	for _, k := range e.graph.order {
		at, ok := applied[k]
		out = append(out, MigrationStatus{Key: k, Applied: ok, AppliedAt: at})
	}
	return out, nil
}

// checkReversible refuses a backward plan up front when any step in it
// cannot be undone, so nothing is unapplied halfway.
func (e *Executor) checkReversible(steps []PlanStep) error {
	for _, step := range steps {
		if !step.Backward {
			continue
		}
		m, _ := e.graph.Migration(step.Key)
		for _, op := range m.Operations {
			if rd, ok := op.(RunData); ok && rd.Backward == nil {
				return &MigrationError{Key: step.Key, Op: op.Describe(), Err: ErrIrreversible}
			}
		}
	}
	return nil
}

func (e *Executor) run(ctx context.Context, step PlanStep) error {
	m, _ := e.graph.Migration(step.Key)
	start := time.Now()

	states, err := e.states(m)
	if err != nil {
		return err
	}

	restore, err := e.editor.Prepare(e.db.WithContext(ctx))
	if err != nil {
		return &MigrationError{Key: step.Key, Err: err}
	}
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s := &Step{Ctx: ctx, Tx: tx, Editor: e.editor, Key: step.Key, Log: e.log}
		if step.Backward {
			for i := len(m.Operations) - 1; i >= 0; i-- {
				op := m.Operations[i]
				if err := op.Revert(s, states[i+1], states[i]); err != nil {
					return &MigrationError{Key: step.Key, Op: op.Describe(), Err: apperror.FromDB(err)}
				}
			}
		} else {
			for i, op := range m.Operations {
				if err := op.Apply(s, states[i], states[i+1]); err != nil {
					return &MigrationError{Key: step.Key, Op: op.Describe(), Err: apperror.FromDB(err)}
				}
			}
		}
		if err := e.editor.Verify(tx); err != nil {
			return &MigrationError{Key: step.Key, Op: "verify", Err: err}
		}
		if step.Backward {
			return e.recorder.unrecord(tx, step.Key)
		}
		return e.recorder.record(tx, step.Key)
	})
	if rerr := restore(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		var merr *MigrationError
		if !errors.As(err, &merr) {
			err = &MigrationError{Key: step.Key, Err: err}
		}
		e.log.Error().Err(err).Str("migration", step.Key.String()).Bool("backward", step.Backward).Msg("migration failed")
		return err
	}

	verb := "applied"
	if step.Backward {
		verb = "unapplied"
	}
	e.log.Info().
		Str("app", step.Key.App).
		Str("name", step.Key.Name).
		Dur("elapsed", time.Since(start)).
		Msg(verb)
	return nil
}

// states returns the schema before m followed by the schema after each of
// its operations.
func (e *Executor) states(m *Migration) ([]*State, error) {
	before, err := e.graph.StateBefore(m.Key())
	if err != nil {
		return nil, err
	}
	states := []*State{before}
	for _, op := range m.Operations {
		next := states[len(states)-1].Clone()
		if err := op.StateForward(next); err != nil {
			return nil, &MigrationError{Key: m.Key(), Op: op.Describe(), Err: err}
		}
		states = append(states, next)
	}
	return states, nil
}
