// Package executor applies single plan actions to the destination document
// and persists their PatchUnits.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/animus-labs/animus-migrate/internal/auditlog"
	"github.com/animus-labs/animus-migrate/internal/domain"
	"github.com/animus-labs/animus-migrate/internal/generate"
	"github.com/animus-labs/animus-migrate/internal/names"
	"github.com/animus-labs/animus-migrate/internal/schema"
	"github.com/animus-labs/animus-migrate/internal/storage"
)

// State is a step of a single action's execution.
type State string

const (
	StatePending           State = "pending"
	StateResolvingTarget   State = "resolving_target"
	StateResolvingEvidence State = "resolving_evidence"
	StateGeneratingContent State = "generating_content"
	StateValidating        State = "validating"
	StateApplying          State = "applying"
	StateLogged            State = "logged"
)

// Evidence holds the record sets edit and add actions draw on. Reference
// is optional.
type Evidence struct {
	Legacy    []domain.Record
	Proposed  []domain.Record
	Reference []domain.Record
}

// Result describes a completed action. Unit is nil for keep.
type Result struct {
	ActionIndex int
	ActionKind  domain.ActionKind
	TargetID    string
	TargetName  string
	Unit        *domain.PatchUnit
	// Placeholders lists mandatory fields that were synthesized because
	// the generator left them empty.
	Placeholders []string
	Notes        string
}

// RecordValidator checks a single generated record.
type RecordValidator interface {
	Test(path string, t domain.Test) error
}

// Metrics receives per-action outcomes. A nil Metrics is allowed.
type Metrics interface {
	ObserveAction(kind domain.ActionKind, outcome string)
	ObserveGeneration(d time.Duration, err error)
}

type Config struct {
	Workspace *Workspace
	Store     storage.Store
	Generator generate.Generator
	Validator RecordValidator
	Audit     auditlog.Log
	Metrics   Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type Executor struct {
	workspace *Workspace
	store     storage.Store
	generator generate.Generator
	validator RecordValidator
	audit     auditlog.Log
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func New(cfg Config) (*Executor, error) {
	if cfg.Workspace == nil {
		return nil, errors.New("workspace is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("validator is required")
	}
	if cfg.Audit == nil {
		return nil, errors.New("audit log is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Executor{
		workspace: cfg.Workspace,
		store:     cfg.Store,
		generator: cfg.Generator,
		validator: cfg.Validator,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}, nil
}

// ApplyAction executes the action at the zero-based actionIndex. A failed
// action leaves the destination document untouched and does not affect
// other actions.
func (e *Executor) ApplyAction(ctx context.Context, plan domain.InterventionPlan, actionIndex int, evidence Evidence) (Result, error) {
	if actionIndex < 0 || actionIndex >= len(plan.Actions) {
		return Result{}, domain.Errorf(domain.ErrPlanIndexOutOfRange, "plan.actions", "",
			"index %d outside [0, %d)", actionIndex, len(plan.Actions))
	}
	action := plan.Actions[actionIndex]
	run := &actionRun{
		e:      e,
		action: action,
		index:  actionIndex,
		logger: e.logger.With("plan_id", plan.ID, "action_index", actionIndex, "action_kind", action.Kind),
	}
	run.transition(StatePending)

	res, err := run.execute(ctx, evidence)
	if err != nil {
		e.observe(action.Kind, outcome(err))
		run.logger.Error("action failed", "state", run.state, "error", err)
		return Result{}, err
	}
	e.observe(action.Kind, "applied")
	run.logger.Info("action applied", "target_id", res.TargetID, "target_name", res.TargetName)
	return res, nil
}

func (e *Executor) observe(kind domain.ActionKind, result string) {
	if e.metrics != nil {
		e.metrics.ObserveAction(kind, result)
	}
}

func outcome(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrTargetNotFound:
		return "target_not_found"
	case domain.ErrGenerationFailure:
		return "generation_failure"
	case domain.ErrSchemaInvalid:
		return "schema_invalid"
	case domain.ErrContextInvalid:
		return "context_invalid"
	default:
		return "error"
	}
}

type actionRun struct {
	e      *Executor
	action domain.PlanAction
	index  int
	state  State
	logger *slog.Logger
}

func (r *actionRun) transition(s State) {
	r.state = s
	r.logger.Debug("action state", "state", s)
}

func (r *actionRun) path() string {
	return fmt.Sprintf("plan.actions[%d]", r.index)
}

func (r *actionRun) execute(ctx context.Context, evidence Evidence) (Result, error) {
	r.transition(StateResolvingTarget)
	doc, err := r.e.workspace.Snapshot(ctx)
	if err != nil {
		return Result{}, err
	}
	targetIdx := r.resolveTarget(doc)
	switch r.action.Kind {
	case domain.ActionEdit, domain.ActionDelete:
		if targetIdx < 0 {
			return Result{}, r.targetNotFound()
		}
	}

	switch r.action.Kind {
	case domain.ActionKeep:
		return r.keep(ctx)
	case domain.ActionDelete:
		return r.delete(ctx)
	case domain.ActionEdit, domain.ActionAdd:
		var current *domain.Test
		if targetIdx >= 0 {
			t := doc.Tests[targetIdx].Clone()
			current = &t
		}
		return r.generate(ctx, current, evidence)
	default:
		return Result{}, domain.Errorf(domain.ErrContextInvalid, r.path(), "action_kind", "unsupported %q", r.action.Kind)
	}
}

// resolveTarget finds the action's target by its own identifier, then by
// name. Deletes only remove a test carrying the target's name. Adds have no
// legacy target; they resolve to nothing.
func (r *actionRun) resolveTarget(doc *domain.Document) int {
	if r.action.Target == nil {
		return -1
	}
	if r.action.Kind == domain.ActionDelete {
		return doc.IndexOfNamed(r.action.TargetKey(), r.action.Target.Name)
	}
	return doc.IndexOf(r.action.TargetKey(), r.action.Target.Name)
}

func (r *actionRun) targetNotFound() error {
	return domain.Errorf(domain.ErrTargetNotFound, r.path(), "target_record_ref",
		"%q (id %q) is not in the destination document", r.action.TargetName(), r.action.TargetID())
}

func (r *actionRun) keep(ctx context.Context) (Result, error) {
	res := r.result(nil)
	if err := r.log(ctx, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

func (r *actionRun) delete(ctx context.Context) (Result, error) {
	r.transition(StateValidating)
	var res Result
	err := r.e.workspace.Commit(ctx, func(doc *domain.Document) error {
		idx := r.resolveTarget(doc)
		if idx < 0 {
			return r.targetNotFound()
		}
		r.transition(StateApplying)
		unit := r.unit(doc.Tests[idx])
		doc.Remove(idx)
		res = r.result(&unit)
		return nil
	}, func(ctx context.Context) error {
		return r.persist(ctx, res)
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// persist writes the action's patch unit and audit entry. The unit
// previously stored for the action is put back when the audit entry cannot
// be written.
func (r *actionRun) persist(ctx context.Context, res Result) error {
	key := storage.PatchKey(r.index)
	prev, err := r.e.store.Get(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("load patch unit: %w", err)
	}
	if err := storage.PutJSON(ctx, r.e.store, key, res.Unit); err != nil {
		return fmt.Errorf("persist patch unit: %w", err)
	}
	if err := r.log(ctx, res); err != nil {
		restoreCtx := context.WithoutCancel(ctx)
		var rerr error
		if prev == nil {
			rerr = r.e.store.Delete(restoreCtx, key)
		} else {
			rerr = r.e.store.Put(restoreCtx, key, prev)
		}
		if rerr != nil {
			return errors.Join(err, fmt.Errorf("restore patch unit: %w", rerr))
		}
		return err
	}
	return nil
}

func (r *actionRun) generate(ctx context.Context, current *domain.Test, evidence Evidence) (Result, error) {
	r.transition(StateResolvingEvidence)
	req := generate.Request{
		Description: r.action.Description,
		ActionKind:  r.action.Kind,
		IDHint:      r.idHint(),
		Target:      current,
		Evidence:    r.gatherEvidence(evidence),
	}

	r.transition(StateGeneratingContent)
	started := r.e.now()
	resp, err := r.e.generator.Generate(ctx, req)
	if r.e.metrics != nil {
		r.e.metrics.ObserveGeneration(r.e.now().Sub(started), err)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(err, domain.ErrGenerationFailure) {
			return Result{}, fmt.Errorf("%s: %w", r.path(), err)
		}
		return Result{}, domain.Wrap(domain.ErrGenerationFailure, r.path(), err)
	}

	r.transition(StateValidating)
	rec := resp.Record.Clone()
	if current != nil && rec.ID == "" {
		rec.ID = current.ID
	}
	if rec.ID == "" && r.action.Kind == domain.ActionAdd {
		rec.ID = req.IDHint
	}
	filled := schema.FillPlaceholders(&rec)
	if len(filled) > 0 {
		r.logger.Warn("placeholders synthesized", "fields", filled)
	}
	if err := r.e.validator.Test(r.path()+".content", rec); err != nil {
		return Result{}, err
	}

	unit := r.unit(rec)
	res := r.result(&unit)
	res.Placeholders = filled
	res.Notes = resp.Notes
	err = r.e.workspace.Commit(ctx, func(doc *domain.Document) error {
		r.transition(StateApplying)
		if r.action.Kind == domain.ActionEdit {
			idx := r.resolveTarget(doc)
			if idx < 0 {
				return r.targetNotFound()
			}
			doc.Tests[idx] = rec.Clone()
			return nil
		}
		if idx := doc.IndexOfIdentity(rec); idx >= 0 {
			doc.Tests[idx] = rec.Clone()
			return nil
		}
		doc.Tests = append(doc.Tests, rec.Clone())
		return nil
	}, func(ctx context.Context) error {
		return r.persist(ctx, res)
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// idHint is the identifier a generated record should carry. Inherited ids
// are shared by siblings and are never handed out.
func (r *actionRun) idHint() string {
	if id := r.action.Proposed.Key(); id != "" {
		return id
	}
	return r.action.TargetKey()
}

func (r *actionRun) gatherEvidence(in Evidence) []generate.Evidence {
	out := make([]generate.Evidence, 0, 3)
	if rec, ok := findRecord(in.Legacy, r.action.Target); ok {
		out = append(out, generate.Evidence{Source: generate.SourceLegacy, Record: rec})
	}
	if rec, ok := findRecord(in.Proposed, r.action.Proposed); ok {
		out = append(out, generate.Evidence{Source: generate.SourceProposed, Record: rec})
	}
	ref := r.action.Proposed
	if ref == nil {
		ref = r.action.Target
	}
	if ref == nil {
		ref = &domain.RecordRef{Name: r.action.TargetName()}
	}
	if rec, ok := lookupRecord(in.Reference, ref.SourceID, ref.Name); ok {
		out = append(out, generate.Evidence{Source: generate.SourceReference, Record: rec})
	}
	return out
}

// findRecord resolves ref at its recorded position, falling back to
// identifier and name lookup.
func findRecord(records []domain.Record, ref *domain.RecordRef) (domain.Record, bool) {
	if ref == nil {
		return domain.Record{}, false
	}
	if ref.Position >= 0 && ref.Position < len(records) && names.Equal(records[ref.Position].Name, ref.Name) {
		return records[ref.Position], true
	}
	return lookupRecord(records, ref.SourceID, ref.Name)
}

func lookupRecord(records []domain.Record, id, name string) (domain.Record, bool) {
	if id != "" {
		for _, rec := range records {
			if rec.SourceID == id && names.Equal(rec.Name, name) {
				return rec, true
			}
		}
	}
	for _, rec := range records {
		if names.Equal(rec.Name, name) {
			return rec, true
		}
	}
	return domain.Record{}, false
}

func (r *actionRun) unit(content domain.Test) domain.PatchUnit {
	c := content.Clone()
	return domain.PatchUnit{
		ActionIndex: r.index,
		ActionKind:  r.action.Kind,
		TargetID:    r.action.TargetKey(),
		TargetName:  r.action.TargetName(),
		Content:     &c,
	}
}

func (r *actionRun) result(unit *domain.PatchUnit) Result {
	return Result{
		ActionIndex: r.index,
		ActionKind:  r.action.Kind,
		TargetID:    r.action.TargetID(),
		TargetName:  r.action.TargetName(),
		Unit:        unit,
	}
}

func (r *actionRun) log(ctx context.Context, res Result) error {
	entry := domain.AuditEntry{
		Timestamp:   r.e.now().UTC(),
		ActionIndex: res.ActionIndex,
		ActionKind:  res.ActionKind,
		TargetID:    res.TargetID,
	}
	if err := r.e.audit.Append(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	r.transition(StateLogged)
	return nil
}
