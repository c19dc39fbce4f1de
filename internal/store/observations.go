package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nmem/nmem/internal/models"
)

// InsertObservationParams is the write-side shape for a single Observation.
// Content and Metadata must already be secret-filtered by the caller — the
// store only encrypts and indexes.
type InsertObservationParams struct {
	SessionID   string
	PromptID    *int64
	CreatedAt   time.Time
	ObsType     string
	SourceEvent string
	ToolName    string
	FilePath    string
	Content     string
	Metadata    []byte
	ReadLike    bool // gates the dedupe-skip rule

	// Labels is the per-observation classifier output, nil entries left
	// unset (null) when a model failed to load.
	Labels LabelSet
}

// LabelSet carries the four per-observation classifier dimensions and
// their provenance run ids, captured at insert time.
type LabelSet struct {
	Phase, Scope, Locus, Novelty                         string
	PhaseRunID, ScopeRunID, LocusRunID, NoveltyRunID *int64
}

// InsertObservation claims the dedupe bucket, then — unless a
// near-duplicate read-like observation already claimed it — encrypts and
// inserts the row and mirrors plaintext into the FTS index, all in one
// transaction. Returns deduped=true when the insert was skipped.
func InsertObservation(ctx context.Context, db *sql.DB, p InsertObservationParams) (id int64, deduped bool, err error) {
	dedupeKey, window := DedupeKey(p.SessionID, p.ObsType, p.FilePath, p.CreatedAt.Unix())

	err = Transact(ctx, db, func(tx *sql.Tx) error {
		isDup, claimErr := ClaimDedupe(ctx, tx, dedupeKey, window)
		if claimErr != nil {
			return claimErr
		}
		if isDup && p.ReadLike {
			deduped = true
			return nil
		}

		sealedContent, encErr := EncryptColumn([]byte(p.Content))
		if encErr != nil {
			return fmt.Errorf("encrypt observation content: %w", encErr)
		}
		var sealedMeta any
		if len(p.Metadata) > 0 {
			m, encErr := EncryptColumn(p.Metadata)
			if encErr != nil {
				return fmt.Errorf("encrypt observation metadata: %w", encErr)
			}
			sealedMeta = m
		}

		var toolName, filePath any
		if p.ToolName != "" {
			toolName = p.ToolName
		}
		if p.FilePath != "" {
			filePath = p.FilePath
		}

		var phase, scope, locus, novelty any
		if p.Labels.Phase != "" {
			phase = p.Labels.Phase
		}
		if p.Labels.Scope != "" {
			scope = p.Labels.Scope
		}
		if p.Labels.Locus != "" {
			locus = p.Labels.Locus
		}
		if p.Labels.Novelty != "" {
			novelty = p.Labels.Novelty
		}
		var phaseRun, scopeRun, locusRun, noveltyRun any
		if p.Labels.PhaseRunID != nil {
			phaseRun = *p.Labels.PhaseRunID
		}
		if p.Labels.ScopeRunID != nil {
			scopeRun = *p.Labels.ScopeRunID
		}
		if p.Labels.LocusRunID != nil {
			locusRun = *p.Labels.LocusRunID
		}
		if p.Labels.NoveltyRunID != nil {
			noveltyRun = *p.Labels.NoveltyRunID
		}

		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO observations
				(session_id, prompt_id, created_at, obs_type, source_event, tool_name, file_path, content, metadata,
				 phase, scope, locus, novelty, phase_run_id, scope_run_id, locus_run_id, novelty_run_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.SessionID, p.PromptID, p.CreatedAt.Unix(), p.ObsType, p.SourceEvent, toolName, filePath, sealedContent, sealedMeta,
			phase, scope, locus, novelty, phaseRun, scopeRun, locusRun, noveltyRun)
		if execErr != nil {
			return fmt.Errorf("insert observation: %w", execErr)
		}
		newID, idErr := res.LastInsertId()
		if idErr != nil {
			return fmt.Errorf("read inserted observation id: %w", idErr)
		}
		id = newID
		return IndexObservation(ctx, tx, id, p.Content)
	})
	if err != nil {
		return 0, false, err
	}
	return id, deduped, nil
}

func scanObservation(row interface {
	Scan(dest ...any) error
}) (models.Observation, error) {
	return scanObservationExtra(row)
}

// scanObservationExtra scans the fixed observation columns plus any extra
// destinations appended to the same row (e.g. a joined session.project
// column), for queries whose SELECT list extends observationColumns.
func scanObservationExtra(row interface {
	Scan(dest ...any) error
}, extra ...any) (models.Observation, error) {
	var o models.Observation
	var created int64
	var promptID sql.NullInt64
	var toolName, filePath sql.NullString
	var content, metadata []byte
	var phase, scope, locus, novelty, friction sql.NullString
	var phaseRun, scopeRun, locusRun, noveltyRun, frictionRun sql.NullInt64
	var pinned int

	dest := []any{
		&o.ID, &o.SessionID, &promptID, &created, &o.ObsType, &o.SourceEvent,
		&toolName, &filePath, &content, &metadata,
		&phase, &scope, &locus, &novelty, &friction,
		&phaseRun, &scopeRun, &locusRun, &noveltyRun, &frictionRun,
		&pinned,
	}
	dest = append(dest, extra...)

	err := row.Scan(dest...)
	if err != nil {
		return o, err
	}

	o.CreatedAt = time.Unix(created, 0).UTC()
	if promptID.Valid {
		v := promptID.Int64
		o.PromptID = &v
	}
	o.ToolName = toolName.String
	o.FilePath = filePath.String

	plain, err := DecryptColumn(content)
	if err != nil {
		return o, fmt.Errorf("decrypt observation %d content: %w", o.ID, err)
	}
	o.Content = string(plain)

	if len(metadata) > 0 {
		plainMeta, err := DecryptColumn(metadata)
		if err != nil {
			return o, fmt.Errorf("decrypt observation %d metadata: %w", o.ID, err)
		}
		o.Metadata = plainMeta
	}

	o.Phase, o.Scope, o.Locus, o.Novelty, o.Friction = phase.String, scope.String, locus.String, novelty.String, friction.String
	if phaseRun.Valid {
		o.PhaseRunID = &phaseRun.Int64
	}
	if scopeRun.Valid {
		o.ScopeRunID = &scopeRun.Int64
	}
	if locusRun.Valid {
		o.LocusRunID = &locusRun.Int64
	}
	if noveltyRun.Valid {
		o.NoveltyRunID = &noveltyRun.Int64
	}
	if frictionRun.Valid {
		o.FrictionRunID = &frictionRun.Int64
	}
	o.IsPinned = pinned != 0
	return o, nil
}

const observationColumns = `
	id, session_id, prompt_id, created_at, obs_type, source_event,
	tool_name, file_path, content, metadata,
	phase, scope, locus, novelty, friction,
	phase_run_id, scope_run_id, locus_run_id, novelty_run_id, friction_run_id,
	is_pinned
`

// GetObservationsByIDs fetches full rows for the given identifiers in input
// order, silently omitting ids that no longer exist (retention may have
// deleted them since the caller last saw them).
func GetObservationsByIDs(ctx context.Context, db *sql.DB, ids []int64) ([]models.Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found := make(map[int64]models.Observation, len(ids))
	placeholders := make([]any, len(ids))
	query := "SELECT " + observationColumns + " FROM observations WHERE id IN ("
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	rows, err := db.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return nil, fmt.Errorf("get observations by id: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		found[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]models.Observation, 0, len(ids))
	for _, id := range ids {
		if o, ok := found[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListObservationsBySession returns every observation in a session ordered
// by id, for session_trace.
func ListObservationsBySession(ctx context.Context, db *sql.DB, sessionID string) ([]models.Observation, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list observations for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationsInPromptRange returns observations whose prompt_id falls
// within [firstPromptID, lastPromptID] for a session — the Episode
// Detector's annotation scope.
func ObservationsInPromptRange(ctx context.Context, db *sql.DB, sessionID string, firstPromptID, lastPromptID int64) ([]models.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+observationColumns+`
		FROM observations
		WHERE session_id = ? AND prompt_id BETWEEN ? AND ?
		ORDER BY id ASC
	`, sessionID, firstPromptID, lastPromptID)
	if err != nil {
		return nil, fmt.Errorf("observations in prompt range: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentObservations returns up to limit recent observations, optionally
// project-scoped (via a session join), as the candidate set for composite
// scoring.
func RecentObservations(ctx context.Context, db *sql.DB, project string, limit int) ([]models.Observation, error) {
	var rows *sql.Rows
	var err error
	if project == "" {
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			ORDER BY o.created_at DESC
			LIMIT ?
		`, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			JOIN sessions s ON s.id = o.session_id
			WHERE s.project = ?
			ORDER BY o.created_at DESC
			LIMIT ?
		`, project, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent observations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// RecentObservationsByType is RecentObservations narrowed to a single
// obs_type, used by the Context Builder's file/git activity section so it
// can rank each type's candidates together without a broader scan.
func RecentObservationsByType(ctx context.Context, db *sql.DB, project, obsType string, limit int) ([]models.Observation, error) {
	var rows *sql.Rows
	var err error
	if project == "" {
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			WHERE o.obs_type = ?
			ORDER BY o.created_at DESC
			LIMIT ?
		`, obsType, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			JOIN sessions s ON s.id = o.session_id
			WHERE s.project = ? AND o.obs_type = ?
			ORDER BY o.created_at DESC
			LIMIT ?
		`, project, obsType, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("recent observations by type: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationByID fetches a single observation by id, returning
// (nil, nil) if it does not exist (or has been swept).
func ObservationByID(ctx context.Context, db *sql.DB, id int64) (*models.Observation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	o, err := scanObservation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get observation %d: %w", id, err)
	}
	return &o, nil
}

// ObservationsBefore and ObservationsAfter return up to n observations in
// the same session immediately preceding/following anchorID by id order —
// the timeline tool's sibling windows.
func ObservationsBefore(ctx context.Context, db *sql.DB, sessionID string, anchorID int64, n int) ([]models.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT * FROM (
			SELECT `+observationColumns+` FROM observations
			WHERE session_id = ? AND id < ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, sessionID, anchorID, n)
	if err != nil {
		return nil, fmt.Errorf("observations before %d: %w", anchorID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func ObservationsAfter(ctx context.Context, db *sql.DB, sessionID string, anchorID int64, n int) ([]models.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+observationColumns+` FROM observations
		WHERE session_id = ? AND id > ?
		ORDER BY id ASC LIMIT ?
	`, sessionID, anchorID, n)
	if err != nil {
		return nil, fmt.Errorf("observations after %d: %w", anchorID, err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SearchObservations runs an FTS5 MATCH query (supporting the grammar's
// boolean operators, phrase, and prefix syntax natively) over observation
// content, optionally scoped by project and observation type, ordered by
// FTS5's bm25 rank, paged by limit/offset. A malformed query surfaces
// SQLite's own syntax error, which the caller wraps into a structured
// retriever error.
func SearchObservations(ctx context.Context, db *sql.DB, project, obsType, query string, limit, offset int) ([]models.Observation, error) {
	sqlQuery := `
		SELECT ` + prefixedObservationColumns("o") + `
		FROM observations o
		JOIN sessions s ON s.id = o.session_id
		JOIN observations_fts fts ON fts.rowid = o.id
		WHERE observations_fts MATCH ?
		  AND (? = '' OR s.project = ?)
		  AND (? = '' OR o.obs_type = ?)
		ORDER BY fts.rank
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, sqlQuery, query, project, project, obsType, obsType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ObservationWithProject pairs an Observation with its owning session's
// project, for composite-scoring callers that need the project boost term
// even when a query spans multiple projects.
type ObservationWithProject struct {
	models.Observation
	Project string
}

// RecentObservationsAcrossProjects returns up to limit recent observations
// regardless of project, each tagged with its owning session's project —
// the candidate set for a cross-project recent_context / Context Builder
// call, where the composite score still boosts same-project rows.
func RecentObservationsAcrossProjects(ctx context.Context, db *sql.DB, limit int) ([]ObservationWithProject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+prefixedObservationColumns("o")+`, s.project
		FROM observations o
		JOIN sessions s ON s.id = o.session_id
		ORDER BY o.created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent observations across projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ObservationWithProject
	for rows.Next() {
		var project string
		o, err := scanObservationExtra(rows, &project)
		if err != nil {
			return nil, err
		}
		out = append(out, ObservationWithProject{Observation: o, Project: project})
	}
	return out, rows.Err()
}

func prefixedObservationColumns(alias string) string {
	cols := []string{
		"id", "session_id", "prompt_id", "created_at", "obs_type", "source_event",
		"tool_name", "file_path", "content", "metadata",
		"phase", "scope", "locus", "novelty", "friction",
		"phase_run_id", "scope_run_id", "locus_run_id", "novelty_run_id", "friction_run_id",
		"is_pinned",
	}
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += alias + "." + c
	}
	return out
}

// ObservationsByFilePath returns, per session, observations touching path
// (file_history tool).
func ObservationsByFilePath(ctx context.Context, db *sql.DB, project, path string) ([]models.Observation, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+prefixedObservationColumns("o")+`
		FROM observations o
		JOIN sessions s ON s.id = o.session_id
		WHERE o.file_path = ? AND (? = '' OR s.project = ?)
		ORDER BY o.created_at ASC
	`, path, project, project)
	if err != nil {
		return nil, fmt.Errorf("observations by file path: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetPinned sets or clears an observation's pin flag, exempting it from
// (or re-exposing it to) the retention sweep.
func SetPinned(ctx context.Context, db *sql.DB, id int64, pinned bool) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		val := 0
		if pinned {
			val = 1
		}
		res, err := tx.ExecContext(ctx, `UPDATE observations SET is_pinned = ? WHERE id = ?`, val, id)
		if err != nil {
			return fmt.Errorf("set pinned for observation %d: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("observation %d not found", id)
		}
		return nil
	})
}

// PinnedObservations returns currently-pinned observations, optionally
// project-scoped, and optionally restricted to other-project pins only —
// the Context Builder's pinned and cross-project-pinned sections.
func PinnedObservations(ctx context.Context, db *sql.DB, project string, crossProjectOnly bool) ([]models.Observation, error) {
	var rows *sql.Rows
	var err error
	switch {
	case project == "":
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o WHERE o.is_pinned = 1
			ORDER BY o.created_at DESC
		`)
	case crossProjectOnly:
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			JOIN sessions s ON s.id = o.session_id
			WHERE o.is_pinned = 1 AND s.project != ?
			ORDER BY o.created_at DESC
		`, project)
	default:
		rows, err = db.QueryContext(ctx, `
			SELECT `+prefixedObservationColumns("o")+`
			FROM observations o
			JOIN sessions s ON s.id = o.session_id
			WHERE o.is_pinned = 1 AND s.project = ?
			ORDER BY o.created_at DESC
		`, project)
	}
	if err != nil {
		return nil, fmt.Errorf("pinned observations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateObservationLabel sets one classifier dimension's label and run
// reference (first-label capture, and backfill command re-labeling).
func UpdateObservationLabel(ctx context.Context, db *sql.DB, id int64, dimension, label string, runID int64) error {
	col, runCol, err := labelColumns(dimension)
	if err != nil {
		return err
	}
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(`UPDATE observations SET %s = ?, %s = ? WHERE id = ?`, col, runCol), label, runID, id)
		if err != nil {
			return fmt.Errorf("update observation %d label %s: %w", id, dimension, err)
		}
		return nil
	})
}

func labelColumns(dimension string) (col, runCol string, err error) {
	switch dimension {
	case models.DimensionPhase:
		return "phase", "phase_run_id", nil
	case models.DimensionScope:
		return "scope", "scope_run_id", nil
	case models.DimensionLocus:
		return "locus", "locus_run_id", nil
	case models.DimensionNovelty:
		return "novelty", "novelty_run_id", nil
	case models.DimensionFriction:
		return "friction", "friction_run_id", nil
	default:
		return "", "", fmt.Errorf("unknown classifier dimension %q", dimension)
	}
}

// AssignEpisodeFriction sets friction=friction for every observation in
// [firstPromptID, lastPromptID] of a session, run-tagged with the
// synthetic episodic-friction run.
func AssignEpisodeFriction(ctx context.Context, db *sql.DB, sessionID string, firstPromptID, lastPromptID, runID int64, label string) error {
	return Transact(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE observations
			SET friction = ?, friction_run_id = ?
			WHERE session_id = ? AND prompt_id BETWEEN ? AND ?
		`, label, runID, sessionID, firstPromptID, lastPromptID)
		if err != nil {
			return fmt.Errorf("assign episode friction: %w", err)
		}
		return nil
	})
}

// ObservationsMissingLabel returns observation ids lacking a label on the
// given dimension, for `backfill --dimension`.
func ObservationsMissingLabel(ctx context.Context, db *sql.DB, dimension string, limit int) ([]int64, error) {
	col, _, err := labelColumns(dimension)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id FROM observations WHERE %s IS NULL ORDER BY id ASC LIMIT ?`, col), limit)
	if err != nil {
		return nil, fmt.Errorf("observations missing label %s: %w", dimension, err)
	}
	defer func() { _ = rows.Close() }()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
