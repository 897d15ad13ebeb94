package memory

// Schema is applied on every open. Every statement is idempotent so an
// existing database gains new tables without data loss.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT    NOT NULL UNIQUE,
	description TEXT,
	status      TEXT    NOT NULL DEFAULT 'active'
	            CHECK (status IN ('active','paused','completed','archived')),
	created_at  TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at  TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS components (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id          INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	parent_component_id INTEGER REFERENCES components(id) ON DELETE SET NULL,
	name                TEXT    NOT NULL,
	description         TEXT,
	status              TEXT    NOT NULL DEFAULT 'in_progress'
	                    CHECK (status IN ('planning','in_progress','testing','complete','deprecated')),
	created_at          TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at          TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS changes (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	component_id INTEGER NOT NULL REFERENCES components(id) ON DELETE CASCADE,
	field_name   TEXT    NOT NULL,
	old_value    TEXT,
	new_value    TEXT,
	change_type  TEXT    NOT NULL DEFAULT 'other'
	             CHECK (change_type IN ('config','code','architecture','dependency','documentation','other')),
	reason       TEXT,
	created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS problems (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	component_id INTEGER NOT NULL REFERENCES components(id) ON DELETE CASCADE,
	title        TEXT    NOT NULL,
	description  TEXT,
	status       TEXT    NOT NULL DEFAULT 'open'
	             CHECK (status IN ('open','investigating','blocked','solved','wont_fix')),
	severity     TEXT    NOT NULL DEFAULT 'medium'
	             CHECK (severity IN ('low','medium','high','critical')),
	root_cause   TEXT,
	created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
	solved_at    TEXT
);

CREATE TABLE IF NOT EXISTS solution_attempts (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	problem_id        INTEGER NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
	parent_attempt_id INTEGER REFERENCES solution_attempts(id) ON DELETE SET NULL,
	description       TEXT    NOT NULL,
	outcome           TEXT    NOT NULL DEFAULT 'pending'
	                  CHECK (outcome IN ('success','failure','partial','abandoned','pending')),
	confidence        TEXT    NOT NULL DEFAULT 'attempted'
	                  CHECK (confidence IN ('attempted','worked_once','verified','proven','deprecated')),
	notes             TEXT,
	created_at        TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS solutions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	problem_id         INTEGER NOT NULL UNIQUE REFERENCES problems(id) ON DELETE CASCADE,
	winning_attempt_id INTEGER REFERENCES solution_attempts(id) ON DELETE SET NULL,
	summary            TEXT    NOT NULL,
	code_snippet       TEXT,
	key_insight        TEXT,
	created_at         TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS todos (
	id                    INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id            INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	component_id          INTEGER REFERENCES components(id) ON DELETE SET NULL,
	title                 TEXT    NOT NULL,
	description           TEXT,
	priority              TEXT    NOT NULL DEFAULT 'medium'
	                      CHECK (priority IN ('low','medium','high','critical')),
	status                TEXT    NOT NULL DEFAULT 'pending'
	                      CHECK (status IN ('pending','in_progress','blocked','done','cancelled')),
	due_date              TEXT,
	blocked_by_problem_id INTEGER REFERENCES problems(id) ON DELETE SET NULL,
	created_at            TEXT    NOT NULL DEFAULT (datetime('now')),
	completed_at          TEXT
);

CREATE TABLE IF NOT EXISTS learnings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id   INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	component_id INTEGER REFERENCES components(id) ON DELETE SET NULL,
	category     TEXT    NOT NULL DEFAULT 'other'
	             CHECK (category IN ('pattern','gotcha','best_practice','tool_tip','architecture','performance','security','other')),
	insight      TEXT    NOT NULL,
	context      TEXT,
	source       TEXT    NOT NULL DEFAULT 'experience'
	             CHECK (source IN ('experience','documentation','conversation','error','research')),
	verified     INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS conversations (
	id                         INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id                 INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	session_id                 TEXT,
	user_prompt_summary        TEXT    NOT NULL,
	assistant_response_summary TEXT,
	key_decisions              TEXT    NOT NULL DEFAULT '[]',
	problems_referenced        TEXT    NOT NULL DEFAULT '[]',
	solutions_created          TEXT    NOT NULL DEFAULT '[]',
	tokens_used                INTEGER NOT NULL DEFAULT 0,
	created_at                 TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id         INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	focus_component_id INTEGER REFERENCES components(id) ON DELETE SET NULL,
	focus_problem_id   INTEGER REFERENCES problems(id) ON DELETE SET NULL,
	started_at         TEXT    NOT NULL DEFAULT (datetime('now')),
	ended_at           TEXT,
	summary            TEXT,
	outcomes           TEXT    NOT NULL DEFAULT '[]',
	duration_minutes   INTEGER
);

CREATE TABLE IF NOT EXISTS cross_references (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_type  TEXT    NOT NULL,
	source_id    INTEGER NOT NULL,
	target_type  TEXT    NOT NULL,
	target_id    INTEGER NOT NULL,
	relationship TEXT    NOT NULL DEFAULT 'related_to'
	             CHECK (relationship IN ('similar_to','derived_from','contradicts','depends_on','supersedes','related_to')),
	notes        TEXT,
	created_at   TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (source_type, source_id, target_type, target_id, relationship)
);

CREATE TABLE IF NOT EXISTS project_variables (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name        TEXT    NOT NULL,
	value       TEXT,
	category    TEXT    NOT NULL DEFAULT 'custom'
	            CHECK (category IN ('server','credentials','config','environment','endpoint','custom')),
	is_secret   INTEGER NOT NULL DEFAULT 0,
	description TEXT,
	created_at  TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at  TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS project_methods (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id           INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name                 TEXT    NOT NULL,
	description          TEXT    NOT NULL,
	category             TEXT    NOT NULL DEFAULT 'other'
	                     CHECK (category IN ('auth','deployment','testing','architecture','workflow','convention','api','security','other')),
	steps                TEXT    NOT NULL DEFAULT '[]',
	code_example         TEXT,
	related_component_id INTEGER REFERENCES components(id) ON DELETE SET NULL,
	created_at           TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at           TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (project_id, name)
);

CREATE INDEX IF NOT EXISTS idx_components_project ON components(project_id);
CREATE INDEX IF NOT EXISTS idx_changes_component  ON changes(component_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_problems_component ON problems(component_id, status);
CREATE INDEX IF NOT EXISTS idx_attempts_problem   ON solution_attempts(problem_id);
CREATE INDEX IF NOT EXISTS idx_todos_project      ON todos(project_id, status);
CREATE INDEX IF NOT EXISTS idx_learnings_project  ON learnings(project_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_project   ON sessions(project_id, ended_at);
CREATE INDEX IF NOT EXISTS idx_xref_source        ON cross_references(source_type, source_id);
CREATE INDEX IF NOT EXISTS idx_xref_target        ON cross_references(target_type, target_id);
`

// indexSchema holds the derived token index. search_index is the external
// content table for memory_fts; index_evictions queues removals for the
// vector channel, which lives outside this database.
const indexSchema = `
CREATE TABLE IF NOT EXISTS search_index (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	content_type TEXT    NOT NULL,
	content_id   INTEGER NOT NULL,
	project_id   INTEGER NOT NULL,
	title        TEXT    NOT NULL,
	body         TEXT    NOT NULL,
	created_at   TEXT    NOT NULL,
	updated_at   TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (content_type, content_id)
);

CREATE INDEX IF NOT EXISTS idx_search_project ON search_index(project_id, content_type);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_fts USING fts5(
	title,
	body,
	content='search_index',
	content_rowid='id',
	tokenize='porter unicode61',
	prefix='2 3'
);

CREATE TABLE IF NOT EXISTS index_evictions (
	content_type TEXT    NOT NULL,
	content_id   INTEGER NOT NULL,
	PRIMARY KEY (content_type, content_id)
);

CREATE TRIGGER IF NOT EXISTS search_index_ai AFTER INSERT ON search_index BEGIN
	INSERT INTO memory_fts(rowid, title, body) VALUES (new.id, new.title, new.body);
	DELETE FROM index_evictions WHERE content_type = new.content_type AND content_id = new.content_id;
END;

CREATE TRIGGER IF NOT EXISTS search_index_ad AFTER DELETE ON search_index BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, title, body) VALUES ('delete', old.id, old.title, old.body);
	INSERT OR IGNORE INTO index_evictions(content_type, content_id) VALUES (old.content_type, old.content_id);
END;

CREATE TRIGGER IF NOT EXISTS search_index_au AFTER UPDATE ON search_index BEGIN
	INSERT INTO memory_fts(memory_fts, rowid, title, body) VALUES ('delete', old.id, old.title, old.body);
	INSERT INTO memory_fts(rowid, title, body) VALUES (new.id, new.title, new.body);
END;
`

// evictionTriggers drop index units when their source row goes away,
// including rows removed by ON DELETE CASCADE.
var evictionTriggers = map[string]string{
	"projects":          "project",
	"components":        "component",
	"changes":           "change",
	"problems":          "problem",
	"solution_attempts": "attempt",
	"solutions":         "solution",
	"todos":             "todo",
	"learnings":         "learning",
	"conversations":     "conversation",
	"project_methods":   "method",
}

// intelligenceSchema holds learned skills, behavior patterns, session-state
// chains and tool statistics.
const intelligenceSchema = `
CREATE TABLE IF NOT EXISTS learned_skills (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	skill_type       TEXT    NOT NULL
	                 CHECK (skill_type IN ('tool_capability','user_preference','approach','gotcha','project_specific')),
	skill            TEXT    NOT NULL,
	context          TEXT,
	project_id       INTEGER REFERENCES projects(id) ON DELETE CASCADE,
	tool_name        TEXT,
	source_type      TEXT,
	confidence       REAL    NOT NULL DEFAULT 0.6 CHECK (confidence >= 0 AND confidence <= 1),
	session_count    INTEGER NOT NULL DEFAULT 1,
	times_applied    INTEGER NOT NULL DEFAULT 0,
	times_succeeded  INTEGER NOT NULL DEFAULT 0,
	promoted         INTEGER NOT NULL DEFAULT 0,
	promoted_at      TEXT,
	created_at       TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at       TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS behavior_patterns (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	pattern_type       TEXT    NOT NULL
	                   CHECK (pattern_type IN ('tool_sequence','response_style','checkpoint_trigger','task_approach')),
	pattern_name       TEXT    NOT NULL,
	trigger_conditions TEXT    NOT NULL DEFAULT '{}',
	actions            TEXT    NOT NULL DEFAULT '[]',
	project_id         INTEGER REFERENCES projects(id) ON DELETE CASCADE,
	source             TEXT    NOT NULL DEFAULT 'learned'
	                   CHECK (source IN ('default','learned','user_defined')),
	confidence         REAL    NOT NULL DEFAULT 0.6 CHECK (confidence >= 0 AND confidence <= 1),
	session_count      INTEGER NOT NULL DEFAULT 1,
	times_applied      INTEGER NOT NULL DEFAULT 0,
	times_succeeded    INTEGER NOT NULL DEFAULT 0,
	promoted           INTEGER NOT NULL DEFAULT 0,
	promoted_at        TEXT,
	created_at         TEXT    NOT NULL DEFAULT (datetime('now')),
	updated_at         TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS knowledge_sessions (
	kind         TEXT    NOT NULL,
	knowledge_id INTEGER NOT NULL,
	session_key  TEXT    NOT NULL,
	seen_at      TEXT    NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (kind, knowledge_id, session_key)
);

CREATE TRIGGER IF NOT EXISTS learned_skills_ad AFTER DELETE ON learned_skills BEGIN
	DELETE FROM knowledge_sessions WHERE kind = 'skill' AND knowledge_id = old.id;
END;

CREATE TRIGGER IF NOT EXISTS behavior_patterns_ad AFTER DELETE ON behavior_patterns BEGIN
	DELETE FROM knowledge_sessions WHERE kind = 'pattern' AND knowledge_id = old.id;
END;

CREATE TABLE IF NOT EXISTS session_state (
	id                      INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id              INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	state_type              TEXT    NOT NULL
	                        CHECK (state_type IN ('start','checkpoint','handoff','end')),
	previous_state_id       INTEGER REFERENCES session_state(id) ON DELETE SET NULL,
	focus_summary           TEXT,
	active_problem_ids      TEXT    NOT NULL DEFAULT '[]',
	active_component_ids    TEXT    NOT NULL DEFAULT '[]',
	pending_decisions       TEXT    NOT NULL DEFAULT '[]',
	key_facts               TEXT    NOT NULL DEFAULT '[]',
	tool_calls_this_session INTEGER NOT NULL DEFAULT 0,
	estimated_tokens        INTEGER NOT NULL DEFAULT 0,
	created_at              TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS tool_registry (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	mcp_server      TEXT    NOT NULL,
	tool_name       TEXT    NOT NULL,
	effective_for   TEXT    NOT NULL DEFAULT '[]',
	gotchas         TEXT    NOT NULL DEFAULT '[]',
	times_used      INTEGER NOT NULL DEFAULT 0,
	times_succeeded INTEGER NOT NULL DEFAULT 0,
	last_used       TEXT,
	created_at      TEXT    NOT NULL DEFAULT (datetime('now')),
	UNIQUE (mcp_server, tool_name)
);

CREATE TABLE IF NOT EXISTS tool_usage (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	tool_registry_id INTEGER NOT NULL REFERENCES tool_registry(id) ON DELETE CASCADE,
	project_id       INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	session_state_id INTEGER REFERENCES session_state(id) ON DELETE SET NULL,
	task_type        TEXT,
	was_useful       INTEGER NOT NULL DEFAULT 1,
	user_correction  TEXT,
	created_at       TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS algorithm_metrics (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id           INTEGER REFERENCES projects(id) ON DELETE CASCADE,
	session_state_id     INTEGER REFERENCES session_state(id) ON DELETE SET NULL,
	metric_type          TEXT    NOT NULL
	                     CHECK (metric_type IN ('checkpoint_timing','tool_choice','response_quality','prediction_accuracy','user_satisfaction')),
	context              TEXT,
	action_taken         TEXT,
	outcome              TEXT,
	effectiveness_score  REAL    CHECK (effectiveness_score IS NULL OR (effectiveness_score >= 0 AND effectiveness_score <= 1)),
	user_feedback        TEXT,
	should_adjust        INTEGER NOT NULL DEFAULT 0,
	suggested_adjustment TEXT,
	created_at           TEXT    NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_skills_project   ON learned_skills(project_id, confidence DESC);
CREATE INDEX IF NOT EXISTS idx_patterns_project ON behavior_patterns(project_id, confidence DESC);
CREATE INDEX IF NOT EXISTS idx_state_project    ON session_state(project_id, id DESC);
CREATE INDEX IF NOT EXISTS idx_usage_task       ON tool_usage(task_type);
CREATE INDEX IF NOT EXISTS idx_metrics_project  ON algorithm_metrics(project_id, metric_type);
`

// addedColumns lists columns introduced after their table first shipped.
// CREATE TABLE IF NOT EXISTS leaves existing tables alone, so migrate adds
// them when missing.
var addedColumns = []struct {
	table, column, decl string
}{
	{"tool_usage", "user_correction", "TEXT"},
}
