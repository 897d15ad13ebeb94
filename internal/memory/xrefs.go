package memory

import (
	"context"
	"database/sql"
	"fmt"
)

// CrossReference is a typed edge between any two indexed items.
type CrossReference struct {
	ID           int64  `json:"id"`
	SourceType   string `json:"source_type"`
	SourceID     int64  `json:"source_id"`
	TargetType   string `json:"target_type"`
	TargetID     int64  `json:"target_id"`
	Relationship string `json:"relationship"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// LinkParams holds the input for linking two items.
type LinkParams struct {
	SourceType   string `json:"source_type"`
	SourceID     int64  `json:"source_id"`
	TargetType   string `json:"target_type"`
	TargetID     int64  `json:"target_id"`
	Relationship string `json:"relationship,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// Related is one neighbour of an item, seen from that item.
type Related struct {
	CrossReference
	Direction string `json:"direction"` // "outgoing" or "incoming"
	Title     string `json:"title"`
}

var contentTables = map[string]string{
	"project":      "projects",
	"component":    "components",
	"change":       "changes",
	"problem":      "problems",
	"attempt":      "solution_attempts",
	"solution":     "solutions",
	"todo":         "todos",
	"learning":     "learnings",
	"conversation": "conversations",
	"method":       "project_methods",
}

const xrefColumns = "id, source_type, source_id, target_type, target_id, relationship, COALESCE(notes, ''), created_at"

func scanXref(r rowScanner) (*CrossReference, error) {
	var x CrossReference
	if err := r.Scan(&x.ID, &x.SourceType, &x.SourceID, &x.TargetType, &x.TargetID, &x.Relationship, &x.Notes, &x.CreatedAt); err != nil {
		return nil, err
	}
	return &x, nil
}

// Link records a relationship between two existing items.
func (s *Store) Link(ctx context.Context, p LinkParams) (*CrossReference, error) {
	if err := checkEnum("source_type", p.SourceType, ContentTypes); err != nil {
		return nil, err
	}
	if err := checkEnum("target_type", p.TargetType, ContentTypes); err != nil {
		return nil, err
	}
	p.Relationship = enumOr(p.Relationship, "related_to")
	if err := checkEnum("relationship", p.Relationship, Relationships); err != nil {
		return nil, err
	}
	if p.SourceType == p.TargetType && p.SourceID == p.TargetID {
		return nil, invalid("target_id", "an item cannot reference itself")
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := mustExist(ctx, tx, contentTables[p.SourceType], p.SourceType, p.SourceID); err != nil {
			return err
		}
		if err := mustExist(ctx, tx, contentTables[p.TargetType], p.TargetType, p.TargetID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO cross_references (source_type, source_id, target_type, target_id, relationship, notes)
			VALUES (?, ?, ?, ?, ?, ?)`,
			p.SourceType, p.SourceID, p.TargetType, p.TargetID, p.Relationship, nullableString(p.Notes),
		)
		if isUniqueViolation(err) {
			return &ConflictError{Entity: "cross_reference", Reason: "link already exists"}
		}
		if err != nil {
			return fmt.Errorf("memory: link: %w", err)
		}
		id, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return scanXref(s.db.QueryRowContext(ctx, "SELECT "+xrefColumns+" FROM cross_references WHERE id = ?", id))
}

// FindRelated returns every link touching an item in either direction.
// Links whose other end no longer exists are skipped.
func (s *Store) FindRelated(ctx context.Context, contentType string, id int64) ([]Related, error) {
	if err := checkEnum("content_type", contentType, ContentTypes); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+xrefColumns+` FROM cross_references
		WHERE (source_type = ? AND source_id = ?) OR (target_type = ? AND target_id = ?)
		ORDER BY created_at DESC, id DESC`,
		contentType, id, contentType, id)
	if err != nil {
		return nil, fmt.Errorf("memory: find related: %w", err)
	}
	var links []CrossReference
	for rows.Next() {
		x, err := scanXref(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		links = append(links, *x)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []Related{}
	for _, x := range links {
		r := Related{CrossReference: x, Direction: "outgoing"}
		otherType, otherID := x.TargetType, x.TargetID
		if x.SourceType != contentType || x.SourceID != id {
			r.Direction = "incoming"
			otherType, otherID = x.SourceType, x.SourceID
		}
		err := s.db.QueryRowContext(ctx,
			"SELECT title FROM search_index WHERE content_type = ? AND content_id = ?", otherType, otherID,
		).Scan(&r.Title)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("memory: related title: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}
