package corpus

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresSource loads the blocks of one named corpus. It expects:
//
//	CREATE TABLE blocks (
//	    corpus     TEXT    NOT NULL,
//	    id         INTEGER NOT NULL,
//	    section_id INTEGER,
//	    position   INTEGER NOT NULL,
//	    text       TEXT    NOT NULL,
//	    PRIMARY KEY (corpus, id)
//	);
type PostgresSource struct {
	DB     *sql.DB
	Corpus string
}

const selectBlocks = `SELECT id, section_id, text FROM blocks WHERE corpus = $1 ORDER BY position, id`

func (s PostgresSource) Load(ctx context.Context) (*Corpus, error) {
	rows, err := s.DB.QueryContext(ctx, selectBlocks, s.Corpus)
	if err != nil {
		return nil, fmt.Errorf("querying blocks for corpus %q: %w", s.Corpus, err)
	}
	defer rows.Close()

	c := &Corpus{}
	for rows.Next() {
		var (
			b       Block
			section sql.NullInt64
		)
		if err := rows.Scan(&b.ID, &section, &b.Text); err != nil {
			return nil, fmt.Errorf("scanning block row: %w", err)
		}
		if section.Valid {
			b.SectionID = SectionOf(int(section.Int64))
		}
		c.Blocks = append(c.Blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating block rows: %w", err)
	}
	if err := c.Normalize(); err != nil {
		return nil, err
	}
	return c, nil
}
