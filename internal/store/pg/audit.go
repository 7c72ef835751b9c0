package pg

import (
	"context"
	"encoding/json"

	"authcore.dev/internal/audit"
)

var _ audit.Store = (*Store)(nil)

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`insert into audit_events(id, event_type, user_id, client_id, created_at, metadata)
		 values($1,$2,$3,$4,$5,$6)`,
		event.ID, event.EventType, nullable(event.UserID), nullable(event.ClientID), event.CreatedAt, meta,
	)
	return err
}

func (s *Store) Summary(ctx context.Context, recent int) (audit.Summary, error) {
	summary := audit.Summary{Counts: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx,
		`select event_type, count(*) from audit_events group by event_type`)
	if err != nil {
		return audit.Summary{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			eventType string
			count     int64
		)
		if err := rows.Scan(&eventType, &count); err != nil {
			return audit.Summary{}, err
		}
		summary.Counts[eventType] = count
	}
	if err := rows.Err(); err != nil {
		return audit.Summary{}, err
	}

	recentRows, err := s.db.QueryContext(ctx,
		`select id, event_type, user_id, client_id, created_at, metadata
		 from audit_events order by created_at desc limit $1`, recent)
	if err != nil {
		return audit.Summary{}, err
	}
	defer recentRows.Close()
	for recentRows.Next() {
		var (
			event    audit.Event
			userID   *string
			clientID *string
			meta     []byte
		)
		if err := recentRows.Scan(&event.ID, &event.EventType, &userID, &clientID, &event.CreatedAt, &meta); err != nil {
			return audit.Summary{}, err
		}
		if userID != nil {
			event.UserID = *userID
		}
		if clientID != nil {
			event.ClientID = *clientID
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &event.Metadata); err != nil {
				return audit.Summary{}, err
			}
		}
		summary.Recent = append(summary.Recent, event)
	}
	return summary, recentRows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
