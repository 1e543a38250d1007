package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pagedigest/internal/domain"
)

func (d *Database) GetChatSettingsWithDefault(
	ctx context.Context,
	chatID int64,
) (*domain.ChatSettings, error) {
	query := `select chat_id, chain_type
	from chat_settings
	where chat_id = ?`

	rows, err := d.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"chatID", chatID,
				"operation", "GetChatSettingsWithDefault")
		}
	}()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to iterate rows: %w", err)
		}
		return &domain.ChatSettings{
			ChatID:    chatID,
			ChainType: domain.DefaultChainType,
		}, nil
	}

	var (
		cs  domain.ChatSettings
		raw string
	)
	if err = rows.Scan(&cs.ChatID, &raw); err != nil {
		return nil, fmt.Errorf("failed to scan row: %w", err)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	cs.ChainType, err = domain.ParseChainType(raw)
	if err != nil {
		d.log.WarnContext(ctx, "Stored chain type is unsupported, using default",
			"error", err,
			"chatID", chatID)

		cs.ChainType = domain.DefaultChainType
	}

	return &cs, nil
}

func (d *Database) UpsertChatSettings(ctx context.Context, chatSettings *domain.ChatSettings) error {
	if _, err := domain.ParseChainType(chatSettings.ChainType.String()); err != nil {
		return err
	}

	query := `insert into chat_settings (chat_id, chain_type)
	values (?, ?)
	on conflict (chat_id) do update
	set chain_type = excluded.chain_type`

	_, err := d.db.ExecContext(ctx, query, chatSettings.ChatID, chatSettings.ChainType.String())

	return err
}

// RecordUsage stores anonymous counters only. Events never carry URLs,
// credentials or page text.
func (d *Database) RecordUsage(ctx context.Context, event domain.UsageEvent) error {
	if event.Outcome == "" {
		return errors.New("usage outcome is empty")
	}

	query := `insert into usage_events
	(created_at, source, chain_type, outcome, chunk_count, llm_calls, duration_ms)
	values (?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.ExecContext(ctx, query,
		d.now().UTC().UnixMilli(),
		string(event.Source),
		event.ChainType.String(),
		string(event.Outcome),
		event.ChunkCount,
		event.LLMCalls,
		event.Duration.Milliseconds(),
	)

	return err
}

// UsageStats aggregates events created at or after since. Every supported
// chain type gets a row, in ChainTypes order, even without events.
func (d *Database) UsageStats(ctx context.Context, since time.Time) ([]domain.ChainStats, error) {
	query := `select chain_type,
	count(*),
	sum(case when outcome = 'ok' then 1 else 0 end),
	sum(case when outcome = 'failed' then 1 else 0 end),
	sum(case when outcome = 'invalid_url' then 1 else 0 end),
	coalesce(avg(case when outcome = 'ok' then duration_ms end), 0),
	coalesce(avg(case when outcome = 'ok' then llm_calls end), 0)
	from usage_events
	where created_at >= ?
	group by chain_type`

	sinceMs := since.UTC().UnixMilli()

	rows, err := d.db.QueryContext(ctx, query, sinceMs)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() {
		if err = rows.Close(); err != nil {
			d.log.ErrorContext(ctx, "Failed to close rows",
				"error", err,
				"sinceMs", sinceMs,
				"operation", "UsageStats")
		}
	}()

	byType := make(map[domain.ChainType]domain.ChainStats)
	for rows.Next() {
		var (
			s   domain.ChainStats
			raw string
		)
		if err = rows.Scan(
			&raw,
			&s.Submissions,
			&s.Succeeded,
			&s.Failed,
			&s.InvalidURL,
			&s.AvgDurationMs,
			&s.AvgLLMCalls,
		); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		s.ChainType = domain.ChainType(raw)
		byType[s.ChainType] = s
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	stats := make([]domain.ChainStats, 0, len(domain.ChainTypes()))
	for _, t := range domain.ChainTypes() {
		s, ok := byType[t]
		if !ok {
			s = domain.ChainStats{ChainType: t}
		}
		stats = append(stats, s)
	}

	return stats, nil
}

func (d *Database) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	query := "delete from usage_events where created_at < ?"

	res, err := d.db.ExecContext(ctx, query, before.UTC().UnixMilli())
	if err != nil {
		return 0, err
	}

	pruned, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get affected rows: %w", err)
	}

	return pruned, nil
}
