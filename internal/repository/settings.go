package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloo-solutions/groundwork/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Setting keys accepted in rag_settings.
const (
	SettingChunkSize           = "chunk_size"
	SettingChunkOverlap        = "chunk_overlap"
	SettingTopK                = "top_k"
	SettingMinScore            = "min_score"
	SettingAllowedSourceHosts  = "allowed_source_hosts"
	SettingStrictMode          = "strict_mode"
	SettingSuperStrictMode     = "super_strict_mode"
	SettingRestrictToKnowledge = "restrict_to_knowledge"
	SettingNoDataMessage       = "no_data_message"
	SettingPreambleNormal      = "preamble_normal"
	SettingPreambleStrict      = "preamble_strict"
	SettingPreambleSuperStrict = "preamble_super_strict"
)

// SettingKeys lists every recognised key.
var SettingKeys = []string{
	SettingChunkSize, SettingChunkOverlap, SettingTopK, SettingMinScore, SettingAllowedSourceHosts,
	SettingStrictMode, SettingSuperStrictMode, SettingRestrictToKnowledge, SettingNoDataMessage,
	SettingPreambleNormal, SettingPreambleStrict, SettingPreambleSuperStrict,
}

// SettingsRepository overlays rag_settings rows on environment defaults.
type SettingsRepository struct {
	pool     *pgxpool.Pool
	defaults domain.RAGSettings
}

func NewSettingsRepository(pool *pgxpool.Pool, defaults domain.RAGSettings) *SettingsRepository {
	return &SettingsRepository{pool: pool, defaults: defaults}
}

// Load reads the stored overrides. It is called once per indexing or answer run.
func (r *SettingsRepository) Load(ctx context.Context) (domain.RAGSettings, error) {
	values, err := r.List(ctx)
	if err != nil {
		return domain.RAGSettings{}, err
	}
	return ApplyOverrides(r.defaults, values)
}

func (r *SettingsRepository) List(ctx context.Context) (map[string]string, error) {
	return listSettings(ctx, r.pool)
}

func listSettings(ctx context.Context, q dbtx) (map[string]string, error) {
	rows, err := q.Query(ctx, `SELECT key, value FROM rag_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		values[k] = v
	}
	return values, rows.Err()
}

// Set stores one override. The stored overrides with the new value applied
// must still form valid settings.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	return r.change(ctx, key, func(values map[string]string) { values[key] = value },
		`INSERT INTO rag_settings (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
}

// Unset removes an override so the default applies again. It is refused when
// the remaining overrides would be invalid against the defaults.
func (r *SettingsRepository) Unset(ctx context.Context, key string) error {
	return r.change(ctx, key, func(values map[string]string) { delete(values, key) },
		`DELETE FROM rag_settings WHERE key = $1`, key,
	)
}

// change validates the edited override set and applies sql in one
// transaction. The table lock keeps concurrent edits from validating against
// stale rows.
func (r *SettingsRepository) change(ctx context.Context, key string, edit func(map[string]string), sql string, args ...any) error {
	if !isSettingKey(key) {
		return domain.Wrap(domain.ErrUnknownSetting, fmt.Errorf("key %q", key))
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE rag_settings IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		values, err := listSettings(ctx, tx)
		if err != nil {
			return err
		}
		edit(values)
		if _, err := ApplyOverrides(r.defaults, values); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sql, args...)
		return err
	})
}

func isSettingKey(key string) bool {
	for _, k := range SettingKeys {
		if k == key {
			return true
		}
	}
	return false
}

// ApplyOverrides returns defaults with values applied and validates the result.
// Unknown keys are rejected.
func ApplyOverrides(defaults domain.RAGSettings, values map[string]string) (domain.RAGSettings, error) {
	s := defaults
	s.AllowedSourceHosts = append([]string(nil), defaults.AllowedSourceHosts...)

	for key, raw := range values {
		value := strings.TrimSpace(raw)
		var err error
		switch key {
		case SettingChunkSize:
			s.ChunkSize, err = strconv.Atoi(value)
		case SettingChunkOverlap:
			s.ChunkOverlap, err = strconv.Atoi(value)
		case SettingTopK:
			s.TopK, err = strconv.Atoi(value)
		case SettingMinScore:
			s.MinScore, err = strconv.ParseFloat(value, 64)
		case SettingAllowedSourceHosts:
			s.AllowedSourceHosts = splitHosts(value)
		case SettingStrictMode:
			s.StrictMode, err = strconv.ParseBool(value)
		case SettingSuperStrictMode:
			s.SuperStrictMode, err = strconv.ParseBool(value)
		case SettingRestrictToKnowledge:
			s.RestrictToKnowledge, err = strconv.ParseBool(value)
		case SettingNoDataMessage:
			s.NoDataMessage = raw
		case SettingPreambleNormal:
			s.Preambles.Normal = raw
		case SettingPreambleStrict:
			s.Preambles.Strict = raw
		case SettingPreambleSuperStrict:
			s.Preambles.SuperStrict = raw
		default:
			return domain.RAGSettings{}, domain.Wrap(domain.ErrUnknownSetting, fmt.Errorf("key %q", key))
		}
		if err != nil {
			return domain.RAGSettings{}, domain.NewDomainErrorWithCause(domain.ErrCodeValidation,
				fmt.Sprintf("invalid value for setting %s", key), err)
		}
	}

	if err := s.Validate(); err != nil {
		return domain.RAGSettings{}, err
	}
	return s, nil
}

// SettingValue renders the value s holds for key in the form Set accepts.
func SettingValue(s domain.RAGSettings, key string) (string, bool) {
	switch key {
	case SettingChunkSize:
		return strconv.Itoa(s.ChunkSize), true
	case SettingChunkOverlap:
		return strconv.Itoa(s.ChunkOverlap), true
	case SettingTopK:
		return strconv.Itoa(s.TopK), true
	case SettingMinScore:
		return strconv.FormatFloat(s.MinScore, 'g', -1, 64), true
	case SettingAllowedSourceHosts:
		return strings.Join(s.AllowedSourceHosts, ","), true
	case SettingStrictMode:
		return strconv.FormatBool(s.StrictMode), true
	case SettingSuperStrictMode:
		return strconv.FormatBool(s.SuperStrictMode), true
	case SettingRestrictToKnowledge:
		return strconv.FormatBool(s.RestrictToKnowledge), true
	case SettingNoDataMessage:
		return s.NoDataMessage, true
	case SettingPreambleNormal:
		return s.Preambles.Normal, true
	case SettingPreambleStrict:
		return s.Preambles.Strict, true
	case SettingPreambleSuperStrict:
		return s.Preambles.SuperStrict, true
	}
	return "", false
}

func splitHosts(value string) []string {
	var hosts []string
	for _, h := range strings.Split(value, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, strings.ToLower(h))
		}
	}
	return hosts
}
