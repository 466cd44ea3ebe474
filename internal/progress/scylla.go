package progress

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/rs/zerolog"
)

type ScyllaConfig struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Consistency string
	Replication int
	Attempts    int
}

// ScyllaStore persists progress in a table partitioned by user.
type ScyllaStore struct {
	session  *gocql.Session
	keyspace string
}

func NewScyllaStore(session *gocql.Session, keyspace string) *ScyllaStore {
	return &ScyllaStore{session: session, keyspace: keyspace}
}

// Connect opens a session, creating the keyspace and table on the way.
// Each step is retried while the cluster comes up.
func Connect(ctx context.Context, cfg ScyllaConfig, logger zerolog.Logger) (*gocql.Session, error) {
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = 10
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		session, err := connectOnce(cfg)
		if err == nil {
			if err = EnsureSchema(session, cfg.Keyspace); err == nil {
				return session, nil
			}
			session.Close()
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", i+1).Int("of", attempts).Msg("scylla not ready")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return nil, fmt.Errorf("scylla not ready after %d attempts: %w", attempts, lastErr)
}

func connectOnce(cfg ScyllaConfig) (*gocql.Session, error) {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Port = cfg.Port
	cluster.Timeout = 5 * time.Second
	cluster.Consistency = ParseConsistency(cfg.Consistency)

	// first connect without keyspace to ensure it exists
	tmp, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	err = EnsureKeyspace(tmp, cfg.Keyspace, cfg.Replication)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("ensure keyspace %s: %w", cfg.Keyspace, err)
	}

	cluster.Keyspace = cfg.Keyspace
	return cluster.CreateSession()
}

func EnsureKeyspace(session *gocql.Session, keyspace string, replicationFactor int) error {
	if replicationFactor <= 0 {
		replicationFactor = 1
	}
	stmt := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}", keyspace, replicationFactor)
	return session.Query(stmt).Exec()
}

func EnsureSchema(session *gocql.Session, keyspace string) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.watch_progress (
		user_id text,
		series_id text,
		video_file text,
		position double,
		duration double,
		completed boolean,
		updated_at timestamp,
		PRIMARY KEY (user_id, series_id, video_file)
	)`, keyspace)
	return session.Query(stmt).Exec()
}

func (s *ScyllaStore) Save(ctx context.Context, userID string, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.session.Query(fmt.Sprintf(`INSERT INTO %s.watch_progress (user_id,series_id,video_file,position,duration,completed,updated_at)
		VALUES (?,?,?,?,?,?,?)`, s.keyspace),
		userID, u.SeriesID, u.VideoFile, u.CurrentTime, u.Duration, u.Completed, time.Now().UTC()).
		WithContext(ctx).
		Exec()
}

func (s *ScyllaStore) ForUser(ctx context.Context, userID string) (UserProgress, error) {
	out := make(UserProgress)
	iter := s.session.Query(fmt.Sprintf(`SELECT series_id,video_file,position,duration,completed,updated_at FROM %s.watch_progress WHERE user_id=?`, s.keyspace), userID).
		WithContext(ctx).Iter()
	var (
		seriesID, file string
		e              Entry
	)
	for iter.Scan(&seriesID, &file, &e.CurrentTime, &e.Duration, &e.Completed, &e.LastWatched) {
		if out[seriesID] == nil {
			out[seriesID] = make(map[string]Entry)
		}
		out[seriesID][file] = e
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseConsistency(c string) gocql.Consistency {
	switch strings.ToUpper(strings.TrimSpace(c)) {
	case "ONE":
		return gocql.One
	case "LOCAL_ONE":
		return gocql.LocalOne
	case "LOCAL_QUORUM":
		return gocql.LocalQuorum
	case "ALL":
		return gocql.All
	default:
		return gocql.Quorum
	}
}
