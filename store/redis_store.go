package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/apexorch/apex/apexerr"
)

// RedisStore implements Store against Redis. It is the preferred
// backend for dispatch idempotency (SetNX is a single round trip) and
// doubles as a lightweight archival backend when Postgres isn't
// available, grounded on FluxForge control_plane/store/redis.go's
// idempotency key convention and JSON-blob archival pattern.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, apexerr.Wrap(apexerr.BrokerUnavailable, "ping redis store", err)
	}
	return &RedisStore{client: client}, nil
}

func contractKey(id string) string        { return "apex:store:contract:" + id }
func contractsByAgentKey(id string) string { return "apex:store:contracts-by-agent:" + id }
func dagRunKey(id string) string           { return "apex:store:dagrun:" + id }
func dispatchResultKey(taskID string) string { return "apex:store:dispatch-result:" + taskID }

func (s *RedisStore) SaveContract(ctx context.Context, rec *ContractRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return apexerr.Wrap(apexerr.Serialization, "marshal contract record", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, contractKey(rec.ID), raw, 0)
	pipe.LPush(ctx, contractsByAgentKey(rec.AgentID), rec.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return apexerr.Wrap(apexerr.Internal, "save contract", err)
	}
	return nil
}

func (s *RedisStore) GetContract(ctx context.Context, id string) (*ContractRecord, error) {
	raw, err := s.client.Get(ctx, contractKey(id)).Bytes()
	if err == redis.Nil {
		return nil, apexerr.New(apexerr.NotFound, "contract not found").WithContext("id", id)
	}
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "get contract", err)
	}
	var rec ContractRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apexerr.Wrap(apexerr.Serialization, "unmarshal contract record", err)
	}
	return &rec, nil
}

func (s *RedisStore) ListContractsByAgent(ctx context.Context, agentID string, limit int) ([]*ContractRecord, error) {
	ids, err := s.client.LRange(ctx, contractsByAgentKey(agentID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "list contract ids", err)
	}
	out := make([]*ContractRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetContract(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) SaveDagRun(ctx context.Context, rec *DagRunRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return apexerr.Wrap(apexerr.Serialization, "marshal dag run record", err)
	}
	if err := s.client.Set(ctx, dagRunKey(rec.DagID), raw, 0).Err(); err != nil {
		return apexerr.Wrap(apexerr.Internal, "save dag run", err)
	}
	return nil
}

func (s *RedisStore) GetDagRun(ctx context.Context, dagID string) (*DagRunRecord, error) {
	raw, err := s.client.Get(ctx, dagRunKey(dagID)).Bytes()
	if err == redis.Nil {
		return nil, apexerr.New(apexerr.NotFound, "dag run not found").WithContext("dag_id", dagID)
	}
	if err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "get dag run", err)
	}
	var rec DagRunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apexerr.Wrap(apexerr.Serialization, "unmarshal dag run record", err)
	}
	return &rec, nil
}

// ListDagRuns scans the dag-run keyspace; acceptable for the operator
// dashboard's low-QPS path, not for hot-path use.
func (s *RedisStore) ListDagRuns(ctx context.Context, status string, limit int) ([]*DagRunRecord, error) {
	iter := s.client.Scan(ctx, 0, "apex:store:dagrun:*", 0).Iterator()
	var out []*DagRunRecord
	for iter.Next(ctx) && len(out) < limit {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var rec DagRunRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if status == "" || rec.Status == status {
			out = append(out, &rec)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, apexerr.Wrap(apexerr.Internal, "scan dag runs", err)
	}
	return out, nil
}

func (s *RedisStore) GetDispatchResult(ctx context.Context, taskID string) (string, bool, error) {
	val, err := s.client.Get(ctx, dispatchResultKey(taskID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, apexerr.Wrap(apexerr.Internal, "get dispatch result", err)
	}
	return val, true, nil
}

func (s *RedisStore) SetDispatchResultNX(ctx context.Context, taskID string, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, dispatchResultKey(taskID), value, ttl).Result()
	if err != nil {
		return false, apexerr.Wrap(apexerr.Internal, "set dispatch result", err)
	}
	return ok, nil
}
