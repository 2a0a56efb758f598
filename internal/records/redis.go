package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const watchRetries = 5

// Redis keeps the record store in a single Redis database under a key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a store; prefix defaults to "officeclock".
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "officeclock"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(name string) string { return r.prefix + ":" + name }

func (r *Redis) ListEmployees(ctx context.Context) ([]Employee, error) {
	raw, err := r.client.HGetAll(ctx, r.key("employees")).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Employee, 0, len(raw))
	for id, v := range raw {
		var e Employee
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			return nil, fmt.Errorf("decode employee %s: %w", id, err)
		}
		out = append(out, e)
	}
	sortEmployees(out)
	return out, nil
}

func (r *Redis) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	v, err := r.client.HGet(ctx, r.key("employees"), id).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var e Employee
	if err := json.Unmarshal([]byte(v), &e); err != nil {
		return nil, fmt.Errorf("decode employee %s: %w", id, err)
	}
	return &e, nil
}

func (r *Redis) SaveEmployee(ctx context.Context, e Employee) error {
	if e.ID == "" {
		return errors.New("employee id required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.key("employees"), e.ID, data).Err()
}

func (r *Redis) DeleteEmployee(ctx context.Context, id string) error {
	return r.client.HDel(ctx, r.key("employees"), id).Err()
}

// AppendAttendance pushes the record and trims the list to the newest MaxAttendanceHistory entries.
func (r *Redis) AppendAttendance(ctx context.Context, rec AttendanceRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := r.key("attendance")
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, data)
		pipe.LTrim(ctx, key, -MaxAttendanceHistory, -1)
		return nil
	})
	return err
}

func (r *Redis) ListAttendance(ctx context.Context) ([]AttendanceRecord, error) {
	raw, err := r.client.LRange(ctx, r.key("attendance"), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]AttendanceRecord, 0, len(raw))
	for _, v := range raw {
		var rec AttendanceRecord
		if err := json.Unmarshal([]byte(v), &rec); err != nil {
			// skip entries written by an incompatible version
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Redis) ListWifiConfigs(ctx context.Context) ([]WifiConfig, error) {
	return decodeWifi(r.client.Get(ctx, r.key("wifi")).Result())
}

func (r *Redis) SaveWifiConfig(ctx context.Context, cfg WifiConfig) error {
	return r.updateWifi(ctx, func(list []WifiConfig) []WifiConfig { return upsertWifi(list, cfg) })
}

func (r *Redis) RemoveWifiConfig(ctx context.Context, name string) error {
	return r.updateWifi(ctx, func(list []WifiConfig) []WifiConfig { return removeWifi(list, name) })
}

// updateWifi applies fn to the stored list under WATCH so concurrent writers do not lose updates.
func (r *Redis) updateWifi(ctx context.Context, fn func([]WifiConfig) []WifiConfig) error {
	key := r.key("wifi")
	txf := func(tx *redis.Tx) error {
		list, err := decodeWifi(tx.Get(ctx, key).Result())
		if err != nil {
			return err
		}
		data, err := json.Marshal(fn(list))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}
	for i := 0; i < watchRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errors.New("wifi config update: too much contention")
}

func (r *Redis) FaceAttendanceEnabled(ctx context.Context) (bool, error) {
	v, err := r.client.Get(ctx, r.key("settings:face_attendance")).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return v == "true", nil
}

func (r *Redis) SetFaceAttendance(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return r.client.Set(ctx, r.key("settings:face_attendance"), v, 0).Err()
}

func decodeWifi(raw string, err error) ([]WifiConfig, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var list []WifiConfig
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("decode wifi configs: %w", err)
	}
	return list, nil
}
