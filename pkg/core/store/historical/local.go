package historical

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

type localTimeSeriesStore struct {
	db *bolt.DB
}

// OpenLocalStore opens (or creates) the bolt file at path.
func OpenLocalStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return NewTimeSeriesLocalStore(db), nil
}

// NewTimeSeriesLocalStore keeps points in db. Every point is indexed once per
// tag so a range scan over one resource is a single cursor walk.
func NewTimeSeriesLocalStore(db *bolt.DB) Store {
	return &localTimeSeriesStore{
		db: db,
	}
}

func getBucketName(measurement string) []byte {
	return []byte("history_" + measurement)
}

func getIndexName(column, id string) []byte {
	return []byte(column + "=" + id)
}

// timeKey orders instants, including those before the epoch, bytewise.
func timeKey(t time.Time) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(t.UnixNano())^(1<<63))
	return k
}

func pointKey(t time.Time, seq uint64) []byte {
	k := make([]byte, 16)
	copy(k, timeKey(t))
	binary.BigEndian.PutUint64(k[8:], seq)
	return k
}

func storeError(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) || errors.Is(err, bolt.ErrTimeout) {
		return ErrStoreUnavailable
	}
	return ErrStoreQuery
}

func (s *localTimeSeriesStore) InsertPoint(ctx context.Context, measurement string, p Point) error {
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(true)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	root, err := tx.CreateBucketIfNotExists(getBucketName(measurement))
	if err != nil {
		return err
	}
	seq, err := root.NextSequence()
	if err != nil {
		return err
	}
	key := pointKey(p.Time, seq)
	for tag, id := range p.Tags {
		idx, err := root.CreateBucketIfNotExists(getIndexName(tag, id))
		if err != nil {
			return err
		}
		if err := idx.Put(key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// scan walks the points of one resource in [start, end). A zero start scans
// from the first point.
func (s *localTimeSeriesStore) scan(measurement, column, id string, start, end time.Time) ([]Point, error) {
	points := make([]Point, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(getBucketName(measurement))
		if root == nil {
			return nil
		}
		idx := root.Bucket(getIndexName(column, id))
		if idx == nil {
			return nil
		}

		max := timeKey(end)
		c := idx.Cursor()
		k, v := c.First()
		if !start.IsZero() {
			k, v = c.Seek(timeKey(start))
		}
		for ; k != nil && bytes.Compare(k[:8], max) < 0; k, v = c.Next() {
			var p Point
			if err := json.Unmarshal(v, &p); err != nil {
				return fmt.Errorf("decode point %x: %w", k, err)
			}
			points = append(points, p)
		}
		return nil
	})
	return points, err
}

func (s *localTimeSeriesStore) QueryBucketed(ctx context.Context, q BucketQuery) ([]Bucket, error) {
	points, err := s.scan(q.Measurement, q.ResourceColumn, q.ResourceID, q.Start, q.End)
	if err != nil {
		return nil, BucketError(storeError(err), q, err)
	}
	buckets, err := groupBuckets(points, q)
	if err != nil {
		return nil, BucketError(ErrStoreQuery, q, err)
	}
	return buckets, nil
}

func (s *localTimeSeriesStore) QuerySingleAggregate(ctx context.Context, q AggregateQuery) (*float64, error) {
	points, err := s.scan(q.Measurement, q.ResourceColumn, q.ResourceID, time.Time{}, q.Before)
	if err != nil {
		return nil, AggregateError(storeError(err), q, err)
	}
	v, err := aggregatePoints(points, q.Function, q.Variable)
	if err != nil {
		return nil, AggregateError(ErrStoreQuery, q, err)
	}
	return v, nil
}

type keyedPoint struct {
	key   []byte
	point Point
}

func collect(idx *bolt.Bucket) ([]keyedPoint, error) {
	var points []keyedPoint
	err := idx.ForEach(func(k, v []byte) error {
		var p Point
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		key := make([]byte, len(k))
		copy(key, k)
		points = append(points, keyedPoint{key: key, point: p})
		return nil
	})
	return points, err
}

func (s *localTimeSeriesStore) DeleteResource(ctx context.Context, measurement, column, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(getBucketName(measurement))
		if root == nil {
			return nil
		}
		name := getIndexName(column, id)
		idx := root.Bucket(name)
		if idx == nil {
			return nil
		}
		points, err := collect(idx)
		if err != nil {
			return err
		}
		for _, kp := range points {
			for tag, value := range kp.point.Tags {
				if tag == column {
					continue
				}
				if other := root.Bucket(getIndexName(tag, value)); other != nil {
					if err := other.Delete(kp.key); err != nil {
						return err
					}
				}
			}
		}
		return root.DeleteBucket(name)
	})
}

func (s *localTimeSeriesStore) ReassignResource(ctx context.Context, measurement, column, id, parentColumn, parentID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(getBucketName(measurement))
		if root == nil {
			return nil
		}
		idx := root.Bucket(getIndexName(column, id))
		if idx == nil {
			return nil
		}
		points, err := collect(idx)
		if err != nil {
			return err
		}
		for _, kp := range points {
			old, tagged := kp.point.Tags[parentColumn]
			if tagged && old == parentID {
				continue
			}
			if tagged {
				if stale := root.Bucket(getIndexName(parentColumn, old)); stale != nil {
					if err := stale.Delete(kp.key); err != nil {
						return err
					}
				}
			}
			if kp.point.Tags == nil {
				kp.point.Tags = make(map[string]string)
			}
			kp.point.Tags[parentColumn] = parentID
			value, err := json.Marshal(kp.point)
			if err != nil {
				return err
			}
			for tag, v := range kp.point.Tags {
				b, err := root.CreateBucketIfNotExists(getIndexName(tag, v))
				if err != nil {
					return err
				}
				if err := b.Put(kp.key, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *localTimeSeriesStore) Close() error {
	return s.db.Close()
}
