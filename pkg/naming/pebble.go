package naming

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/connpool/pkg/connector/core"
	"github.com/ajitpratap0/connpool/pkg/logger"
	"github.com/ajitpratap0/connpool/pkg/poolerrors"
)

const keyPrefix = "naming/"

// Pebble is a naming store persisted in a pebble database so published
// descriptors survive process restarts.
type Pebble struct {
	db     *pebble.DB
	path   string
	mu     sync.Mutex // serializes check-then-write in Publish and Unpublish
	logger *zap.Logger
}

// OpenPebble opens or creates the store at path.
func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to open naming store").
			WithDetail("path", path)
	}
	return &Pebble{
		db:     db,
		path:   path,
		logger: logger.Get().With(zap.String("component", "naming_pebble"), zap.String("path", path)),
	}, nil
}

// record is the persisted form of a binding.
type record struct {
	Identity   core.PoolIdentity    `json:"identity"`
	Name       string               `json:"name"`
	Descriptor *core.PoolDescriptor `json:"descriptor"`
}

func storeKey(id core.PoolIdentity, name string) []byte {
	var b bytes.Buffer
	b.WriteString(keyPrefix)
	b.WriteString(id.Application)
	b.WriteByte(0)
	b.WriteString(id.Module)
	b.WriteByte(0)
	b.WriteString(name)
	return b.Bytes()
}

func (p *Pebble) exists(key []byte) (bool, error) {
	_, closer, err := p.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, closer.Close()
}

func (p *Pebble) Publish(_ context.Context, id core.PoolIdentity, name string, desc *core.PoolDescriptor, overwrite bool) error {
	if desc == nil {
		return poolerrors.New(poolerrors.ErrorTypeInvalidRequest, "descriptor is required").WithPool(id)
	}

	data, err := json.Marshal(record{Identity: id, Name: name, Descriptor: desc})
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to encode descriptor").WithPool(id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	key := storeKey(id, name)
	if !overwrite {
		found, err := p.exists(key)
		if err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to read naming store").WithPool(id)
		}
		if found {
			return alreadyBound(id, name)
		}
	}

	if err := p.db.Set(key, data, pebble.Sync); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to publish descriptor").WithPool(id)
	}
	p.logger.Debug("descriptor published", zap.Stringer("pool", id), zap.String("name", name))
	return nil
}

func (p *Pebble) Unpublish(_ context.Context, id core.PoolIdentity, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := storeKey(id, name)
	found, err := p.exists(key)
	if err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to read naming store").WithPool(id)
	}
	if !found {
		return notBound(id, name)
	}
	if err := p.db.Delete(key, pebble.Sync); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to unpublish descriptor").WithPool(id)
	}
	p.logger.Debug("descriptor unpublished", zap.Stringer("pool", id), zap.String("name", name))
	return nil
}

func (p *Pebble) Lookup(_ context.Context, id core.PoolIdentity, name string, _ core.Env) (*core.PoolDescriptor, error) {
	value, closer, err := p.db.Get(storeKey(id, name))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, notBound(id, name)
	}
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to read naming store").WithPool(id)
	}
	defer closer.Close()

	var rec record
	if err := json.Unmarshal(value, &rec); err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to decode descriptor").WithPool(id)
	}
	if rec.Descriptor == nil {
		return nil, notBound(id, name)
	}
	return rec.Descriptor, nil
}

// List returns the identities of all published pool descriptors.
func (p *Pebble) List(context.Context) ([]core.PoolIdentity, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(keyPrefix),
		UpperBound: []byte(keyPrefix[:len(keyPrefix)-1] + "0"), // '0' sorts right after '/'
	})
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to iterate naming store")
	}
	defer iter.Close()

	var ids []core.PoolIdentity
	for iter.First(); iter.Valid(); iter.Next() {
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeNaming, "failed to decode descriptor").
				WithDetail("key", string(iter.Key()))
		}
		if rec.Descriptor != nil {
			ids = append(ids, rec.Descriptor.Identity)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

// Close closes the underlying database.
func (p *Pebble) Close() error {
	return p.db.Close()
}
