package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketUsers     = []byte("users")
	bucketUsernames = []byte("usernames")
	bucketEmails    = []byte("emails")
	bucketAssets    = []byte("assets")
	bucketNasaIDs   = []byte("nasa_ids")
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrAssetNotFound = fmt.Errorf("asset %w", ErrNotFound)
	ErrDuplicate     = errors.New("store: duplicate")
)

// Store persists users and their favorite assets in a bbolt file.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

type Options struct {
	// Timeout waits for the file lock when another process holds it.
	Timeout time.Duration
	// Now overrides the clock used for timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Open initializes or opens a Store at the given path.
func Open(path string, opts Options) (*Store, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 1 * time.Second
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketUsers, bucketUsernames, bucketEmails, bucketAssets, bucketNasaIDs} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{db: db, now: now}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateUser assigns an ID and timestamps to u and stores it. Usernames and
// emails are unique, compared case-insensitively.
func (s *Store) CreateUser(u *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if taken(tx, bucketUsernames, u.Username) {
			return fmt.Errorf("%w: username %q is already taken", ErrDuplicate, u.Username)
		}
		if taken(tx, bucketEmails, u.Email) {
			return fmt.Errorf("%w: email %q is already taken", ErrDuplicate, u.Email)
		}
		now := s.now().UTC()
		u.ID = uuid.NewString()
		u.CreatedAt = now
		u.UpdatedAt = now
		if u.Favorites == nil {
			u.Favorites = []string{}
		}
		if err := tx.Bucket(bucketUsernames).Put(indexKey(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketEmails).Put(indexKey(u.Email), []byte(u.ID)); err != nil {
			return err
		}
		return putUser(tx, u)
	})
}

// FindUserByID returns the user with id or ErrUserNotFound.
func (s *Store) FindUserByID(id string) (*User, error) {
	var u *User
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		u, err = getUser(tx, id)
		return err
	})
	return u, err
}

// FindUserByUsername returns the user with username or ErrUserNotFound.
func (s *Store) FindUserByUsername(username string) (*User, error) {
	var u *User
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketUsernames).Get(indexKey(username))
		if id == nil {
			return ErrUserNotFound
		}
		var err error
		u, err = getUser(tx, string(id))
		return err
	})
	return u, err
}

// UpdateUser replaces the stored profile of u.ID, keeping the username and
// email indexes consistent.
func (s *Store) UpdateUser(u *User) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		old, err := getUser(tx, u.ID)
		if err != nil {
			return err
		}
		if err := reindex(tx, bucketUsernames, old.Username, u.Username, u.ID); err != nil {
			return fmt.Errorf("username: %w", err)
		}
		if err := reindex(tx, bucketEmails, old.Email, u.Email, u.ID); err != nil {
			return fmt.Errorf("email: %w", err)
		}
		u.CreatedAt = old.CreatedAt
		u.UpdatedAt = s.now().UTC()
		return putUser(tx, u)
	})
}

// AddFavorite stores a (or refreshes the asset already saved under the same
// NASA ID) and appends it to the user's favorites once.
func (s *Store) AddFavorite(userID string, a Asset) (*Asset, error) {
	var saved Asset
	err := s.db.Update(func(tx *bolt.Tx) error {
		u, err := getUser(tx, userID)
		if err != nil {
			return err
		}
		if existing := tx.Bucket(bucketNasaIDs).Get([]byte(a.NasaID)); existing != nil {
			a.ID = string(existing)
		} else {
			a.ID = uuid.NewString()
			if err := tx.Bucket(bucketNasaIDs).Put([]byte(a.NasaID), []byte(a.ID)); err != nil {
				return err
			}
		}
		if err := putJSON(tx.Bucket(bucketAssets), a.ID, a); err != nil {
			return err
		}
		if !slices.Contains(u.Favorites, a.ID) {
			u.Favorites = append(u.Favorites, a.ID)
			u.UpdatedAt = s.now().UTC()
			if err := putUser(tx, u); err != nil {
				return err
			}
		}
		saved = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// RemoveFavorite pulls the asset saved under nasaID from the user's
// favorites and deletes the asset once no user references it. It reports
// whether the asset was deleted.
func (s *Store) RemoveFavorite(userID, nasaID string) (bool, error) {
	var deleted bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		u, err := getUser(tx, userID)
		if err != nil {
			return err
		}
		id := tx.Bucket(bucketNasaIDs).Get([]byte(nasaID))
		if id == nil {
			return ErrAssetNotFound
		}
		assetID := string(id)
		u.Favorites = slices.DeleteFunc(u.Favorites, func(f string) bool { return f == assetID })
		u.UpdatedAt = s.now().UTC()
		if err := putUser(tx, u); err != nil {
			return err
		}
		deleted, err = deleteOrphan(tx, assetID)
		return err
	})
	return deleted, err
}

// DeleteOrphanAsset deletes the asset if no user references it and reports
// whether it did.
func (s *Store) DeleteOrphanAsset(assetID string) (bool, error) {
	var deleted bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketAssets).Get([]byte(assetID)) == nil {
			return ErrAssetNotFound
		}
		var err error
		deleted, err = deleteOrphan(tx, assetID)
		return err
	})
	return deleted, err
}

// FindAssetByNasaID returns the asset saved under nasaID or ErrAssetNotFound.
func (s *Store) FindAssetByNasaID(nasaID string) (*Asset, error) {
	var a *Asset
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketNasaIDs).Get([]byte(nasaID))
		if id == nil {
			return ErrAssetNotFound
		}
		var err error
		a, err = getAsset(tx, string(id))
		return err
	})
	return a, err
}

// Favorites returns the user's favorite assets in the order they were added.
func (s *Store) Favorites(userID string) ([]Asset, error) {
	var out []Asset
	err := s.db.View(func(tx *bolt.Tx) error {
		u, err := getUser(tx, userID)
		if err != nil {
			return err
		}
		out = make([]Asset, 0, len(u.Favorites))
		for _, id := range u.Favorites {
			a, err := getAsset(tx, id)
			if errors.Is(err, ErrAssetNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out = append(out, *a)
		}
		return nil
	})
	return out, err
}

// SearchFavorites returns the user's favorites whose title, description or
// photographer contains query, case-insensitively.
func (s *Store) SearchFavorites(userID, query string) ([]Asset, error) {
	favs, err := s.Favorites(userID)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	return slices.DeleteFunc(favs, func(a Asset) bool {
		return !strings.Contains(strings.ToLower(a.Title), q) &&
			!strings.Contains(strings.ToLower(a.Description), q) &&
			!strings.Contains(strings.ToLower(a.Photographer), q)
	}), nil
}

func deleteOrphan(tx *bolt.Tx, assetID string) (bool, error) {
	referenced := false
	err := tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
		var r userRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if slices.Contains(r.Favorites, assetID) {
			referenced = true
		}
		return nil
	})
	if err != nil || referenced {
		return false, err
	}
	a, err := getAsset(tx, assetID)
	if err != nil {
		return false, err
	}
	if err := tx.Bucket(bucketNasaIDs).Delete([]byte(a.NasaID)); err != nil {
		return false, err
	}
	return true, tx.Bucket(bucketAssets).Delete([]byte(assetID))
}

func getUser(tx *bolt.Tx, id string) (*User, error) {
	v := tx.Bucket(bucketUsers).Get([]byte(id))
	if v == nil {
		return nil, ErrUserNotFound
	}
	var r userRecord
	if err := json.Unmarshal(v, &r); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return r.user(), nil
}

func putUser(tx *bolt.Tx, u *User) error {
	return putJSON(tx.Bucket(bucketUsers), u.ID, toRecord(u))
}

func getAsset(tx *bolt.Tx, id string) (*Asset, error) {
	v := tx.Bucket(bucketAssets).Get([]byte(id))
	if v == nil {
		return nil, ErrAssetNotFound
	}
	var a Asset
	if err := json.Unmarshal(v, &a); err != nil {
		return nil, fmt.Errorf("decode asset %s: %w", id, err)
	}
	return &a, nil
}

func putJSON(b *bolt.Bucket, key string, v any) error {
	buf, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), buf)
}

func taken(tx *bolt.Tx, bucket []byte, value string) bool {
	return tx.Bucket(bucket).Get(indexKey(value)) != nil
}

// reindex moves the unique index entry for id from oldValue to newValue.
func reindex(tx *bolt.Tx, bucket []byte, oldValue, newValue, id string) error {
	if strings.EqualFold(oldValue, newValue) {
		return nil
	}
	b := tx.Bucket(bucket)
	if owner := b.Get(indexKey(newValue)); owner != nil && string(owner) != id {
		return fmt.Errorf("%w: %q is already taken", ErrDuplicate, newValue)
	}
	if err := b.Delete(indexKey(oldValue)); err != nil {
		return err
	}
	return b.Put(indexKey(newValue), []byte(id))
}

func indexKey(v string) []byte { return []byte(strings.ToLower(strings.TrimSpace(v))) }
