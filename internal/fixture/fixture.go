// Package fixture builds the "previously tested servers" seed data that the
// report view reads from local storage, and the storage-state document used
// to inject it into a fresh browser context.
package fixture

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
)

// Record is one previously tested server as the web app persists it.
type Record struct {
	URL       string  `json:"url" yaml:"url"`
	Score     float64 `json:"score" yaml:"score"`
	Timestamp int64   `json:"timestamp" yaml:"timestamp"`
}

// Collection is an ordered list of records. Order matches the on-screen list.
type Collection []Record

// Default returns the three servers the report view scenario is built around.
func Default() Collection {
	return Collection{
		{URL: "server1.com", Score: 95, Timestamp: 1678886400000},
		{URL: "server2.com", Score: 80, Timestamp: 1678886300000},
		{URL: "server3.com", Score: 75, Timestamp: 1678886200000},
	}
}

// Value serializes the collection to the string stored under the storage key.
// A nil collection serializes to "[]" so the app parses an empty list.
func (c Collection) Value() (string, error) {
	if c == nil {
		c = Collection{}
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes a stored value back into a collection.
func Parse(value string) (Collection, error) {
	var c Collection
	if err := json.Unmarshal([]byte(value), &c); err != nil {
		return nil, fmt.Errorf("parse fixture value: %w", err)
	}
	return c, nil
}

// URLs lists the record addresses in order.
func (c Collection) URLs() []string {
	out := make([]string, 0, len(c))
	for _, r := range c {
		out = append(out, r.URL)
	}
	return out
}

// StorageState is the subset of a browser storage-state document that seeds
// local storage per origin.
type StorageState struct {
	Origins []Origin `json:"origins"`
}

// Origin holds the local storage entries for one origin.
type Origin struct {
	Origin       string  `json:"origin"`
	LocalStorage []Entry `json:"localStorage"`
}

// Entry is a single local storage key/value pair.
type Entry struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Seed builds a storage state holding c under key for origin.
func Seed(origin, key string, c Collection) (StorageState, error) {
	if origin == "" {
		return StorageState{}, errors.New("fixture: origin is required")
	}
	if key == "" {
		return StorageState{}, errors.New("fixture: storage key is required")
	}
	value, err := c.Value()
	if err != nil {
		return StorageState{}, err
	}
	return StorageState{
		Origins: []Origin{{
			Origin:       origin,
			LocalStorage: []Entry{{Name: key, Value: value}},
		}},
	}, nil
}

// Lookup returns the value stored under key for origin.
func (s StorageState) Lookup(origin, key string) (string, bool) {
	for _, o := range s.Origins {
		if o.Origin != origin {
			continue
		}
		for _, e := range o.LocalStorage {
			if e.Name == key {
				return e.Value, true
			}
		}
	}
	return "", false
}

// OriginOf returns scheme://host[:port] for rawURL.
func OriginOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q has no scheme or host", rawURL)
	}
	return u.Scheme + "://" + u.Host, nil
}
