// Package capability stores the per-cluster capability profiles executors
// advertise: access mode, allowed verbs, restricted resources, and the feature
// set derived from the mode. Profiles are advisory; the gateway never enforces
// them. A missing profile means "unknown, proceed with conservative defaults."
package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/giantswarm/kube-debug-gateway/internal/keystore"
	"github.com/giantswarm/kube-debug-gateway/internal/logging"
)

// Access modes an executor may advertise, in increasing order of privilege.
const (
	ModeReadOnly         = "readOnly"
	ModeExtendedReadOnly = "extendedReadOnly"
	ModeFullAccess       = "fullAccess"
)

// DefaultTTL is how long a profile survives without a refreshing heartbeat.
const DefaultTTL = time.Hour

// Features describes which interactive operations the executor will honor,
// derived from its mode rather than trusted from the wire.
type Features struct {
	Exec        bool `json:"exec"`
	PortForward bool `json:"port_forward"`
	Proxy       bool `json:"proxy"`
	Cp          bool `json:"cp"`
}

// Profile is one cluster's advertised capability set.
type Profile struct {
	ClusterID           string    `json:"cluster_id"`
	Mode                string    `json:"mode"`
	AllowedVerbs        []string  `json:"allowed_verbs,omitempty"`
	RestrictedResources []string  `json:"restricted_resources,omitempty"`
	AllowedFlags        []string  `json:"allowed_flags,omitempty"`
	ExecutorVersion     string    `json:"executor_version,omitempty"`
	ReportedAt          time.Time `json:"reported_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Features            Features  `json:"features"`
}

// FeaturesForMode derives the feature set from an access mode. exec and
// port-forward need at least extendedReadOnly; proxy and cp need fullAccess.
func FeaturesForMode(mode string) Features {
	extended := mode == ModeExtendedReadOnly || mode == ModeFullAccess
	full := mode == ModeFullAccess
	return Features{
		Exec:        extended,
		PortForward: extended,
		Proxy:       full,
		Cp:          full,
	}
}

// Registry owns the cluster_capabilities namespace.
type Registry struct {
	store  keystore.Store
	logger *slog.Logger
	ttl    time.Duration
}

// NewRegistry builds a capability registry. ttl of zero selects DefaultTTL.
func NewRegistry(store keystore.Store, logger *slog.Logger, ttl time.Duration) *Registry {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Registry{store: store, logger: logger, ttl: ttl}
}

// Store records a freshly reported profile, recomputing the timestamps and
// the mode-derived feature set.
func (r *Registry) Store(ctx context.Context, p Profile) (*Profile, error) {
	switch p.Mode {
	case ModeReadOnly, ModeExtendedReadOnly, ModeFullAccess:
	case "":
		p.Mode = ModeReadOnly
	default:
		return nil, fmt.Errorf("unknown capability mode %q", p.Mode)
	}

	now := time.Now().UTC()
	p.ReportedAt = now
	p.ExpiresAt = now.Add(r.ttl)
	p.Features = FeaturesForMode(p.Mode)

	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding capability profile: %w", err)
	}
	if err := r.store.SetEx(ctx, keystore.ClusterCapabilitiesKey(p.ClusterID), string(payload), r.ttl); err != nil {
		return nil, err
	}

	r.logger.Debug("capability profile stored",
		logging.Cluster(p.ClusterID),
		slog.String("mode", p.Mode))
	return &p, nil
}

// Refresh extends the profile TTL without rewriting it, for heartbeats that
// carry no new profile. Missing profiles are ignored.
func (r *Registry) Refresh(ctx context.Context, clusterID string) error {
	_, err := r.store.Expire(ctx, keystore.ClusterCapabilitiesKey(clusterID), r.ttl)
	return err
}

// Get returns the cluster's profile, or nil when none is known.
func (r *Registry) Get(ctx context.Context, clusterID string) (*Profile, error) {
	raw, ok, err := r.store.Get(ctx, keystore.ClusterCapabilitiesKey(clusterID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("decoding capability profile for %s: %w", clusterID, err)
	}
	return &p, nil
}

// Delete removes the cluster's profile.
func (r *Registry) Delete(ctx context.Context, clusterID string) error {
	return r.store.Del(ctx, keystore.ClusterCapabilitiesKey(clusterID))
}

// List returns every known profile, sorted by cluster ID.
func (r *Registry) List(ctx context.Context) ([]*Profile, error) {
	keys, err := r.store.Keys(ctx, keystore.ClusterCapabilitiesPattern)
	if err != nil {
		return nil, err
	}
	profiles := make([]*Profile, 0, len(keys))
	for _, key := range keys {
		clusterID, ok := keystore.StripPrefix(key, keystore.ClusterCapabilitiesPattern)
		if !ok {
			continue
		}
		p, err := r.Get(ctx, clusterID)
		if err != nil {
			return nil, err
		}
		if p != nil {
			profiles = append(profiles, p)
		}
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].ClusterID < profiles[j].ClusterID })
	return profiles, nil
}
