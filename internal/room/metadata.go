// Package room manages room metadata: the room's name and description, and
// the member public-key map that the verification layers use to resolve
// sender identities.
//
// Metadata lives in the same append-only blob store as the fragments, so it
// follows the same rule: never overwrite. Each change writes a new version
// blob under rooms/{room_id}/meta/, and readers fold all versions in name
// order — later versions win per field, member keys merge.
package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/driftlog/driftlog/internal/blob"
	"github.com/driftlog/driftlog/internal/identity"
)

// Protocol is the metadata format marker written into every version.
const Protocol = "driftlog-v1"

// ErrNoRoom indicates no metadata version exists for the room.
var ErrNoRoom = errors.New("room has no metadata")

// ErrRoomExists indicates a Create hit a room that already has metadata.
var ErrRoomExists = errors.New("room already exists")

// Metadata is the folded view of a room's metadata versions.
type Metadata struct {
	RoomID      string            `json:"room_id"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedAt   string            `json:"created_at"`
	Protocol    string            `json:"protocol"`
	Members     map[string]string `json:"members"` // sender_id -> base64 public key
}

// KeyRing builds the sender-to-key lookup from the member map.
func (m *Metadata) KeyRing() (identity.StaticKeyRing, error) {
	return identity.RingFromBase64(m.Members)
}

// metaPrefix is the listing prefix for a room's metadata versions.
func metaPrefix(roomID string) string {
	return path.Join("rooms", roomID, "meta") + "/"
}

// versionName builds a new version blob name. The millisecond timestamp
// gives coarse ordering; the ULID keeps concurrent writers collision-free.
func versionName(roomID string, now time.Time) string {
	return metaPrefix(roomID) + fmt.Sprintf("%013d_%s.json", now.UnixMilli(), ulid.Make())
}

// Create writes the first metadata version for a room. The existence
// check is advisory: two racing creates both succeed and their versions
// fold, which is harmless.
func Create(ctx context.Context, store blob.Store, roomID, name, description string) (*Metadata, error) {
	if _, err := Load(ctx, store, roomID); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, roomID)
	} else if !errors.Is(err, ErrNoRoom) {
		return nil, err
	}
	md := &Metadata{
		RoomID:      roomID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Protocol:    Protocol,
		Members:     map[string]string{},
	}
	if err := save(ctx, store, md); err != nil {
		return nil, err
	}
	return md, nil
}

// Load folds all metadata versions for a room. Returns ErrNoRoom when no
// version exists.
func Load(ctx context.Context, store blob.Store, roomID string) (*Metadata, error) {
	names, err := store.List(ctx, metaPrefix(roomID))
	if err != nil {
		return nil, fmt.Errorf("load room %s: %w", roomID, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoRoom, roomID)
	}

	folded := &Metadata{RoomID: roomID, Members: map[string]string{}}
	for _, name := range names {
		data, err := store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", roomID, err)
		}
		var v Metadata
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("load room %s: corrupt metadata %s: %w", roomID, name, err)
		}
		if v.Name != "" {
			folded.Name = v.Name
		}
		if v.Description != "" {
			folded.Description = v.Description
		}
		if folded.CreatedAt == "" {
			folded.CreatedAt = v.CreatedAt
		}
		if v.Protocol != "" {
			folded.Protocol = v.Protocol
		}
		for sender, key := range v.Members {
			folded.Members[sender] = key
		}
	}
	return folded, nil
}

// AddMember records a member's public key as a new metadata version.
func AddMember(ctx context.Context, store blob.Store, roomID, senderID, publicKeyB64 string) error {
	if _, err := identity.ParsePublicKey(publicKeyB64); err != nil {
		return fmt.Errorf("add member %s: %w", senderID, err)
	}
	md := &Metadata{
		RoomID:   roomID,
		Protocol: Protocol,
		Members:  map[string]string{senderID: publicKeyB64},
	}
	return save(ctx, store, md)
}

func save(ctx context.Context, store blob.Store, md *Metadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("save room %s: %w", md.RoomID, err)
	}
	name := versionName(md.RoomID, time.Now())
	if err := store.Put(ctx, name, data); err != nil {
		return fmt.Errorf("save room %s: %w", md.RoomID, err)
	}
	return nil
}
