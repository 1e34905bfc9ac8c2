package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"live-quiz-service/internal/domain"
)

// Upload is a file handed in by a participant.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ProfileUpdate changes the display fields of the caller's profile.
type ProfileUpdate struct {
	FullName string  `json:"fullName" validate:"omitempty,max=120"`
	Avatar   *Upload `json:"-"`
}

// Profiles manages participant display data and uploaded files.
type Profiles struct {
	profiles ProfileStore
	blobs    BlobStore
	clock    Clock
}

func NewProfiles(profiles ProfileStore, blobs BlobStore, clock Clock) *Profiles {
	return &Profiles{profiles: profiles, blobs: blobs, clock: clock}
}

// EnsureProfile returns the caller's profile, creating it from the token
// claims the first time the caller is seen.
func (p *Profiles) EnsureProfile(ctx context.Context, principal domain.Principal) (domain.Profile, error) {
	profile, err := p.profiles.GetProfile(ctx, principal.UserID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, domain.ErrProfileNotFound) {
		return domain.Profile{}, err
	}
	profile = domain.Profile{
		UserID:   principal.UserID,
		FullName: principal.Name,
		Role:     principal.Role,
	}
	if err := p.profiles.UpsertProfile(ctx, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// UpdateProfile renames the caller and optionally replaces the avatar.
func (p *Profiles) UpdateProfile(ctx context.Context, principal domain.Principal, in ProfileUpdate) (domain.Profile, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validateStruct(in); err != nil {
		return domain.Profile{}, err
	}
	profile, err := p.EnsureProfile(ctx, principal)
	if err != nil {
		return domain.Profile{}, err
	}
	if in.FullName != "" {
		profile.FullName = in.FullName
	}
	if in.Avatar != nil {
		key := p.objectKey(path.Join("profile_pictures", principal.UserID), in.Avatar.Filename)
		url, err := p.put(ctx, key, *in.Avatar)
		if err != nil {
			return domain.Profile{}, err
		}
		profile.AvatarURL = url
	}
	if err := p.profiles.UpsertProfile(ctx, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

// UploadAttachment stores an image attached to an answer and returns its URL.
func (p *Profiles) UploadAttachment(ctx context.Context, principal domain.Principal, quizID string, file Upload) (string, error) {
	if quizID == "" {
		return "", domain.Invalid("quizId", "required")
	}
	key := p.objectKey(path.Join("answers", quizID, principal.UserID), file.Filename)
	return p.put(ctx, key, file)
}

func (p *Profiles) put(ctx context.Context, key string, file Upload) (string, error) {
	if file.Body == nil {
		return "", domain.Invalid("file", "required")
	}
	if p.blobs == nil {
		return "", fmt.Errorf("store %s: no blob store configured", key)
	}
	url, err := p.blobs.Put(ctx, key, file.Body, file.ContentType)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return url, nil
}

func (p *Profiles) objectKey(dir, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "upload"
	}
	return path.Join(dir, fmt.Sprintf("%d-%s", p.clock.Now().UnixMilli(), name))
}
