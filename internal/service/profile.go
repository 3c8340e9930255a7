package service

import (
	"context"
	"strings"
	"time"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

// ProfileUpdate nil 字段保持不变
type ProfileUpdate struct {
	Username     *string `json:"username" validate:"omitempty,min=3,max=32"`
	AvatarURL    *string `json:"avatar_url" validate:"omitempty,url,max=512"`
	MusicService *string `json:"music_service" validate:"omitempty,oneof=spotify soundcloud apple_music custom_iframe"`
}

type ProfileService struct {
	store repository.Store
}

func NewProfileService(store repository.Store) *ProfileService {
	return &ProfileService{store: store}
}

func (s *ProfileService) Get(ctx context.Context, userID string) (*model.User, error) {
	var u model.User
	if err := s.store.Get(ctx, "profiles", userID, &u); err != nil {
		return nil, storeErr(err, "profile")
	}
	return &u, nil
}

func (s *ProfileService) Update(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	if in.Username != nil {
		trimmed := strings.TrimSpace(*in.Username)
		in.Username = &trimmed
	}
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid profile")
	}
	set := map[string]interface{}{"updated_at": time.Now().UTC()}
	if in.Username != nil {
		set["username"] = *in.Username
	}
	if in.AvatarURL != nil {
		set["avatar_url"] = *in.AvatarURL
	}
	if in.MusicService != nil {
		set["music_service"] = *in.MusicService
	}
	if err := s.store.Update(ctx, "profiles", userID, repository.Patch{Set: set}); err != nil {
		return nil, storeErr(err, "profile")
	}
	return s.Get(ctx, userID)
}
