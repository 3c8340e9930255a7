package service

import (
	"context"
	"encoding/json"
	"html/template"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

type NewMerchItem struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=5000"`
	Price       int64    `json:"price" validate:"gte=0"`
	Stock       int64    `json:"stock" validate:"gte=0"`
	ImageURLs   []string `json:"image_urls" validate:"max=10,dive,url"`
}

type MerchService struct {
	store repository.Store
	admin AdminVerifier
}

func NewMerchService(store repository.Store, admin AdminVerifier) *MerchService {
	return &MerchService{store: store, admin: admin}
}

func (s *MerchService) List(ctx context.Context) ([]model.MerchItem, error) {
	var rows []model.MerchItem
	if err := s.store.Select(ctx, "merch_items", repository.Query{Order: []repository.Order{{Field: "created_at"}}}, &rows); err != nil {
		return nil, storeErr(err, "merch")
	}
	return rows, nil
}

func (s *MerchService) Create(ctx context.Context, sess *Session, in NewMerchItem) (*model.MerchItem, error) {
	if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid merch item")
	}
	if in.ImageURLs == nil {
		in.ImageURLs = []string{}
	}
	images, err := json.Marshal(in.ImageURLs)
	if err != nil {
		return nil, err
	}
	item := &model.MerchItem{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		ImageURLs:   datatypes.JSON(images),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, "merch_items", item); err != nil {
		return nil, storeErr(err, "merch item")
	}
	return item, nil
}

func (s *MerchService) Delete(ctx context.Context, sess *Session, id string) error {
	if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
		return err
	}
	return storeErr(s.store.Delete(ctx, "merch_items", id), "merch item")
}

type NewMusicEmbed struct {
	Service     string `json:"service" validate:"required,oneof=spotify soundcloud apple_music custom_iframe"`
	EmbedURL    string `json:"embed_url" validate:"required,max=1024"`
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

// MusicView 音乐嵌入 + 渲染后的 iframe
type MusicView struct {
	model.MusicEmbed
	HTML template.HTML `json:"html"`
}

type MusicService struct {
	store repository.Store
	admin AdminVerifier
}

func NewMusicService(store repository.Store, admin AdminVerifier) *MusicService {
	return &MusicService{store: store, admin: admin}
}

func (s *MusicService) List(ctx context.Context) ([]MusicView, error) {
	var rows []model.MusicEmbed
	if err := s.store.Select(ctx, "music_embeds", repository.Query{Order: []repository.Order{{Field: "created_at"}}}, &rows); err != nil {
		return nil, storeErr(err, "music")
	}
	out := make([]MusicView, 0, len(rows))
	for _, e := range rows {
		html, err := RenderEmbed(&e)
		if err != nil {
			// 历史数据可能不再满足域名规则，跳过渲染
			html = ""
		}
		out = append(out, MusicView{MusicEmbed: e, HTML: html})
	}
	return out, nil
}

func (s *MusicService) Create(ctx context.Context, sess *Session, in NewMusicEmbed) (*MusicView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid music embed")
	}
	u, err := CheckEmbedURL(in.Service, in.EmbedURL)
	if err != nil {
		return nil, err
	}
	e := &model.MusicEmbed{
		ID:          uuid.NewString(),
		UserID:      sess.UserID(),
		Service:     in.Service,
		EmbedURL:    u.String(),
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}
	html, err := RenderEmbed(e)
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, "music_embeds", e); err != nil {
		return nil, storeErr(err, "music embed")
	}
	return &MusicView{MusicEmbed: *e, HTML: html}, nil
}

// Delete 作者本人或管理员可删除
func (s *MusicService) Delete(ctx context.Context, sess *Session, id string) error {
	var e model.MusicEmbed
	if err := s.store.Get(ctx, "music_embeds", id, &e); err != nil {
		return storeErr(err, "music embed")
	}
	if e.UserID != sess.UserID() {
		if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
			return apperr.ErrPermissionDenied
		}
	}
	return storeErr(s.store.Delete(ctx, "music_embeds", id), "music embed")
}
