package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

// FileStorage stores uploaded bytes and returns their public URL.
type FileStorage interface {
	Upload(ctx context.Context, path string, data []byte) (string, error)
}

type NewHomework struct {
	Title          string `json:"title" form:"title" validate:"required,max=200"`
	Description    string `json:"description" form:"description" validate:"max=10000"`
	PointsRequired int64  `json:"points_required" form:"points_required" validate:"gte=0,lte=100000"`
}

// HomeworkView 对查看者做过脱敏的作业帖
type HomeworkView struct {
	model.HomeworkPost
	AuthorName string `json:"author_name"`
	Locked     bool   `json:"locked"`
	Unlocked   bool   `json:"unlocked"`
}

type HomeworkService struct {
	store   repository.Store
	unlock  *UnlockEngine
	admin   AdminVerifier
	storage FileStorage
}

func NewHomeworkService(store repository.Store, unlock *UnlockEngine, admin AdminVerifier, storage FileStorage) *HomeworkService {
	return &HomeworkService{store: store, unlock: unlock, admin: admin, storage: storage}
}

func (s *HomeworkService) view(post model.HomeworkPost, viewerID string, unlocked bool, names map[string]string) HomeworkView {
	v := HomeworkView{HomeworkPost: post, AuthorName: names[post.UserID], Unlocked: unlocked}
	if !IsVisible(viewerID, &post, unlocked) {
		v.Locked = true
		v.Description = ""
		v.ImageURL = ""
	}
	return v
}

func (s *HomeworkService) List(ctx context.Context, viewerID string, limit, offset int) ([]HomeworkView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var posts []model.HomeworkPost
	err := s.store.Select(ctx, "homework_posts", repository.Query{
		Order:  []repository.Order{{Field: "created_at"}, {Field: "id"}},
		Limit:  limit,
		Offset: offset,
	}, &posts)
	if err != nil {
		return nil, storeErr(err, "homework")
	}
	unlocked, err := s.unlock.UnlockedPostIDs(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	names, err := s.authorNames(ctx, posts)
	if err != nil {
		return nil, err
	}
	out := make([]HomeworkView, 0, len(posts))
	for _, p := range posts {
		out = append(out, s.view(p, viewerID, unlocked[p.ID], names))
	}
	return out, nil
}

func (s *HomeworkService) Get(ctx context.Context, viewerID, id string) (*HomeworkView, error) {
	post, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	visible, err := s.unlock.Visible(ctx, viewerID, post)
	if err != nil {
		return nil, err
	}
	names, err := s.authorNames(ctx, []model.HomeworkPost{*post})
	if err != nil {
		return nil, err
	}
	unlocked := visible && post.UserID != viewerID && post.PointsRequired > 0
	v := s.view(*post, viewerID, unlocked, names)
	return &v, nil
}

// authorNames 一次查询取出所有作者名
func (s *HomeworkService) authorNames(ctx context.Context, posts []model.HomeworkPost) (map[string]string, error) {
	names := make(map[string]string, len(posts))
	if len(posts) == 0 {
		return names, nil
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, ok := names[p.UserID]; !ok {
			names[p.UserID] = ""
			ids = append(ids, p.UserID)
		}
	}
	var users []model.User
	err := s.store.Select(ctx, "profiles", repository.Query{
		Fields: []string{"id", "username"},
		Filter: repository.Filter{"id": ids},
	}, &users)
	if err != nil {
		return nil, storeErr(err, "authors")
	}
	for _, u := range users {
		names[u.ID] = u.Username
	}
	return names, nil
}

func (s *HomeworkService) post(ctx context.Context, id string) (*model.HomeworkPost, error) {
	var p model.HomeworkPost
	if err := s.store.Get(ctx, "homework_posts", id, &p); err != nil {
		return nil, storeErr(err, "post")
	}
	return &p, nil
}

// Upload is an optional image attached to a new post.
type Upload struct {
	Filename string
	Data     []byte
}

func (s *HomeworkService) Create(ctx context.Context, sess *Session, in NewHomework, image *Upload) (*HomeworkView, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid homework post")
	}
	post := &model.HomeworkPost{
		ID:             uuid.NewString(),
		UserID:         sess.UserID(),
		Title:          in.Title,
		Description:    in.Description,
		PointsRequired: in.PointsRequired,
		CreatedAt:      time.Now().UTC(),
	}
	if image != nil && len(image.Data) > 0 {
		if s.storage == nil {
			return nil, apperr.Validation("image uploads are disabled")
		}
		url, err := s.storage.Upload(ctx, fmt.Sprintf("homework/%s/%d", post.UserID, time.Now().UnixNano()), image.Data)
		if err != nil {
			return nil, err
		}
		post.ImageURL = url
	}
	if err := s.store.Insert(ctx, "homework_posts", post); err != nil {
		return nil, storeErr(err, "post")
	}
	v := HomeworkView{HomeworkPost: *post, AuthorName: sess.User.Username}
	return &v, nil
}

// Delete 作者本人或管理员
func (s *HomeworkService) Delete(ctx context.Context, sess *Session, id string) error {
	post, err := s.post(ctx, id)
	if err != nil {
		return err
	}
	if post.UserID != sess.UserID() {
		if err := s.admin.VerifyAdmin(ctx, sess); err != nil {
			return apperr.ErrPermissionDenied
		}
	}
	return storeErr(s.store.Delete(ctx, "homework_posts", id), "post")
}

// Like 原子自增点赞数
func (s *HomeworkService) Like(ctx context.Context, id string) (int64, error) {
	if err := s.store.Update(ctx, "homework_posts", id, repository.Patch{Incr: map[string]int64{"likes": 1}}); err != nil {
		return 0, storeErr(err, "post")
	}
	post, err := s.post(ctx, id)
	if err != nil {
		return 0, err
	}
	return post.Likes, nil
}

type NewReply struct {
	Content string `json:"content" validate:"required,max=5000"`
}

func (s *HomeworkService) visiblePost(ctx context.Context, viewerID, id string) (*model.HomeworkPost, error) {
	post, err := s.post(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.unlock.Visible(ctx, viewerID, post)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindPermissionDenied, "unlock this post first")
	}
	return post, nil
}

// Reply 只有能看到帖子内容的人才能回复
func (s *HomeworkService) Reply(ctx context.Context, sess *Session, postID string, in NewReply) (*model.HomeworkReply, error) {
	in.Content = strings.TrimSpace(in.Content)
	if err := validate.Struct(in); err != nil {
		return nil, validationErr(err, "invalid reply")
	}
	if _, err := s.visiblePost(ctx, sess.UserID(), postID); err != nil {
		return nil, err
	}
	r := &model.HomeworkReply{
		ID:        uuid.NewString(),
		PostID:    postID,
		UserID:    sess.UserID(),
		Content:   in.Content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, "homework_replies", r); err != nil {
		return nil, storeErr(err, "reply")
	}
	return r, nil
}

func (s *HomeworkService) Replies(ctx context.Context, viewerID, postID string) ([]model.HomeworkReply, error) {
	if _, err := s.visiblePost(ctx, viewerID, postID); err != nil {
		return nil, err
	}
	var rows []model.HomeworkReply
	err := s.store.Select(ctx, "homework_replies", repository.Query{
		Filter: repository.Filter{"post_id": postID},
		Order:  []repository.Order{{Field: "created_at", Ascending: true}, {Field: "id", Ascending: true}},
		Limit:  200,
	}, &rows)
	if err != nil {
		return nil, storeErr(err, "replies")
	}
	return rows, nil
}
