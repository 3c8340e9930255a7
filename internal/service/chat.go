package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/jchs-nexus/nexus-portal/config"
	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/internal/repository"
)

const (
	GlobalRoom       = "global"
	MaxMessageLength = 500
	directPrefix     = "dm:"
)

var roomNameRe = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

// DirectRoom 私聊房间名，两端 id 排序后拼接，保证双方得到同一个房间
func DirectRoom(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return directPrefix + ids[0] + ":" + ids[1]
}

// ValidateContent trims content and checks its length in characters.
func ValidateContent(content string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = MaxMessageLength
	}
	trimmed := strings.TrimSpace(content)
	n := utf8.RuneCountInString(trimmed)
	if n == 0 {
		return "", apperr.Validation("message is empty", apperr.FieldError{Field: "content", Message: "is required"})
	}
	if n > maxLen {
		return "", apperr.Validation("message is too long", apperr.FieldError{Field: "content", Message: fmt.Sprintf("must be at most %d characters", maxLen)})
	}
	return trimmed, nil
}

type ChatService struct {
	store   repository.Store
	cfg     config.ChatConfig
	limiter *userLimiter
	now     func() time.Time
}

func NewChatService(store repository.Store, cfg config.ChatConfig) *ChatService {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	if cfg.MaxHistoryLimit <= 0 {
		cfg.MaxHistoryLimit = 200
	}
	if cfg.MaxMessageLength <= 0 {
		cfg.MaxMessageLength = MaxMessageLength
	}
	if cfg.FeedBuffer <= 0 {
		cfg.FeedBuffer = 256
	}
	return &ChatService{
		store:   store,
		cfg:     cfg,
		limiter: newUserLimiter(perSecond(cfg.RatePerSecond), cfg.Burst),
		now:     time.Now,
	}
}

func (s *ChatService) ValidateContent(content string) (string, error) {
	return ValidateContent(content, s.cfg.MaxMessageLength)
}

// CanAccess 公共房间所有订阅用户可进入，私聊房间只允许两端用户
func (s *ChatService) CanAccess(userID, room string) error {
	if room == GlobalRoom || roomNameRe.MatchString(room) {
		return nil
	}
	if strings.HasPrefix(room, directPrefix) {
		parts := strings.Split(strings.TrimPrefix(room, directPrefix), ":")
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" || DirectRoom(parts[0], parts[1]) != room {
			return apperr.Validation("invalid room", apperr.FieldError{Field: "room", Message: "malformed direct room"})
		}
		if userID != parts[0] && userID != parts[1] {
			return apperr.ErrPermissionDenied
		}
		return nil
	}
	return apperr.Validation("invalid room", apperr.FieldError{Field: "room", Message: "must match [a-z0-9-]{1,32}"})
}

// Post 写入一条不可变消息
func (s *ChatService) Post(ctx context.Context, author *model.User, room, content string) (*model.ChatMessage, error) {
	text, err := s.ValidateContent(content)
	if err != nil {
		return nil, err
	}
	if err := s.CanAccess(author.ID, room); err != nil {
		return nil, err
	}
	if !s.limiter.Allow(author.ID) {
		return nil, apperr.ErrRateLimited
	}

	msg := &model.ChatMessage{
		ID:         uuid.NewString(),
		RoomID:     room,
		UserID:     author.ID,
		AuthorName: author.Username,
		Content:    text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Insert(ctx, "chat_messages", msg); err != nil {
		return nil, storeErr(err, "chat message")
	}
	return msg, nil
}

func (s *ChatService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.cfg.HistoryLimit
	}
	if limit > s.cfg.MaxHistoryLimit {
		return s.cfg.MaxHistoryLimit
	}
	return limit
}

// History 返回最近 limit 条消息，按时间升序
func (s *ChatService) History(ctx context.Context, viewerID, room string, limit int) ([]model.ChatMessage, error) {
	if err := s.CanAccess(viewerID, room); err != nil {
		return nil, err
	}
	return s.history(ctx, room, s.clampLimit(limit))
}

func (s *ChatService) history(ctx context.Context, room string, limit int) ([]model.ChatMessage, error) {
	var rows []model.ChatMessage
	err := s.store.Select(ctx, "chat_messages", repository.Query{
		Filter: repository.Filter{"room_id": room},
		Order:  []repository.Order{{Field: "created_at"}, {Field: "id"}},
		Limit:  limit,
	}, &rows)
	if err != nil {
		return nil, storeErr(err, "chat history")
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// OpenFeed 先订阅再取快照：订阅期间到达的消息先缓存，快照发出后再按 id 去重补发
func (s *ChatService) OpenFeed(ctx context.Context, viewerID, room string, limit int) (*Feed, error) {
	if err := s.CanAccess(viewerID, room); err != nil {
		return nil, err
	}
	f := newFeed(room, s.cfg.FeedBuffer)

	f.setState(FeedSubscribing)
	sub, err := s.store.SubscribeToInserts(ctx, "chat_messages", repository.Filter{"room_id": room}, f.onInsert)
	if err != nil {
		f.Close()
		return nil, storeErr(err, "chat subscription")
	}
	f.attach(sub)

	snapshot, err := s.history(ctx, room, s.clampLimit(limit))
	if err != nil {
		f.Close()
		return nil, err
	}
	f.goLive(snapshot)

	go func() {
		select {
		case <-ctx.Done():
			f.Close()
		case <-f.done:
		}
	}()
	return f, nil
}
