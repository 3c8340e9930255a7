package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/jchs-nexus/nexus-portal/internal/model"
	"github.com/jchs-nexus/nexus-portal/pkg/logger"
)

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type tabler interface{ TableName() string }

type gormStore struct {
	db       *gorm.DB
	notifier Notifier
	models   map[string]reflect.Type
	pending  *[]InsertEvent // non-nil inside Transaction
}

// NewGormStore 基于 gorm 的 Store 实现；集合名取自 model.Tables()
func NewGormStore(db *gorm.DB, notifier Notifier) Store {
	if notifier == nil {
		notifier = NewLocalNotifier(0)
	}
	models := make(map[string]reflect.Type)
	for _, m := range model.Tables() {
		t, ok := m.(tabler)
		if !ok {
			continue
		}
		models[t.TableName()] = reflect.TypeOf(m).Elem()
	}
	return &gormStore{db: db, notifier: notifier, models: models}
}

func (s *gormStore) table(ctx context.Context, collection string) (*gorm.DB, error) {
	if _, ok := s.models[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return s.db.WithContext(ctx).Table(collection), nil
}

func (s *gormStore) Select(ctx context.Context, collection string, q Query, dest interface{}) error {
	tx, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	if tx, err = applyQuery(tx, q); err != nil {
		return err
	}
	if err := tx.Find(dest).Error; err != nil {
		return fmt.Errorf("select %s: %w", collection, err)
	}
	return nil
}

func (s *gormStore) Get(ctx context.Context, collection, id string, dest interface{}) error {
	tx, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	// 非零主键会被 gorm 当成额外条件，复用 dest 前先清零
	if v := reflect.ValueOf(dest); v.Kind() == reflect.Pointer && !v.IsNil() {
		v.Elem().Set(reflect.Zero(v.Elem().Type()))
	}
	if err := tx.Where("id = ?", id).Take(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *gormStore) Count(ctx context.Context, collection string, q Query) (int64, error) {
	tx, err := s.table(ctx, collection)
	if err != nil {
		return 0, err
	}
	q.Order, q.Limit, q.Offset, q.Fields = nil, 0, 0, nil
	if tx, err = applyQuery(tx, q); err != nil {
		return 0, err
	}
	var n int64
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *gormStore) Insert(ctx context.Context, collection string, record interface{}) error {
	tx, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	if err := tx.Create(record).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, collection)
		}
		return fmt.Errorf("insert %s: %w", collection, err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		logger.Warn("insert event encode failed", zap.String("collection", collection), zap.Error(err))
		return nil
	}
	ev := InsertEvent{Collection: collection, ID: recordID(payload), Record: payload}
	if s.pending != nil {
		*s.pending = append(*s.pending, ev)
		return nil
	}
	s.publish(ctx, ev)
	return nil
}

func (s *gormStore) Update(ctx context.Context, collection, id string, p Patch) error {
	tx, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	if len(p.Set) == 0 && len(p.Incr) == 0 {
		return ErrEmptyPatch
	}

	updates := make(map[string]interface{}, len(p.Set)+len(p.Incr))
	for k, v := range p.Set {
		if !identRe.MatchString(k) {
			return fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
		updates[k] = v
	}
	for k, n := range p.Incr {
		if !identRe.MatchString(k) {
			return fmt.Errorf("%w: %q", ErrInvalidField, k)
		}
		updates[k] = gorm.Expr(k+" + ?", n)
	}

	tx = tx.Where("id = ?", id)
	for _, c := range p.Conds {
		if tx, err = applyCond(tx, c); err != nil {
			return err
		}
	}
	res := tx.Updates(updates)
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return fmt.Errorf("%w: %s", ErrDuplicate, collection)
		}
		return fmt.Errorf("update %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// 0 行：区分记录不存在和条件不满足
	var n int64
	if err := s.db.WithContext(ctx).Table(collection).Where("id = ?", id).Count(&n).Error; err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	if len(p.Conds) > 0 {
		return ErrConditionFailed
	}
	return nil
}

func (s *gormStore) Delete(ctx context.Context, collection, id string) error {
	t, ok := s.models[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(reflect.New(t).Interface())
	if res.Error != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *gormStore) SubscribeToInserts(ctx context.Context, collection string, filter Filter, fn func(InsertEvent)) (Subscription, error) {
	if _, ok := s.models[collection]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, collection)
	}
	return s.notifier.Subscribe(ctx, collection, func(ev InsertEvent) {
		if matches(ev, filter) {
			fn(ev)
		}
	})
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if s.pending != nil {
		return fn(s)
	}
	var events []InsertEvent
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx, notifier: s.notifier, models: s.models, pending: &events})
	})
	if err != nil {
		return err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

// publish 在写入已落地之后调用；通知失败只记日志，不影响写入结果
func (s *gormStore) publish(ctx context.Context, ev InsertEvent) {
	if err := s.notifier.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logger.Warn("publish insert event failed",
			zap.String("collection", ev.Collection),
			zap.String("id", ev.ID),
			zap.Error(err),
		)
	}
}

func applyQuery(tx *gorm.DB, q Query) (*gorm.DB, error) {
	if len(q.Fields) > 0 {
		for _, f := range q.Fields {
			if !identRe.MatchString(f) {
				return nil, fmt.Errorf("%w: %q", ErrInvalidField, f)
			}
		}
		tx = tx.Select(q.Fields)
	}

	keys := make([]string, 0, len(q.Filter))
	for k := range q.Filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		op := "="
		if isSlice(q.Filter[k]) {
			op = "in"
		}
		var err error
		if tx, err = applyCond(tx, Cond{Field: k, Op: op, Value: q.Filter[k]}); err != nil {
			return nil, err
		}
	}
	for _, c := range q.Conds {
		var err error
		if tx, err = applyCond(tx, c); err != nil {
			return nil, err
		}
	}
	for _, o := range q.Order {
		if !identRe.MatchString(o.Field) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidField, o.Field)
		}
		dir := " DESC"
		if o.Ascending {
			dir = " ASC"
		}
		tx = tx.Order(o.Field + dir)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	if q.Offset > 0 {
		tx = tx.Offset(q.Offset)
	}
	return tx, nil
}

func applyCond(tx *gorm.DB, c Cond) (*gorm.DB, error) {
	if !identRe.MatchString(c.Field) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidField, c.Field)
	}
	switch strings.ToLower(c.Op) {
	case "", "=":
		if c.Value == nil {
			return tx.Where(c.Field + " IS NULL"), nil
		}
		return tx.Where(c.Field+" = ?", c.Value), nil
	case "!=":
		if c.Value == nil {
			return tx.Where(c.Field + " IS NOT NULL"), nil
		}
		return tx.Where(c.Field+" <> ?", c.Value), nil
	case ">", ">=", "<", "<=":
		return tx.Where(c.Field+" "+c.Op+" ?", c.Value), nil
	case "in":
		return tx.Where(c.Field+" IN ?", c.Value), nil
	default:
		return nil, fmt.Errorf("unsupported operator %q", c.Op)
	}
}

func isSlice(v interface{}) bool {
	if v == nil {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

func recordID(payload []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(payload, &head)
	return head.ID
}

// matches 比较事件记录和订阅过滤条件（按字符串形式等值比较）
func matches(ev InsertEvent, filter Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var rec map[string]interface{}
	if err := json.Unmarshal(ev.Record, &rec); err != nil {
		return false
	}
	for k, want := range filter {
		got, ok := rec[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
