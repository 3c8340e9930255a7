package repository

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrConditionFailed   = errors.New("update condition not met")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidField      = errors.New("invalid field name")
	ErrEmptyPatch        = errors.New("empty patch")
)

// Filter 等值过滤；值为切片时按 IN 处理
type Filter map[string]interface{}

// Cond is a comparison evaluated by the storage engine.
// Op is one of = != > >= < <= in.
type Cond struct {
	Field string
	Op    string
	Value interface{}
}

type Order struct {
	Field     string
	Ascending bool
}

// Query 查询参数；Fields 为空时取全部列
type Query struct {
	Fields []string
	Filter Filter
	Conds  []Cond
	Order  []Order
	Limit  int
	Offset int
}

// Patch 更新内容：Set 直接赋值，Incr 相对当前值增减（col = col + n），
// Conds 与更新在同一条语句里由数据库判断
type Patch struct {
	Set   map[string]interface{}
	Incr  map[string]int64
	Conds []Cond
}

// InsertEvent is delivered to subscribers after an insert is durable.
type InsertEvent struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Record     json.RawMessage `json:"record"`
}

func (e InsertEvent) Decode(v interface{}) error { return json.Unmarshal(e.Record, v) }

// Subscription is live from the moment SubscribeToInserts returns until Close.
type Subscription interface {
	Close() error
}

// Store 数据访问协作者：所有核心组件只依赖这个窄接口
type Store interface {
	Select(ctx context.Context, collection string, q Query, dest interface{}) error
	Get(ctx context.Context, collection, id string, dest interface{}) error
	Count(ctx context.Context, collection string, q Query) (int64, error)
	Insert(ctx context.Context, collection string, record interface{}) error
	Update(ctx context.Context, collection, id string, p Patch) error
	Delete(ctx context.Context, collection, id string) error
	SubscribeToInserts(ctx context.Context, collection string, filter Filter, fn func(InsertEvent)) (Subscription, error)
	// Transaction runs fn atomically. Insert events raised inside fn are
	// published only after commit.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
