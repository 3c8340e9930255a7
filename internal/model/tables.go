package model

// Tables 返回所有需要迁移/注册的模型
func Tables() []interface{} {
	return []interface{}{
		&User{},
		&UserRole{},
		&HomeworkPost{},
		&HomeworkReply{},
		&UnlockRecord{},
		&ChatMessage{},
		&Activity{},
		&ActivityCompletion{},
		&PointTransaction{},
		&MerchItem{},
		&MusicEmbed{},
	}
}
