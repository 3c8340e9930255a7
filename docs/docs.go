// Package docs 由 swag 生成的接口文档入口，`swag init -g cmd/server/main.go` 重新生成
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/v1/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["身份"],
                "summary": "登录并获取 token",
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/api/v1/auth/register": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["身份"],
                "summary": "注册新用户",
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}}
            }
        },
        "/api/v1/homework": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["作业"],
                "summary": "作业列表（未解锁的帖子会被脱敏）",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "tags": ["作业"],
                "summary": "发布作业",
                "responses": {"201": {"description": "Created"}}
            }
        },
        "/api/v1/homework/{id}/unlock": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["作业"],
                "summary": "解锁作业",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "409": {"description": "Conflict"}}
            }
        },
        "/api/v1/chat/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["聊天"],
                "summary": "聊天记录（时间升序）",
                "responses": {"200": {"description": "OK"}}
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["聊天"],
                "summary": "发送聊天消息",
                "responses": {"201": {"description": "Created"}, "429": {"description": "Too Many Requests"}}
            }
        },
        "/api/v1/points": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["积分"],
                "summary": "查询积分余额",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/v1/leaderboard": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["积分"],
                "summary": "积分排行榜",
                "responses": {"200": {"description": "OK"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Nexus Portal API",
	Description:      "订阅制校园门户：积分、作业解锁、实时聊天",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
