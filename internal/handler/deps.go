package handler

import (
	"devschat/internal/app/chat"
	"devschat/internal/configs"
)

type AppDeps struct {
	Registry *chat.Registry
	Config   *configs.AppConfig
}
